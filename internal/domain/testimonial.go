package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 评分范围
const (
	MinRating = 1
	MaxRating = 5
)

// TestimonialSources 合法的评价来源
var TestimonialSources = []string{"website", "email", "phone", "social", "referral"}

// Testimonial 客户评价
type Testimonial struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Company   string             `bson:"company" json:"company"`
	Position  string             `bson:"position,omitempty" json:"position,omitempty"`
	Content   string             `bson:"content,omitempty" json:"content,omitempty"`
	Image     string             `bson:"image,omitempty" json:"image,omitempty"`
	Rating    int                `bson:"rating" json:"rating"`
	Active    bool               `bson:"active" json:"active"`
	Featured  bool               `bson:"featured" json:"featured"`
	Verified  bool               `bson:"verified" json:"verified"`
	Source    string             `bson:"source" json:"source"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Validate 校验必填字段、评分范围与来源
func (t *Testimonial) Validate() error {
	v := &ValidationError{}
	v.Require("name", t.Name)
	v.Require("company", t.Company)
	if t.Rating < MinRating || t.Rating > MaxRating {
		v.Add("rating", "must be an integer between 1 and 5")
	}
	v.OneOf("source", t.Source, TestimonialSources)
	return v.Err()
}

// TestimonialStats 评价统计概览
type TestimonialStats struct {
	Total         int64            `json:"total"`
	Active        int64            `json:"active"`
	Featured      int64            `json:"featured"`
	Verified      int64            `json:"verified"`
	AverageRating float64          `json:"averageRating"`
	BySource      map[string]int64 `json:"bySource"`
	ByRating      map[string]int64 `json:"byRating"`
}
