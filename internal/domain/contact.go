package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Priority 联系表单优先级
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities 合法的优先级
var Priorities = []string{string(PriorityLow), string(PriorityMedium), string(PriorityHigh)}

// ContactSubmission 联系表单提交
type ContactSubmission struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Phone     string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Company   string             `bson:"company,omitempty" json:"company,omitempty"`
	Subject   string             `bson:"subject" json:"subject"`
	Message   string             `bson:"message" json:"message"`
	Read      bool               `bson:"read" json:"read"`
	Replied   bool               `bson:"replied" json:"replied"`
	RepliedAt *time.Time         `bson:"repliedAt,omitempty" json:"repliedAt,omitempty"`
	Priority  Priority           `bson:"priority" json:"priority"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Validate 校验必填字段与优先级
func (c *ContactSubmission) Validate() error {
	v := &ValidationError{}
	v.Require("name", c.Name)
	v.Require("email", c.Email)
	if c.Email != "" && ValidateEmail(c.Email) != nil {
		v.Add("email", "must be a valid email address")
	}
	v.Require("subject", c.Subject)
	v.Require("message", c.Message)
	v.OneOf("priority", string(c.Priority), Priorities)
	return v.Err()
}

// ContactStats 联系表单统计概览
type ContactStats struct {
	Total      int64            `json:"total"`
	Unread     int64            `json:"unread"`
	Replied    int64            `json:"replied"`
	ByPriority map[string]int64 `json:"byPriority"`
}
