package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"sitecms/backend/internal/query"
)

func TestToBSON(t *testing.T) {
	t.Run("空条件", func(t *testing.T) {
		assert.Equal(t, bson.M{}, toBSON(query.Filter{}))
	})

	t.Run("单个谓词", func(t *testing.T) {
		assert.Equal(t, bson.M{"active": true}, toBSON(query.Where(query.Eq("active", true))))
	})

	t.Run("多个谓词与搜索", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		f := query.Where(query.Gte("rating", 4), query.Lte("publishDate", now))
		f.Search = &query.Search{Term: "a.b", Fields: []string{"name", "company"}}

		got := toBSON(f)
		pattern := primitive.Regex{Pattern: `a\.b`, Options: "i"}
		assert.Equal(t, bson.M{"$and": bson.A{
			bson.M{"rating": bson.M{"$gte": 4}},
			bson.M{"publishDate": bson.M{"$lte": now}},
			bson.M{"$or": bson.A{bson.M{"name": pattern}, bson.M{"company": pattern}}},
		}}, got)
	})

	t.Run("集合谓词", func(t *testing.T) {
		got := toBSON(query.Where(query.In("status", "a", "b")))
		assert.Equal(t, bson.M{"status": bson.M{"$in": bson.A{"a", "b"}}}, got)
	})
}

func TestToSortAndUpdate(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
		toSort(query.Sort{Field: "createdAt", Desc: true}))

	u := toUpdate(query.Update{Set: map[string]any{"read": true}, Inc: map[string]int64{"views": 1}})
	assert.Equal(t, bson.M{"read": true}, u["$set"])
	assert.Equal(t, bson.M{"views": int64(1)}, u["$inc"])
}
