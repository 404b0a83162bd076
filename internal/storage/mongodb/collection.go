package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/query"
)

// collection 对 mongo.Collection 的泛型封装
type collection[T any] struct {
	coll *mongo.Collection
}

func newCollection[T any](coll *mongo.Collection) *collection[T] {
	return &collection[T]{coll: coll}
}

func (c *collection[T]) Insert(ctx context.Context, doc *T) error {
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		return c.wrap("insert", err)
	}
	return nil
}

func (c *collection[T]) FindByID(ctx context.Context, id primitive.ObjectID) (*T, error) {
	out := new(T)
	if err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(out); err != nil {
		return nil, c.wrap("find by id", err)
	}
	return out, nil
}

func (c *collection[T]) FindOne(ctx context.Context, filter query.Filter) (*T, error) {
	out := new(T)
	if err := c.coll.FindOne(ctx, toBSON(filter)).Decode(out); err != nil {
		return nil, c.wrap("find one", err)
	}
	return out, nil
}

func (c *collection[T]) Find(ctx context.Context, spec query.Spec) ([]T, error) {
	opts := options.Find().SetSort(toSort(spec.Sort))
	if skip := spec.Skip(); skip > 0 {
		opts.SetSkip(skip)
	}
	if spec.Limit > 0 {
		opts.SetLimit(int64(spec.Limit))
	}

	cursor, err := c.coll.Find(ctx, toBSON(spec.Filter), opts)
	if err != nil {
		return nil, c.wrap("find", err)
	}
	out := make([]T, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, c.wrap("decode", err)
	}
	return out, nil
}

func (c *collection[T]) Count(ctx context.Context, filter query.Filter) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, toBSON(filter))
	if err != nil {
		return 0, c.wrap("count", err)
	}
	return n, nil
}

func (c *collection[T]) Update(ctx context.Context, id primitive.ObjectID, update query.Update) (*T, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	out := new(T)
	err := c.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, toUpdate(update), opts).Decode(out)
	if err != nil {
		return nil, c.wrap("update", err)
	}
	return out, nil
}

func (c *collection[T]) Replace(ctx context.Context, id primitive.ObjectID, doc *T) error {
	res, err := c.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return c.wrap("replace", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (c *collection[T]) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return c.wrap("delete", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (c *collection[T]) Distinct(ctx context.Context, field string, filter query.Filter) ([]any, error) {
	values, err := c.coll.Distinct(ctx, field, toBSON(filter))
	if err != nil {
		return nil, c.wrap("distinct", err)
	}
	return values, nil
}

func (c *collection[T]) Group(ctx context.Context, filter query.Filter, groupBy, avgField string) ([]query.GroupStat, error) {
	group := bson.M{"_id": "$" + groupBy, "count": bson.M{"$sum": 1}}
	if avgField != "" {
		group["average"] = bson.M{"$avg": "$" + avgField}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: toBSON(filter)}},
		{{Key: "$group", Value: group}},
		{{Key: "$sort", Value: bson.M{"count": -1}}},
	}

	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, c.wrap("aggregate", err)
	}
	var rows []groupRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, c.wrap("decode aggregate", err)
	}
	return toGroupStats(rows), nil
}

// groupRow $group 阶段的一行输出；分组内字段全缺失时 $avg 为 null
type groupRow struct {
	Key     any      `bson:"_id"`
	Count   int64    `bson:"count"`
	Average *float64 `bson:"average"`
}

func toGroupStats(rows []groupRow) []query.GroupStat {
	out := make([]query.GroupStat, 0, len(rows))
	for _, r := range rows {
		stat := query.GroupStat{Key: r.Key, Count: r.Count}
		if r.Average != nil {
			stat.Average = *r.Average
		}
		out = append(out, stat)
	}
	return out
}

func (c *collection[T]) Sum(ctx context.Context, filter query.Filter, field string) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: toBSON(filter)}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$" + field}}}},
	}
	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, c.wrap("aggregate", err)
	}
	var rows []sumRow
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, c.wrap("decode aggregate", err)
	}
	return totalOf(rows), nil
}

// sumRow $sum 的输出，服务端按数值大小返回 int32 或 int64
type sumRow struct {
	Total int64 `bson:"total"`
}

// totalOf 无匹配文档时聚合不产生任何行
func totalOf(rows []sumRow) int64 {
	if len(rows) == 0 {
		return 0
	}
	return rows[0].Total
}

// wrap 将驱动错误映射为领域错误
func (c *collection[T]) wrap(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return domain.ErrDuplicate
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: %s %s: %v", domain.ErrStoreUnavailable, c.coll.Name(), op, err)
	}
	return fmt.Errorf("%s %s: %w", c.coll.Name(), op, err)
}
