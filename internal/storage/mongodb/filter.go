package mongodb

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"sitecms/backend/internal/query"
)

// toBSON 将查询描述翻译为 Mongo 过滤文档
//
// 只翻译白名单构建出的谓词，客户端键不会直接进入过滤文档。
func toBSON(f query.Filter) bson.M {
	clauses := make([]bson.M, 0, len(f.Predicates)+1)
	for _, p := range f.Predicates {
		clauses = append(clauses, predicateToBSON(p))
	}
	if s := f.Search; s != nil && len(s.Fields) > 0 {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(s.Term), Options: "i"}
		or := make(bson.A, 0, len(s.Fields))
		for _, field := range s.Fields {
			or = append(or, bson.M{field: pattern})
		}
		clauses = append(clauses, bson.M{"$or": or})
	}

	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0]
	}
	and := make(bson.A, 0, len(clauses))
	for _, c := range clauses {
		and = append(and, c)
	}
	return bson.M{"$and": and}
}

func predicateToBSON(p query.Predicate) bson.M {
	switch p.Op {
	case query.OpGte:
		return bson.M{p.Field: bson.M{"$gte": p.Value}}
	case query.OpLte:
		return bson.M{p.Field: bson.M{"$lte": p.Value}}
	case query.OpIn:
		values, _ := p.Value.([]any)
		return bson.M{p.Field: bson.M{"$in": bson.A(values)}}
	default:
		return bson.M{p.Field: p.Value}
	}
}

// toSort 按指定字段排序，_id 作为次序保证分页稳定
func toSort(s query.Sort) bson.D {
	if s.Field == "" {
		return bson.D{{Key: "_id", Value: 1}}
	}
	dir := 1
	if s.Desc {
		dir = -1
	}
	return bson.D{{Key: s.Field, Value: dir}, {Key: "_id", Value: dir}}
}

// toUpdate 将局部更新翻译为 $set / $inc
func toUpdate(u query.Update) bson.M {
	out := bson.M{}
	if len(u.Set) > 0 {
		out["$set"] = bson.M(u.Set)
	}
	if len(u.Inc) > 0 {
		inc := bson.M{}
		for k, v := range u.Inc {
			inc[k] = v
		}
		out["$inc"] = inc
	}
	return out
}
