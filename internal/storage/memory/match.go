package memory

import (
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"sitecms/backend/internal/query"
)

// matches 在单个文档上求值过滤条件
func matches(m bson.M, filter query.Filter) bool {
	for _, p := range filter.Predicates {
		if !matchPredicate(m[p.Field], p) {
			return false
		}
	}
	if s := filter.Search; s != nil {
		term := strings.ToLower(s.Term)
		found := false
		for _, field := range s.Fields {
			if containsFold(m[field], term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func matchPredicate(value any, p query.Predicate) bool {
	if arr, ok := value.(bson.A); ok && (p.Op == query.OpEq || p.Op == query.OpIn) {
		for _, item := range arr {
			if matchPredicate(item, p) {
				return true
			}
		}
		return false
	}

	switch p.Op {
	case query.OpEq:
		return compare(value, p.Value) == 0
	case query.OpGte:
		return sameKind(value, p.Value) && compare(value, p.Value) >= 0
	case query.OpLte:
		return sameKind(value, p.Value) && compare(value, p.Value) <= 0
	case query.OpIn:
		values, _ := p.Value.([]any)
		for _, candidate := range values {
			if compare(value, candidate) == 0 {
				return true
			}
		}
	}
	return false
}

func containsFold(value any, term string) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), term)
	case bson.A:
		for _, item := range v {
			if containsFold(item, term) {
				return true
			}
		}
	}
	return false
}

// 类型排序参照 BSON 比较顺序
const (
	rankNull = iota
	rankNumber
	rankString
	rankObjectID
	rankBool
	rankDate
	rankOther
)

type scalar struct {
	rank int
	num  float64
	str  string
}

func normalize(v any) scalar {
	switch x := v.(type) {
	case nil:
		return scalar{rank: rankNull}
	case primitive.ObjectID:
		return scalar{rank: rankObjectID, str: x.Hex()}
	case primitive.DateTime:
		return scalar{rank: rankDate, num: float64(x)}
	case time.Time:
		return scalar{rank: rankDate, num: float64(x.UnixMilli())}
	case *time.Time:
		if x == nil {
			return scalar{rank: rankNull}
		}
		return scalar{rank: rankDate, num: float64(x.UnixMilli())}
	case primitive.Null:
		return scalar{rank: rankNull}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return scalar{rank: rankNumber, num: float64(rv.Int())}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return scalar{rank: rankNumber, num: float64(rv.Uint())}
	case reflect.Float32, reflect.Float64:
		return scalar{rank: rankNumber, num: rv.Float()}
	case reflect.String:
		return scalar{rank: rankString, str: rv.String()}
	case reflect.Bool:
		if rv.Bool() {
			return scalar{rank: rankBool, num: 1}
		}
		return scalar{rank: rankBool}
	}
	return scalar{rank: rankOther}
}

func sameKind(a, b any) bool {
	na, nb := normalize(a), normalize(b)
	return na.rank == nb.rank && na.rank != rankNull && na.rank != rankOther
}

// compare 返回 -1、0、1
func compare(a, b any) int {
	na, nb := normalize(a), normalize(b)
	if na.rank != nb.rank {
		if na.rank < nb.rank {
			return -1
		}
		return 1
	}
	switch na.rank {
	case rankString, rankObjectID:
		return strings.Compare(na.str, nb.str)
	case rankNumber, rankBool, rankDate:
		switch {
		case na.num < nb.num:
			return -1
		case na.num > nb.num:
			return 1
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	n := normalize(v)
	if n.rank != rankNumber {
		return 0, false
	}
	return n.num, true
}
