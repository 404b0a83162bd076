// Package query 定义与存储无关的过滤、排序、分页描述，并提供按白名单从请求参数构建查询的 Schema。
package query

import "math"

// Op 谓词比较方式
type Op string

const (
	OpEq  Op = "eq"  // 相等；对数组字段表示包含该元素
	OpGte Op = "gte" // 大于等于
	OpLte Op = "lte" // 小于等于
	OpIn  Op = "in"  // 取值属于集合，Value 为 []any
)

// Predicate 单个字段条件，Field 为存储字段名
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Eq 构造相等谓词
func Eq(field string, value any) Predicate {
	return Predicate{Field: field, Op: OpEq, Value: value}
}

// Gte 构造大于等于谓词
func Gte(field string, value any) Predicate {
	return Predicate{Field: field, Op: OpGte, Value: value}
}

// Lte 构造小于等于谓词
func Lte(field string, value any) Predicate {
	return Predicate{Field: field, Op: OpLte, Value: value}
}

// In 构造集合谓词
func In(field string, values ...any) Predicate {
	return Predicate{Field: field, Op: OpIn, Value: values}
}

// Search 跨多个字段的不区分大小写子串匹配，任一字段命中即可
type Search struct {
	Term   string
	Fields []string
}

// Filter 谓词之间为 AND 关系
type Filter struct {
	Predicates []Predicate
	Search     *Search
}

// Where 构造仅含谓词的过滤条件
func Where(predicates ...Predicate) Filter {
	return Filter{Predicates: predicates}
}

// And 返回追加谓词后的新过滤条件
func (f Filter) And(predicates ...Predicate) Filter {
	out := Filter{Search: f.Search}
	out.Predicates = append(append([]Predicate{}, f.Predicates...), predicates...)
	return out
}

// Sort 排序描述
type Sort struct {
	Field string
	Desc  bool
}

// Spec 一次列表查询的完整描述
//
// Limit 为 0 表示不分页。
type Spec struct {
	Filter Filter
	Sort   Sort
	Page   int
	Limit  int
}

// Skip 返回需要跳过的记录数
func (s Spec) Skip() int64 {
	if s.Page <= 1 || s.Limit <= 0 {
		return 0
	}
	pages, limit := int64(s.Page-1), int64(s.Limit)
	if pages > math.MaxInt64/limit {
		return math.MaxInt64
	}
	return pages * limit
}

// Update 按主键的局部更新
type Update struct {
	Set map[string]any
	Inc map[string]int64
}

// GroupStat 分组聚合结果
type GroupStat struct {
	Key     any     `json:"key"`
	Count   int64   `json:"count"`
	Average float64 `json:"average"`
}

// Page 分页结果
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// NewPage 根据总数计算总页数
func NewPage[T any](items []T, total int64, spec Spec) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items:      items,
		Total:      total,
		Page:       spec.Page,
		Limit:      spec.Limit,
		TotalPages: TotalPages(total, spec.Limit),
	}
}

// TotalPages 返回 ceil(total/limit)
func TotalPages(total int64, limit int) int {
	if limit <= 0 {
		if total > 0 {
			return 1
		}
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
