package query

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"sitecms/backend/internal/domain"
)

// 分页默认值
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Kind 查询参数的取值类型
type Kind int

const (
	KindString Kind = iota // 原样字符串
	KindEnum               // 必须属于 Allowed
	KindBool               // 仅接受 "true" / "false"
	KindInt                // 十进制整数
)

// Param 一个允许出现在查询串中的过滤参数
type Param struct {
	Name    string   // 查询串中的键
	Field   string   // 存储字段名，为空时与 Name 相同
	Kind    Kind     // 取值类型
	Op      Op       // 比较方式，为空时按相等处理
	Allowed []string // KindEnum 的可选值
}

// Schema 某个列表接口的白名单查询定义
//
// 未在 Filters 中声明的查询键一律忽略，不会进入存储查询。
type Schema struct {
	Filters      []Param
	SearchFields []string
	SortFields   []string
	DefaultSort  string
	DefaultLimit int
	Forced       []Predicate // 强制条件，覆盖调用方对同一字段的过滤
}

// Build 将请求参数翻译为查询描述
//
// 分页参数非数字、小于 1 或页码大到跳过条数溢出时回退到默认值；过滤参数取值非法时返回 *domain.ValidationError。
//
// 参数:
//   - values: 请求的查询串
//
// 返回值:
//   - Spec: 过滤、排序与分页
//   - error: 过滤参数非法时返回校验错误
func (s Schema) Build(values url.Values) (Spec, error) {
	spec := Spec{
		Page:  positiveInt(values.Get("page"), DefaultPage),
		Limit: positiveInt(values.Get("limit"), s.defaultLimit()),
	}
	if spec.Limit > MaxLimit {
		spec.Limit = MaxLimit
	}
	// 跳过条数必须能用 int 表示
	if spec.Page-1 > math.MaxInt/spec.Limit {
		spec.Page = DefaultPage
	}

	forced := make(map[string]bool, len(s.Forced))
	for _, p := range s.Forced {
		forced[p.Field] = true
	}

	verr := &domain.ValidationError{}
	for _, param := range s.Filters {
		raw := strings.TrimSpace(values.Get(param.Name))
		if raw == "" {
			continue
		}
		field := param.Field
		if field == "" {
			field = param.Name
		}
		if forced[field] {
			continue
		}
		value, ok := parseValue(param, raw)
		if !ok {
			verr.Add(param.Name, invalidMessage(param))
			continue
		}
		op := param.Op
		if op == "" {
			op = OpEq
		}
		spec.Filter.Predicates = append(spec.Filter.Predicates, Predicate{Field: field, Op: op, Value: value})
	}
	if err := verr.Err(); err != nil {
		return Spec{}, err
	}
	spec.Filter.Predicates = append(spec.Filter.Predicates, s.Forced...)

	if term := strings.TrimSpace(values.Get("search")); term != "" && len(s.SearchFields) > 0 {
		spec.Filter.Search = &Search{Term: term, Fields: s.SearchFields}
	}

	spec.Sort = Sort{Field: s.sortField(values.Get("sortBy")), Desc: values.Get("sortOrder") != "asc"}
	return spec, nil
}

func (s Schema) defaultLimit() int {
	if s.DefaultLimit > 0 {
		return s.DefaultLimit
	}
	return DefaultLimit
}

func (s Schema) sortField(requested string) string {
	for _, f := range s.SortFields {
		if f == requested {
			return f
		}
	}
	if s.DefaultSort != "" {
		return s.DefaultSort
	}
	return "createdAt"
}

func parseValue(param Param, raw string) (any, bool) {
	switch param.Kind {
	case KindBool:
		switch raw {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return nil, false
	case KindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, false
		}
		return n, true
	case KindEnum:
		for _, a := range param.Allowed {
			if raw == a {
				return raw, true
			}
		}
		return nil, false
	default:
		return raw, true
	}
}

func invalidMessage(param Param) string {
	switch param.Kind {
	case KindBool:
		return "must be true or false"
	case KindInt:
		return "must be an integer"
	case KindEnum:
		return "must be one of " + strings.Join(param.Allowed, ", ")
	}
	return "is invalid"
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
