package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/query"
)

// collection 以 bson 文档形式保存记录，过滤与排序在文档上求值，
// 字段名与类型和 Mongo 实现保持一致。
type collection[T any] struct {
	mu     sync.RWMutex
	docs   map[primitive.ObjectID]bson.M
	order  []primitive.ObjectID // 插入顺序，排序相等时保持稳定
	unique []string
}

func newCollection[T any](unique []string) *collection[T] {
	return &collection[T]{
		docs:   make(map[primitive.ObjectID]bson.M),
		unique: unique,
	}
}

func (c *collection[T]) Insert(_ context.Context, doc *T) error {
	m, err := toDocument(doc)
	if err != nil {
		return err
	}
	id, ok := m["_id"].(primitive.ObjectID)
	if !ok || id.IsZero() {
		return fmt.Errorf("insert document: missing _id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.docs[id]; exists {
		return domain.ErrDuplicate
	}
	if c.violatesUnique(id, m) {
		return domain.ErrDuplicate
	}
	c.docs[id] = m
	c.order = append(c.order, id)
	return nil
}

func (c *collection[T]) FindByID(_ context.Context, id primitive.ObjectID) (*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return fromDocument[T](m)
}

func (c *collection[T]) FindOne(_ context.Context, filter query.Filter) (*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, id := range c.order {
		if m := c.docs[id]; matches(m, filter) {
			return fromDocument[T](m)
		}
	}
	return nil, domain.ErrNotFound
}

func (c *collection[T]) Find(_ context.Context, spec query.Spec) ([]T, error) {
	c.mu.RLock()
	matched := c.filtered(spec.Filter)
	c.mu.RUnlock()

	if spec.Sort.Field != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			cmp := compare(matched[i][spec.Sort.Field], matched[j][spec.Sort.Field])
			if spec.Sort.Desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	start := len(matched)
	if skip := spec.Skip(); skip < int64(len(matched)) {
		start = int(skip)
	}
	end := len(matched)
	if spec.Limit > 0 && start+spec.Limit < end {
		end = start + spec.Limit
	}

	out := make([]T, 0, end-start)
	for _, m := range matched[start:end] {
		item, err := fromDocument[T](m)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, nil
}

func (c *collection[T]) Count(_ context.Context, filter query.Filter) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.filtered(filter))), nil
}

func (c *collection[T]) Update(_ context.Context, id primitive.ObjectID, update query.Update) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := make(bson.M, len(current))
	for k, v := range current {
		next[k] = v
	}
	for k, v := range update.Set {
		next[k] = v
	}
	for k, delta := range update.Inc {
		next[k] = increment(next[k], delta)
	}

	normalized, err := toDocument(next)
	if err != nil {
		return nil, err
	}
	if c.violatesUnique(id, normalized) {
		return nil, domain.ErrDuplicate
	}
	c.docs[id] = normalized
	return fromDocument[T](normalized)
}

func (c *collection[T]) Replace(_ context.Context, id primitive.ObjectID, doc *T) error {
	m, err := toDocument(doc)
	if err != nil {
		return err
	}
	m["_id"] = id

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[id]; !ok {
		return domain.ErrNotFound
	}
	if c.violatesUnique(id, m) {
		return domain.ErrDuplicate
	}
	c.docs[id] = m
	return nil
}

func (c *collection[T]) Delete(_ context.Context, id primitive.ObjectID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *collection[T]) Distinct(_ context.Context, field string, filter query.Filter) ([]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[any]bool)
	out := []any{}
	add := func(v any) {
		if v == nil || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}
	for _, m := range c.filtered(filter) {
		if arr, ok := m[field].(bson.A); ok {
			for _, v := range arr {
				add(v)
			}
			continue
		}
		add(m[field])
	}
	return out, nil
}

func (c *collection[T]) Group(_ context.Context, filter query.Filter, groupBy, avgField string) ([]query.GroupStat, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	type acc struct {
		count int64
		sum   float64
		n     int64
	}
	groups := make(map[any]*acc)
	keys := []any{}
	for _, m := range c.filtered(filter) {
		key := m[groupBy]
		g, ok := groups[key]
		if !ok {
			g = &acc{}
			groups[key] = g
			keys = append(keys, key)
		}
		g.count++
		if avgField != "" {
			if f, ok := toFloat(m[avgField]); ok {
				g.sum += f
				g.n++
			}
		}
	}

	out := make([]query.GroupStat, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		stat := query.GroupStat{Key: k, Count: g.count}
		if g.n > 0 {
			stat.Average = g.sum / float64(g.n)
		}
		out = append(out, stat)
	}
	return out, nil
}

func (c *collection[T]) Sum(_ context.Context, filter query.Filter, field string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total float64
	for _, m := range c.filtered(filter) {
		if f, ok := toFloat(m[field]); ok {
			total += f
		}
	}
	return int64(total), nil
}

// filtered 调用方需持有读锁
func (c *collection[T]) filtered(filter query.Filter) []bson.M {
	out := make([]bson.M, 0)
	for _, id := range c.order {
		if m := c.docs[id]; matches(m, filter) {
			out = append(out, m)
		}
	}
	return out
}

// violatesUnique 调用方需持有写锁
func (c *collection[T]) violatesUnique(id primitive.ObjectID, m bson.M) bool {
	for _, field := range c.unique {
		value, ok := m[field]
		if !ok || value == nil || value == "" {
			continue
		}
		for otherID, other := range c.docs {
			if otherID != id && compare(other[field], value) == 0 {
				return true
			}
		}
	}
	return false
}

// toDocument 通过 bson 编解码得到与 Mongo 一致的文档表示
func toDocument(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return m, nil
}

func fromDocument[T any](m bson.M) (*T, error) {
	raw, err := bson.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	out := new(T)
	if err := bson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func increment(current any, delta int64) any {
	switch v := current.(type) {
	case int32:
		return int64(v) + delta
	case int64:
		return v + delta
	case float64:
		return v + float64(delta)
	default:
		return delta
	}
}
