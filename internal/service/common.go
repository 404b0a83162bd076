// Package service 实现各内容实体的业务规则，位于传输层与存储层之间。
package service

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/query"
	"sitecms/backend/internal/storage"
)

// clock 服务共用的时间来源，测试中可替换
type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// listPage 按查询描述分页读取集合
func listPage[T any](ctx context.Context, coll storage.Collection[T], spec query.Spec) (*query.Page[T], error) {
	items, err := coll.Find(ctx, spec)
	if err != nil {
		return nil, err
	}
	total, err := coll.Count(ctx, spec.Filter)
	if err != nil {
		return nil, err
	}
	return query.NewPage(items, total, spec), nil
}

// listBySchema 将查询串交给 schema 翻译后分页读取
func listBySchema[T any](ctx context.Context, coll storage.Collection[T], schema query.Schema, values url.Values) (*query.Page[T], error) {
	spec, err := schema.Build(values)
	if err != nil {
		return nil, err
	}
	return listPage(ctx, coll, spec)
}

// getByID 解析十六进制 ID 后读取记录
func getByID[T any](ctx context.Context, coll storage.Collection[T], rawID string) (*T, error) {
	id, err := domain.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	return coll.FindByID(ctx, id)
}

// setByID 解析 ID 后更新部分字段，并刷新 updatedAt
func setByID[T any](ctx context.Context, coll storage.Collection[T], rawID string, set map[string]any, now time.Time) (*T, error) {
	id, err := domain.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	set["updatedAt"] = now
	return coll.Update(ctx, id, query.Update{Set: set})
}

// deleteByID 解析 ID 后删除记录
func deleteByID[T any](ctx context.Context, coll storage.Collection[T], rawID string) error {
	id, err := domain.ParseID(rawID)
	if err != nil {
		return err
	}
	return coll.Delete(ctx, id)
}

// countBy 对 filter 计数，出错时带上统计项名称
func countBy[T any](ctx context.Context, coll storage.Collection[T], name string, filter query.Filter) (int64, error) {
	n, err := coll.Count(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// groupCounts 将分组结果转为 key -> count
func groupCounts(stats []query.GroupStat) map[string]int64 {
	out := make(map[string]int64, len(stats))
	for _, s := range stats {
		out[fmt.Sprint(s.Key)] = s.Count
	}
	return out
}

// distinctStrings 将 Distinct 结果转为排序后的非空字符串
func distinctStrings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// normalizeTags 去空白、去重并保留首次出现的顺序
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
