package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"sitecms/backend/internal/storage"
)

// indexSpecs 每个集合需要的索引
func indexSpecs() map[string][]mongo.IndexModel {
	specs := map[string][]mongo.IndexModel{
		storage.CollectionBlogs: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "tags", Value: 1}}},
		},
		storage.CollectionTestimonials: {
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "rating", Value: -1}}},
			{Keys: bson.D{{Key: "featured", Value: 1}}},
		},
		storage.CollectionContacts: {
			{Keys: bson.D{{Key: "read", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "priority", Value: 1}}},
		},
		storage.CollectionUploads: {
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "date", Value: -1}}},
		},
		storage.CollectionCampaigns: {
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
	}

	for name, fields := range storage.UniqueFields {
		for _, field := range fields {
			specs[name] = append(specs[name], mongo.IndexModel{
				Keys:    bson.D{{Key: field, Value: 1}},
				Options: options.Index().SetUnique(true),
			})
		}
	}
	return specs
}

// EnsureIndexes 创建全部索引，已存在的索引会被跳过
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for name, models := range indexSpecs() {
		created, err := s.db.Collection(name).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("create indexes for %s: %w", name, err)
		}
		s.log.Debug("indexes ensured", zap.String("collection", name), zap.Strings("indexes", created))
	}
	s.indexesReady.Store(true)
	return nil
}

// IndexesReady 报告 EnsureIndexes 是否成功执行过
func (s *Store) IndexesReady() bool {
	return s.indexesReady.Load()
}
