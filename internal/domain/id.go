package domain

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ParseID 将客户端传入的字符串解析为存储主键
//
// 非 24 位十六进制字符串返回 ErrInvalidIdentifier。
func ParseID(raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, ErrInvalidIdentifier
	}
	return id, nil
}

// ParseIDs 批量解析主键，任意一个非法即整体失败
func ParseIDs(raw []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, r := range raw {
		id, err := ParseID(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// NewID 生成新的存储主键
func NewID() primitive.ObjectID {
	return primitive.NewObjectID()
}
