package storage

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned when a key has no stored object.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore 存放大二进制负载（音频、封面图片）。
// 实体记录只保存键，字节本身不进数据库。
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
