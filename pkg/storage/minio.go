// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"portfolio-go/internal/config"
	"portfolio-go/internal/model"
	"portfolio-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrSnapshotNotFound 表示存储桶中还没有归档的快照。
var ErrSnapshotNotFound = errors.New("storage: no archived snapshot")

// SnapshotStore 把最近一次成功的 GitHub 快照归档到 MinIO，供冷启动时使用。
type SnapshotStore struct {
	client *minio.Client
	bucket string
	object string
}

// NewSnapshotStore 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewSnapshotStore(ctx context.Context, cfg config.MinIOConfig) (*SnapshotStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}

	return &SnapshotStore{client: client, bucket: cfg.BucketName, object: cfg.SnapshotObject}, nil
}

// Save 以 JSON 覆盖写入快照。
func (s *SnapshotStore) Save(ctx context.Context, snap *model.GitHubSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("上传快照到 MinIO 失败: %w", err)
	}
	return nil
}

// Load 读取归档的快照；对象不存在时返回 ErrSnapshotNotFound。
func (s *SnapshotStore) Load(ctx context.Context) (*model.GitHubSnapshot, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取 MinIO 快照失败: %w", err)
	}
	defer obj.Close()

	var snap model.GitHubSnapshot
	if err := json.NewDecoder(obj).Decode(&snap); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("解析 MinIO 快照失败: %w", err)
	}
	return &snap, nil
}
