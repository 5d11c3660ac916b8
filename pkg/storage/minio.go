// Package storage 提供了与对象存储服务（MinIO）交互的功能。
// 输入文档、ground truth 与抽取输出都以 "minio://bucket/object" 形式的 URI 引用。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"extractlab-go/internal/config"
	"extractlab-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶是否存在，不存在则创建
	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		if err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// ParseURI 将 "minio://bucket/object" 形式的 URI 拆解为桶名与对象名。
func ParseURI(uri string) (bucket, object string, err error) {
	const scheme = "minio://"
	if !strings.HasPrefix(uri, scheme) {
		return "", "", fmt.Errorf("不支持的文档 URI: %s", uri)
	}
	rest := strings.TrimPrefix(uri, scheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("文档 URI 缺少桶名或对象名: %s", uri)
	}
	return parts[0], parts[1], nil
}

// BuildURI 由桶名与对象名拼出规范的文档 URI。
func BuildURI(bucket, object string) string {
	return fmt.Sprintf("minio://%s/%s", bucket, object)
}

// FetchDocument 按 URI 下载完整文档内容。
func FetchDocument(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	obj, err := MinioClient.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("从 MinIO 获取对象失败: %w", err)
	}
	defer obj.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, obj); err != nil {
		return nil, fmt.Errorf("读取 MinIO 对象流失败: %w", err)
	}
	return buf.Bytes(), nil
}

// PutImmutable 写入一个新对象并返回其 URI。
// 若目标对象已存在则拒绝写入：已完成运行的输出永远不会被覆盖。
func PutImmutable(ctx context.Context, bucket, object string, data []byte, contentType string) (string, error) {
	if _, err := MinioClient.StatObject(ctx, bucket, object, minio.StatObjectOptions{}); err == nil {
		return "", fmt.Errorf("对象 '%s/%s' 已存在，输出写入不可覆盖", bucket, object)
	}

	_, err := MinioClient.PutObject(ctx, bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("写入 MinIO 对象失败: %w", err)
	}
	return BuildURI(bucket, object), nil
}

// GetPresignedURL 为指定对象生成限时的预签名下载链接。
func GetPresignedURL(bucketName, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := MinioClient.PresignedGetObject(context.Background(), bucketName, objectName, expiry, nil)
	if err != nil {
		log.Errorf("生成预签名 URL 失败: %s", err)
		return "", err
	}
	return presignedURL.String(), nil
}
