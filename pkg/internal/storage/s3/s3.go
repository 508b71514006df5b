// Package s3 处理S3存储操作，保管扫描件原件.
package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yeisme/exambridge/pkg/configs"
	nlog "github.com/yeisme/exambridge/pkg/log"
)

// Client 包装 MinIO 客户端.
type Client struct {
	*minio.Client
}

// New 初始化 MinIO 客户端，若扫描件 bucket 不存在则尝试创建.
func New(ctx context.Context) (*Client, error) {
	cfg := configs.GetConfig().S3
	endpoint := cfg.Endpoint
	// 允许用户传完整 schema endpoint（http:// 或 https://）
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			cfg.UseSSL = true
		}
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	cli.SetAppInfo("exambridge", configs.AppVersion)

	// ensure scan bucket
	if cfg.ScanBucket != "" {
		exists, err := cli.BucketExists(ctx, cfg.ScanBucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket %s: %w", cfg.ScanBucket, err)
		}

		if !exists {
			if err := cli.MakeBucket(ctx, cfg.ScanBucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
				return nil, fmt.Errorf("create bucket %s: %w", cfg.ScanBucket, err)
			}

			nlog.Logger().Info().Str("bucket", cfg.ScanBucket).Msg("scan bucket created")
		}
	}

	nlog.Logger().Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.ScanBucket).Msg("s3 connected")

	return &Client{Client: cli}, nil
}

// PutScan 上传一份扫描件到扫描桶.
func (c *Client) PutScan(ctx context.Context, key string, r io.Reader, size int64, contentType string) (minio.UploadInfo, error) {
	cfg := configs.GetConfig().S3

	return c.PutObject(ctx, cfg.ScanBucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
}

// FetchScan 获取扫描件对象，调用方负责 Close.
func (c *Client) FetchScan(ctx context.Context, key string) (*minio.Object, error) {
	cfg := configs.GetConfig().S3

	return c.GetObject(ctx, cfg.ScanBucket, key, minio.GetObjectOptions{})
}

// StatScan 返回扫描件元信息.
func (c *Client) StatScan(ctx context.Context, key string) (minio.ObjectInfo, error) {
	cfg := configs.GetConfig().S3

	return c.StatObject(ctx, cfg.ScanBucket, key, minio.StatObjectOptions{})
}

// RemoveScan 删除扫描件对象.
func (c *Client) RemoveScan(ctx context.Context, key string) error {
	cfg := configs.GetConfig().S3

	return c.RemoveObject(ctx, cfg.ScanBucket, key, minio.RemoveObjectOptions{})
}

// HealthCheck 简单的健康检查，通过列出桶来验证连接.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.ListBuckets(ctx)
	return err
}

// Close 关闭 S3 客户端连接（无实际操作，接口兼容）.
func (c *Client) Close() error {
	return nil
}

func (c *Client) GetConfig() configs.S3Config {
	return configs.GetConfig().S3
}
