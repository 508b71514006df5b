package configs

import (
	"fmt"

	"github.com/spf13/viper"
)

const (
	DefaultS3Endpoint = "localhost:9000" // 默认对象存储端点
	DefaultS3Region   = ""               // 默认区域
	DefaultScanBucket = "exam-scans"     // 扫描件存储桶
)

// S3Config MinIO/S3 对象存储配置，存放扫描件原件.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"          rule:"required"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
	ScanBucket      string `mapstructure:"scan_bucket"       rule:"required"`
}

// GetEndpointURL 返回带协议的完整端点 URL.
func (c *S3Config) GetEndpointURL() string {
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s", scheme, c.Endpoint)
}

// setDefaults 设置对象存储配置的默认值.
func (c *S3Config) setDefaults(v *viper.Viper) {
	v.SetDefault("s3.endpoint", DefaultS3Endpoint)
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.use_ssl", false)
	v.SetDefault("s3.region", DefaultS3Region)
	v.SetDefault("s3.scan_bucket", DefaultScanBucket)
}
