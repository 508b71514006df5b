package configs

import "github.com/spf13/viper"

// AuthConfig 控制管理端接口的共享令牌校验.
// 学生端提交走请求体里的学习平台凭据，不在这里管理.
type AuthConfig struct {
	Enabled    bool   `mapstructure:"enabled"`     // 开启管理端令牌校验
	AdminToken string `mapstructure:"admin_token"` // 管理端共享令牌，经 X-Admin-Token 请求头传入
}

func (c *AuthConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.admin_token", "")
}
