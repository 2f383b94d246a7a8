package middleware

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dugerdev/TravelBooking-sub001/internal/config"
)

// MetricsConfig はメトリクス認証の設定
type MetricsConfig struct {
	User     string
	Password string
}

// NewMetricsConfig はサーバー設定からメトリクス認証設定を取り出す
func NewMetricsConfig(cfg config.ServerConfig) MetricsConfig {
	return MetricsConfig{User: cfg.MetricsUser, Password: cfg.MetricsPassword}
}

// IsEnabled は認証が有効かどうかを返す
func (c MetricsConfig) IsEnabled() bool {
	return c.User != "" && c.Password != ""
}

// MetricsBasicAuth は /metrics エンドポイント用の Basic 認証ミドルウェア
// ユーザーとパスワードの両方が設定されていない場合は認証をスキップする（ローカル開発用）
func MetricsBasicAuth(cfg MetricsConfig) echo.MiddlewareFunc {
	if !cfg.IsEnabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	return middleware.BasicAuth(func(username, password string, c echo.Context) (bool, error) {
		userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.User)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Password)) == 1
		return userMatch && passMatch, nil
	})
}
