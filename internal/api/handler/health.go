package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// healthCheckTimeout は依存先1件あたりの疎通確認の上限時間
const healthCheckTimeout = 2 * time.Second

// Check は依存先（DB・Redisなど）の疎通確認
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler はヘルスチェックハンドラー
type HealthHandler struct {
	checks []Check
}

// NewHealthHandler はHealthHandlerを作成する
func NewHealthHandler(checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// Check はヘルスチェックを行う
// @Summary ヘルスチェック
// @Description アプリケーションと依存先の健全性を確認する
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Check(c echo.Context) error {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
	}
	status := http.StatusOK

	if len(h.checks) > 0 {
		resp.Components = make(map[string]string, len(h.checks))
	}
	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
		err := check.Ping(ctx)
		cancel()
		if err != nil {
			resp.Components[check.Name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[check.Name] = "ok"
	}

	return c.JSON(status, resp)
}
