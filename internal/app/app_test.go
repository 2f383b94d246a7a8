package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dugerdev/TravelBooking-sub001/internal/config"
	paymentinfra "github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/payment"
)

// memoryConfig はDBとRedisなしで起動できる設定を返す
func memoryConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Env:            "test",
			Store:          StoreMemory,
			ReservationTTL: 15 * time.Minute,
		},
		Server: config.ServerConfig{
			Port:            "0",
			ShutdownTimeout: 5 * time.Second,
		},
		Redis:     config.RedisConfig{Enabled: false},
		Publisher: config.PublisherConfig{Driver: PublisherRedis, Channel: "reservation-events"},
		Worker: config.WorkerConfig{
			CleanerInterval:  time.Hour,
			CleanerBatchSize: 10,
			OutboxInterval:   time.Hour,
			OutboxBatchSize:  10,
		},
		Inventory: config.InventoryConfig{MaxRetries: 1, RetryInterval: time.Millisecond},
		Payment:   config.PaymentConfig{Mode: paymentinfra.ModeApprove},
	}
}

func serve(a *App, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func TestNew(t *testing.T) {
	t.Run("インメモリストア・Redisなしで起動できる", func(t *testing.T) {
		a, err := New(memoryConfig())
		require.NoError(t, err)
		defer a.Close()

		assert.NotNil(t, a.Services.Flights)
		assert.NotNil(t, a.Services.Reservations)
		assert.NotNil(t, a.Services.Payments)
		// Redisが無効なのでアウトボックス配信は行わずクリーナーのみ
		assert.Len(t, a.workers, 1)

		rec := serve(a, http.MethodGet, "/api/v1/health")
		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("メトリクスを公開する", func(t *testing.T) {
		a, err := New(memoryConfig())
		require.NoError(t, err)
		defer a.Close()

		serve(a, http.MethodGet, "/api/v1/flights")

		rec := serve(a, http.MethodGet, "/metrics")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
		assert.Contains(t, rec.Body.String(), `path="/api/v1/flights"`)
	})

	t.Run("メトリクスの認証情報を設定した場合は認証が必要", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Server.MetricsUser = "prom"
		cfg.Server.MetricsPassword = "secret"

		a, err := New(cfg)
		require.NoError(t, err)
		defer a.Close()

		assert.Equal(t, http.StatusUnauthorized, serve(a, http.MethodGet, "/metrics").Code)

		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.SetBasicAuth("prom", "secret")
		rec := httptest.NewRecorder()
		a.Echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("不明なストア種別はエラー", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.App.Store = "sqlite"

		a, err := New(cfg)
		assert.ErrorIs(t, err, ErrUnknownStore)
		assert.Nil(t, a)
	})

	t.Run("不明な配信先はエラー", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Publisher.Driver = "nats"

		_, err := New(cfg)
		assert.ErrorIs(t, err, ErrUnknownPublisher)
	})

	t.Run("決済モードが不正な場合はエラー", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Payment.Mode = "random"

		_, err := New(cfg)
		assert.ErrorIs(t, err, paymentinfra.ErrInvalidMode)
	})
}

func TestApp_Run(t *testing.T) {
	a, err := New(memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return a.Echo.ListenerAddr() != nil
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + a.Echo.ListenerAddr().String() + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("シャットダウンがタイムアウトしました")
	}
}

func TestApp_Close(t *testing.T) {
	calls := []string{}
	a := &App{closers: []func() error{
		func() error { calls = append(calls, "db"); return nil },
		func() error { calls = append(calls, "redis"); return assert.AnError },
	}}

	err := a.Close()
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"redis", "db"}, calls)
	assert.NoError(t, a.Close())
}
