package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dugerdev/TravelBooking-sub001/internal/app"
	"github.com/dugerdev/TravelBooking-sub001/internal/config"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/logger"
)

func main() {
	cfg := config.Load()

	logger.Set(logger.NewLogger(cfg.App.Env))
	defer logger.Sync()

	// シグナル待機
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		logger.Fatal("初期化エラー", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("接続のクローズに失敗", zap.Error(err))
		}
	}()

	if err := a.Run(ctx); err != nil {
		logger.Error("サーバーが異常終了しました", zap.Error(err))
		return
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
