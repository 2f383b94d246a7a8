// Package app は設定に従って依存関係を組み立て、HTTPサーバーとワーカーを起動する
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dugerdev/TravelBooking-sub001/internal/api"
	"github.com/dugerdev/TravelBooking-sub001/internal/api/handler"
	"github.com/dugerdev/TravelBooking-sub001/internal/api/middleware"
	"github.com/dugerdev/TravelBooking-sub001/internal/application"
	"github.com/dugerdev/TravelBooking-sub001/internal/config"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/flight"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/outbox"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/reservation"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
	"github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/kafka"
	"github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/memory"
	paymentinfra "github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/payment"
	"github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/postgres"
	redisinfra "github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/redis"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/logger"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/metrics"
	"github.com/dugerdev/TravelBooking-sub001/internal/worker"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	PublisherRedis = "redis"
	PublisherKafka = "kafka"
)

var (
	ErrUnknownStore     = errors.New("不明なストア種別です")
	ErrUnknownPublisher = errors.New("不明な配信先です")
)

// Services はアプリケーションサービス一式
type Services struct {
	Flights      *application.FlightService
	Reservations *application.ReservationService
	Payments     *application.PaymentService
}

// backgroundWorker は ctx がキャンセルされるまでブロックするワーカー
type backgroundWorker interface {
	Start(ctx context.Context)
}

// App は組み立て済みのアプリケーション
type App struct {
	cfg      *config.Config
	Echo     *echo.Echo
	Services Services
	Metrics  *metrics.Metrics

	workers []backgroundWorker
	closers []func() error
}

type stores struct {
	txManager    transaction.Manager
	flights      flight.Repository
	reservations reservation.Repository
	outbox       outbox.Repository
}

// New は設定に従って依存関係を組み立てる
// 失敗した場合、それまでに開いた接続はすべて閉じる
func New(cfg *config.Config) (a *App, err error) {
	a = &App{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.NewWithRegistry(reg)
	metrics.Set(a.Metrics)

	var checks []handler.Check

	st, err := a.openStore(&checks)
	if err != nil {
		return nil, err
	}

	var (
		redisClient *redis.Client
		seatCache   application.SeatCache
		lockManager redisinfra.LockManagerInterface
		locker      worker.Locker
	)
	if cfg.Redis.Enabled {
		redisClient, err = redisinfra.NewClient(&cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redisClient.Close)
		checks = append(checks, handler.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return redisinfra.Ping(ctx, redisClient)
		}})
		seatCache = redisinfra.NewSeatCache(redisClient)
		lm := redisinfra.NewLockManager(redisClient)
		lockManager, locker = lm, lm
	} else {
		logger.Warn("Redisを使わずに起動します（空席キャッシュと分散ロックは無効）")
	}

	gateway, err := paymentinfra.NewSimulatedGateway(cfg.Payment.Mode)
	if err != nil {
		return nil, err
	}

	inventory := application.NewSeatInventory(st.flights, seatCache, cfg.Inventory)
	reservations := application.NewReservationService(st.txManager, st.reservations, st.flights, st.outbox, inventory, lockManager, cfg.App.ReservationTTL)
	a.Services = Services{
		Flights:      application.NewFlightService(st.flights, st.reservations, inventory),
		Reservations: reservations,
		Payments:     application.NewPaymentService(reservations, gateway),
	}

	publisher, err := a.openPublisher(redisClient)
	if err != nil {
		return nil, err
	}

	a.workers = append(a.workers, worker.NewExpiredReservationCleaner(
		reservations, locker, cfg.Worker.CleanerInterval, cfg.Worker.CleanerBatchSize,
	))
	if publisher != nil {
		a.workers = append(a.workers, worker.NewOutboxRelay(
			st.outbox, publisher, locker, cfg.Worker.OutboxInterval, cfg.Worker.OutboxBatchSize,
		))
	}

	a.Echo = a.newEcho(reg, checks)
	return a, nil
}

func (a *App) openStore(checks *[]handler.Check) (*stores, error) {
	switch a.cfg.App.Store {
	case StoreMemory:
		logger.Warn("インメモリストアで起動します（再起動でデータは失われます）")
		s := memory.NewStore()
		return &stores{
			txManager:    memory.NewTxManager(s),
			flights:      memory.NewFlightRepository(s),
			reservations: memory.NewReservationRepository(s),
			outbox:       memory.NewOutboxRepository(s),
		}, nil

	case StorePostgres:
		db, err := postgres.NewConnection(&a.cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := postgres.RunMigrations(db.DB, a.cfg.Database.MigrationsPath); err != nil {
			return nil, err
		}
		*checks = append(*checks, handler.Check{Name: "postgres", Ping: func(ctx context.Context) error {
			return postgres.Ping(ctx, db)
		}})
		return &stores{
			txManager:    postgres.NewTxManager(db),
			flights:      postgres.NewFlightRepository(db),
			reservations: postgres.NewReservationRepository(db),
			outbox:       postgres.NewOutboxRepository(db),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStore, a.cfg.App.Store)
}

// openPublisher はアウトボックスの配信先を作成する
// Redisが無効な状態で redis を指定した場合は配信しない（メッセージはストアに残る）
func (a *App) openPublisher(client *redis.Client) (outbox.Publisher, error) {
	var pub outbox.Publisher
	switch a.cfg.Publisher.Driver {
	case PublisherRedis:
		if client == nil {
			logger.Warn("Redisが無効のためアウトボックスの配信を停止します")
			return nil, nil
		}
		pub = redisinfra.NewPublisher(client, a.cfg.Publisher.Channel)
	case PublisherKafka:
		p, err := kafka.NewPublisher(&a.cfg.Kafka)
		if err != nil {
			return nil, err
		}
		pub = p
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPublisher, a.cfg.Publisher.Driver)
	}
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

func (a *App) newEcho(reg *prometheus.Registry, checks []handler.Check) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Server.ReadTimeout = a.cfg.Server.ReadTimeout
	e.Server.WriteTimeout = a.cfg.Server.WriteTimeout

	middleware.SetupMiddleware(e, a.Metrics)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		middleware.MetricsBasicAuth(middleware.NewMetricsConfig(a.cfg.Server)))

	handler.RegisterRoutes(e, handler.Handlers{
		Health:      handler.NewHealthHandler(checks...),
		Flight:      handler.NewFlightHandler(a.Services.Flights),
		Reservation: handler.NewReservationHandler(a.Services.Reservations, a.Services.Payments),
	})
	return e
}

// Run はHTTPサーバーとワーカーを起動し、ctx がキャンセルされるまでブロックする
// キャンセル後はサーバーをシャットダウンし、ワーカーの停止を待つ
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + a.cfg.Server.Port
		logger.Info("サーバー起動", zap.String("addr", addr), zap.String("store", a.cfg.App.Store))
		if err := a.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("サーバー起動エラー: %w", err)
		}
		return nil
	})

	for _, w := range a.workers {
		w := w
		g.Go(func() error {
			w.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("サーバーをシャットダウンしています...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("サーバーシャットダウンエラー: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close は開いた接続を逆順に閉じる
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
