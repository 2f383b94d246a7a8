package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/flight"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/outbox"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/reservation"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
	redisinfra "github.com/dugerdev/TravelBooking-sub001/internal/infrastructure/redis"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/logger"
	"github.com/dugerdev/TravelBooking-sub001/internal/pkg/metrics"
)

const (
	createLockTTL      = 30 * time.Second
	maxPNRAttempts     = 3
	maxConflictRetries = 3
	defaultPageLimit   = 20
	maxPageLimit       = 100
)

type ReservationService struct {
	txManager       transaction.Manager
	reservationRepo reservation.Repository
	flightRepo      flight.Repository
	outboxRepo      outbox.Repository
	inventory       *SeatInventory
	lockManager     redisinfra.LockManagerInterface
	ttl             time.Duration
}

func NewReservationService(
	tm transaction.Manager,
	rr reservation.Repository,
	fr flight.Repository,
	or outbox.Repository,
	inv *SeatInventory,
	lm redisinfra.LockManagerInterface,
	ttl time.Duration,
) *ReservationService {
	return &ReservationService{
		txManager:       tm,
		reservationRepo: rr,
		flightRepo:      fr,
		outboxRepo:      or,
		inventory:       inv,
		lockManager:     lm,
		ttl:             ttl,
	}
}

type TicketInput struct {
	FlightID      string
	PassengerName string
}

type CreateReservationInput struct {
	OwnerID        string
	Type           reservation.Type
	IdempotencyKey string
	PaymentMethod  string
	// TotalPrice はフライト以外の予約でのみ使用する
	TotalPrice money.Money
	Tickets    []TicketInput
	Passengers []reservation.PassengerSpec
}

// CreateReservation は予約を作成し、航空券のフライトごとに座席を確保する
// いずれかの確保や保存に失敗した場合は、確保済みの座席を逆順に返却してからエラーを返す
func (s *ReservationService) CreateReservation(ctx context.Context, input CreateReservationInput) (*reservation.Reservation, error) {
	if input.IdempotencyKey == "" {
		return nil, reservation.ErrIdempotencyKeyRequired
	}

	// 冪等性チェック
	if existing, err := s.findByIdempotencyKey(ctx, input.IdempotencyKey); err != nil || existing != nil {
		return existing, err
	}

	// 同じキーの同時リクエストは待たずに拒否する
	if s.lockManager != nil {
		lock, err := s.lockManager.AcquireLock(ctx, "reservation:create:"+input.IdempotencyKey, createLockTTL)
		if err != nil {
			if errors.Is(err, redisinfra.ErrLockNotAcquired) {
				return nil, ErrRequestInProgress
			}
			return nil, fmt.Errorf("ロック取得に失敗: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("ロック解放に失敗", zap.String("idempotency_key", input.IdempotencyKey), zap.Error(err))
			}
		}()

		if existing, err := s.findByIdempotencyKey(ctx, input.IdempotencyKey); err != nil || existing != nil {
			return existing, err
		}
	}

	tickets, err := s.priceTickets(ctx, input.Tickets)
	if err != nil {
		return nil, err
	}

	res, err := reservation.NewReservation(reservation.NewParams{
		OwnerID:        input.OwnerID,
		Type:           input.Type,
		IdempotencyKey: input.IdempotencyKey,
		PaymentMethod:  input.PaymentMethod,
		TotalPrice:     input.TotalPrice,
		Tickets:        tickets,
		Passengers:     input.Passengers,
		TTL:            s.ttl,
	})
	if err != nil {
		return nil, err
	}

	reserved, err := s.reserveLegs(ctx, res.HeldSeats())
	if err != nil {
		s.compensate(ctx, res.ID, reserved)
		metrics.RecordReservation("rejected")
		return nil, err
	}

	if err := s.persistNew(ctx, res); err != nil {
		s.compensate(ctx, res.ID, reserved)
		if errors.Is(err, reservation.ErrIdempotencyKeyAlreadyExists) {
			if existing, findErr := s.reservationRepo.GetByIdempotencyKey(ctx, input.IdempotencyKey); findErr == nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("予約の保存に失敗: %w", err)
	}

	metrics.RecordReservation("created")
	logger.Info("予約を作成しました",
		zap.String("reservation_id", res.ID),
		zap.String("pnr", res.PNR),
		zap.String("type", string(res.Type)),
		zap.Int("tickets", len(res.Tickets)),
	)
	return res, nil
}

func (s *ReservationService) findByIdempotencyKey(ctx context.Context, key string) (*reservation.Reservation, error) {
	existing, err := s.reservationRepo.GetByIdempotencyKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if errors.Is(err, reservation.ErrReservationNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("冪等性チェックに失敗: %w", err)
}

// priceTickets は航空券の価格をフライトの座席価格から決める
func (s *ReservationService) priceTickets(ctx context.Context, inputs []TicketInput) ([]reservation.TicketSpec, error) {
	flights := make(map[string]*flight.Flight)
	specs := make([]reservation.TicketSpec, 0, len(inputs))
	for _, in := range inputs {
		spec := reservation.TicketSpec{FlightID: in.FlightID, PassengerName: in.PassengerName}
		if in.FlightID != "" {
			f, ok := flights[in.FlightID]
			if !ok {
				var err error
				if f, err = s.flightRepo.GetByID(ctx, in.FlightID); err != nil {
					return nil, fmt.Errorf("フライト取得に失敗: %w", err)
				}
				flights[in.FlightID] = f
			}
			spec.Price = f.SeatPrice
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// reserveLegs はフライトID順に座席を確保し、確保できた分を返す
func (s *ReservationService) reserveLegs(ctx context.Context, legs []reservation.SeatCount) ([]reservation.SeatCount, error) {
	reserved := make([]reservation.SeatCount, 0, len(legs))
	for _, leg := range legs {
		if err := s.inventory.Reserve(ctx, nil, leg.FlightID, leg.Count); err != nil {
			return reserved, fmt.Errorf("フライト %s の座席確保に失敗: %w", leg.FlightID, err)
		}
		reserved = append(reserved, leg)
	}
	return reserved, nil
}

// compensate は確保済みの座席を逆順に返却する
// 呼び出し元のコンテキストがキャンセルされていても最後まで行う
func (s *ReservationService) compensate(ctx context.Context, reservationID string, legs []reservation.SeatCount) {
	ctx = context.WithoutCancel(ctx)
	for i := len(legs) - 1; i >= 0; i-- {
		leg := legs[i]
		if err := s.inventory.Release(ctx, nil, leg.FlightID, leg.Count); err != nil {
			logger.Alert("座席の補償返却に失敗しました",
				zap.String("reservation_id", reservationID),
				zap.String("flight_id", leg.FlightID),
				zap.Int("seats", leg.Count),
				zap.Error(err),
			)
			metrics.RecordInvariantViolation("compensation_failed")
		}
	}
}

// persistNew は予約とアウトボックスを同じトランザクションで保存する
// 予約番号が衝突した場合は振り直して再試行する
func (s *ReservationService) persistNew(ctx context.Context, res *reservation.Reservation) error {
	events := res.PullEvents()
	for attempt := 1; ; attempt++ {
		msgs, err := toOutboxMessages(events)
		if err != nil {
			return err
		}
		err = transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
			if err := s.reservationRepo.Create(ctx, tx, res); err != nil {
				return err
			}
			return s.outboxRepo.Save(ctx, tx, msgs)
		})
		if !errors.Is(err, reservation.ErrPNRAlreadyExists) || attempt >= maxPNRAttempts {
			return err
		}

		logger.Warn("予約番号が衝突したため振り直します", zap.String("pnr", res.PNR))
		res.PNR = reservation.GeneratePNR()
		for i := range events {
			events[i].PNR = res.PNR
		}
	}
}

// mutation は既存予約への変更操作
type mutation struct {
	// expectedVersion が nil の場合は読み込んだ時点のバージョンを使う（Webhook・ワーカー）
	expectedVersion *int
	// alreadyApplied が true を返す場合はバージョンを確認せずに現在の予約を返す
	alreadyApplied func(res *reservation.Reservation) bool
	apply          func(res *reservation.Reservation) ([]reservation.SeatCount, error)
}

// mutate は予約を読み込み、バージョンを確認してから変更を適用する
// 予約の更新・座席の返却・アウトボックスの保存は一つのトランザクションで行う
func (s *ReservationService) mutate(ctx context.Context, id string, m mutation) (*reservation.Reservation, error) {
	for attempt := 1; ; attempt++ {
		res, err := s.mutateOnce(ctx, id, m)
		if m.expectedVersion == nil && errors.Is(err, reservation.ErrConcurrencyConflict) && attempt < maxConflictRetries {
			logger.Debug("予約の更新が競合したため再読み込みします", zap.String("reservation_id", id))
			continue
		}
		return res, err
	}
}

func (s *ReservationService) mutateOnce(ctx context.Context, id string, m mutation) (*reservation.Reservation, error) {
	res, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.alreadyApplied != nil && m.alreadyApplied(res) {
		return res, nil
	}
	if m.expectedVersion != nil {
		if err := res.CheckVersion(*m.expectedVersion); err != nil {
			return nil, err
		}
	}

	releases, err := m.apply(res)
	if err != nil {
		if errors.Is(err, reservation.ErrReservationAlreadyConfirmed) {
			logger.Alert("確定済みの予約に対する再確定を拒否しました", zap.String("reservation_id", res.ID))
			metrics.RecordInvariantViolation("double_confirm")
		}
		return nil, err
	}
	if !res.IsDirty() {
		return res, nil
	}

	msgs, err := toOutboxMessages(res.PullEvents())
	if err != nil {
		return nil, err
	}
	err = transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		if err := s.reservationRepo.Update(ctx, tx, res); err != nil {
			return err
		}
		for _, sc := range releases {
			if err := s.inventory.Release(ctx, tx, sc.FlightID, sc.Count); err != nil {
				return fmt.Errorf("フライト %s の座席返却に失敗: %w", sc.FlightID, err)
			}
		}
		return s.outboxRepo.Save(ctx, tx, msgs)
	})
	if err != nil {
		return nil, err
	}

	s.inventory.Invalidate(ctx, flightIDs(releases)...)
	return res, nil
}

// RecordPaymentOutcome は決済結果を予約に反映する
// 記録済みの取引IDは何もせず現在の予約を返す
func (s *ReservationService) RecordPaymentOutcome(ctx context.Context, id string, expectedVersion *int, outcome reservation.PaymentOutcome) (*reservation.Reservation, error) {
	res, err := s.mutate(ctx, id, mutation{
		expectedVersion: expectedVersion,
		alreadyApplied: func(res *reservation.Reservation) bool {
			return res.HasTransaction(outcome.TransactionID)
		},
		apply: func(res *reservation.Reservation) ([]reservation.SeatCount, error) {
			return res.RecordPaymentOutcome(outcome)
		},
	})
	if err != nil {
		return nil, err
	}
	if res.Status == reservation.StatusConfirmed || res.Status == reservation.StatusPaymentFailed {
		logger.Info("決済結果を反映しました",
			zap.String("reservation_id", res.ID),
			zap.String("status", string(res.Status)),
			zap.String("transaction_id", outcome.TransactionID),
		)
	}
	return res, nil
}

// CancelReservation は予約をキャンセルし、保持中の座席を返却する
// キャンセル済みの予約に対しては何もしない
func (s *ReservationService) CancelReservation(ctx context.Context, id string, expectedVersion int) (*reservation.Reservation, error) {
	cancelled := false
	res, err := s.mutate(ctx, id, mutation{
		expectedVersion: &expectedVersion,
		apply: func(res *reservation.Reservation) ([]reservation.SeatCount, error) {
			cancelled = res.Status != reservation.StatusCancelled
			return res.Cancel(), nil
		},
	})
	if err != nil {
		return nil, err
	}
	if cancelled {
		metrics.RecordReservation("cancelled")
		logger.Info("予約をキャンセルしました", zap.String("reservation_id", res.ID))
	}
	return res, nil
}

func (s *ReservationService) UpdateTotalPrice(ctx context.Context, id string, expectedVersion int, price money.Money) (*reservation.Reservation, error) {
	return s.mutate(ctx, id, mutation{
		expectedVersion: &expectedVersion,
		apply: func(res *reservation.Reservation) ([]reservation.SeatCount, error) {
			return nil, res.UpdateTotalPrice(price)
		},
	})
}

func (s *ReservationService) SetPNR(ctx context.Context, id string, expectedVersion int, pnr string) (*reservation.Reservation, error) {
	return s.mutate(ctx, id, mutation{
		expectedVersion: &expectedVersion,
		apply: func(res *reservation.Reservation) ([]reservation.SeatCount, error) {
			return nil, res.SetPNR(pnr)
		},
	})
}

func (s *ReservationService) SetExpirationDate(ctx context.Context, id string, expectedVersion int, expiresAt time.Time) (*reservation.Reservation, error) {
	return s.mutate(ctx, id, mutation{
		expectedVersion: &expectedVersion,
		apply: func(res *reservation.Reservation) ([]reservation.SeatCount, error) {
			return nil, res.SetExpirationDate(expiresAt)
		},
	})
}

// UseTicket は航空券を使用済みにする（座席は保持したまま）
func (s *ReservationService) UseTicket(ctx context.Context, id string, expectedVersion int, ticketID string) (*reservation.Reservation, error) {
	return s.mutate(ctx, id, mutation{
		expectedVersion: &expectedVersion,
		apply: func(res *reservation.Reservation) ([]reservation.SeatCount, error) {
			return nil, res.UseTicket(ticketID)
		},
	})
}

func (s *ReservationService) GetReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.reservationRepo.GetByID(ctx, id)
}

func (s *ReservationService) GetReservationByPNR(ctx context.Context, pnr string) (*reservation.Reservation, error) {
	if err := reservation.ValidatePNR(pnr); err != nil {
		return nil, err
	}
	return s.reservationRepo.GetByPNR(ctx, pnr)
}

func (s *ReservationService) GetUserReservations(ctx context.Context, ownerID string, limit, offset int) ([]*reservation.Reservation, error) {
	return s.reservationRepo.GetByOwnerID(ctx, ownerID, normalizeLimit(limit), max(offset, 0))
}

// CancelExpiredReservations は期限切れの保留中予約をキャンセルし、座席を返却する
// 個々の失敗は記録して続行し、キャンセルできた件数を返す
func (s *ReservationService) CancelExpiredReservations(ctx context.Context, limit int) (int, error) {
	expired, err := s.reservationRepo.GetExpiredPending(ctx, time.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("期限切れ予約の取得に失敗: %w", err)
	}

	cancelled := 0
	for _, candidate := range expired {
		if err := ctx.Err(); err != nil {
			return cancelled, err
		}
		applied := false
		res, err := s.mutate(ctx, candidate.ID, mutation{
			apply: func(res *reservation.Reservation) ([]reservation.SeatCount, error) {
				// 読み込み後に決済された予約はそのまま残す
				applied = res.IsPending() && res.IsExpired()
				if !applied {
					return nil, nil
				}
				return res.Cancel(), nil
			},
		})
		if err != nil {
			logger.Error("期限切れ予約のキャンセルに失敗",
				zap.String("reservation_id", candidate.ID),
				zap.Error(err),
			)
			continue
		}
		if applied {
			cancelled++
			metrics.RecordReservation("expired")
			logger.Info("期限切れ予約をキャンセルしました", zap.String("reservation_id", res.ID), zap.String("pnr", res.PNR))
		}
	}
	return cancelled, nil
}

func toOutboxMessages(events []reservation.Event) ([]*outbox.Message, error) {
	msgs := make([]*outbox.Message, 0, len(events))
	for _, e := range events {
		msg, err := outbox.NewMessage(string(e.Type), e.ReservationID, e)
		if err != nil {
			return nil, fmt.Errorf("イベントの変換に失敗: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func flightIDs(counts []reservation.SeatCount) []string {
	ids := make([]string, 0, len(counts))
	for _, sc := range counts {
		ids = append(ids, sc.FlightID)
	}
	return ids
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	return min(limit, maxPageLimit)
}
