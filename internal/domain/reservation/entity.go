package reservation

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/money"
)

// Type は予約の種別を表す
type Type string

const (
	TypeFlight Type = "flight"
	TypeHotel  Type = "hotel"
	TypeCar    Type = "car"
	TypeTour   Type = "tour"
)

// IsValid は既知の予約種別かを返す
func (t Type) IsValid() bool {
	switch t {
	case TypeFlight, TypeHotel, TypeCar, TypeTour:
		return true
	}
	return false
}

// Status は予約の状態を表す
type Status string

const (
	StatusPending       Status = "pending"
	StatusConfirmed     Status = "confirmed"
	StatusCancelled     Status = "cancelled"
	StatusPaymentFailed Status = "payment_failed"
)

// Passenger はフライト以外の予約（ホテル・レンタカー・ツアー）の利用者
type Passenger struct {
	ID       string
	FullName string
	Email    string
}

// Reservation は予約集約。航空券と決済記録を値として所有する
type Reservation struct {
	ID             string
	PNR            string
	OwnerID        string
	Type           Type
	TotalPrice     money.Money
	Status         Status
	PaymentStatus  PaymentStatus
	PaymentMethod  string
	Tickets        []*Ticket
	Passengers     []*Passenger
	Payments       []*Payment
	IdempotencyKey string
	ExpiresAt      time.Time
	ConfirmedAt    *time.Time
	CancelledAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int // 楽観的ロック用（並行制御トークン）

	events []Event
	dirty  bool
}

// ReservationExpiration は予約の有効期限（デフォルト15分）
const ReservationExpiration = 15 * time.Minute

// TicketSpec は作成時に指定する航空券
type TicketSpec struct {
	FlightID      string
	PassengerName string
	Price         money.Money
}

// PassengerSpec は作成時に指定する利用者
type PassengerSpec struct {
	FullName string
	Email    string
}

// NewParams は予約作成の入力
type NewParams struct {
	OwnerID        string
	Type           Type
	IdempotencyKey string
	PaymentMethod  string
	// TotalPrice はフライト以外の予約でのみ使用する（フライトは航空券の合計）
	TotalPrice money.Money
	Tickets    []TicketSpec
	Passengers []PassengerSpec
	TTL        time.Duration
}

// NewReservation は保留中の新しい予約を作成し、検証する
func NewReservation(p NewParams) (*Reservation, error) {
	now := time.Now()
	ttl := p.TTL
	if ttl <= 0 {
		ttl = ReservationExpiration
	}
	r := &Reservation{
		ID:             uuid.NewString(),
		PNR:            GeneratePNR(),
		OwnerID:        p.OwnerID,
		Type:           p.Type,
		TotalPrice:     p.TotalPrice,
		Status:         StatusPending,
		PaymentStatus:  PaymentStatusPending,
		PaymentMethod:  p.PaymentMethod,
		IdempotencyKey: p.IdempotencyKey,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for _, ts := range p.Tickets {
		r.Tickets = append(r.Tickets, newTicket(r.ID, ts.FlightID, ts.PassengerName, ts.Price, now))
	}
	for _, ps := range p.Passengers {
		r.Passengers = append(r.Passengers, &Passenger{ID: uuid.NewString(), FullName: ps.FullName, Email: ps.Email})
	}

	if r.Type == TypeFlight && len(r.Tickets) > 0 {
		total := money.Zero(r.Tickets[0].Price.Currency)
		for _, t := range r.Tickets {
			var err error
			if total, err = total.Add(t.Price); err != nil {
				return nil, err
			}
		}
		r.TotalPrice = total
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	r.record(EventReservationCreated, "", 0, now)
	for _, sc := range r.HeldSeats() {
		r.record(EventSeatsReserved, sc.FlightID, sc.Count, now)
	}
	return r, nil
}

// Validate は予約の検証を行う
func (r *Reservation) Validate() error {
	if r.OwnerID == "" {
		return ErrOwnerIDRequired
	}
	if !r.Type.IsValid() {
		return ErrInvalidType
	}
	if r.IdempotencyKey == "" {
		return ErrIdempotencyKeyRequired
	}
	if r.PaymentMethod == "" {
		return ErrPaymentMethodRequired
	}
	if err := ValidatePNR(r.PNR); err != nil {
		return err
	}
	if r.Type == TypeFlight {
		if len(r.Tickets) == 0 {
			return ErrTicketsRequired
		}
		for _, t := range r.Tickets {
			if t.FlightID == "" {
				return ErrFlightIDRequired
			}
			if t.PassengerName == "" {
				return ErrPassengerNameRequired
			}
		}
	} else {
		if len(r.Tickets) > 0 {
			return ErrTicketsNotAllowed
		}
		if len(r.Passengers) == 0 {
			return ErrPassengersRequired
		}
		for _, p := range r.Passengers {
			if p.FullName == "" {
				return ErrPassengerNameRequired
			}
		}
	}
	return r.TotalPrice.Validate()
}

// IsExpired は予約が期限切れかを返す
func (r *Reservation) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// IsPending は予約が保留中かを返す
func (r *Reservation) IsPending() bool {
	return r.Status == StatusPending
}

// CheckVersion は呼び出し元が読み込んだバージョンが現在のものと一致するかを検証する
func (r *Reservation) CheckVersion(expected int) error {
	if r.Version != expected {
		return ErrConcurrencyConflict
	}
	return nil
}

// HeldSeats は座席を保持している航空券をフライトごとに集計する（フライトID順）
func (r *Reservation) HeldSeats() []SeatCount {
	counts := make(map[string]int)
	for _, t := range r.Tickets {
		if t.HoldsSeat() {
			counts[t.FlightID]++
		}
	}
	return toSeatCounts(counts)
}

// PaidTotal は支払い済みの合計額を返す
func (r *Reservation) PaidTotal() money.Money {
	total := money.Zero(r.TotalPrice.Currency)
	for _, p := range r.Payments {
		if p.Status == PaymentStatusPaid && p.TransactionType == TransactionTypePayment && p.Amount.Currency == total.Currency {
			total.Amount += p.Amount.Amount
		}
	}
	return total
}

// OutstandingAmount は未払い残高を返す（0未満にはならない）
func (r *Reservation) OutstandingAmount() money.Money {
	rest, _ := r.TotalPrice.Sub(r.PaidTotal())
	if rest.IsNegative() {
		return money.Zero(r.TotalPrice.Currency)
	}
	return rest
}

// HasTransaction は指定の取引IDが既に記録済みかを返す
func (r *Reservation) HasTransaction(transactionID string) bool {
	if transactionID == "" {
		return false
	}
	for _, p := range r.Payments {
		if p.TransactionID == transactionID {
			return true
		}
	}
	return false
}

// RecordPaymentOutcome は決済結果を反映する
//
// 支払い成功: 支払い記録を追記し、支払い合計が総額に達したら確定する。
// 支払い失敗: 失敗記録を追記し、保持中の航空券をキャンセルして解放すべき座席を返す。
// 既に失敗・キャンセル済みの予約への失敗通知は何もしない（再送に対して冪等）。
func (r *Reservation) RecordPaymentOutcome(o PaymentOutcome) ([]SeatCount, error) {
	switch r.Status {
	case StatusConfirmed:
		return nil, ErrReservationAlreadyConfirmed
	case StatusPaymentFailed, StatusCancelled:
		if !o.Paid {
			return nil, nil
		}
		return nil, ErrReservationNotPending
	}
	if o.Paid && r.IsExpired() {
		return nil, ErrReservationExpired
	}

	amount := o.Amount
	if amount.Currency == "" {
		amount = r.OutstandingAmount()
	}
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	if amount.Currency != r.TotalPrice.Currency {
		return nil, money.ErrCurrencyMismatch
	}
	method := o.Method
	if method == "" {
		method = r.PaymentMethod
	}

	now := time.Now()
	if o.Paid {
		r.Payments = append(r.Payments, newPayment(r.ID, amount, method, o.TransactionID, PaymentStatusPaid, now))
		r.touch(now)
		covered, err := r.PaidTotal().GreaterOrEqual(r.TotalPrice)
		if err != nil {
			return nil, err
		}
		if covered {
			r.Status = StatusConfirmed
			r.PaymentStatus = PaymentStatusPaid
			r.ConfirmedAt = &now
			r.record(EventReservationConfirmed, "", 0, now)
		}
		return nil, nil
	}

	r.Payments = append(r.Payments, newPayment(r.ID, amount, method, o.TransactionID, PaymentStatusFailed, now))
	releases := r.cancelHeldTickets(now)
	r.Status = StatusPaymentFailed
	r.PaymentStatus = PaymentStatusFailed
	r.touch(now)
	r.record(EventReservationPaymentFailed, "", 0, now)
	r.recordReleases(releases, now)
	return releases, nil
}

// Cancel は予約をキャンセルし、解放すべき座席を返す
// 既にキャンセル済みの場合は何もしない。座席の解放は航空券ごとの状態遷移から算出するため、
// 既にキャンセルされた航空券の座席を二重に返却することはない。
func (r *Reservation) Cancel() []SeatCount {
	if r.Status == StatusCancelled {
		return nil
	}
	now := time.Now()
	releases := r.cancelHeldTickets(now)
	r.Status = StatusCancelled
	// 返金が必要であることを示す（返金処理自体は対象外）
	r.PaymentStatus = PaymentStatusFailed
	r.CancelledAt = &now
	r.touch(now)
	r.record(EventReservationCancelled, "", 0, now)
	r.recordReleases(releases, now)
	return releases
}

// UseTicket は確定済み予約の航空券を使用済みにする。座席は保持したまま
func (r *Reservation) UseTicket(ticketID string) error {
	if r.Status != StatusConfirmed {
		return ErrReservationNotConfirmed
	}
	for _, t := range r.Tickets {
		if t.ID != ticketID {
			continue
		}
		if err := t.Use(); err != nil {
			return err
		}
		r.touch(t.UpdatedAt)
		return nil
	}
	return ErrTicketNotFound
}

// UpdateTotalPrice は保留中の予約の総額を変更する
func (r *Reservation) UpdateTotalPrice(price money.Money) error {
	if err := price.Validate(); err != nil {
		return err
	}
	if price.Currency != r.TotalPrice.Currency {
		return money.ErrCurrencyMismatch
	}
	if !r.IsPending() {
		return ErrReservationNotPending
	}
	r.TotalPrice = price
	r.touch(time.Now())
	return nil
}

// SetPNR は予約番号を設定する
func (r *Reservation) SetPNR(pnr string) error {
	if err := ValidatePNR(pnr); err != nil {
		return err
	}
	r.PNR = pnr
	r.touch(time.Now())
	return nil
}

// SetExpirationDate は保留中の予約の有効期限を設定する
func (r *Reservation) SetExpirationDate(expiresAt time.Time) error {
	if expiresAt.IsZero() {
		return ErrInvalidExpiration
	}
	if !r.IsPending() {
		return ErrReservationNotPending
	}
	r.ExpiresAt = expiresAt
	r.touch(time.Now())
	return nil
}

// IsDirty は読み込み後に変更が加えられたかを返す
func (r *Reservation) IsDirty() bool {
	return r.dirty
}

// PullEvents は記録済みのドメインイベントを取り出し、内部の一覧を空にする
func (r *Reservation) PullEvents() []Event {
	events := r.events
	r.events = nil
	return events
}

// Clone は集約全体のディープコピーを返す（記録済みイベントは含まない）
func (r *Reservation) Clone() *Reservation {
	c := *r
	c.events = nil
	c.dirty = false
	c.Tickets = make([]*Ticket, len(r.Tickets))
	for i, t := range r.Tickets {
		tc := *t
		c.Tickets[i] = &tc
	}
	c.Passengers = make([]*Passenger, len(r.Passengers))
	for i, p := range r.Passengers {
		pc := *p
		c.Passengers[i] = &pc
	}
	c.Payments = make([]*Payment, len(r.Payments))
	for i, p := range r.Payments {
		pc := *p
		c.Payments[i] = &pc
	}
	if r.ConfirmedAt != nil {
		t := *r.ConfirmedAt
		c.ConfirmedAt = &t
	}
	if r.CancelledAt != nil {
		t := *r.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

func (r *Reservation) cancelHeldTickets(now time.Time) []SeatCount {
	counts := make(map[string]int)
	for _, t := range r.Tickets {
		if t.Cancel(now) {
			counts[t.FlightID]++
		}
	}
	return toSeatCounts(counts)
}

func (r *Reservation) recordReleases(releases []SeatCount, now time.Time) {
	for _, sc := range releases {
		r.record(EventSeatsReleased, sc.FlightID, sc.Count, now)
	}
}

func (r *Reservation) record(t EventType, flightID string, seats int, now time.Time) {
	r.events = append(r.events, Event{
		Type:          t,
		ReservationID: r.ID,
		PNR:           r.PNR,
		OwnerID:       r.OwnerID,
		FlightID:      flightID,
		Seats:         seats,
		OccurredAt:    now,
	})
}

func (r *Reservation) touch(now time.Time) {
	r.UpdatedAt = now
	r.dirty = true
}

func toSeatCounts(counts map[string]int) []SeatCount {
	result := make([]SeatCount, 0, len(counts))
	for id, n := range counts {
		result = append(result, SeatCount{FlightID: id, Count: n})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FlightID < result[j].FlightID })
	return result
}
