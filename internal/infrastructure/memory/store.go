// Package memory はプロセス内で完結するストア実装
// 単体テストの並行性検証と、DBなしでの起動に使う
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/flight"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/outbox"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/reservation"
	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
)

var ErrTxDone = errors.New("トランザクションは既に終了しています")

// Store は全リポジトリが共有する状態
//
// 予約の書き込みはトランザクション内に保留し、コミット時にまとめて反映する。
// 保留中の予約は行ロックを持ち、他の書き込みはコミットかロールバックまで待つ。
// 座席数とアウトボックスは即時に反映し、ロールバック時は取り消し操作を逆順に適用する
type Store struct {
	mu           sync.Mutex
	released     *sync.Cond
	flights      map[string]*flight.Flight
	reservations map[string]*reservation.Reservation
	outbox       []*outbox.Message

	// locks は予約IDごとの保留中トランザクション
	locks map[string]*Tx
	// creating はコミット前の新規予約（一意性の検査用）
	creating map[string]*reservation.Reservation
}

func NewStore() *Store {
	s := &Store{
		flights:      make(map[string]*flight.Flight),
		reservations: make(map[string]*reservation.Reservation),
		locks:        make(map[string]*Tx),
		creating:     make(map[string]*reservation.Reservation),
	}
	s.released = sync.NewCond(&s.mu)
	return s
}

// Tx は Store のトランザクション
type Tx struct {
	store   *Store
	mu      sync.Mutex
	undo    []func()
	pending []func()
	locked  []string
	done    bool
}

func (t *Tx) Commit() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return ErrTxDone
	}
	t.done = true
	pending, locked := t.pending, t.locked
	t.undo, t.pending, t.locked = nil, nil, nil
	t.mu.Unlock()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, apply := range pending {
		apply()
	}
	t.store.unlock(t, locked)
	return nil
}

func (t *Tx) Rollback() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil
	}
	t.done = true
	undo, locked := t.undo, t.locked
	t.undo, t.pending, t.locked = nil, nil, nil
	t.mu.Unlock()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	t.store.unlock(t, locked)
	return nil
}

// TxManager は transaction.Manager の実装
type TxManager struct {
	store *Store
}

func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{store: m.store}, nil
}

// onRollback は tx がロールバックされた場合の取り消し操作を登録する
// s.mu を保持した状態で呼ぶこと。tx が nil の場合は即時確定なので何もしない
func (s *Store) onRollback(tx transaction.Tx, undo func()) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.done {
		t.undo = append(t.undo, undo)
	}
}

// lock は予約IDの行ロックを取得する。他のトランザクションが保持している間は待つ
// s.mu を保持した状態で呼ぶこと。tx が nil の場合は待つだけでロックは保持しない
func (s *Store) lock(tx transaction.Tx, id string) (*Tx, error) {
	t, _ := tx.(*Tx)
	for {
		owner, held := s.locks[id]
		if !held || owner == t {
			break
		}
		s.released.Wait()
	}
	if t == nil {
		return nil, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil, ErrTxDone
	}
	if _, held := s.locks[id]; !held {
		s.locks[id] = t
		t.locked = append(t.locked, id)
	}
	return t, nil
}

// stage は書き込みをコミット時まで保留する。t が nil の場合は即時に反映する
// s.mu を保持した状態で呼ぶこと
func (s *Store) stage(t *Tx, apply, discard func()) {
	if t == nil {
		apply()
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, apply)
	if discard != nil {
		t.undo = append(t.undo, discard)
	}
}

func (s *Store) unlock(t *Tx, ids []string) {
	for _, id := range ids {
		if s.locks[id] == t {
			delete(s.locks, id)
		}
	}
	if len(ids) > 0 {
		s.released.Broadcast()
	}
}

var _ transaction.Manager = (*TxManager)(nil)
