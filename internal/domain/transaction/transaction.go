package transaction

import (
	"context"
	"errors"
)

// ErrTransient はストア側の一時的な競合（シリアライズ失敗・デッドロック検出など）を表す
// リトライで解消しうるエラーであり、業務的な拒否とは区別する
var ErrTransient = errors.New("ストアで一時的な競合が発生しました")

// Tx はトランザクションを表すインターフェース
// ドメイン層がインフラ層（sqlx等）に依存しないようにするための抽象化
type Tx interface {
	Commit() error
	Rollback() error
}

// Manager はトランザクションを管理するインターフェース
type Manager interface {
	Begin(ctx context.Context) (Tx, error)
}

// Run は fn をトランザクション内で実行し、エラーがなければコミットする
// fn がエラーを返した場合やパニックした場合はロールバックする
func Run(ctx context.Context, m Manager, fn func(tx Tx) error) (err error) {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
