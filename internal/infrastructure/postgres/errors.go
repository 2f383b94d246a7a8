package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/dugerdev/TravelBooking-sub001/internal/domain/transaction"
)

const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeInvalidText          = "22P02"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// translateError はリトライで解消しうるPostgreSQLのエラーを transaction.ErrTransient に変換する
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", transaction.ErrTransient, pqErr.Message)
		}
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation && pqErr.Constraint == constraint
}

func isCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeCheckViolation
}

// UUID列に不正な文字列を渡した場合。存在しないIDとして扱う
func isInvalidText(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeInvalidText
}
