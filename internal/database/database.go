package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

const (
	pqUniqueViolation     = pq.ErrorCode("23505")
	pqInvalidTextRepr     = pq.ErrorCode("22P02")
	pqForeignKeyViolation = pq.ErrorCode("23503")
)

// mapError translates driver errors into the package sentinels. A malformed
// uuid can never match a row, so it is reported as not found.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return ErrConflict
		case pqInvalidTextRepr, pqForeignKeyViolation:
			return ErrNotFound
		}
	}

	return err
}
