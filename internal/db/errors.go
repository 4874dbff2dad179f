package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
)

// ErrTransactionConflict indicates concurrent writers collided on the same
// records. It is reported as a backend error; the core never retries.
var ErrTransactionConflict = errors.New("transaction conflict")

// wrapQueryError classifies a SurrealDB error as a backend error, keeping
// the transaction-conflict distinction visible to errors.Is.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %w: %s", errs.ErrBackend, ErrTransactionConflict, msg)
		}
		return fmt.Errorf("%w: surrealdb: %s", errs.ErrBackend, msg)
	}
	return fmt.Errorf("%w: %w", errs.ErrBackend, err)
}
