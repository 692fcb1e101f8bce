package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Store-level sentinel errors. Domain repositories translate these into
// their service error taxonomy.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a uniqueness violation (duplicate subdomain,
	// custom domain, or loyalty ledger entry).
	ErrConflict = errors.New("record conflict")
	// ErrStateConflict indicates a conditional update matched the record but
	// not its expected state (e.g. claiming a non-available delivery).
	ErrStateConflict = errors.New("record not in expected state")
	// ErrNotClaimOwner indicates a driver-scoped update on a delivery the
	// driver has not claimed.
	ErrNotClaimOwner = errors.New("delivery not claimed by driver")
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
