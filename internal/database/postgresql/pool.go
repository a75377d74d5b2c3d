package postgresql

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// DBPool is the slice of pgxpool.Pool the takeoff service needs to open
// read-modify-write transactions. pgxmock satisfies it too.
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
