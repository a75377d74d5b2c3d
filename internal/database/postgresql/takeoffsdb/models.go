package takeoffsdb

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx, and the pgxmock pool.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// Takeoff is one listing record. The document-shaped fields (features,
// specifications, tags, and both attachment collections) live in JSONB
// columns and are carried as raw bytes here; the service layer owns their
// shape.
type Takeoff struct {
	ID             pgtype.UUID
	Title          string
	Description    pgtype.Text
	ProjectType    string
	Size           string
	ZipCode        string
	Address        pgtype.Text
	Price          float64
	Features       []byte
	Specifications []byte
	Tags           []byte
	Active         bool
	ExpiresAt      pgtype.Timestamptz
	CreatedBy      pgtype.UUID
	Files          []byte
	PdfPreviews    []byte
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

// TakeoffWithCreator is a Takeoff row joined with the creator's public
// profile fields.
type TakeoffWithCreator struct {
	Takeoff
	CreatorEmail     pgtype.Text
	CreatorFirstName pgtype.Text
	CreatorLastName  pgtype.Text
}
