package takeoffsdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const takeoffColumns = `id, title, description, project_type, size, zip_code, address, price,
	features, specifications, tags, active, expires_at, created_by, files, pdf_previews,
	created_at, updated_at`

const createTakeoff = `INSERT INTO takeoffs (
	title, description, project_type, size, zip_code, address, price,
	features, specifications, tags, active, expires_at, created_by, files, pdf_previews
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING ` + takeoffColumns

type CreateTakeoffParams struct {
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
}

func (q *Queries) CreateTakeoff(ctx context.Context, arg CreateTakeoffParams) (Takeoff, error) {
	row := q.db.QueryRow(ctx, createTakeoff,
		arg.Title, arg.Description, arg.ProjectType, arg.Size, arg.ZipCode,
		arg.Address, arg.Price, arg.Features, arg.Specifications, arg.Tags,
		arg.Active, arg.ExpiresAt, arg.CreatedBy, arg.Files, arg.PdfPreviews,
	)
	return scanTakeoff(row)
}

const getTakeoffByID = `SELECT t.id, t.title, t.description, t.project_type, t.size, t.zip_code,
	t.address, t.price, t.features, t.specifications, t.tags, t.active, t.expires_at,
	t.created_by, t.files, t.pdf_previews, t.created_at, t.updated_at,
	u.email, u.first_name, u.last_name
FROM takeoffs t
LEFT JOIN users u ON u.id = t.created_by
WHERE t.id = $1`

func (q *Queries) GetTakeoffByID(ctx context.Context, id pgtype.UUID) (TakeoffWithCreator, error) {
	row := q.db.QueryRow(ctx, getTakeoffByID, id)
	return scanTakeoffWithCreator(row)
}

// Sort keys accepted by ListTakeoffs. Anything else falls back to newest.
const (
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortSize      = "size"
	SortNewest    = "newest"
)

const (
	DefaultPage  = 1
	DefaultLimit = 9
)

// ListQuery is the compound filter for listing takeoffs. All clauses are
// independent and additive; only the free-text search ORs internally.
type ListQuery struct {
	ZipCode  string
	Size     string
	Types    []string
	PriceMin *float64
	PriceMax *float64
	Search   string
	Sort     string
	Page     int
	Limit    int
}

// SQL assembles the full list statement plus its positional args.
func (f ListQuery) SQL() (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)

	sb.WriteString(`SELECT t.id, t.title, t.description, t.project_type, t.size, t.zip_code,
	t.address, t.price, t.features, t.specifications, t.tags, t.active, t.expires_at,
	t.created_by, t.files, t.pdf_previews, t.created_at, t.updated_at,
	u.email, u.first_name, u.last_name
FROM takeoffs t
LEFT JOIN users u ON u.id = t.created_by`)

	var clauses []string
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ZipCode != "" {
		clauses = append(clauses, "t.zip_code = "+arg(f.ZipCode))
	}
	if f.Size != "" {
		clauses = append(clauses, "lower(t.size) = "+arg(strings.ToLower(f.Size)))
	}
	if len(f.Types) > 0 {
		lowered := make([]string, len(f.Types))
		for i, t := range f.Types {
			lowered[i] = strings.ToLower(strings.TrimSpace(t))
		}
		clauses = append(clauses, "lower(t.project_type) = ANY("+arg(lowered)+")")
	}
	if f.PriceMin != nil {
		clauses = append(clauses, "t.price >= "+arg(*f.PriceMin))
	}
	if f.PriceMax != nil {
		clauses = append(clauses, "t.price <= "+arg(*f.PriceMax))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		clauses = append(clauses, fmt.Sprintf("(t.title ILIKE %s OR t.description ILIKE %s OR t.zip_code ILIKE %s)", p, p, p))
	}

	if len(clauses) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(clauses, " AND "))
	}

	sb.WriteString("\nORDER BY ")
	sb.WriteString(f.orderBy())

	page := f.Page
	if page < 1 {
		page = DefaultPage
	}
	limit := f.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	sb.WriteString("\nLIMIT " + arg(limit))
	sb.WriteString(" OFFSET " + arg((page-1)*limit))

	return sb.String(), args
}

func (f ListQuery) orderBy() string {
	switch f.Sort {
	case SortPriceAsc:
		return "t.price ASC"
	case SortPriceDesc:
		return "t.price DESC"
	case SortSize:
		return "t.size ASC"
	default:
		// Default and fallback: newest first
		return "t.created_at DESC"
	}
}

func (q *Queries) ListTakeoffs(ctx context.Context, f ListQuery) ([]TakeoffWithCreator, error) {
	sql, args := f.SQL()
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Past-the-end pages return an empty slice, not an error
	results := []TakeoffWithCreator{}
	for rows.Next() {
		t, err := scanTakeoffWithCreator(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

const updateTakeoff = `UPDATE takeoffs SET
	title = $2, description = $3, project_type = $4, size = $5, zip_code = $6,
	address = $7, price = $8, features = $9, specifications = $10, tags = $11,
	active = $12, expires_at = $13, files = $14, pdf_previews = $15,
	updated_at = now()
WHERE id = $1
RETURNING ` + takeoffColumns

type UpdateTakeoffParams struct {
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
	Files          []byte
	PdfPreviews    []byte
}

func (q *Queries) UpdateTakeoff(ctx context.Context, arg UpdateTakeoffParams) (Takeoff, error) {
	row := q.db.QueryRow(ctx, updateTakeoff,
		arg.ID, arg.Title, arg.Description, arg.ProjectType, arg.Size,
		arg.ZipCode, arg.Address, arg.Price, arg.Features, arg.Specifications,
		arg.Tags, arg.Active, arg.ExpiresAt, arg.Files, arg.PdfPreviews,
	)
	return scanTakeoff(row)
}

const deleteTakeoff = `DELETE FROM takeoffs WHERE id = $1`

func (q *Queries) DeleteTakeoff(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteTakeoff, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanTakeoff(row pgx.Row) (Takeoff, error) {
	var t Takeoff
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.ProjectType, &t.Size, &t.ZipCode,
		&t.Address, &t.Price, &t.Features, &t.Specifications, &t.Tags,
		&t.Active, &t.ExpiresAt, &t.CreatedBy, &t.Files, &t.PdfPreviews,
		&t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func scanTakeoffWithCreator(row pgx.Row) (TakeoffWithCreator, error) {
	var t TakeoffWithCreator
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.ProjectType, &t.Size, &t.ZipCode,
		&t.Address, &t.Price, &t.Features, &t.Specifications, &t.Tags,
		&t.Active, &t.ExpiresAt, &t.CreatedBy, &t.Files, &t.PdfPreviews,
		&t.CreatedAt, &t.UpdatedAt,
		&t.CreatorEmail, &t.CreatorFirstName, &t.CreatorLastName,
	)
	return t, err
}
