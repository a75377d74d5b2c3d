package takeoffs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"takeoffs/internal/database/postgresql/takeoffsdb"

	"github.com/jackc/pgx/v5/pgtype"
)

// Attachment is the stored metadata for one uploaded file. Both attachment
// collections on a takeoff are append-only: updates add, never replace.
type Attachment struct {
	Filename            string    `json:"filename"`
	OriginalName        string    `json:"originalName"`
	Size                int64     `json:"size"`
	PublicID            string    `json:"publicId"`
	URL                 string    `json:"url"`
	ResourceType        string    `json:"resourceType"` // always "raw"
	UploadedAt          time.Time `json:"uploadedAt"`
	FirstPagePreviewURL *string   `json:"firstPagePreviewUrl"`
	// PreviewPublicID keeps the preview object deletable when the record is
	// removed; without it the PNG would be orphaned in remote storage.
	PreviewPublicID string `json:"previewPublicId,omitempty"`
	IsPDF           bool   `json:"isPdf"`
}

// Payload carries the scalar multipart fields of a create/update request.
// Every field is a pointer: nil means "not supplied", which matters for
// update's overwrite-wholesale semantics.
type Payload struct {
	Title       *string
	Description *string
	ProjectType *string
	Size        *string
	ZipCode     *string
	Address     *string
	Price       *float64
	// Features, Specifications and Tags arrive as encoded text and are
	// decoded with decodeLoose.
	Features       *string
	Specifications *string
	Tags           *string
	Active         *bool
	ExpiresAt      *time.Time
}

// validateCreate returns every per-field message, not just the first.
func (p Payload) validateCreate() []string {
	var msgs []string
	if p.Title == nil || strings.TrimSpace(*p.Title) == "" {
		msgs = append(msgs, "title is required")
	}
	if p.ProjectType == nil || strings.TrimSpace(*p.ProjectType) == "" {
		msgs = append(msgs, "projectType is required")
	}
	if p.Size == nil || strings.TrimSpace(*p.Size) == "" {
		msgs = append(msgs, "size is required")
	}
	if p.ZipCode == nil || strings.TrimSpace(*p.ZipCode) == "" {
		msgs = append(msgs, "zipCode is required")
	}
	if p.Price != nil && *p.Price < 0 {
		msgs = append(msgs, "price cannot be negative")
	}
	return msgs
}

// validateUpdate only checks fields that were actually supplied.
func (p Payload) validateUpdate() []string {
	var msgs []string
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		msgs = append(msgs, "title cannot be empty")
	}
	if p.ProjectType != nil && strings.TrimSpace(*p.ProjectType) == "" {
		msgs = append(msgs, "projectType cannot be empty")
	}
	if p.Size != nil && strings.TrimSpace(*p.Size) == "" {
		msgs = append(msgs, "size cannot be empty")
	}
	if p.ZipCode != nil && strings.TrimSpace(*p.ZipCode) == "" {
		msgs = append(msgs, "zipCode cannot be empty")
	}
	if p.Price != nil && *p.Price < 0 {
		msgs = append(msgs, "price cannot be negative")
	}
	return msgs
}

// decodeLoose parses encoded text as JSON. Undecodable text is not rejected;
// it passes through unchanged as a JSON string. Empty input yields fallback.
func decodeLoose(raw *string, fallback string) []byte {
	if raw == nil {
		return []byte(fallback)
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return []byte(fallback)
	}
	if json.Valid([]byte(trimmed)) {
		return []byte(trimmed)
	}
	// Raw-string fallback: encode the original text as a JSON string
	b, err := json.Marshal(*raw)
	if err != nil {
		return []byte(fallback)
	}
	return b
}

// Creator is the subset of the creator's profile exposed on reads.
type Creator struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type TakeoffResponse struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	ProjectType    string       `json:"projectType"`
	Size           string       `json:"size"`
	ZipCode        string       `json:"zipCode"`
	Address        string       `json:"address"`
	Price          float64      `json:"price"`
	Features       any          `json:"features"`
	Specifications any          `json:"specifications"`
	Tags           any          `json:"tags"`
	Active         bool         `json:"active"`
	ExpiresAt      *time.Time   `json:"expiresAt"`
	CreatedBy      *Creator     `json:"createdBy"`
	Files          []Attachment `json:"files"`
	PdfPreviews    []Attachment `json:"pdfPreview"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

func uuidString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	b := u.Bytes
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// decodeAttachments is forgiving: a corrupt JSONB column is logged and
// rendered as an empty collection instead of failing the read.
func decodeAttachments(logger *slog.Logger, raw []byte, id string) []Attachment {
	atts := []Attachment{}
	if len(raw) == 0 {
		return atts
	}
	if err := json.Unmarshal(raw, &atts); err != nil {
		logger.Error("Failed to decode attachment collection", "takeoff_id", id, "error", err)
		return []Attachment{}
	}
	return atts
}

func decodeAny(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func toResponse(logger *slog.Logger, row takeoffsdb.Takeoff, creator *Creator) *TakeoffResponse {
	id := uuidString(row.ID)

	var expiresAt *time.Time
	if row.ExpiresAt.Valid {
		t := row.ExpiresAt.Time
		expiresAt = &t
	}

	return &TakeoffResponse{
		ID:             id,
		Title:          row.Title,
		Description:    row.Description.String,
		ProjectType:    row.ProjectType,
		Size:           row.Size,
		ZipCode:        row.ZipCode,
		Address:        row.Address.String,
		Price:          row.Price,
		Features:       decodeAny(row.Features),
		Specifications: decodeAny(row.Specifications),
		Tags:           decodeAny(row.Tags),
		Active:         row.Active,
		ExpiresAt:      expiresAt,
		CreatedBy:      creator,
		Files:          decodeAttachments(logger, row.Files, id),
		PdfPreviews:    decodeAttachments(logger, row.PdfPreviews, id),
		CreatedAt:      row.CreatedAt.Time,
		UpdatedAt:      row.UpdatedAt.Time,
	}
}

func rowCreator(row takeoffsdb.TakeoffWithCreator) *Creator {
	if !row.CreatorEmail.Valid {
		return nil
	}
	return &Creator{
		Email:     row.CreatorEmail.String,
		FirstName: row.CreatorFirstName.String,
		LastName:  row.CreatorLastName.String,
	}
}
