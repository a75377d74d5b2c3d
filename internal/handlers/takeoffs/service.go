package takeoffs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"path"
	"time"

	"takeoffs/internal/auth"
	"takeoffs/internal/database/postgresql"
	"takeoffs/internal/database/postgresql/takeoffsdb"
	"takeoffs/internal/errors"
	"takeoffs/internal/events"
	"takeoffs/internal/media"
	"takeoffs/internal/preview"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"
)

// Object-store folders for originals and generated previews.
const (
	folderFiles    = "takeoffs/files"
	folderPreviews = "takeoffs/previews"
)

const contentTypePDF = "application/pdf"

type TakeoffsService interface {
	Create(ctx context.Context, user auth.UserInfo, payload Payload, files, pdfPreviews []*multipart.FileHeader) (*TakeoffResponse, error)
	List(ctx context.Context, q takeoffsdb.ListQuery) ([]*TakeoffResponse, error)
	GetByID(ctx context.Context, id string) (*TakeoffResponse, error)
	Update(ctx context.Context, user auth.UserInfo, id string, payload Payload, files, pdfPreviews []*multipart.FileHeader) (*TakeoffResponse, error)
	Delete(ctx context.Context, user auth.UserInfo, id string) (string, error)
}

type svc struct {
	repo     *takeoffsdb.Queries
	db       postgresql.DBPool
	logger   *slog.Logger
	uploader media.Uploader
	previews preview.Generator
	events   *events.EventHandler
}

func NewTakeoffsService(repo *takeoffsdb.Queries, db postgresql.DBPool, logger *slog.Logger, uploader media.Uploader, previews preview.Generator, eventHandler *events.EventHandler) TakeoffsService {
	return &svc{
		repo:     repo,
		db:       db,
		logger:   logger,
		uploader: uploader,
		previews: previews,
		events:   eventHandler,
	}
}

func (s *svc) Create(ctx context.Context, user auth.UserInfo, payload Payload, files, pdfPreviews []*multipart.FileHeader) (*TakeoffResponse, error) {
	s.logger.InfoContext(ctx, "Creating takeoff", "user", user.ID, "files", len(files), "pdf_previews", len(pdfPreviews))

	if msgs := payload.validateCreate(); len(msgs) > 0 {
		s.logger.WarnContext(ctx, "Validation failed", "messages", msgs)
		return nil, errors.Validation(msgs)
	}

	var createdBy pgtype.UUID
	if err := createdBy.Scan(user.ID); err != nil {
		return nil, errors.New(errors.ErrInternal, "Invalid user ID", fmt.Errorf("invalid user uuid: %w", err))
	}

	// Every object uploaded from here on is rolled back unless the record
	// makes it into the database.
	rollback := media.NewRollback(s.uploader)
	defer rollback.Undo(ctx, s.logger)

	attachments, err := s.uploadAll(ctx, files, rollback, false)
	if err != nil {
		return nil, err
	}
	// The pdfPreview field-group is treated as always-PDF
	previewAttachments, err := s.uploadAll(ctx, pdfPreviews, rollback, true)
	if err != nil {
		return nil, err
	}

	filesJSON, err := json.Marshal(attachments)
	if err != nil {
		return nil, errors.New(errors.ErrInternal, "Failed to encode attachments", err)
	}
	previewsJSON, err := json.Marshal(previewAttachments)
	if err != nil {
		return nil, errors.New(errors.ErrInternal, "Failed to encode attachments", err)
	}

	row, err := s.repo.CreateTakeoff(ctx, takeoffsdb.CreateTakeoffParams{
		Title:          strOr(payload.Title, ""),
		Description:    textOf(payload.Description),
		ProjectType:    strOr(payload.ProjectType, ""),
		Size:           strOr(payload.Size, ""),
		ZipCode:        strOr(payload.ZipCode, ""),
		Address:        textOf(payload.Address),
		Price:          floatOr(payload.Price, 0),
		Features:       decodeLoose(payload.Features, "[]"),
		Specifications: decodeLoose(payload.Specifications, "{}"),
		Tags:           decodeLoose(payload.Tags, "[]"),
		Active:         boolOr(payload.Active, true),
		ExpiresAt:      timestampOf(payload.ExpiresAt),
		CreatedBy:      createdBy,
		Files:          filesJSON,
		PdfPreviews:    previewsJSON,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to create takeoff", "error", err)
		return nil, errors.New(errors.ErrInternal, "Failed to create takeoff: "+err.Error(), err)
	}

	rollback.Commit()
	s.raiseChanged(ctx, events.ActionCreated, uuidString(row.ID), user.ID)

	return toResponse(s.logger, row, &Creator{Email: user.Email, FirstName: user.FirstName, LastName: user.LastName}), nil
}

func (s *svc) List(ctx context.Context, q takeoffsdb.ListQuery) ([]*TakeoffResponse, error) {
	rows, err := s.repo.ListTakeoffs(ctx, q)
	if err != nil {
		return nil, errors.New(errors.ErrInternal, "Failed to list takeoffs: "+err.Error(), err)
	}

	responses := make([]*TakeoffResponse, len(rows))
	for i, row := range rows {
		responses[i] = toResponse(s.logger, row.Takeoff, rowCreator(row))
	}
	return responses, nil
}

func (s *svc) GetByID(ctx context.Context, id string) (*TakeoffResponse, error) {
	takeoffID, appErr := parseID(id)
	if appErr != nil {
		return nil, appErr
	}

	row, err := s.repo.GetTakeoffByID(ctx, takeoffID)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.ErrNotFound, "Takeoff not found", nil)
	}
	if err != nil {
		return nil, errors.New(errors.ErrInternal, "Failed to fetch takeoff: "+err.Error(), err)
	}

	return toResponse(s.logger, row.Takeoff, rowCreator(row)), nil
}

func (s *svc) Update(ctx context.Context, user auth.UserInfo, id string, payload Payload, files, pdfPreviews []*multipart.FileHeader) (*TakeoffResponse, error) {
	s.logger.InfoContext(ctx, "Updating takeoff", "user", user.ID, "takeoff_id", id)

	takeoffID, appErr := parseID(id)
	if appErr != nil {
		return nil, appErr
	}

	if msgs := payload.validateUpdate(); len(msgs) > 0 {
		s.logger.WarnContext(ctx, "Validation failed", "messages", msgs)
		return nil, errors.Validation(msgs)
	}

	rollback := media.NewRollback(s.uploader)
	defer rollback.Undo(ctx, s.logger)

	newAttachments, err := s.uploadAll(ctx, files, rollback, false)
	if err != nil {
		return nil, err
	}
	newPreviewAttachments, err := s.uploadAll(ctx, pdfPreviews, rollback, true)
	if err != nil {
		return nil, err
	}

	// Read-modify-write inside a transaction so concurrent appends to the
	// attachment collections cannot lose each other.
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, errors.New(errors.ErrInternal, "Failed to start transaction: "+err.Error(), err)
	}
	defer tx.Rollback(ctx)

	qtx := s.repo.WithTx(tx)

	existing, err := qtx.GetTakeoffByID(ctx, takeoffID)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.ErrNotFound, "Takeoff not found", nil)
	}
	if err != nil {
		return nil, errors.New(errors.ErrInternal, "Failed to fetch takeoff: "+err.Error(), err)
	}

	filesJSON, err := appendAttachments(s.logger, existing.Files, newAttachments, uuidString(takeoffID))
	if err != nil {
		return nil, err
	}
	previewsJSON, err := appendAttachments(s.logger, existing.PdfPreviews, newPreviewAttachments, uuidString(takeoffID))
	if err != nil {
		return nil, err
	}

	row, err := qtx.UpdateTakeoff(ctx, takeoffsdb.UpdateTakeoffParams{
		ID:             takeoffID,
		Title:          strOr(payload.Title, existing.Title),
		Description:    textOverride(payload.Description, existing.Description),
		ProjectType:    strOr(payload.ProjectType, existing.ProjectType),
		Size:           strOr(payload.Size, existing.Size),
		ZipCode:        strOr(payload.ZipCode, existing.ZipCode),
		Address:        textOverride(payload.Address, existing.Address),
		Price:          floatOr(payload.Price, existing.Price),
		Features:       bytesOverride(payload.Features, existing.Features, "[]"),
		Specifications: bytesOverride(payload.Specifications, existing.Specifications, "{}"),
		Tags:           bytesOverride(payload.Tags, existing.Tags, "[]"),
		Active:         boolOr(payload.Active, existing.Active),
		ExpiresAt:      timestampOverride(payload.ExpiresAt, existing.ExpiresAt),
		Files:          filesJSON,
		PdfPreviews:    previewsJSON,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to update takeoff", "error", err)
		return nil, errors.New(errors.ErrInternal, "Failed to update takeoff: "+err.Error(), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.New(errors.ErrInternal, "Failed to commit transaction: "+err.Error(), err)
	}

	rollback.Commit()
	s.raiseChanged(ctx, events.ActionUpdated, uuidString(row.ID), user.ID)

	return toResponse(s.logger, row, rowCreator(existing)), nil
}

func (s *svc) Delete(ctx context.Context, user auth.UserInfo, id string) (string, error) {
	s.logger.InfoContext(ctx, "Deleting takeoff", "user", user.ID, "takeoff_id", id)

	takeoffID, appErr := parseID(id)
	if appErr != nil {
		return "", appErr
	}

	row, err := s.repo.GetTakeoffByID(ctx, takeoffID)
	if err == pgx.ErrNoRows {
		return "", errors.New(errors.ErrNotFound, "Takeoff not found", nil)
	}
	if err != nil {
		return "", errors.New(errors.ErrInternal, "Failed to fetch takeoff: "+err.Error(), err)
	}

	// Every remote object must be gone before the record disappears from
	// reads, or we leak orphans. Each delete is awaited; a failure aborts
	// with the record still intact.
	attachments := decodeAttachments(s.logger, row.Files, id)
	attachments = append(attachments, decodeAttachments(s.logger, row.PdfPreviews, id)...)
	for _, att := range attachments {
		if err := s.uploader.Remove(ctx, att.PublicID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to delete remote object", "public_id", att.PublicID, "error", err)
			return "", errors.New(errors.ErrInternal, "Failed to delete attachment from remote storage: "+err.Error(), err)
		}
		if att.PreviewPublicID != "" {
			if err := s.uploader.Remove(ctx, att.PreviewPublicID); err != nil {
				s.logger.ErrorContext(ctx, "Failed to delete preview object", "public_id", att.PreviewPublicID, "error", err)
				return "", errors.New(errors.ErrInternal, "Failed to delete attachment preview from remote storage: "+err.Error(), err)
			}
		}
	}

	rows, err := s.repo.DeleteTakeoff(ctx, takeoffID)
	if err != nil {
		return "", errors.New(errors.ErrInternal, "Failed to delete takeoff: "+err.Error(), err)
	}
	if rows == 0 {
		return "", errors.New(errors.ErrNotFound, "Takeoff not found", nil)
	}

	s.raiseChanged(ctx, events.ActionDeleted, id, user.ID)

	return "Takeoff deleted successfully", nil
}

// uploadAll uploads one field-group sequentially, preserving input order in
// the resulting attachment list.
func (s *svc) uploadAll(ctx context.Context, fhs []*multipart.FileHeader, rollback *media.Rollback, alwaysPDF bool) ([]Attachment, error) {
	attachments := make([]Attachment, 0, len(fhs))
	for _, fh := range fhs {
		att, err := s.uploadOne(ctx, fh, rollback, alwaysPDF)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, *att)
	}
	return attachments, nil
}

func (s *svc) uploadOne(ctx context.Context, fh *multipart.FileHeader, rollback *media.Rollback, alwaysPDF bool) (*Attachment, error) {
	asset, err := s.uploader.Upload(ctx, fh, folderFiles)
	if err != nil {
		return nil, err
	}
	rollback.Track(asset)
	// The spool copy is only needed until the preview step below is done
	defer media.RemoveLocal(ctx, s.logger, asset.LocalPath)

	isPDF := alwaysPDF || fh.Header.Get("Content-Type") == contentTypePDF

	att := &Attachment{
		Filename:     path.Base(asset.PublicID),
		OriginalName: fh.Filename,
		Size:         fh.Size,
		PublicID:     asset.PublicID,
		URL:          asset.URL,
		ResourceType: media.ResourceKindRaw,
		UploadedAt:   time.Now().UTC(),
		IsPDF:        isPDF,
	}

	// Preview generation needs the original on disk; in buffer mode
	// LocalPath is empty and the no-op generator declines anyway. A failed
	// generation degrades to "no preview" and never fails the request.
	if isPDF && asset.LocalPath != "" {
		if previewPath, ok := s.previews.FirstPage(ctx, asset.LocalPath); ok {
			defer media.RemoveLocal(ctx, s.logger, previewPath)

			previewAsset, err := s.uploader.UploadPath(ctx, previewPath, folderPreviews)
			if err != nil {
				return nil, err
			}
			rollback.Track(previewAsset)
			att.FirstPagePreviewURL = &previewAsset.URL
			att.PreviewPublicID = previewAsset.PublicID
		}
	}

	return att, nil
}

func (s *svc) raiseChanged(ctx context.Context, action, takeoffID, userID string) {
	traceID := ""
	if spanContext := trace.SpanContextFromContext(ctx); spanContext.IsValid() {
		traceID = spanContext.TraceID().String()
	}

	// Fire-and-forget: a lost event never fails the mutation that caused it
	if err := s.events.RaiseTakeoffChangedEvent(events.TakeoffChangedEvent{
		Action:    action,
		TakeoffID: takeoffID,
		UserID:    userID,
		TraceID:   traceID,
	}); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish takeoff changed event",
			"action", action,
			"takeoff_id", takeoffID,
			"error", err,
		)
	}
}

// appendAttachments merges new uploads onto an existing JSONB collection.
func appendAttachments(logger *slog.Logger, existing []byte, added []Attachment, id string) ([]byte, error) {
	merged := decodeAttachments(logger, existing, id)
	merged = append(merged, added...)
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.New(errors.ErrInternal, "Failed to encode attachments", err)
	}
	return out, nil
}

func parseID(id string) (pgtype.UUID, *errors.AppError) {
	var takeoffID pgtype.UUID
	if err := takeoffID.Scan(id); err != nil {
		return takeoffID, errors.New(errors.ErrNotFound, "Takeoff not found", fmt.Errorf("invalid takeoff id: %w", err))
	}
	return takeoffID, nil
}

// --- Payload application helpers ---

func strOr(p *string, def string) string {
	if p != nil {
		return *p
	}
	return def
}

func floatOr(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

func textOf(p *string) pgtype.Text {
	if p == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *p, Valid: true}
}

func textOverride(p *string, existing pgtype.Text) pgtype.Text {
	if p != nil {
		return pgtype.Text{String: *p, Valid: true}
	}
	return existing
}

func timestampOf(p *time.Time) pgtype.Timestamptz {
	if p == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *p, Valid: true}
}

func timestampOverride(p *time.Time, existing pgtype.Timestamptz) pgtype.Timestamptz {
	if p != nil {
		return pgtype.Timestamptz{Time: *p, Valid: true}
	}
	return existing
}

func bytesOverride(p *string, existing []byte, fallback string) []byte {
	if p != nil {
		return decodeLoose(p, fallback)
	}
	if len(existing) == 0 {
		return []byte(fallback)
	}
	return existing
}
