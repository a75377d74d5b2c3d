package takeoffs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"takeoffs/internal/auth"
	"takeoffs/internal/database/postgresql/takeoffsdb"
	apperrors "takeoffs/internal/errors"
	"takeoffs/internal/events"
	"takeoffs/internal/media"
	"takeoffs/internal/preview"
	"takeoffs/internal/storage"
	"takeoffs/internal/testutil"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validUserUUID      = "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11"
	generatedTakeoffID = "11111111-1111-1111-1111-111111111111"
)

// fakeBus records published events instead of talking to NATS.
type fakeBus struct {
	subjects []string
	payloads [][]byte
}

func (b *fakeBus) Publish(subject string, data []byte, msgId string) error {
	b.subjects = append(b.subjects, subject)
	b.payloads = append(b.payloads, data)
	return nil
}

func (b *fakeBus) Drain() error { return nil }

func (b *fakeBus) actions(t *testing.T) []string {
	t.Helper()
	var actions []string
	for _, p := range b.payloads {
		var evt events.TakeoffChangedEvent
		require.NoError(t, json.Unmarshal(p, &evt))
		actions = append(actions, evt.Action)
	}
	return actions
}

// pngWritingGenerator stands in for the rasterizer: it writes a PNG beside
// the spooled original, the same contract the real generator honors.
type pngWritingGenerator struct{}

func (pngWritingGenerator) FirstPage(ctx context.Context, pdfPath string) (string, bool) {
	out := strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath)) + ".png"
	if err := os.WriteFile(out, []byte("png-bytes"), 0o644); err != nil {
		return "", false
	}
	return out, true
}

type testFile struct {
	field       string
	name        string
	contentType string
	content     string
}

// makeFileHeaders builds real multipart file headers in memory, the same way
// net/http hands them to the handler.
func makeFileHeaders(t *testing.T, files ...testFile) map[string][]*multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, f.field, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(body, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	return form.File
}

type serviceFixture struct {
	svc  *svc
	pool pgxmock.PgxPoolIface
	mem  *storage.MemoryProvider
	bus  *fakeBus
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	mockPool := testutil.NewMockDB(t)
	logger := testutil.NewTestLogger()
	mem := storage.NewMemoryProvider()
	bus := &fakeBus{}

	eventHandler := events.NewEventHandler(bus, &events.EventConfig{TakeoffChanged: "takeoffs.changed"}, logger)

	return &serviceFixture{
		svc: &svc{
			repo:     takeoffsdb.New(mockPool),
			db:       mockPool,
			logger:   logger,
			uploader: media.NewBufferUploader(mem),
			previews: preview.NoopGenerator{},
			events:   eventHandler,
		},
		pool: mockPool,
		mem:  mem,
		bus:  bus,
	}
}

func testUser() auth.UserInfo {
	return auth.UserInfo{
		ID:        validUserUUID,
		Email:     "estimator@example.com",
		FirstName: "Pat",
		LastName:  "Nguyen",
		Role:      "user",
	}
}

func createPayload() Payload {
	title := "Roof replacement package"
	projectType := "Commercial"
	size := "Large"
	zip := "10001"
	price := 1250.0
	features := `["tear-off","underlayment"]`
	return Payload{
		Title:       &title,
		ProjectType: &projectType,
		Size:        &size,
		ZipCode:     &zip,
		Price:       &price,
		Features:    &features,
	}
}

func takeoffRow(filesJSON, previewsJSON string) []any {
	now := time.Now()
	return []any{
		generatedTakeoffID, "Roof replacement package", "Desc", "Commercial", "Large",
		"10001", "1 Main St", 1250.0, []byte(`["tear-off","underlayment"]`), []byte(`{}`),
		[]byte(`[]`), true, nil, validUserUUID, []byte(filesJSON), []byte(previewsJSON),
		now, now,
	}
}

func TestCreateTakeoff_Success(t *testing.T) {
	f := newServiceFixture(t)

	fileGroups := makeFileHeaders(t,
		testFile{field: fieldFiles, name: "site-plan.pdf", contentType: "application/pdf", content: "%PDF-1.4"},
		testFile{field: fieldFiles, name: "bid-sheet.xlsx", contentType: "application/vnd.ms-excel", content: "cells"},
	)

	anyArgs := make([]any, 15)
	for i := range anyArgs {
		anyArgs[i] = pgxmock.AnyArg()
	}
	anyArgs[0] = "Roof replacement package"

	f.pool.ExpectQuery(regexp.QuoteMeta(`INSERT INTO takeoffs`)).
		WithArgs(anyArgs...).
		WillReturnRows(pgxmock.NewRows(testutil.TakeoffCols).AddRow(takeoffRow(`[]`, `[]`)...))

	result, err := f.svc.Create(context.Background(), testUser(), createPayload(), fileGroups[fieldFiles], nil)

	require.NoError(t, err)
	assert.Equal(t, generatedTakeoffID, result.ID)
	assert.Equal(t, "Roof replacement package", result.Title)
	assert.Equal(t, []any{"tear-off", "underlayment"}, result.Features)

	// Creator is expanded from the authenticated user's profile
	require.NotNil(t, result.CreatedBy)
	assert.Equal(t, "estimator@example.com", result.CreatedBy.Email)

	// Both files landed in the store under the files folder
	assert.Equal(t, 2, f.mem.Len())
	for _, key := range f.mem.Keys() {
		assert.True(t, strings.HasPrefix(key, "takeoffs/files/"), "key %q", key)
	}

	assert.Equal(t, []string{events.ActionCreated}, f.bus.actions(t))
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestCreateTakeoff_ValidationFailureListsEveryField(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Create(context.Background(), testUser(), Payload{}, nil, nil)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrValidation, appErr.Code)
	assert.Len(t, appErr.Fields, 4)

	// Nothing was uploaded or persisted
	assert.Equal(t, 0, f.mem.Len())
	assert.Empty(t, f.bus.subjects)
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestCreateTakeoff_UploadFailureRollsBackEarlierObjects(t *testing.T) {
	f := newServiceFixture(t)
	// First upload succeeds, second fails
	f.mem.FailPut = storage.ErrUploadFailed
	f.mem.FailAfterN = 1

	fileGroups := makeFileHeaders(t,
		testFile{field: fieldFiles, name: "a.pdf", contentType: "application/pdf", content: "a"},
		testFile{field: fieldFiles, name: "b.pdf", contentType: "application/pdf", content: "b"},
	)

	_, err := f.svc.Create(context.Background(), testUser(), createPayload(), fileGroups[fieldFiles], nil)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrUploadFailed, appErr.Code)

	// The object uploaded for file A was compensated away: no orphans remain
	assert.Equal(t, 0, f.mem.Len())
	assert.Empty(t, f.bus.subjects)
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestCreateTakeoff_DiskModeStoresOriginalAndPreview(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.uploader = media.NewDiskUploader(f.mem, t.TempDir())
	f.svc.previews = pngWritingGenerator{}

	fileGroups := makeFileHeaders(t,
		testFile{field: fieldFiles, name: "plan.pdf", contentType: "application/pdf", content: "%PDF-1.4"},
	)

	anyArgs := make([]any, 15)
	for i := range anyArgs {
		anyArgs[i] = pgxmock.AnyArg()
	}
	f.pool.ExpectQuery(regexp.QuoteMeta(`INSERT INTO takeoffs`)).
		WithArgs(anyArgs...).
		WillReturnRows(pgxmock.NewRows(testutil.TakeoffCols).AddRow(takeoffRow(`[]`, `[]`)...))

	_, err := f.svc.Create(context.Background(), testUser(), createPayload(), fileGroups[fieldFiles], nil)

	require.NoError(t, err)
	require.Equal(t, 2, f.mem.Len())
	var originals, generated int
	for _, key := range f.mem.Keys() {
		switch {
		case strings.HasPrefix(key, "takeoffs/files/"):
			originals++
		case strings.HasPrefix(key, "takeoffs/previews/"):
			generated++
		}
	}
	assert.Equal(t, 1, originals)
	assert.Equal(t, 1, generated)
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestUploadOne_DiskModeSetsPreviewFields(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.uploader = media.NewDiskUploader(f.mem, t.TempDir())
	f.svc.previews = pngWritingGenerator{}

	fh := makeFileHeaders(t,
		testFile{field: fieldFiles, name: "plan.pdf", contentType: "application/pdf", content: "%PDF-1.4"},
	)[fieldFiles][0]

	rollback := media.NewRollback(f.svc.uploader)
	att, err := f.svc.uploadOne(context.Background(), fh, rollback, false)

	require.NoError(t, err)
	assert.True(t, att.IsPDF)
	assert.True(t, strings.HasPrefix(att.PublicID, "takeoffs/files/"))
	require.NotNil(t, att.FirstPagePreviewURL)
	assert.True(t, strings.HasPrefix(att.PreviewPublicID, "takeoffs/previews/"))
	assert.True(t, strings.HasSuffix(att.PreviewPublicID, ".png"))
	assert.Equal(t, "memory://"+att.PreviewPublicID, *att.FirstPagePreviewURL)
	assert.True(t, f.mem.Has(att.PublicID))
	assert.True(t, f.mem.Has(att.PreviewPublicID))

	// The preview object is tracked too: undoing removes both
	rollback.Undo(context.Background(), testutil.NewTestLogger())
	assert.Equal(t, 0, f.mem.Len())
}

func TestUploadOne_DiskModeFailedGenerationDegrades(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.uploader = media.NewDiskUploader(f.mem, t.TempDir())
	f.svc.previews = preview.NoopGenerator{}

	fh := makeFileHeaders(t,
		testFile{field: fieldFiles, name: "plan.pdf", contentType: "application/pdf", content: "%PDF-1.4"},
	)[fieldFiles][0]

	att, err := f.svc.uploadOne(context.Background(), fh, media.NewRollback(f.svc.uploader), false)

	// No preview, but the attachment itself still succeeds
	require.NoError(t, err)
	assert.True(t, att.IsPDF)
	assert.Nil(t, att.FirstPagePreviewURL)
	assert.Empty(t, att.PreviewPublicID)
	assert.Equal(t, 1, f.mem.Len())
}

func TestUploadOne_DiskModeNonPDFSkipsPreview(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.uploader = media.NewDiskUploader(f.mem, t.TempDir())
	f.svc.previews = pngWritingGenerator{}

	fh := makeFileHeaders(t,
		testFile{field: fieldFiles, name: "bid-sheet.xlsx", contentType: "application/vnd.ms-excel", content: "cells"},
	)[fieldFiles][0]

	att, err := f.svc.uploadOne(context.Background(), fh, media.NewRollback(f.svc.uploader), false)

	require.NoError(t, err)
	assert.False(t, att.IsPDF)
	assert.Nil(t, att.FirstPagePreviewURL)
	assert.Empty(t, att.PreviewPublicID)
	assert.Equal(t, 1, f.mem.Len())
}

func TestGetByID_NotFound(t *testing.T) {
	f := newServiceFixture(t)

	f.pool.ExpectQuery(regexp.QuoteMeta(`FROM takeoffs t`)).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := f.svc.GetByID(context.Background(), generatedTakeoffID)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound, appErr.Code)
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestGetByID_ExpandsCreator(t *testing.T) {
	f := newServiceFixture(t)

	row := append(takeoffRow(`[]`, `[]`), "owner@example.com", "Ada", "Lovelace")
	f.pool.ExpectQuery(regexp.QuoteMeta(`FROM takeoffs t`)).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(testutil.TakeoffWithCreatorCols).AddRow(row...))

	result, err := f.svc.GetByID(context.Background(), generatedTakeoffID)

	require.NoError(t, err)
	require.NotNil(t, result.CreatedBy)
	assert.Equal(t, "owner@example.com", result.CreatedBy.Email)
	assert.Equal(t, "Ada", result.CreatedBy.FirstName)
	assert.Equal(t, "Lovelace", result.CreatedBy.LastName)
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestUpdateTakeoff_AppendsAttachments(t *testing.T) {
	f := newServiceFixture(t)

	fileGroups := makeFileHeaders(t,
		testFile{field: fieldFiles, name: "specs.xlsx", contentType: "application/vnd.ms-excel", content: "cells"},
	)

	existingFiles := `[{"filename":"old","originalName":"old.pdf","size":10,"publicId":"takeoffs/files/old","url":"memory://takeoffs/files/old","resourceType":"raw","uploadedAt":"2026-01-01T00:00:00Z","firstPagePreviewUrl":null,"isPdf":true}]`

	f.pool.ExpectBegin()
	existingRow := append(takeoffRow(existingFiles, `[]`), "owner@example.com", "Ada", "Lovelace")
	f.pool.ExpectQuery(regexp.QuoteMeta(`FROM takeoffs t`)).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(testutil.TakeoffWithCreatorCols).AddRow(existingRow...))

	updateArgs := make([]any, 15)
	for i := range updateArgs {
		updateArgs[i] = pgxmock.AnyArg()
	}
	updateArgs[1] = "Retitled package"

	// The handler returns what the DB reports back; echo two attachments
	mergedFiles := `[{"publicId":"takeoffs/files/old","isPdf":true},{"publicId":"takeoffs/files/new","isPdf":false}]`
	f.pool.ExpectQuery(regexp.QuoteMeta(`UPDATE takeoffs SET`)).
		WithArgs(updateArgs...).
		WillReturnRows(pgxmock.NewRows(testutil.TakeoffCols).AddRow(takeoffRow(mergedFiles, `[]`)...))
	f.pool.ExpectCommit()

	title := "Retitled package"
	result, err := f.svc.Update(context.Background(), testUser(), generatedTakeoffID, Payload{Title: &title}, fileGroups[fieldFiles], nil)

	require.NoError(t, err)
	// Appended, never replaced: the old attachment survives in front
	require.Len(t, result.Files, 2)
	assert.Equal(t, "takeoffs/files/old", result.Files[0].PublicID)

	assert.Equal(t, 1, f.mem.Len())
	assert.Equal(t, []string{events.ActionUpdated}, f.bus.actions(t))
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestUpdateTakeoff_NotFound(t *testing.T) {
	f := newServiceFixture(t)

	f.pool.ExpectBegin()
	f.pool.ExpectQuery(regexp.QuoteMeta(`FROM takeoffs t`)).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	f.pool.ExpectRollback()

	title := "anything"
	_, err := f.svc.Update(context.Background(), testUser(), generatedTakeoffID, Payload{Title: &title}, nil, nil)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound, appErr.Code)
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestDeleteTakeoff_RemovesRemoteObjectsBeforeRecord(t *testing.T) {
	f := newServiceFixture(t)

	// Seed the store with the record's remote objects
	ctx := context.Background()
	_, err := f.mem.Put(ctx, "takeoffs/files/plan", strings.NewReader("x"), 1, "application/pdf")
	require.NoError(t, err)
	_, err = f.mem.Put(ctx, "takeoffs/previews/plan", strings.NewReader("y"), 1, "image/png")
	require.NoError(t, err)

	filesJSON := `[{"publicId":"takeoffs/files/plan","previewPublicId":"takeoffs/previews/plan","isPdf":true}]`
	row := append(takeoffRow(filesJSON, `[]`), "owner@example.com", "Ada", "Lovelace")

	f.pool.ExpectQuery(regexp.QuoteMeta(`FROM takeoffs t`)).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(testutil.TakeoffWithCreatorCols).AddRow(row...))
	f.pool.ExpectExec(regexp.QuoteMeta(`DELETE FROM takeoffs`)).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	message, err := f.svc.Delete(ctx, testUser(), generatedTakeoffID)

	require.NoError(t, err)
	assert.Equal(t, "Takeoff deleted successfully", message)

	// Both the attachment and its preview object are gone
	assert.Equal(t, 0, f.mem.Len())
	assert.Equal(t, []string{events.ActionDeleted}, f.bus.actions(t))
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestDeleteTakeoff_NotFound(t *testing.T) {
	f := newServiceFixture(t)

	f.pool.ExpectQuery(regexp.QuoteMeta(`FROM takeoffs t`)).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := f.svc.Delete(context.Background(), testUser(), generatedTakeoffID)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound, appErr.Code)
	assert.Empty(t, f.bus.subjects)
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestListTakeoffs_MapsRows(t *testing.T) {
	f := newServiceFixture(t)

	rowA := append(takeoffRow(`[]`, `[]`), "owner@example.com", "Ada", "Lovelace")
	f.pool.ExpectQuery(regexp.QuoteMeta(`FROM takeoffs t`)).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(testutil.TakeoffWithCreatorCols).AddRow(rowA...))

	priceMin, priceMax := 100.0, 500.0
	results, err := f.svc.List(context.Background(), takeoffsdb.ListQuery{
		PriceMin: &priceMin,
		PriceMax: &priceMax,
		Sort:     takeoffsdb.SortPriceDesc,
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, generatedTakeoffID, results[0].ID)
	require.NotNil(t, results[0].CreatedBy)
	assert.Equal(t, "owner@example.com", results[0].CreatedBy.Email)
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestListTakeoffs_PastTheEndIsEmptyNotError(t *testing.T) {
	f := newServiceFixture(t)

	f.pool.ExpectQuery(regexp.QuoteMeta(`FROM takeoffs t`)).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(testutil.TakeoffWithCreatorCols))

	results, err := f.svc.List(context.Background(), takeoffsdb.ListQuery{Page: 99})

	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Len(t, results, 0)
	assert.NoError(t, f.pool.ExpectationsWereMet())
}
