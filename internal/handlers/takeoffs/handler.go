package takeoffs

import (
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"takeoffs/internal/auth"
	"takeoffs/internal/database/postgresql/takeoffsdb"
	"takeoffs/internal/errors"
	"takeoffs/internal/json"

	"github.com/go-chi/chi/v5"
)

// Multipart field-group names and parse ceiling.
const (
	fieldFiles       = "files"
	fieldPdfPreviews = "pdfPreview"

	maxMultipartMemory = 32 << 20 // 32MB before parts spill to disk
)

type TakeoffsHandler struct {
	service TakeoffsService
}

func NewTakeoffsHandler(svc TakeoffsService) *TakeoffsHandler {
	return &TakeoffsHandler{service: svc}
}

func (h *TakeoffsHandler) CreateTakeoff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userInfo, err := auth.GetUserInfo(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Unauthorized access attempt", "error", err)
		errors.RespondError(w, r, errors.New(errors.ErrUnauthenticated, "Unauthorized access", err))
		return
	}

	payload, files, pdfPreviews, appErr := parseMultipart(r)
	if appErr != nil {
		errors.RespondError(w, r, appErr)
		return
	}

	takeoff, err := h.service.Create(ctx, userInfo, payload, files, pdfPreviews)
	if err != nil {
		errors.RespondError(w, r, err)
		return
	}

	json.Write(w, http.StatusCreated, takeoff)
}

func (h *TakeoffsHandler) ListTakeoffs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query, appErr := parseListQuery(r)
	if appErr != nil {
		errors.RespondError(w, r, appErr)
		return
	}

	takeoffs, err := h.service.List(ctx, query)
	if err != nil {
		slog.WarnContext(ctx, "Failed to list takeoffs", "error", err)
		errors.RespondError(w, r, err)
		return
	}

	json.Write(w, http.StatusOK, takeoffs)
}

func (h *TakeoffsHandler) GetTakeoffByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	takeoffID := chi.URLParam(r, "id")
	if takeoffID == "" {
		errors.RespondError(w, r, errors.New(errors.ErrNotFound, "Takeoff not found", nil))
		return
	}

	takeoff, err := h.service.GetByID(ctx, takeoffID)
	if err != nil {
		errors.RespondError(w, r, err)
		return
	}

	json.Write(w, http.StatusOK, takeoff)
}

func (h *TakeoffsHandler) UpdateTakeoff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	takeoffID := chi.URLParam(r, "id")

	userInfo, err := auth.GetUserInfo(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Unauthorized access attempt", "error", err)
		errors.RespondError(w, r, errors.New(errors.ErrUnauthenticated, "Unauthorized access", err))
		return
	}

	payload, files, pdfPreviews, appErr := parseMultipart(r)
	if appErr != nil {
		errors.RespondError(w, r, appErr)
		return
	}

	takeoff, err := h.service.Update(ctx, userInfo, takeoffID, payload, files, pdfPreviews)
	if err != nil {
		errors.RespondError(w, r, err)
		return
	}

	json.Write(w, http.StatusOK, takeoff)
}

func (h *TakeoffsHandler) DeleteTakeoff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	takeoffID := chi.URLParam(r, "id")

	userInfo, err := auth.GetUserInfo(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Unauthorized access attempt", "error", err)
		errors.RespondError(w, r, errors.New(errors.ErrUnauthenticated, "Unauthorized access", err))
		return
	}

	message, err := h.service.Delete(ctx, userInfo, takeoffID)
	if err != nil {
		errors.RespondError(w, r, err)
		return
	}

	json.Write(w, http.StatusOK, map[string]string{"message": message})
}

// parseMultipart reads the scalar fields and both file field-groups out of a
// create/update request body.
func parseMultipart(r *http.Request) (Payload, []*multipart.FileHeader, []*multipart.FileHeader, *errors.AppError) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return Payload{}, nil, nil, errors.Validation([]string{"request body must be multipart/form-data"})
	}

	form := r.MultipartForm

	payload := Payload{
		Title:          formString(form, "title"),
		Description:    formString(form, "description"),
		ProjectType:    formString(form, "projectType"),
		Size:           formString(form, "size"),
		ZipCode:        formString(form, "zipCode"),
		Address:        formString(form, "address"),
		Features:       formString(form, "features"),
		Specifications: formString(form, "specifications"),
		Tags:           formString(form, "tags"),
	}

	var msgs []string
	if raw := formString(form, "price"); raw != nil {
		price, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
		if err != nil {
			msgs = append(msgs, "price must be a number")
		} else {
			payload.Price = &price
		}
	}
	if raw := formString(form, "active"); raw != nil {
		active, err := strconv.ParseBool(strings.TrimSpace(*raw))
		if err != nil {
			msgs = append(msgs, "active must be a boolean")
		} else {
			payload.Active = &active
		}
	}
	if raw := formString(form, "expiresAt"); raw != nil {
		expiresAt, err := time.Parse(time.RFC3339, strings.TrimSpace(*raw))
		if err != nil {
			msgs = append(msgs, "expiresAt must be an RFC 3339 timestamp")
		} else {
			payload.ExpiresAt = &expiresAt
		}
	}
	if len(msgs) > 0 {
		return Payload{}, nil, nil, errors.Validation(msgs)
	}

	return payload, form.File[fieldFiles], form.File[fieldPdfPreviews], nil
}

func formString(form *multipart.Form, key string) *string {
	if vs, ok := form.Value[key]; ok && len(vs) > 0 {
		v := vs[0]
		return &v
	}
	return nil
}

// parseListQuery maps the URL query parameters onto the compound filter.
func parseListQuery(r *http.Request) (takeoffsdb.ListQuery, *errors.AppError) {
	q := r.URL.Query()

	query := takeoffsdb.ListQuery{
		ZipCode: q.Get("zipCode"),
		Size:    q.Get("size"),
		Search:  q.Get("search"),
		Sort:    q.Get("sort"),
		Page:    takeoffsdb.DefaultPage,
		Limit:   takeoffsdb.DefaultLimit,
	}

	// Comma-separated membership set for project type
	if raw := q.Get("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				query.Types = append(query.Types, t)
			}
		}
	}

	var msgs []string
	if raw := q.Get("priceMin"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			msgs = append(msgs, "priceMin must be a number")
		} else {
			query.PriceMin = &v
		}
	}
	if raw := q.Get("priceMax"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			msgs = append(msgs, "priceMax must be a number")
		} else {
			query.PriceMax = &v
		}
	}
	if raw := q.Get("page"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			query.Page = v
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			query.Limit = v
		}
	}
	if len(msgs) > 0 {
		return takeoffsdb.ListQuery{}, errors.Validation(msgs)
	}

	return query, nil
}
