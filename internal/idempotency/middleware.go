package idempotency

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"takeoffs/internal/errors"
)

type IdempotencyStore interface {
	Lock(ctx context.Context, key string) (bool, error)
	GetResponse(ctx context.Context, key string) (*Response, bool, error)
	SaveResponse(ctx context.Context, key string, resp Response) error
	Delete(ctx context.Context, key string) error
}

// Response is a captured HTTP response, replayed for duplicate keys.
type Response struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

var ignoredHeaders = map[string]bool{
	"Access-Control-Allow-Origin":      true,
	"Access-Control-Allow-Methods":     true,
	"Access-Control-Allow-Headers":     true,
	"Access-Control-Allow-Credentials": true,
	"Access-Control-Expose-Headers":    true,
	"Date":                             true,
	"Content-Length":                   true,
	"Connection":                       true,
}

// Idempotency dedupes mutating requests that carry an Idempotency-Key header.
// Exactly one request per key executes; concurrent duplicates get a 409 and
// later duplicates get the recorded response replayed.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Atomic SETNX: only one request per key passes this line.
			acquired, err := store.Lock(ctx, key)
			if err != nil {
				// Fail closed for safety
				errors.RespondError(w, r, errors.New(errors.ErrInternal, "Idempotency service unavailable", err))
				return
			}

			if !acquired {
				cachedResp, found, err := store.GetResponse(ctx, key)
				if err != nil {
					errors.RespondError(w, r, errors.New(errors.ErrInternal, "Internal cache error", err))
					return
				}

				if found && cachedResp != nil {
					// A finished response exists: replay it.
					for k, v := range cachedResp.Headers {
						if ignoredHeaders[k] {
							continue
						}
						for _, val := range v {
							w.Header().Add(k, val)
						}
					}
					w.Header().Set("X-Idempotency-Hit", "true")
					w.WriteHeader(cachedResp.StatusCode)
					w.Write(cachedResp.Body)
					return
				}

				// Key exists with no response yet: a concurrent request is
				// still running.
				w.Header().Set("Retry-After", "1")
				errors.RespondError(w, r, errors.New(errors.ErrConflict, "Request is currently being processed", nil))
				return
			}

			// Lock acquired: run the real handler and record what it writes.
			recorder := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}

			next.ServeHTTP(recorder, r)

			// Server and auth errors release the lock so the client can
			// retry: the same key may come back with valid credentials.
			if retryableStatus(recorder.statusCode) {
				slog.WarnContext(ctx, "Idempotency: retryable failure, releasing lock", "key", key, "status", recorder.statusCode)
				_ = store.Delete(context.Background(), key)
				return
			}

			// Success and client errors are saved permanently, on a detached
			// context so client disconnects don't lose the record.
			go func(k string, status int, headers http.Header, body []byte) {
				saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				cleanHeaders := make(http.Header)
				for k, v := range headers {
					if !ignoredHeaders[k] {
						cleanHeaders[k] = v
					}
				}

				resp := Response{
					StatusCode: status,
					Headers:    cleanHeaders,
					Body:       body,
				}

				// Overwrites the "processing" lock with the real data
				if err := store.SaveResponse(saveCtx, k, resp); err != nil {
					slog.ErrorContext(saveCtx, "Failed to save idempotency response", "error", err)
				}
			}(key, recorder.statusCode, recorder.Header(), recorder.body.Bytes())
		})
	}
}

// retryableStatus reports whether a response must not be recorded for the
// key. Server errors, throttling, and auth rejections are all outcomes a
// retry with the same key can legitimately change.
func retryableStatus(code int) bool {
	return code >= 500 ||
		code == http.StatusTooManyRequests ||
		code == http.StatusUnauthorized ||
		code == http.StatusForbidden
}

// responseRecorder copies the response stream as it goes out.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
