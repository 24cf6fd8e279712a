package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/edvin/backuprelay/internal/core"
	"github.com/edvin/backuprelay/internal/dbhttp"
)

// testEnv bundles the mocked backends and the service graph under test. The
// audit writer gets its own permissive mock so async inserts never collide
// with per-test expectations on the primary db mock.
type testEnv struct {
	db      *mockDB
	store   *mockStore
	auditDB *mockDB
	svcs    *core.Services
	audit   *core.AuditLogger
}

func newTestEnv() *testEnv {
	db := &mockDB{}
	store := &mockStore{}
	auditDB := &mockDB{}
	auditDB.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return([]dbhttp.Row{}, nil).Maybe()

	return &testEnv{
		db:      db,
		store:   store,
		auditDB: auditDB,
		svcs:    core.NewServices(db, store, zerolog.Nop()),
		audit:   core.NewAuditLogger(core.NewWebhookLogService(auditDB), zerolog.Nop()),
	}
}

func (e *testEnv) close() {
	e.audit.Close()
}

// newRequest creates a new HTTP request with an optional JSON body.
func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// newRequestRaw creates a new HTTP request with a raw string body.
func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// newUploadRequest builds a multipart request with one file part plus extra
// form fields.
func newUploadRequest(target string, fields map[string]string, filename, contentType string, data []byte) *http.Request {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		w.WriteField(k, v)
	}
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, _ := w.CreatePart(h)
		part.Write(data)
	}
	w.Close()

	r := httptest.NewRequest(http.MethodPost, target, &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())
	return r
}

// withChiURLParam adds a chi URL parameter to the request context.
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	return body
}

func decodeErrorResponse(rec *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	return body
}

func bearer(r *http.Request, token string) *http.Request {
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func sqlMatching(substrings ...string) any {
	return mock.MatchedBy(func(sql string) bool {
		for _, s := range substrings {
			if !strings.Contains(sql, s) {
				return false
			}
		}
		return true
	})
}
