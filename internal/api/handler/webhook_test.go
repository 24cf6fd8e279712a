package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backuprelay/internal/dbhttp"
)

func newWebhookHandler(e *testEnv) *Webhook {
	return NewWebhook(e.svcs.Project, e.svcs.Backup, e.svcs.Ingest, e.audit, "CF-Connecting-IP")
}

func projectRow(id, token string, allowedIPs any) dbhttp.Row {
	return dbhttp.Row{
		"id":            id,
		"name":          "Acme CMS",
		"description":   nil,
		"webhook_token": token,
		"allowed_ips":   allowedIPs,
		"category_id":   nil,
		"created_at":    "2026-01-02T03:04:05.000Z",
		"updated_at":    "2026-01-02T03:04:05.000Z",
	}
}

func backupRow(id, projectID string) dbhttp.Row {
	return dbhttp.Row{
		"id":             id,
		"project_id":     projectID,
		"environment":    "prod",
		"sender_ip":      "203.0.113.7",
		"tag":            nil,
		"file_key":       "backups/" + projectID + "/ts.zip",
		"json_key":       nil,
		"file_size":      float64(2048),
		"is_single_json": float64(0),
		"json_extracted": float64(0),
		"created_at":     "2026-01-02T03:04:05.000Z",
		"updated_at":     "2026-01-02T03:04:05.000Z",
	}
}

func expectProjectByToken(e *testEnv, token string, row dbhttp.Row) {
	e.db.On("Execute", mock.Anything, sqlMatching("webhook_token = ?"), []any{token}).
		Return([]dbhttp.Row{row}, nil)
}

// ---------- Head ----------

func TestWebhookHead_Success(t *testing.T) {
	e := newTestEnv()
	defer e.close()
	h := newWebhookHandler(e)

	expectProjectByToken(e, "tok", projectRow("proj-1", "tok", nil))

	rec := httptest.NewRecorder()
	r := bearer(httptest.NewRequest(http.MethodHead, "/webhook/proj-1", nil), "tok")
	h.Head(rec, withChiURLParam(r, "projectID", "proj-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme CMS", rec.Header().Get("X-Project-Name"))
}

func TestWebhookHead_MissingAuth(t *testing.T) {
	e := newTestEnv()
	defer e.close()
	h := newWebhookHandler(e)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodHead, "/webhook/proj-1", nil)
	h.Head(rec, withChiURLParam(r, "projectID", "proj-1"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookHead_UnknownToken(t *testing.T) {
	e := newTestEnv()
	defer e.close()
	h := newWebhookHandler(e)

	e.db.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return([]dbhttp.Row{}, nil)

	rec := httptest.NewRecorder()
	r := bearer(httptest.NewRequest(http.MethodHead, "/webhook/proj-1", nil), "bad")
	h.Head(rec, withChiURLParam(r, "projectID", "proj-1"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookHead_ProjectMismatch(t *testing.T) {
	e := newTestEnv()
	defer e.close()
	h := newWebhookHandler(e)

	expectProjectByToken(e, "tok", projectRow("proj-2", "tok", nil))

	rec := httptest.NewRecorder()
	r := bearer(httptest.NewRequest(http.MethodHead, "/webhook/proj-1", nil), "tok")
	h.Head(rec, withChiURLParam(r, "projectID", "proj-1"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookHead_IPBlocked(t *testing.T) {
	e := newTestEnv()
	defer e.close()
	h := newWebhookHandler(e)

	expectProjectByToken(e, "tok", projectRow("proj-1", "tok", "10.0.0.0/8"))

	rec := httptest.NewRecorder()
	r := bearer(httptest.NewRequest(http.MethodHead, "/webhook/proj-1", nil), "tok")
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	h.Head(rec, withChiURLParam(r, "projectID", "proj-1"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookHead_IPAllowed(t *testing.T) {
	e := newTestEnv()
	defer e.close()
	h := newWebhookHandler(e)

	expectProjectByToken(e, "tok", projectRow("proj-1", "tok", "10.0.0.0/8"))

	rec := httptest.NewRecorder()
	r := bearer(httptest.NewRequest(http.MethodHead, "/webhook/proj-1", nil), "tok")
	r.Header.Set("X-Forwarded-For", "10.1.2.3")
	h.Head(rec, withChiURLParam(r, "projectID", "proj-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
}

// ---------- Status ----------

func TestWebhookStatus_Success(t *testing.T) {
	e := newTestEnv()
	defer e.close()
	h := newWebhookHandler(e)

	expectProjectByToken(e, "tok", projectRow("proj-1", "tok", nil))
	e.db.On("Execute", mock.Anything, sqlMatching("COUNT(*)"), []any{"proj-1"}).
		Return([]dbhttp.Row{{"n": float64(7)}}, nil)
	e.db.On("Execute", mock.Anything, sqlMatching("ORDER BY created_at DESC"), []any{"proj-1", 5}).
		Return([]dbhttp.Row{backupRow("bak-1", "proj-1")}, nil)

	rec := httptest.NewRecorder()
	r := bearer(httptest.NewRequest(http.MethodGet, "/webhook/proj-1", nil), "tok")
	h.Status(rec, withChiURLParam(r, "projectID", "proj-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(rec)
	assert.Equal(t, "Acme CMS", body["project_name"])
	assert.Equal(t, float64(7), body["total_backups"])
	recent := body["recent_backups"].([]any)
	require.Len(t, recent, 1)

	// Safe fields only: no storage keys or sender IP in the summary.
	first := recent[0].(map[string]any)
	assert.NotContains(t, first, "file_key")
	assert.NotContains(t, first, "sender_ip")
}

func TestWebhookStatus_InvalidEnvironmentFilter(t *testing.T) {
	e := newTestEnv()
	defer e.close()
	h := newWebhookHandler(e)

	expectProjectByToken(e, "tok", projectRow("proj-1", "tok", nil))

	rec := httptest.NewRecorder()
	r := bearer(httptest.NewRequest(http.MethodGet, "/webhook/proj-1?environment=production", nil), "tok")
	h.Status(rec, withChiURLParam(r, "projectID", "proj-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---------- Push ----------

func TestWebhookPush_JSONSuccess(t *testing.T) {
	e := newTestEnv()
	defer e.close()
	h := newWebhookHandler(e)

	expectProjectByToken(e, "tok", projectRow("proj-1", "tok", nil))
	e.store.On("Put", mock.Anything, mock.Anything, mock.Anything, "application/json").
		Return(nil).Twice()
	e.db.On("Execute", mock.Anything, sqlMatching("INSERT INTO backups"), mock.Anything).
		Return([]dbhttp.Row{}, nil)

	r := newUploadRequest("/webhook/proj-1", map[string]string{"environment": "prod"},
		"dump.json", "application/json", []byte(`{"posts": []}`))
	rec := httptest.NewRecorder()
	h.Push(rec, withChiURLParam(bearer(r, "tok"), "projectID", "proj-1"))

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(rec)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "proj-1", body["project_id"])
	assert.Equal(t, float64(13), body["file_size"])
	e.store.AssertExpectations(t)
}

func TestWebhookPush_NoFile(t *testing.T) {
	e := newTestEnv()
	defer e.close()
	h := newWebhookHandler(e)

	expectProjectByToken(e, "tok", projectRow("proj-1", "tok", nil))

	r := newUploadRequest("/webhook/proj-1", nil, "", "", nil)
	rec := httptest.NewRecorder()
	h.Push(rec, withChiURLParam(bearer(r, "tok"), "projectID", "proj-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeErrorResponse(rec)["error"], "no file uploaded")
}

func TestWebhookPush_MalformedBodyIsNotFileMissing(t *testing.T) {
	e := newTestEnv()
	h := newWebhookHandler(e)

	expectProjectByToken(e, "tok", projectRow("proj-1", "tok", nil))

	// A part that never reaches its closing boundary.
	body := "--xyz\r\nContent-Disposition: form-data; name=\"file\"; filename=\"dump.json\"\r\n\r\n{"
	r := httptest.NewRequest(http.MethodPost, "/webhook/proj-1", strings.NewReader(body))
	r.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	rec := httptest.NewRecorder()
	h.Push(rec, withChiURLParam(bearer(r, "tok"), "projectID", "proj-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEqual(t, "no file uploaded", decodeErrorResponse(rec)["error"])

	// The audit entry must carry no error code: file_missing would be a lie.
	e.close()
	require.NotEmpty(t, e.auditDB.Calls)
	for _, call := range e.auditDB.Calls {
		params := call.Arguments.Get(2).([]any)
		assert.Nil(t, params[7])
	}
}

func TestWebhookPush_UnsupportedType(t *testing.T) {
	e := newTestEnv()
	defer e.close()
	h := newWebhookHandler(e)

	expectProjectByToken(e, "tok", projectRow("proj-1", "tok", nil))

	r := newUploadRequest("/webhook/proj-1", nil, "notes.txt", "text/plain", []byte("hello"))
	rec := httptest.NewRecorder()
	h.Push(rec, withChiURLParam(bearer(r, "tok"), "projectID", "proj-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookPush_BadEnvironment(t *testing.T) {
	e := newTestEnv()
	defer e.close()
	h := newWebhookHandler(e)

	expectProjectByToken(e, "tok", projectRow("proj-1", "tok", nil))

	r := newUploadRequest("/webhook/proj-1", map[string]string{"environment": "qa"},
		"dump.json", "application/json", []byte("{}"))
	rec := httptest.NewRecorder()
	h.Push(rec, withChiURLParam(bearer(r, "tok"), "projectID", "proj-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
