package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backuprelay/internal/dbhttp"
)

func projectRow(id, token string) dbhttp.Row {
	return dbhttp.Row{
		"id":            id,
		"name":          "Acme CMS",
		"description":   nil,
		"webhook_token": token,
		"allowed_ips":   nil,
		"category_id":   nil,
		"created_at":    "2026-01-02T03:04:05.000Z",
		"updated_at":    "2026-01-02T03:04:05.000Z",
	}
}

// ---------- GetByID ----------

func TestProjectService_GetByID_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewProjectService(db)
	ctx := context.Background()

	db.On("Execute", ctx, mock.AnythingOfType("string"), []any{"proj-1"}).
		Return([]dbhttp.Row{projectRow("proj-1", "tok")}, nil)

	p, err := svc.GetByID(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "proj-1", p.ID)
	assert.Equal(t, "Acme CMS", p.Name)
	assert.Nil(t, p.AllowedIPs)
	db.AssertExpectations(t)
}

func TestProjectService_GetByID_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewProjectService(db)
	ctx := context.Background()

	db.On("Execute", ctx, mock.AnythingOfType("string"), []any{"missing"}).
		Return([]dbhttp.Row{}, nil)

	_, err := svc.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// ---------- GetByToken ----------

func TestProjectService_GetByToken_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewProjectService(db)
	ctx := context.Background()

	db.On("Execute", ctx, mock.AnythingOfType("string"), []any{"secret-token"}).
		Return([]dbhttp.Row{projectRow("proj-1", "secret-token")}, nil)

	p, err := svc.GetByToken(ctx, "secret-token")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", p.WebhookToken)
}

func TestProjectService_GetByToken_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewProjectService(db)
	ctx := context.Background()

	db.On("Execute", ctx, mock.AnythingOfType("string"), []any{"rotated-away"}).
		Return([]dbhttp.Row{}, nil)

	_, err := svc.GetByToken(ctx, "rotated-away")
	assert.ErrorIs(t, err, ErrNotFound)
}

// ---------- Create ----------

func TestProjectService_Create_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewProjectService(db)
	ctx := context.Background()

	db.On("Execute", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return([]dbhttp.Row{}, nil)

	p, err := svc.Create(ctx, "Acme CMS", nil, "10.0.0.0/8, 192.168.1.5")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Len(t, p.WebhookToken, 64)
	require.NotNil(t, p.AllowedIPs)
	assert.Equal(t, "10.0.0.0/8,192.168.1.5", *p.AllowedIPs)
	db.AssertExpectations(t)
}

func TestProjectService_Create_InvalidAllowedIPs(t *testing.T) {
	db := &mockDB{}
	svc := NewProjectService(db)
	ctx := context.Background()

	_, err := svc.Create(ctx, "Acme CMS", nil, "10.0.0.0/8, not-an-ip")
	require.Error(t, err)

	var coreErr *Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, 400, coreErr.Status)
	assert.Contains(t, coreErr.Message, "not-an-ip")
	db.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestProjectService_Create_DuplicateToken(t *testing.T) {
	db := &mockDB{}
	svc := NewProjectService(db)
	ctx := context.Background()

	db.On("Execute", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, fmt.Errorf("execute: %w", dbhttp.ErrUniqueViolation))

	_, err := svc.Create(ctx, "Acme CMS", nil, "")
	assert.ErrorIs(t, err, ErrDuplicateToken)
}

// ---------- RotateToken ----------

func TestProjectService_RotateToken_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewProjectService(db)
	ctx := context.Background()

	db.On("Execute", ctx, mock.AnythingOfType("string"), []any{"proj-1"}).
		Return([]dbhttp.Row{projectRow("proj-1", "old-token")}, nil).Once()
	db.On("Execute", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return([]dbhttp.Row{}, nil).Once()

	p, err := svc.RotateToken(ctx, "proj-1")
	require.NoError(t, err)
	assert.NotEqual(t, "old-token", p.WebhookToken)
	assert.Len(t, p.WebhookToken, 64)
	db.AssertExpectations(t)
}

func TestProjectService_RotateToken_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewProjectService(db)
	ctx := context.Background()

	db.On("Execute", ctx, mock.AnythingOfType("string"), []any{"missing"}).
		Return([]dbhttp.Row{}, nil)

	_, err := svc.RotateToken(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectService_RotateToken_UpdateError(t *testing.T) {
	db := &mockDB{}
	svc := NewProjectService(db)
	ctx := context.Background()

	db.On("Execute", ctx, mock.AnythingOfType("string"), []any{"proj-1"}).
		Return([]dbhttp.Row{projectRow("proj-1", "old-token")}, nil).Once()
	db.On("Execute", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("db down")).Once()

	_, err := svc.RotateToken(ctx, "proj-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rotate token")
}
