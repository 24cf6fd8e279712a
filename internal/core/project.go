package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edvin/backuprelay/internal/dbhttp"
	"github.com/edvin/backuprelay/internal/ipaccess"
	"github.com/edvin/backuprelay/internal/model"
	"github.com/edvin/backuprelay/internal/platform"
)

// ErrDuplicateToken is surfaced when a webhook token collides with an
// existing project. The database's uniqueness constraint is the arbiter.
var ErrDuplicateToken = fmt.Errorf("webhook token already in use")

type ProjectService struct {
	db DB
}

func NewProjectService(db DB) *ProjectService {
	return &ProjectService{db: db}
}

const projectColumns = `id, name, description, webhook_token, allowed_ips, category_id, created_at, updated_at`

func projectFromRow(r dbhttp.Row) *model.Project {
	return &model.Project{
		ID:           r.String("id"),
		Name:         r.String("name"),
		Description:  r.StringPtr("description"),
		WebhookToken: r.String("webhook_token"),
		AllowedIPs:   r.StringPtr("allowed_ips"),
		CategoryID:   r.StringPtr("category_id"),
		CreatedAt:    r.Time("created_at"),
		UpdatedAt:    r.Time("updated_at"),
	}
}

func (s *ProjectService) GetByID(ctx context.Context, id string) (*model.Project, error) {
	rows, err := s.db.Execute(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return projectFromRow(rows[0]), nil
}

// GetByToken resolves a webhook token to its project. Rotated tokens stop
// resolving immediately.
func (s *ProjectService) GetByToken(ctx context.Context, token string) (*model.Project, error) {
	rows, err := s.db.Execute(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE webhook_token = ?`, token)
	if err != nil {
		return nil, fmt.Errorf("get project by token: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return projectFromRow(rows[0]), nil
}

// Create inserts a project with a freshly generated webhook token. The
// allowed-IP list is validated and normalized before storage; a duplicate
// token maps to ErrDuplicateToken so the handler can answer 409.
func (s *ProjectService) Create(ctx context.Context, name string, description *string, allowedIPs string) (*model.Project, error) {
	if invalid := ipaccess.ValidateAllowedIPs(allowedIPs); len(invalid) > 0 {
		return nil, NewError(400, "", fmt.Sprintf("invalid allowed_ips entries: %s", strings.Join(invalid, ", ")))
	}

	now := time.Now().UTC()
	project := &model.Project{
		ID:           platform.NewID(),
		Name:         name,
		Description:  description,
		WebhookToken: platform.NewToken(),
		AllowedIPs:   ipaccess.NormalizeAllowedIPs(allowedIPs),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.Execute(ctx,
		`INSERT INTO projects (id, name, description, webhook_token, allowed_ips, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project.ID, project.Name, project.Description, project.WebhookToken,
		project.AllowedIPs, sqlTime(project.CreatedAt), sqlTime(project.UpdatedAt),
	)
	if err != nil {
		if errors.Is(err, dbhttp.ErrUniqueViolation) {
			return nil, ErrDuplicateToken
		}
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return project, nil
}

// RotateToken replaces the project's webhook token, invalidating all
// existing callers immediately.
func (s *ProjectService) RotateToken(ctx context.Context, id string) (*model.Project, error) {
	project, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	project.WebhookToken = platform.NewToken()
	project.UpdatedAt = time.Now().UTC()

	_, err = s.db.Execute(ctx,
		`UPDATE projects SET webhook_token = ?, updated_at = ? WHERE id = ?`,
		project.WebhookToken, sqlTime(project.UpdatedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("rotate token for project %s: %w", id, err)
	}
	return project, nil
}
