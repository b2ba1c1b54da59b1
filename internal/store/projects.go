package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Zachkp/stats-consult/internal/errors"
)

// DefaultImagePosition centres the cover image crop.
const DefaultImagePosition = "50% 50%"

// Project is a portfolio entry.
type Project struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"` // markdown
	ImageURL    string   `json:"image_url,omitempty"`
	Gallery     []string `json:"gallery,omitempty"`
	Link        string   `json:"link,omitempty"`
	FileURL     string   `json:"file_url,omitempty"`

	// ImagePosition is the CSS object-position focus of the cover image.
	ImagePosition string    `json:"image_position"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProjectInput carries the editable fields of a project.
type ProjectInput struct {
	Title         string   `form:"title" validate:"required,max=200"`
	Description   string   `form:"description" validate:"max=20000"`
	ImageURL      string   `form:"image_url"`
	Gallery       []string `form:"gallery"`
	Link          string   `form:"link" validate:"omitempty,http_url"`
	FileURL       string   `form:"file_url"`
	ImagePosition string   `form:"image_position"`
}

// ProjectStore is the data-access contract the site uses for projects.
type ProjectStore interface {
	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	CreateProject(ctx context.Context, in ProjectInput) (*Project, error)
	UpdateProject(ctx context.Context, id string, in ProjectInput) (*Project, error)
	DeleteProject(ctx context.Context, id string) error
}

// Normalize trims fields, applies defaults and validates the input.
func (in *ProjectInput) Normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	in.Link = strings.TrimSpace(in.Link)
	in.FileURL = strings.TrimSpace(in.FileURL)

	gallery := make([]string, 0, len(in.Gallery))
	for _, g := range in.Gallery {
		if g = strings.TrimSpace(g); g != "" {
			gallery = append(gallery, g)
		}
	}
	in.Gallery = gallery

	err := validateStruct(in)
	pos, posErr := ParseImagePosition(in.ImagePosition)
	in.ImagePosition = pos
	if posErr == nil {
		return err
	}

	// Fold the position error into any tag failures.
	verr := errors.NewValidation(map[string]string{})
	if err != nil {
		if !errors.Is(err, errors.ErrValidation) {
			return err
		}
		verr = errors.As(err)
	}
	verr.Fields["image_position"] = posErr.Error()
	return verr
}

// ParseImagePosition validates an "X% Y%" crop focus, each axis 0–100.
// Empty input yields the default.
func ParseImagePosition(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultImagePosition, nil
	}
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return DefaultImagePosition, fmt.Errorf("image position must look like \"50%% 50%%\"")
	}
	out := make([]string, 2)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSuffix(p, "%"))
		if err != nil || !strings.HasSuffix(p, "%") || n < 0 || n > 100 {
			return DefaultImagePosition, fmt.Errorf("image position must look like \"50%% 50%%\"")
		}
		out[i] = strconv.Itoa(n) + "%"
	}
	return out[0] + " " + out[1], nil
}

const projectColumns = `id, title, description, image_url, gallery_json, link, file_url, image_position, created_at, updated_at`

// ListProjects returns every project, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("project", id)
	}
	return p, err
}

func (s *Store) CreateProject(ctx context.Context, in ProjectInput) (*Project, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	gallery, err := json.Marshal(in.Gallery)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gallery: %w", err)
	}
	now := s.now().Unix()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.Title, in.Description, in.ImageURL, string(gallery), in.Link, in.FileURL, in.ImagePosition, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}
	return s.GetProject(ctx, id)
}

func (s *Store) UpdateProject(ctx context.Context, id string, in ProjectInput) (*Project, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}
	gallery, err := json.Marshal(in.Gallery)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gallery: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET title = ?, description = ?, image_url = ?, gallery_json = ?, link = ?, file_url = ?, image_position = ?, updated_at = ?
		WHERE id = ?`,
		in.Title, in.Description, in.ImageURL, string(gallery), in.Link, in.FileURL, in.ImagePosition, s.now().Unix(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.NewNotFound("project", id)
	}
	return s.GetProject(ctx, id)
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("project", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*Project, error) {
	var (
		p                Project
		galleryJSON      string
		created, updated int64
	)
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.ImageURL, &galleryJSON,
		&p.Link, &p.FileURL, &p.ImagePosition, &created, &updated)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	if err := json.Unmarshal([]byte(galleryJSON), &p.Gallery); err != nil {
		return nil, fmt.Errorf("failed to decode gallery for project %s: %w", p.ID, err)
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}
