package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"certmill/internal/httpkit"
	"certmill/internal/models"
	"certmill/internal/pkg/errors"
	"certmill/internal/template"
)

// TemplateRepository loads certificate templates. Definitions are stored as
// JSON in definition_json and validated on read, so a template edited into
// an invalid state fails the individual render instead of the process.
type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// TemplateByID returns the parsed template when it exists and belongs to the
// owner. Ownership mismatch is FORBIDDEN, not NOT_FOUND, so callers can tell
// the cases apart.
func (r *TemplateRepository) TemplateByID(ctx context.Context, templateID, ownerID string) (*models.Template, error) {
	var (
		definition []byte
		owner      string
	)
	err := r.db.QueryRow(ctx, `
		SELECT definition_json, owner_id
		FROM templates
		WHERE id=$1 AND deleted_at IS NULL
	`, templateID).Scan(&definition, &owner)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("template", templateID)
	}
	if httpkit.IsUndefinedTable(err) {
		return nil, errors.Wrap(err, "repositories.template", "templates table missing, run migrations")
	}
	if err != nil {
		return nil, errors.Wrap(err, "repositories.template", "template query failed")
	}
	if ownerID != "" && owner != ownerID {
		return nil, errors.New(errors.CodeForbidden, "template belongs to another owner").
			WithField("template_id", templateID)
	}

	tpl, err := template.Parse(definition)
	if err != nil {
		return nil, err
	}
	tpl.ID = templateID
	return tpl, nil
}
