package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/nstogner/glow/pkg/domain"
)

// --- TemplateStore ---

func (s *Store) CreateTemplate(ctx context.Context, t *domain.EmailTemplate) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_templates (id, name, subject, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Subject, t.Body, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	t := &domain.EmailTemplate{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, subject, body, created_at, updated_at FROM email_templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("template", id)
	}
	return t, err
}

func (s *Store) ListTemplates(ctx context.Context) ([]domain.EmailTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, subject, body, created_at, updated_at FROM email_templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []domain.EmailTemplate{}
	for rows.Next() {
		var t domain.EmailTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *Store) UpdateTemplate(ctx context.Context, t *domain.EmailTemplate) error {
	t.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE email_templates SET name = ?, subject = ?, body = ?, updated_at = ? WHERE id = ?`,
		t.Name, t.Subject, t.Body, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound("template", t.ID)
	}
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM email_templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound("template", id)
	}
	return nil
}

// --- CampaignStore ---

const campaignColumns = `id, name, template_id, status, sent_count, created_at, sent_at`

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var sentAt sql.NullTime
	if err := row.Scan(&c.ID, &c.Name, &c.TemplateID, &c.Status, &c.SentCount, &c.CreatedAt, &sentAt); err != nil {
		return nil, err
	}
	if sentAt.Valid {
		c.SentAt = &sentAt.Time
	}
	return c, nil
}

func (s *Store) CreateCampaign(ctx context.Context, c *domain.Campaign) error {
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (`+campaignColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.TemplateID, c.Status, c.SentCount, c.CreatedAt, c.SentAt,
	)
	return err
}

func (s *Store) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(s.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("campaign", id)
	}
	return c, err
}

func (s *Store) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []domain.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

func (s *Store) MarkCampaignSent(ctx context.Context, id string, sentCount int, sentAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = ?, sent_count = ?, sent_at = ? WHERE id = ?`,
		domain.CampaignSent, sentCount, sentAt, id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound("campaign", id)
	}
	return nil
}
