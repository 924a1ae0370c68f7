// Package postgres implements store.Store on a hosted PostgreSQL database
// through a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/store"
)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Verify interface compliance at compile time.
var _ store.Store = (*Store)(nil)

// New connects to databaseURL and creates missing tables.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Pool exposes the connection pool so the mail queue can share it.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_email ON conversations(email, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		parts JSONB NOT NULL DEFAULT '[]',
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages(conversation_id, seq);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		brand TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		price DOUBLE PRECISION NOT NULL DEFAULT 0,
		budget TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT 'unisex',
		skin_types TEXT[] NOT NULL DEFAULT '{}',
		concerns TEXT[] NOT NULL DEFAULT '{}',
		popularity INTEGER NOT NULL DEFAULT 0,
		url TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		skin_type TEXT NOT NULL DEFAULT '',
		concerns TEXT[] NOT NULL DEFAULT '{}',
		budget TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		age INTEGER NOT NULL DEFAULT 0,
		is_admin BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS email_templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS campaigns (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		template_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		sent_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		sent_at TIMESTAMPTZ
	);
	`)
	return err
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// --- ConversationStore ---

func (s *Store) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, email, title, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Email, c.Title, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, title, created_at, updated_at FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.Email, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("conversation", id)
	}
	return c, err
}

func (s *Store) ListConversations(ctx context.Context, email string) ([]domain.Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, email, title, created_at, updated_at
		 FROM conversations WHERE email = $1 ORDER BY updated_at DESC`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []domain.Conversation{}
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.Email, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("conversation", id)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	parts, err := json.Marshal(msg.Parts)
	if err != nil {
		return fmt.Errorf("encoding parts: %w", err)
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Locking the conversation row serializes appends to one conversation.
	tag, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = $1 WHERE id = $2`, msg.CreatedAt, msg.ConversationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("conversation", msg.ConversationID)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, parts, metadata, created_at, seq)
		 VALUES ($1, $2, $3, $4, $5, $6, $7,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = $2))`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, parts, metadata, msg.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, parts, metadata, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var role string
		var parts, metadata []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &parts, &metadata, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		if err := json.Unmarshal(parts, &m.Parts); err != nil {
			return nil, fmt.Errorf("decoding parts of message %s: %w", m.ID, err)
		}
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata of message %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) UpdateMessageMetadata(ctx context.Context, messageID string, metadata map[string]any) error {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE messages SET metadata = $1 WHERE id = $2`, encoded, messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("message", messageID)
	}
	return nil
}

// --- ProductStore ---

const productColumns = `id, name, brand, category, price, budget, gender, skin_types, concerns, popularity, url, image_url`

func (s *Store) FindProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.SkinType != "" {
		p := arg(f.SkinType)
		where = append(where, `EXISTS (SELECT 1 FROM unnest(skin_types) st WHERE st <> '' AND `+
			`(st ILIKE '%' || `+p+`::text || '%' OR `+p+`::text ILIKE '%' || st || '%'))`)
	}
	if len(f.Concerns) > 0 {
		lowered := make([]string, len(f.Concerns))
		for i, c := range f.Concerns {
			lowered[i] = strings.ToLower(c)
		}
		where = append(where, `(SELECT array_agg(lower(c)) FROM unnest(concerns) c) && `+arg(lowered)+`::text[]`)
	}
	if f.Budget != "" {
		where = append(where, `lower(budget) = lower(`+arg(f.Budget)+`)`)
	}
	if f.Gender != "" {
		where = append(where, `(lower(gender) = lower(`+arg(f.Gender)+`) OR lower(gender) = 'unisex')`)
	}
	if f.Category != "" {
		where = append(where, `lower(category) = lower(`+arg(f.Category)+`)`)
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY popularity DESC, name ASC`
	if f.Limit > 0 {
		query += ` LIMIT ` + arg(f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.Category, &p.Price, &p.Budget, &p.Gender,
			&p.SkinTypes, &p.Concerns, &p.Popularity, &p.URL, &p.ImageURL); err != nil {
			return nil, err
		}
		p.SkinTypes = nonNil(p.SkinTypes)
		p.Concerns = nonNil(p.Concerns)
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) UpsertProducts(ctx context.Context, products []domain.Product) (int, error) {
	batch := &pgx.Batch{}
	for _, p := range products {
		gender := p.Gender
		if gender == "" {
			gender = "unisex"
		}
		batch.Queue(
			`INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, brand = EXCLUDED.brand, category = EXCLUDED.category,
				price = EXCLUDED.price, budget = EXCLUDED.budget, gender = EXCLUDED.gender,
				skin_types = EXCLUDED.skin_types, concerns = EXCLUDED.concerns,
				popularity = EXCLUDED.popularity, url = EXCLUDED.url, image_url = EXCLUDED.image_url`,
			p.ID, p.Name, p.Brand, p.Category, p.Price, p.Budget, gender,
			nonNil(p.SkinTypes), nonNil(p.Concerns), p.Popularity, p.URL, p.ImageURL,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for _, p := range products {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return 0, fmt.Errorf("upserting product %s: %w", p.ID, err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(products), nil
}

// --- UserStore ---

const userColumns = `email, name, skin_type, concerns, budget, gender, age, is_admin, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	if err := row.Scan(&u.Email, &u.Name, &u.SkinType, &u.Concerns, &u.Budget, &u.Gender, &u.Age,
		&u.IsAdmin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Concerns = nonNil(u.Concerns)
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("user", email)
	}
	return u, err
}

func (s *Store) UpsertUser(ctx context.Context, u *domain.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name, skin_type = EXCLUDED.skin_type, concerns = EXCLUDED.concerns,
			budget = EXCLUDED.budget, gender = EXCLUDED.gender, age = EXCLUDED.age,
			is_admin = users.is_admin OR EXCLUDED.is_admin, updated_at = EXCLUDED.updated_at`,
		u.Email, u.Name, u.SkinType, nonNil(u.Concerns), u.Budget, u.Gender, u.Age,
		u.IsAdmin, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

// --- TemplateStore ---

func (s *Store) CreateTemplate(ctx context.Context, t *domain.EmailTemplate) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO email_templates (id, name, subject, body, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Subject, t.Body, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	t := &domain.EmailTemplate{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, subject, body, created_at, updated_at FROM email_templates WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("template", id)
	}
	return t, err
}

func (s *Store) ListTemplates(ctx context.Context) ([]domain.EmailTemplate, error) {
	rows, err := s.pool.Query(ctx,
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
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_templates SET name = $1, subject = $2, body = $3, updated_at = $4 WHERE id = $5`,
		t.Name, t.Subject, t.Body, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("template", t.ID)
	}
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM email_templates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("template", id)
	}
	return nil
}

// --- CampaignStore ---

const campaignColumns = `id, name, template_id, status, sent_count, created_at, sent_at`

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	if err := row.Scan(&c.ID, &c.Name, &c.TemplateID, &c.Status, &c.SentCount, &c.CreatedAt, &c.SentAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) CreateCampaign(ctx context.Context, c *domain.Campaign) error {
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO campaigns (`+campaignColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.TemplateID, c.Status, c.SentCount, c.CreatedAt, c.SentAt,
	)
	return err
}

func (s *Store) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(s.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("campaign", id)
	}
	return c, err
}

func (s *Store) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY created_at DESC`)
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
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET status = $1, sent_count = $2, sent_at = $3 WHERE id = $4`,
		domain.CampaignSent, sentCount, sentAt, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("campaign", id)
	}
	return nil
}
