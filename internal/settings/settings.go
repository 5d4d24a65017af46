package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	KeyWhatsAppTemplate = "whatsapp_template"
	KeyMessageTemplates = "message_templates"

	DefaultWhatsAppTemplate = "Hello {name}, calling from CRM regarding your inquiry."
)

var (
	ErrNotFound   = errors.New("settings: not found")
	ErrValidation = errors.New("settings: validation failed")
)

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{0,63}$`)

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Repository interface {
	Get(ctx context.Context, key string) (Setting, error)
	Put(ctx context.Context, s Setting) (Setting, error)
	List(ctx context.Context) ([]Setting, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service { return &Service{repo: repo, clock: time.Now} }

func (s *Service) Get(ctx context.Context, key string) (Setting, error) { return s.repo.Get(ctx, key) }

func (s *Service) List(ctx context.Context) ([]Setting, error) { return s.repo.List(ctx) }

func (s *Service) Put(ctx context.Context, key, value string) (Setting, error) {
	key = strings.TrimSpace(key)
	if !keyPattern.MatchString(key) {
		return Setting{}, fmt.Errorf("%w: invalid key %q", ErrValidation, key)
	}
	return s.repo.Put(ctx, Setting{Key: key, Value: value, UpdatedAt: s.clock().UTC()})
}

// WhatsAppTemplate returns the stored template or the built-in default.
func (s *Service) WhatsAppTemplate(ctx context.Context) (string, error) {
	st, err := s.repo.Get(ctx, KeyWhatsAppTemplate)
	if errors.Is(err, ErrNotFound) || (err == nil && strings.TrimSpace(st.Value) == "") {
		return DefaultWhatsAppTemplate, nil
	}
	if err != nil {
		return "", err
	}
	return st.Value, nil
}

func (s *Service) SetWhatsAppTemplate(ctx context.Context, tmpl string) (Setting, error) {
	if strings.TrimSpace(tmpl) == "" {
		return Setting{}, fmt.Errorf("%w: template cannot be empty", ErrValidation)
	}
	return s.Put(ctx, KeyWhatsAppTemplate, tmpl)
}

type MemoryRepo struct {
	mu   sync.Mutex
	data map[string]Setting
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{data: map[string]Setting{}} }

func (r *MemoryRepo) Get(ctx context.Context, key string) (Setting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[key]
	if !ok {
		return Setting{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) Put(ctx context.Context, s Setting) (Setting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[s.Key] = s
	return s, nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]Setting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Setting, 0, len(r.data))
	for _, s := range r.data {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Get(ctx context.Context, key string) (Setting, error) {
	var s Setting
	err := r.db.QueryRowContext(ctx, `SELECT key, value, updated_at FROM settings WHERE key = $1`, key).
		Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Setting{}, ErrNotFound
	}
	return s, err
}

func (r *PostgresRepo) Put(ctx context.Context, s Setting) (Setting, error) {
	const q = `
INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
RETURNING key, value, updated_at`
	var out Setting
	err := r.db.QueryRowContext(ctx, q, s.Key, s.Value, s.UpdatedAt).Scan(&out.Key, &out.Value, &out.UpdatedAt)
	return out, err
}

func (r *PostgresRepo) List(ctx context.Context) ([]Setting, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
