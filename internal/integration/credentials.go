// Package integration resolves the ERP credentials used by every stage.
package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/replenishment/internal/shared"
)

// Credentials address the ERP.
type Credentials struct {
	Provider string
	BaseURL  string
	Token    string
	Source   string
}

// Credential sources.
const (
	SourceRecord = "record"
	SourceEnv    = "env"
)

// Record is a row of the integrations table.
type Record struct {
	Provider    string
	BaseURL     string
	AccessToken string
	Active      bool
}

// RecordStore loads integration records.
type RecordStore interface {
	Get(ctx context.Context, provider string) (Record, error)
}

// Resolver prefers an active integration record and falls back to environment values.
type Resolver struct {
	store    RecordStore
	provider string
	fallback Credentials
	sealer   *Sealer
}

// NewResolver constructs Resolver. store may be nil to use only the fallback.
func NewResolver(store RecordStore, provider string, fallback Credentials, sealer *Sealer) *Resolver {
	fallback.Provider = provider
	fallback.Source = SourceEnv
	return &Resolver{store: store, provider: provider, fallback: fallback, sealer: sealer}
}

// Resolve returns usable credentials or an error wrapping shared.ErrConfiguration.
func (r *Resolver) Resolve(ctx context.Context) (Credentials, error) {
	creds := r.fallback
	if r.store != nil {
		rec, err := r.store.Get(ctx, r.provider)
		switch {
		case err == nil && rec.Active:
			token, err := r.sealer.Open(rec.AccessToken)
			if err != nil {
				return Credentials{}, fmt.Errorf("%w: %v", shared.ErrConfiguration, err)
			}
			creds = Credentials{Provider: r.provider, BaseURL: rec.BaseURL, Token: token, Source: SourceRecord}
			if creds.BaseURL == "" {
				creds.BaseURL = r.fallback.BaseURL
			}
		case err == nil, errors.Is(err, shared.ErrNotFound):
		default:
			return Credentials{}, err
		}
	}
	creds.BaseURL = strings.TrimRight(strings.TrimSpace(creds.BaseURL), "/")
	creds.Token = strings.TrimSpace(creds.Token)
	if creds.BaseURL == "" {
		return Credentials{}, fmt.Errorf("%w: %s base url not set", shared.ErrConfiguration, r.provider)
	}
	if creds.Token == "" {
		return Credentials{}, fmt.Errorf("%w: %s access token not set", shared.ErrConfiguration, r.provider)
	}
	return creds, nil
}

// Repository reads integration records from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads the record of provider.
func (r *Repository) Get(ctx context.Context, provider string) (Record, error) {
	rec := Record{Provider: provider}
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(base_url, ''), COALESCE(access_token, ''), active FROM integrations WHERE provider = $1`,
		provider,
	).Scan(&rec.BaseURL, &rec.AccessToken, &rec.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("integration %s: %w", provider, shared.ErrNotFound)
	}
	if err != nil {
		return Record{}, shared.Persistence("integration: get record", err)
	}
	return rec, nil
}

// Upsert stores a record, sealing the token when a sealer is configured.
func (r *Repository) Upsert(ctx context.Context, rec Record, sealer *Sealer) error {
	token := rec.AccessToken
	if sealer != nil && token != "" && !strings.HasPrefix(token, SealedPrefix) {
		sealed, err := sealer.Seal(token)
		if err != nil {
			return err
		}
		token = sealed
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO integrations (provider, base_url, access_token, active)
VALUES ($1, $2, $3, $4)
ON CONFLICT (provider) DO UPDATE SET
	base_url = EXCLUDED.base_url,
	access_token = EXCLUDED.access_token,
	active = EXCLUDED.active`, rec.Provider, rec.BaseURL, token, rec.Active)
	return shared.Persistence("integration: upsert record", err)
}
