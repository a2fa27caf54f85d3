// Package pgstore implements store.Store on Postgres using pgx.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erpbridge/erpbridge/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pgstore: pool is required")
	}
	return &Store{pool: pool}, nil
}

func (s *Store) UpsertProvider(ctx context.Context, key, description string) (store.Provider, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO erps (id, key, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
			SET description = COALESCE(NULLIF(EXCLUDED.description, ''), erps.description)
		RETURNING id, key, description, created_at
	`, uuid.New(), store.NormalizeKey(key), description)

	var p store.Provider
	if err := row.Scan(&p.ID, &p.Key, &p.Description, &p.CreatedAt); err != nil {
		return store.Provider{}, mapErr(err)
	}
	return p, nil
}

func (s *Store) GetProviderByKey(ctx context.Context, key string) (store.Provider, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, key, description, created_at FROM erps WHERE key = $1`, store.NormalizeKey(key))

	var p store.Provider
	if err := row.Scan(&p.ID, &p.Key, &p.Description, &p.CreatedAt); err != nil {
		return store.Provider{}, mapErr(err)
	}
	return p, nil
}

const tenantColumns = `id, name, email, erp_id, created_at`

func scanTenant(row pgx.Row) (store.Tenant, error) {
	var t store.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Email, &t.ProviderID, &t.CreatedAt); err != nil {
		return store.Tenant{}, mapErr(err)
	}
	return t, nil
}

func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (store.Tenant, error) {
	return scanTenant(s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM companies WHERE id = $1`, id))
}

func (s *Store) FindTenantByEmail(ctx context.Context, providerID uuid.UUID, email string) (store.Tenant, error) {
	return scanTenant(s.pool.QueryRow(ctx, `
		SELECT `+tenantColumns+` FROM companies
		WHERE erp_id = $1 AND email = $2
	`, providerID, store.NormalizeEmail(email)))
}

func (s *Store) FindTenantByEmailDomain(ctx context.Context, providerID uuid.UUID, domain string) (store.Tenant, error) {
	return scanTenant(s.pool.QueryRow(ctx, `
		SELECT `+tenantColumns+` FROM companies
		WHERE erp_id = $1 AND split_part(email, '@', 2) = $2
		ORDER BY created_at
		LIMIT 1
	`, providerID, store.NormalizeEmail(domain)))
}

func (s *Store) CreateTenant(ctx context.Context, t store.Tenant) (store.Tenant, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO companies (id, name, email, erp_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING `+tenantColumns,
		t.ID, t.Name, store.NormalizeEmail(t.Email), t.ProviderID)

	created, err := scanTenant(row)
	if errors.Is(err, store.ErrNotFound) {
		// ON CONFLICT DO NOTHING returns no row.
		return store.Tenant{}, store.ErrConflict
	}
	return created, err
}

func (s *Store) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM companies
		WHERE id = $1
			AND NOT EXISTS (SELECT 1 FROM connectors WHERE company_id = $1)
	`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetTenant(ctx, id); err != nil {
		return err
	}
	return store.ErrConflict
}

const credentialColumns = `id, type, access_token, refresh_token, expires_at, company_id, erp_id, created_at, updated_at`

func scanCredential(row pgx.Row) (store.Credential, error) {
	var c store.Credential
	if err := row.Scan(&c.ID, &c.Type, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.TenantID, &c.ProviderID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return store.Credential{}, mapErr(err)
	}
	return c, nil
}

func (s *Store) CreateCredential(ctx context.Context, c store.Credential) (store.Credential, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return scanCredential(s.pool.QueryRow(ctx, `
		INSERT INTO connectors (id, type, access_token, refresh_token, expires_at, company_id, erp_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+credentialColumns,
		c.ID, c.Type, c.AccessToken, c.RefreshToken, c.ExpiresAt, c.TenantID, c.ProviderID))
}

func (s *Store) GetCredential(ctx context.Context, id uuid.UUID) (store.Credential, error) {
	return scanCredential(s.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM connectors WHERE id = $1`, id))
}

func (s *Store) FindCredentialByAccessToken(ctx context.Context, accessToken string) (store.Credential, error) {
	return scanCredential(s.pool.QueryRow(ctx, `
		SELECT `+credentialColumns+` FROM connectors
		WHERE access_token = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, accessToken))
}

func (s *Store) UpdateCredentialTokens(ctx context.Context, id uuid.UUID, tokens store.CredentialTokens) (store.Credential, error) {
	return scanCredential(s.pool.QueryRow(ctx, `
		UPDATE connectors
		SET access_token = $2,
			refresh_token = COALESCE($3, refresh_token),
			expires_at = $4,
			updated_at = now()
		WHERE id = $1
		RETURNING `+credentialColumns,
		id, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt))
}

func (s *Store) DeleteCredential(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM connectors WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateERPConfig(ctx context.Context, cfg store.ERPConfig) (store.ERPConfig, error) {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	settings, err := json.Marshal(nonNilSettings(cfg.Settings))
	if err != nil {
		return store.ERPConfig{}, fmt.Errorf("encode erp config settings: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO erp_configs (id, erp_id, company_id, active, settings)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, erp_id, company_id, active, settings, created_at
	`, cfg.ID, cfg.ProviderID, cfg.TenantID, cfg.Active, settings)
	return scanERPConfig(row)
}

func (s *Store) GetERPConfig(ctx context.Context, id uuid.UUID) (store.ERPConfig, error) {
	return scanERPConfig(s.pool.QueryRow(ctx, `
		SELECT id, erp_id, company_id, active, settings, created_at FROM erp_configs WHERE id = $1
	`, id))
}

func scanERPConfig(row pgx.Row) (store.ERPConfig, error) {
	var cfg store.ERPConfig
	var settings []byte
	if err := row.Scan(&cfg.ID, &cfg.ProviderID, &cfg.TenantID, &cfg.Active, &settings, &cfg.CreatedAt); err != nil {
		return store.ERPConfig{}, mapErr(err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &cfg.Settings); err != nil {
			return store.ERPConfig{}, fmt.Errorf("decode erp config settings: %w", err)
		}
	}
	return cfg, nil
}

const moduleColumns = `m.id, m.erp_config_id, m.module, m.enabled, m.display_name, m.endpoint, m.field_mappings, m.filters, m.sort_order`

func scanModule(row pgx.Row) (store.ModuleConfig, error) {
	var m store.ModuleConfig
	var mappings []byte
	if err := row.Scan(&m.ID, &m.ERPConfigID, &m.Module, &m.Enabled, &m.DisplayName, &m.Endpoint, &mappings, &m.Filters, &m.SortOrder); err != nil {
		return store.ModuleConfig{}, mapErr(err)
	}
	if len(mappings) > 0 {
		if err := json.Unmarshal(mappings, &m.FieldMappings); err != nil {
			return store.ModuleConfig{}, fmt.Errorf("decode field mappings: %w", err)
		}
	}
	return m, nil
}

func (s *Store) FindModuleConfig(ctx context.Context, q store.ModuleQuery) (store.ModuleConfig, error) {
	return scanModule(s.pool.QueryRow(ctx, `
		SELECT `+moduleColumns+`
		FROM module_configs m
		JOIN erp_configs c ON c.id = m.erp_config_id
		WHERE c.erp_id = $1
			AND c.company_id IS NOT DISTINCT FROM $2
			AND c.active
			AND m.enabled
			AND m.module = $3
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT 1
	`, q.ProviderID, q.TenantID, store.NormalizeKey(q.Module)))
}

func (s *Store) ListModuleConfigs(ctx context.Context, providerID uuid.UUID, tenantID *uuid.UUID) ([]store.ModuleConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+moduleColumns+`
		FROM module_configs m
		JOIN erp_configs c ON c.id = m.erp_config_id
		WHERE c.erp_id = $1
			AND c.company_id IS NOT DISTINCT FROM $2
			AND c.active
		ORDER BY m.sort_order, m.module
	`, providerID, tenantID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []store.ModuleConfig
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceModuleConfigs(ctx context.Context, erpConfigID uuid.UUID, modules []store.ModuleConfig) ([]store.ModuleConfig, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM erp_configs WHERE id = $1)`, erpConfigID).Scan(&exists); err != nil {
		return nil, mapErr(err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM module_configs WHERE erp_config_id = $1`, erpConfigID); err != nil {
		return nil, mapErr(err)
	}

	out := make([]store.ModuleConfig, 0, len(modules))
	for _, m := range modules {
		mappings, err := json.Marshal(nonNilMappings(m.FieldMappings))
		if err != nil {
			return nil, fmt.Errorf("encode field mappings for %s: %w", m.Module, err)
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO module_configs AS m (id, erp_config_id, module, enabled, display_name, endpoint, field_mappings, filters, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+moduleColumns,
			uuid.New(), erpConfigID, store.NormalizeKey(m.Module), m.Enabled, m.DisplayName, m.Endpoint, mappings, m.Filters, m.SortOrder)
		created, err := scanModule(row)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func nonNilSettings(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilMappings(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
