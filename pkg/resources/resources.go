// Package resources manages offered and requested resource metadata, the
// contracts attached to them, and access to their backing data.
package resources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dsconnector/pkg/httpx"
	"dsconnector/pkg/odrl"
	"dsconnector/pkg/store"
)

var (
	ErrNotFound   = errors.New("resource not found")
	ErrNoContract = errors.New("resource has no contract")
)

type Kind string

const (
	KindOffered   Kind = "offered"
	KindRequested Kind = "requested"
)

type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
	Owner       string   `json:"owner,omitempty"`
	License     string   `json:"license,omitempty"`
	Version     string   `json:"version,omitempty"`
}

// Source points at a remote system serving a resource's payload.
type Source struct {
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type Resource struct {
	ID       uuid.UUID `json:"uuid"`
	Kind     Kind      `json:"kind"`
	Metadata Metadata  `json:"metadata"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

type resourceDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Service struct {
	DB       resourceDB
	Cache    store.Cache
	Client   *http.Client
	CacheTTL time.Duration
}

func NewService(db resourceDB, cache store.Cache, client *http.Client) *Service {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Service{DB: db, Cache: cache, Client: client, CacheTTL: 30 * time.Second}
}

func (s *Service) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS resources (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			keywords TEXT[] NOT NULL DEFAULT '{}',
			owner_uri TEXT NOT NULL DEFAULT '',
			license_uri TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL DEFAULT '',
			contract TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL DEFAULT '',
			source_url TEXT NOT NULL DEFAULT '',
			source_username TEXT NOT NULL DEFAULT '',
			source_password TEXT NOT NULL DEFAULT '',
			created TIMESTAMPTZ NOT NULL,
			modified TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure resources schema: %w", err)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, kind Kind, meta Metadata) (Resource, error) {
	now := time.Now().UTC()
	res := Resource{ID: uuid.New(), Kind: kind, Metadata: meta, Created: now, Modified: now}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO resources (id, kind, title, description, keywords, owner_uri, license_uri, version, created, modified)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, res.ID, string(kind), meta.Title, meta.Description, meta.Keywords, meta.Owner, meta.License, meta.Version, now, now)
	if err != nil {
		return Resource{}, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Resource, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, kind, title, description, keywords, owner_uri, license_uri, version, created, modified
		FROM resources WHERE id=$1
	`, id)
	res, err := scanResource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Resource{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return res, err
}

func (s *Service) List(ctx context.Context, kind Kind) ([]Resource, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, kind, title, description, keywords, owner_uri, license_uri, version, created, modified
		FROM resources WHERE kind=$1 ORDER BY created
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()
	var out []Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, meta Metadata) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE resources SET title=$2, description=$3, keywords=$4, owner_uri=$5, license_uri=$6, version=$7, modified=$8
		WHERE id=$1
	`, id, meta.Title, meta.Description, meta.Keywords, meta.Owner, meta.License, meta.Version, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update resource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM resources WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.invalidate(ctx, id)
	return nil
}

// SetContract attaches a usage-policy document to a resource. The text is
// stored verbatim so the consumer side sees exactly what the provider wrote.
func (s *Service) SetContract(ctx context.Context, id uuid.UUID, policyText string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE resources SET contract=$2, modified=$3 WHERE id=$1`,
		id, policyText, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set contract: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *Service) Contract(ctx context.Context, id uuid.UUID) (string, error) {
	var contract string
	row := s.DB.QueryRow(ctx, `SELECT contract FROM resources WHERE id=$1`, id)
	if err := row.Scan(&contract); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("get contract: %w", err)
	}
	if contract == "" {
		return "", fmt.Errorf("%w: %s", ErrNoContract, id)
	}
	return contract, nil
}

// ContractRules parses the attached contract and returns its rules, so
// callers can work with individual permissions and prohibitions without
// re-parsing the document themselves.
func (s *Service) ContractRules(ctx context.Context, id uuid.UUID) ([]odrl.Rule, error) {
	contract, err := s.Contract(ctx, id)
	if err != nil {
		return nil, err
	}
	policy, err := odrl.Parse([]byte(contract))
	if err != nil {
		return nil, fmt.Errorf("contract for %s: %w", id, err)
	}
	return policy.Rules, nil
}

func (s *Service) SetData(ctx context.Context, id uuid.UUID, data string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE resources SET data=$2, source_url='', modified=$3 WHERE id=$1`,
		id, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) SetSource(ctx context.Context, id uuid.UUID, src Source) error {
	tag, err := s.DB.Exec(ctx, `UPDATE resources SET source_url=$2, source_username=$3, source_password=$4, modified=$5 WHERE id=$1`,
		id, src.URL, src.Username, src.Password, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.invalidate(ctx, id)
	return nil
}

// Data returns the resource payload, from cache when fresh. Resources with a
// remote source are fetched over HTTP; everything else serves the stored blob.
func (s *Service) Data(ctx context.Context, id uuid.UUID) (string, error) {
	key := dataCacheKey(id)
	if s.Cache != nil {
		// Misses and cache failures both fall through to the backend.
		if cached, err := s.Cache.Get(ctx, key); err == nil {
			return cached, nil
		}
	}

	var data string
	var src Source
	row := s.DB.QueryRow(ctx, `SELECT data, source_url, source_username, source_password FROM resources WHERE id=$1`, id)
	if err := row.Scan(&data, &src.URL, &src.Username, &src.Password); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("get data: %w", err)
	}

	if src.URL != "" {
		_, body, err := httpx.Fetch(ctx, s.Client, src.URL, httpx.QueryInput{
			Username: src.Username,
			Password: src.Password,
		})
		if err != nil {
			return "", fmt.Errorf("fetch remote data for %s: %w", id, err)
		}
		data = string(body)
	}

	if s.Cache != nil {
		_ = s.Cache.Set(ctx, key, data, s.CacheTTL)
	}
	return data, nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.Cache != nil {
		_ = s.Cache.Del(ctx, dataCacheKey(id))
	}
}

func dataCacheKey(id uuid.UUID) string {
	return "connector:resource:data:" + id.String()
}

func scanResource(row pgx.Row) (Resource, error) {
	var res Resource
	var kind string
	if err := row.Scan(&res.ID, &kind, &res.Metadata.Title, &res.Metadata.Description,
		&res.Metadata.Keywords, &res.Metadata.Owner, &res.Metadata.License,
		&res.Metadata.Version, &res.Created, &res.Modified); err != nil {
		return Resource{}, err
	}
	res.Kind = Kind(kind)
	return res, nil
}
