package resources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dsconnector/pkg/odrl"
	"dsconnector/pkg/store"
)

type fakeDB struct {
	execErr   error
	execTag   string
	rowErr    error
	rowValues []any
	rowsSets  [][]any
	queryErr  error
	execSQL   []string
	execArgs  [][]any
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, append([]any(nil), args...))
	tag := f.execTag
	if tag == "" {
		tag = "UPDATE 1"
	}
	return pgconn.NewCommandTag(tag), f.execErr
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &fakeRow{values: f.rowValues, err: f.rowErr}
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{sets: f.rowsSets}, nil
}

type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assignAll(dest, r.values)
}

type fakeRows struct {
	sets [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.sets) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return assignAll(dest, r.sets[r.pos-1])
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func assignAll(dest, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan arity mismatch: got=%d want=%d", len(dest), len(values))
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *string:
			*d = values[i].(string)
		case *[]string:
			*d = values[i].([]string)
		case *uuid.UUID:
			*d = values[i].(uuid.UUID)
		case *time.Time:
			*d = values[i].(time.Time)
		default:
			return fmt.Errorf("unsupported scan dest %T", dest[i])
		}
	}
	return nil
}

func resourceRow(id uuid.UUID, kind, title string) []any {
	now := time.Now().UTC()
	return []any{id, kind, title, "a description", []string{"ids"}, "https://example.com", "", "v1.0", now, now}
}

func TestCreateResource(t *testing.T) {
	db := &fakeDB{execTag: "INSERT 0 1"}
	svc := NewService(db, nil, nil)
	res, err := svc.Create(context.Background(), KindOffered, Metadata{Title: "Weather data"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}
	if res.Kind != KindOffered {
		t.Fatalf("kind = %q", res.Kind)
	}
	if len(db.execArgs) != 1 || db.execArgs[0][2] != "Weather data" {
		t.Fatalf("unexpected exec args %v", db.execArgs)
	}
}

func TestGetResource(t *testing.T) {
	id := uuid.New()
	db := &fakeDB{rowValues: resourceRow(id, "offered", "Weather data")}
	svc := NewService(db, nil, nil)
	res, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.ID != id || res.Metadata.Title != "Weather data" || res.Kind != KindOffered {
		t.Fatalf("resource = %+v", res)
	}
}

func TestGetResourceNotFound(t *testing.T) {
	db := &fakeDB{rowErr: pgx.ErrNoRows}
	svc := NewService(db, nil, nil)
	_, err := svc.Get(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListResources(t *testing.T) {
	db := &fakeDB{rowsSets: [][]any{
		resourceRow(uuid.New(), "offered", "first"),
		resourceRow(uuid.New(), "offered", "second"),
	}}
	svc := NewService(db, nil, nil)
	list, err := svc.List(context.Background(), KindOffered)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[1].Metadata.Title != "second" {
		t.Fatalf("list = %+v", list)
	}
}

func TestUpdateResourceNotFound(t *testing.T) {
	db := &fakeDB{execTag: "UPDATE 0"}
	svc := NewService(db, nil, nil)
	err := svc.Update(context.Background(), uuid.New(), Metadata{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteResourceInvalidatesCache(t *testing.T) {
	id := uuid.New()
	cache := store.NewMemoryCache()
	_ = cache.Set(context.Background(), dataCacheKey(id), "stale", time.Minute)

	db := &fakeDB{execTag: "DELETE 1"}
	svc := NewService(db, cache, nil)
	if err := svc.Delete(context.Background(), id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cache.Get(context.Background(), dataCacheKey(id)); err == nil {
		t.Fatal("expected cache entry to be removed")
	}
}

func TestContractEmpty(t *testing.T) {
	db := &fakeDB{rowValues: []any{""}}
	svc := NewService(db, nil, nil)
	_, err := svc.Contract(context.Background(), uuid.New())
	if !errors.Is(err, ErrNoContract) {
		t.Fatalf("err = %v, want ErrNoContract", err)
	}
}

func TestContractRules(t *testing.T) {
	contract := `{
		"@type": "ContractOffer",
		"permission": [{"title": "Example Usage Policy", "action": "USE"}],
		"prohibition": [{"action": "USE"}]
	}`
	db := &fakeDB{rowValues: []any{contract}}
	svc := NewService(db, nil, nil)
	rules, err := svc.ContractRules(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("contract rules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("len(rules) = %d", len(rules))
	}
	if rules[0].Kind != odrl.KindPermission || rules[1].Kind != odrl.KindProhibition {
		t.Fatalf("rule kinds = %v, %v", rules[0].Kind, rules[1].Kind)
	}
}

func TestContractRulesParseError(t *testing.T) {
	db := &fakeDB{rowValues: []any{"not json"}}
	svc := NewService(db, nil, nil)
	_, err := svc.ContractRules(context.Background(), uuid.New())
	if !errors.Is(err, odrl.ErrParse) {
		t.Fatalf("err = %v, want odrl.ErrParse", err)
	}
}

func TestDataLocal(t *testing.T) {
	db := &fakeDB{rowValues: []any{"payload", "", "", ""}}
	cache := store.NewMemoryCache()
	svc := NewService(db, cache, nil)

	id := uuid.New()
	data, err := svc.Data(context.Background(), id)
	if err != nil {
		t.Fatalf("data: %v", err)
	}
	if data != "payload" {
		t.Fatalf("data = %q", data)
	}
	if cached, err := cache.Get(context.Background(), dataCacheKey(id)); err != nil || cached != "payload" {
		t.Fatalf("cache entry = %q, %v", cached, err)
	}
}

func TestDataCacheHitSkipsBackend(t *testing.T) {
	id := uuid.New()
	cache := store.NewMemoryCache()
	_ = cache.Set(context.Background(), dataCacheKey(id), "cached", time.Minute)

	db := &fakeDB{rowErr: errors.New("backend must not be hit")}
	svc := NewService(db, cache, nil)
	data, err := svc.Data(context.Background(), id)
	if err != nil {
		t.Fatalf("data: %v", err)
	}
	if data != "cached" {
		t.Fatalf("data = %q", data)
	}
}

func TestDataRemoteSource(t *testing.T) {
	var gotAuth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, "remote payload")
	}))
	defer backend.Close()

	db := &fakeDB{rowValues: []any{"", backend.URL, "alice", "secret"}}
	svc := NewService(db, nil, backend.Client())
	data, err := svc.Data(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("data: %v", err)
	}
	if data != "remote payload" {
		t.Fatalf("data = %q", data)
	}
	if gotAuth == "" {
		t.Fatal("expected basic auth header on remote fetch")
	}
}

func TestDataRemoteSourceFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer backend.Close()

	db := &fakeDB{rowValues: []any{"", backend.URL, "", ""}}
	svc := NewService(db, nil, backend.Client())
	if _, err := svc.Data(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error for upstream failure")
	}
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{execTag: "CREATE TABLE"}
	svc := NewService(db, nil, nil)
	if err := svc.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	db.execErr = errors.New("boom")
	if err := svc.EnsureSchema(context.Background()); err == nil {
		t.Fatal("expected schema error")
	}
}
