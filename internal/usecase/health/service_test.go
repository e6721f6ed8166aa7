package health

import (
	"context"
	"errors"
	"testing"
)

type mockDBPinger struct{ err error }

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockEmbeddingChecker struct{ err error }

func (m *mockEmbeddingChecker) HealthCheck(_ context.Context) error { return m.err }

type mockCatalog struct{ err error }

func (m *mockCatalog) Count() (int, int, error) { return 3, 12, m.err }

func TestCheck(t *testing.T) {
	down := errors.New("down")

	tests := []struct {
		name      string
		db        DBPinger
		embedding EmbeddingChecker
		catalog   CatalogCounter
		want      Status
		checks    map[string]CheckResult
	}{
		{
			name: "all healthy",
			db:   &mockDBPinger{}, embedding: &mockEmbeddingChecker{}, catalog: &mockCatalog{},
			want:   Healthy,
			checks: map[string]CheckResult{"database": CheckOK, "embedding": CheckOK, "catalog": CheckOK},
		},
		{
			name: "database down",
			db:   &mockDBPinger{err: down}, embedding: &mockEmbeddingChecker{}, catalog: &mockCatalog{},
			want:   Unhealthy,
			checks: map[string]CheckResult{"database": CheckError, "embedding": CheckOK, "catalog": CheckOK},
		},
		{
			name: "embedding down",
			db:   &mockDBPinger{}, embedding: &mockEmbeddingChecker{err: down}, catalog: &mockCatalog{},
			want:   Degraded,
			checks: map[string]CheckResult{"database": CheckOK, "embedding": CheckError, "catalog": CheckOK},
		},
		{
			name: "database and catalog down",
			db:   &mockDBPinger{err: down}, embedding: &mockEmbeddingChecker{}, catalog: &mockCatalog{err: down},
			want:   Unhealthy,
			checks: map[string]CheckResult{"database": CheckError, "embedding": CheckOK, "catalog": CheckError},
		},
		{
			name:      "memory backend",
			embedding: &mockEmbeddingChecker{},
			want:      Healthy,
			checks:    map[string]CheckResult{"database": CheckSkipped, "embedding": CheckOK, "catalog": CheckSkipped},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.db, tt.embedding, tt.catalog).Check(context.Background())

			if r.Status != tt.want {
				t.Errorf("expected %q, got %q", tt.want, r.Status)
			}
			for name, want := range tt.checks {
				if r.Checks[name] != want {
					t.Errorf("%s: expected %q, got %q", name, want, r.Checks[name])
				}
			}
		})
	}
}

func TestCheck_Timeout(t *testing.T) {
	svc := New(pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), nil, nil)
	svc.timeout = 0

	if r := svc.Check(context.Background()); r.Checks["database"] != CheckError {
		t.Errorf("expected database error on timeout, got %q", r.Checks["database"])
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
