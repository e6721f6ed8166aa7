package datastore

import (
	"context"

	"github.com/becutandavid/podcasts-backend/internal/domain/episode"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/request"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/result"
)

// VectorStore is the episode vector datastore.
type VectorStore interface {
	// Upsert replaces vectors with the same ids (or everything when replaceAll)
	// and returns the ids of the inserted vectors.
	Upsert(ctx context.Context, docs []episode.Document, replaceAll bool) ([]string, error)
	// Query answers every request, one result per request in input order.
	Query(ctx context.Context, reqs []request.Request) ([]result.Query, error)
	// Delete removes vectors by id or, with deleteAll, the whole collection.
	Delete(ctx context.Context, ids []string, deleteAll bool) (int, error)
}

// Backend is the storage contract a vector index provider implements.
type Backend interface {
	Insert(ctx context.Context, vectors []episode.Vector) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
	DeleteAll(ctx context.Context) error
	Search(ctx context.Context, req request.Embedded) ([]episode.Scored, error)
}
