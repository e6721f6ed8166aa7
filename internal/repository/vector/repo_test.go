package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/db"
	"github.com/becutandavid/podcasts-backend/internal/db/redis"
	"github.com/becutandavid/podcasts-backend/internal/domain"
	"github.com/becutandavid/podcasts-backend/internal/domain/episode"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/filter"
	"github.com/becutandavid/podcasts-backend/internal/domain/search/request"
)

const testDim = 4

// --- fake store ---

type fakeStore struct {
	info       *db.IndexInfo
	infoErr    error
	createErrs map[db.VectorAlgorithm]error
	hsetErrAt  int // 1-based batch index that fails, 0 = never
	textSearch bool

	created  []*db.IndexDefinition
	dropped  int
	hsets    [][]db.HashSetItem
	dels     [][]string
	scanKeys []string
	knn      *db.KNNQuery
	entries  []db.SearchEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{infoErr: db.ErrIndexNotFound, createErrs: map[db.VectorAlgorithm]error{}}
}

func (f *fakeStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	f.hsets = append(f.hsets, items)
	if f.hsetErrAt == len(f.hsets) {
		return errors.New("connection reset")
	}
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) (int, error) {
	f.dels = append(f.dels, keys)
	return len(keys), nil
}

func (f *fakeStore) Scan(context.Context, string) ([]string, error) {
	return f.scanKeys, nil
}

func (f *fakeStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	f.created = append(f.created, def)
	return f.createErrs[def.Vector().VectorAlgo]
}

func (f *fakeStore) DropIndex(context.Context, string) error {
	f.dropped++
	return nil
}

func (f *fakeStore) IndexInfo(context.Context, string) (*db.IndexInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeStore) SupportsTextSearch(context.Context) bool { return f.textSearch }

func (f *fakeStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	f.knn = q
	return &db.SearchResult{Total: len(f.entries), Entries: f.entries}, nil
}

// rejected is what db/redis returns when the server refuses an index definition.
func rejected(msg string) error {
	return &db.Error{Op: db.OpCreateIndex, Err: fmt.Errorf("%w: %s", db.ErrIndexRejected, msg)}
}

func testConfig() Config {
	return Config{KeyPrefix: "podcasts:", Collection: "episodes", Dimensions: testDim}
}

func openFake(t *testing.T, s *fakeStore, cfg Config) *Repo {
	t.Helper()
	r, err := Open(context.Background(), s, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r
}

func testVector(t *testing.T, id string, podcastID int64, category string) episode.Vector {
	t.Helper()
	md, err := episode.NewMetadata(podcastID, category, "en")
	if err != nil {
		t.Fatalf("NewMetadata: %v", err)
	}
	doc, err := episode.NewDocument(id, md, "episode "+id)
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	return doc.WithEmbedding([]float32{1, 2, 3, 4})
}

func testVectors(t *testing.T, n int) []episode.Vector {
	t.Helper()
	out := make([]episode.Vector, n)
	for i := range out {
		out[i] = testVector(t, fmt.Sprintf("ep-%d", i), 1, "news")
	}
	return out
}

// --- bootstrap ---

func TestOpen_CreatesHNSW(t *testing.T) {
	s := newFakeStore()
	r := openFake(t, s, testConfig())

	if len(s.created) != 1 {
		t.Fatalf("expected 1 create, got %d", len(s.created))
	}
	def := s.created[0]
	if def.Name != "podcasts:episodes:idx" {
		t.Errorf("expected index name podcasts:episodes:idx, got %s", def.Name)
	}
	if len(def.Prefixes) != 1 || def.Prefixes[0] != "podcasts:episodes:" {
		t.Errorf("unexpected prefixes %v", def.Prefixes)
	}
	v := def.Vector()
	if v.VectorAlgo != db.VectorHNSW || v.VectorM != 8 || v.VectorEFConstruct != 64 {
		t.Errorf("unexpected vector field %+v", v)
	}
	if v.VectorDistance != db.DistanceL2 || v.VectorDim != testDim {
		t.Errorf("unexpected vector metric %+v", v)
	}
	if r.Algorithm() != db.VectorHNSW {
		t.Errorf("expected HNSW, got %s", r.Algorithm())
	}
	for _, f := range def.Fields {
		if f.Type != db.IndexFieldTag {
			continue
		}
		if f.TagSeparator != episode.TagSeparator || !f.TagCaseSensitive {
			t.Errorf("tag field %s: separator %q case sensitive %v", f.Name, f.TagSeparator, f.TagCaseSensitive)
		}
	}
	if r.EFRuntime() != DefaultEFRuntime {
		t.Errorf("expected ef_runtime %d, got %d", DefaultEFRuntime, r.EFRuntime())
	}
}

func TestOpen_TextFieldOnlyWhenSupported(t *testing.T) {
	for _, supported := range []bool{true, false} {
		s := newFakeStore()
		s.textSearch = supported
		openFake(t, s, testConfig())

		hasText := false
		for _, f := range s.created[0].Fields {
			if f.Type == db.IndexFieldText && f.Name == fieldText {
				hasText = true
			}
		}
		if hasText != supported {
			t.Errorf("text search %v: expected text field %v", supported, supported)
		}
	}
}

func TestOpen_FallsBackToFlat(t *testing.T) {
	s := newFakeStore()
	s.createErrs[db.VectorHNSW] = rejected("ERR unsupported algorithm")

	r := openFake(t, s, testConfig())

	if len(s.created) != 2 {
		t.Fatalf("expected 2 create attempts, got %d", len(s.created))
	}
	if s.created[1].Vector().VectorAlgo != db.VectorFlat {
		t.Errorf("expected FLAT fallback, got %s", s.created[1].Vector().VectorAlgo)
	}
	if r.Algorithm() != db.VectorFlat {
		t.Errorf("expected FLAT in effect, got %s", r.Algorithm())
	}
	if r.EFRuntime() != 0 {
		t.Errorf("expected no ef_runtime for FLAT, got %d", r.EFRuntime())
	}
}

func TestOpen_AllAttemptsRejected(t *testing.T) {
	s := newFakeStore()
	s.createErrs[db.VectorHNSW] = rejected("ERR hnsw rejected")
	s.createErrs[db.VectorFlat] = rejected("ERR flat rejected")

	_, err := Open(context.Background(), s, testConfig(), zap.NewNop())
	if !errors.Is(err, domain.ErrBackendRejected) {
		t.Fatalf("expected ErrBackendRejected, got %v", err)
	}
	for _, want := range []string{"hnsw rejected", "flat rejected"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got %v", want, err)
		}
	}
}

func TestOpen_TransportErrorDoesNotFallBack(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"deadline", &db.Error{Op: db.OpCreateIndex, Err: context.DeadlineExceeded}},
		{"canceled", &db.Error{Op: db.OpCreateIndex, Err: context.Canceled}},
		{"connection", &db.Error{Op: db.OpCreateIndex, Err: errors.New("dial tcp: connection refused")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeStore()
			s.createErrs[db.VectorHNSW] = tt.err

			_, err := Open(context.Background(), s, testConfig(), zap.NewNop())
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected the create error, got %v", err)
			}
			if errors.Is(err, domain.ErrBackendRejected) {
				t.Errorf("a transport error is not a backend rejection: %v", err)
			}
			if len(s.created) != 1 {
				t.Errorf("expected no FLAT attempt, got %d creates", len(s.created))
			}
		})
	}
}

func TestOpen_IndexCreatedConcurrently(t *testing.T) {
	s := newFakeStore()
	s.createErrs[db.VectorHNSW] = db.ErrIndexExists
	calls := 0

	// first FT.INFO reports missing, the read-back after the race succeeds
	store := &racingStore{fakeStore: s, calls: &calls, info: &db.IndexInfo{
		Name: "podcasts:episodes:idx",
		Fields: []db.IndexField{{
			Name: fieldEmbedding, Type: db.IndexFieldVector, VectorAlgo: db.VectorHNSW,
			VectorDim: testDim, VectorEFRuntime: 32,
		}},
	}}

	r, err := Open(context.Background(), store, testConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.EFRuntime() != 32 {
		t.Errorf("expected ef_runtime 32 from the index, got %d", r.EFRuntime())
	}
	if len(s.created) != 1 {
		t.Errorf("expected no FLAT attempt after exists, got %d creates", len(s.created))
	}
}

type racingStore struct {
	*fakeStore
	calls *int
	info  *db.IndexInfo
}

func (r *racingStore) IndexInfo(context.Context, string) (*db.IndexInfo, error) {
	*r.calls++
	if *r.calls == 1 {
		return nil, db.ErrIndexNotFound
	}
	return r.info, nil
}

func TestOpen_AdoptsExistingIndex(t *testing.T) {
	tests := []struct {
		name   string
		field  db.IndexField
		wantEF int
	}{
		{
			name:   "hnsw with ef_runtime",
			field:  db.IndexField{Type: db.IndexFieldVector, VectorAlgo: db.VectorHNSW, VectorDim: testDim, VectorEFRuntime: 40},
			wantEF: 40,
		},
		{
			name:   "hnsw without ef_runtime",
			field:  db.IndexField{Type: db.IndexFieldVector, VectorAlgo: db.VectorHNSW, VectorDim: testDim},
			wantEF: DefaultEFRuntime,
		},
		{
			name:   "flat",
			field:  db.IndexField{Type: db.IndexFieldVector, VectorAlgo: db.VectorFlat, VectorDim: testDim},
			wantEF: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeStore()
			s.info = &db.IndexInfo{Name: "podcasts:episodes:idx", Fields: []db.IndexField{tt.field}}
			s.infoErr = nil

			r := openFake(t, s, testConfig())
			if len(s.created) != 0 {
				t.Errorf("expected no FT.CREATE, got %d", len(s.created))
			}
			if r.EFRuntime() != tt.wantEF {
				t.Errorf("expected ef_runtime %d, got %d", tt.wantEF, r.EFRuntime())
			}
			if r.Algorithm() != tt.field.VectorAlgo {
				t.Errorf("expected %s, got %s", tt.field.VectorAlgo, r.Algorithm())
			}
		})
	}
}

func TestOpen_ExistingIndexDimensionMismatch(t *testing.T) {
	s := newFakeStore()
	s.infoErr = nil
	s.info = &db.IndexInfo{Name: "podcasts:episodes:idx", Fields: []db.IndexField{
		{Name: fieldEmbedding, Type: db.IndexFieldVector, VectorAlgo: db.VectorHNSW, VectorDim: 768},
	}}

	_, err := Open(context.Background(), s, testConfig(), zap.NewNop())
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestOpen_RecreateDropsCollection(t *testing.T) {
	s := newFakeStore()
	s.scanKeys = []string{"podcasts:episodes:1", "podcasts:episodes:2"}
	cfg := testConfig()
	cfg.Recreate = true

	openFake(t, s, cfg)

	if s.dropped != 1 {
		t.Errorf("expected one FT.DROPINDEX, got %d", s.dropped)
	}
	if len(s.dels) != 1 || len(s.dels[0]) != 2 {
		t.Errorf("expected stored keys deleted, got %v", s.dels)
	}
	if len(s.created) != 1 {
		t.Errorf("expected index recreated, got %d creates", len(s.created))
	}
}

func TestOpen_ConfigValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Dimensions = 0
	if _, err := Open(context.Background(), newFakeStore(), cfg, zap.NewNop()); err == nil {
		t.Error("expected error for zero dimensions")
	}

	cfg = testConfig()
	cfg.Collection = ""
	if _, err := Open(context.Background(), newFakeStore(), cfg, zap.NewNop()); err == nil {
		t.Error("expected error for empty collection")
	}
}

// --- writes ---

func TestInsert_StoresHashFields(t *testing.T) {
	s := newFakeStore()
	r := openFake(t, s, testConfig())

	md, _ := episode.NewMetadata(7, "", "")
	doc, _ := episode.NewDocument("", md, "no id here")
	r.newID = func() string { return "generated" }

	ids, err := r.Insert(context.Background(), []episode.Vector{
		testVector(t, "42", 3, "comedy"),
		doc.WithEmbedding([]float32{0, 0, 0, 1}),
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(ids) != 2 || ids[0] != "42" || ids[1] != "generated" {
		t.Fatalf("unexpected ids %v", ids)
	}

	items := s.hsets[0]
	if items[0].Key != "podcasts:episodes:42" {
		t.Errorf("unexpected key %s", items[0].Key)
	}
	f := items[0].Fields
	if f[fieldID] != "42" || f[filter.FieldPodcastID] != "3" || f[filter.FieldCategory] != "comedy" || f[filter.FieldLanguage] != "en" {
		t.Errorf("unexpected fields %v", f)
	}
	if len(f[fieldEmbedding]) != testDim*4 {
		t.Errorf("expected %d byte embedding, got %d", testDim*4, len(f[fieldEmbedding]))
	}

	if items[1].Key != "podcasts:episodes:generated" {
		t.Errorf("unexpected generated key %s", items[1].Key)
	}
	if _, ok := items[1].Fields[filter.FieldCategory]; ok {
		t.Error("expected empty category to be omitted")
	}
}

func TestInsert_DimensionMismatchBeforeWrite(t *testing.T) {
	s := newFakeStore()
	r := openFake(t, s, testConfig())

	md, _ := episode.NewMetadata(1, "", "")
	doc, _ := episode.NewDocument("bad", md, "text")
	vectors := append(testVectors(t, 3), doc.WithEmbedding([]float32{1, 2}))

	ids, err := r.Insert(context.Background(), vectors)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no ids, got %v", ids)
	}
	if len(s.hsets) != 0 {
		t.Errorf("expected no writes, got %d batches", len(s.hsets))
	}
}

func TestInsert_PartialWrite(t *testing.T) {
	s := newFakeStore()
	s.hsetErrAt = 2
	r := openFake(t, s, testConfig())

	ids, err := r.Insert(context.Background(), testVectors(t, 250))
	if !errors.Is(err, domain.ErrPartialWrite) {
		t.Fatalf("expected ErrPartialWrite, got %v", err)
	}
	var pw *domain.PartialWriteError
	if !errors.As(err, &pw) || pw.Done != 100 || pw.Total != 250 {
		t.Errorf("unexpected partial write %+v", pw)
	}
	if len(ids) != 100 {
		t.Errorf("expected 100 ids from the first batch, got %d", len(ids))
	}
	if len(s.hsets) != 2 {
		t.Errorf("expected remaining batches skipped, got %d", len(s.hsets))
	}
}

func TestInsert_BatchesOverClient(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var sizes []int
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmds ...rueidis.Completed) []rueidis.RedisResult {
			sizes = append(sizes, len(cmds))
			out := make([]rueidis.RedisResult, len(cmds))
			for i := range out {
				out[i] = mock.Result(mock.RedisInt64(6))
			}
			return out
		}).
		Times(3)

	r := newClientRepo(c)
	ids, err := r.Insert(context.Background(), testVectors(t, 250))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(ids) != 250 {
		t.Errorf("expected 250 ids, got %d", len(ids))
	}
	assertSizes(t, sizes, []int{100, 100, 50})
}

func TestDeleteByIDs_BatchesOverClient(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var sizes []int
	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd rueidis.Completed) rueidis.RedisResult {
			args := cmd.Commands()
			if args[0] != "DEL" {
				t.Fatalf("expected DEL, got %v", args[0])
			}
			sizes = append(sizes, len(args)-1)
			return mock.Result(mock.RedisInt64(int64(len(args) - 1)))
		}).
		Times(3)

	r := newClientRepo(c)
	n, err := r.DeleteByIDs(context.Background(), make250IDs())
	if err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	if n != 250 {
		t.Errorf("expected 250 deleted, got %d", n)
	}
	assertSizes(t, sizes, []int{100, 100, 50})
}

func TestDeleteByIDs_PartialWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	gomock.InOrder(
		c.EXPECT().Do(gomock.Any(), gomock.Any()).Return(mock.Result(mock.RedisInt64(60))),
		c.EXPECT().Do(gomock.Any(), gomock.Any()).Return(mock.ErrorResult(context.DeadlineExceeded)),
	)

	r := newClientRepo(c)
	n, err := r.DeleteByIDs(context.Background(), make250IDs())
	if !errors.Is(err, domain.ErrPartialWrite) {
		t.Fatalf("expected ErrPartialWrite, got %v", err)
	}
	if n != 60 {
		t.Errorf("expected 60 deleted before the failure, got %d", n)
	}
}

func TestDeleteByIDs_SkipsEmptyIDs(t *testing.T) {
	s := newFakeStore()
	r := openFake(t, s, testConfig())

	n, err := r.DeleteByIDs(context.Background(), []string{"", "a", ""})
	if err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	if n != 1 || len(s.dels) != 1 || s.dels[0][0] != "podcasts:episodes:a" {
		t.Errorf("unexpected delete %d %v", n, s.dels)
	}
}

func TestDeleteAll_RecreatesSameDefinition(t *testing.T) {
	s := newFakeStore()
	s.createErrs[db.VectorHNSW] = rejected("ERR unsupported")
	r := openFake(t, s, testConfig())

	s.scanKeys = []string{"podcasts:episodes:1"}
	if err := r.DeleteAll(context.Background()); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}

	last := s.created[len(s.created)-1]
	if last.Vector().VectorAlgo != db.VectorFlat {
		t.Errorf("expected FLAT definition recreated, got %s", last.Vector().VectorAlgo)
	}
	if s.dropped != 1 || len(s.dels) != 1 {
		t.Errorf("expected drop and key delete, got dropped=%d dels=%v", s.dropped, s.dels)
	}
}

// --- search ---

func TestSearch_MapsEntriesAscending(t *testing.T) {
	s := newFakeStore()
	r := openFake(t, s, testConfig())

	s.entries = []db.SearchEntry{
		{Key: "podcasts:episodes:b", Score: 0.9, Fields: map[string]string{
			fieldID: "b", fieldText: "second", filter.FieldPodcastID: "2", filter.FieldCategory: "news",
			fieldEmbedding: redis.VectorToBytes([]float32{1, 1, 1, 1}),
		}},
		{Key: "podcasts:episodes:a", Score: 0.1, Fields: map[string]string{
			fieldText: "first", filter.FieldPodcastID: "1", filter.FieldLanguage: "en",
		}},
	}

	pid := int64(2)
	req, err := request.New("history of jazz", filter.Episode{PodcastID: &pid}, 5)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}

	hits, err := r.Search(context.Background(), req.WithEmbedding([]float32{1, 0, 0, 0}))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if s.knn.K != 5 || s.knn.EFRuntime != DefaultEFRuntime || s.knn.IndexName != "podcasts:episodes:idx" {
		t.Errorf("unexpected query %+v", s.knn)
	}
	if len(s.knn.Filters.Must()) != 1 {
		t.Errorf("expected 1 filter condition, got %d", len(s.knn.Filters.Must()))
	}

	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID() != "a" || hits[0].Score() != 0.1 || hits[0].Metadata().Language() != "en" {
		t.Errorf("unexpected first hit %+v", hits[0])
	}
	if hits[1].ID() != "b" || hits[1].Metadata().PodcastID() != 2 || len(hits[1].Embedding()) != testDim {
		t.Errorf("unexpected second hit %+v", hits[1])
	}
}

func TestSearch_NoHitsIsEmpty(t *testing.T) {
	s := newFakeStore()
	r := openFake(t, s, testConfig())

	req, _ := request.New("nothing", filter.Episode{}, 0)
	hits, err := r.Search(context.Background(), req.WithEmbedding([]float32{0, 0, 0, 0}))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("expected empty non-nil hits, got %v", hits)
	}
	if s.knn.K != request.DefaultTopK {
		t.Errorf("expected default top k, got %d", s.knn.K)
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	s := newFakeStore()
	r := openFake(t, s, testConfig())

	req, _ := request.New("q", filter.Episode{}, 1)
	_, err := r.Search(context.Background(), req.WithEmbedding([]float32{1}))
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	if s.knn != nil {
		t.Error("expected no backend call")
	}
}

// --- helpers ---

func newClientRepo(c rueidis.Client) *Repo {
	cfg := testConfig()
	cfg.BatchSize = DefaultBatchSize
	return &Repo{
		store:  redis.NewStoreForTest(c),
		cfg:    cfg,
		newID:  func() string { return "generated" },
		logger: zap.NewNop(),
	}
}

func make250IDs() []string {
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("ep-%d", i)
	}
	return ids
}

func assertSizes(t *testing.T, got, want []int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected batches %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected batches %v, got %v", want, got)
		}
	}
}
