package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lazypower/recall/internal/cache"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/metrics"
	"github.com/lazypower/recall/internal/store"
)

type fixture struct {
	srv   *Server
	db    *store.DB
	mock  *llm.MockClient
	mr    *miniredis.Miniredis
	notes map[string]*store.Note
}

func testServer(t *testing.T, rateLimit int) *fixture {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()
	notes := map[string]*store.Note{
		"ownership": {Owner: "alice", Title: "Rust ownership", Body: "Each value in Rust has a single owner.", Importance: 8},
		"borrow":    {Owner: "alice", Title: "Borrow checker", Body: "References must not outlive the owner.", Importance: 6},
		"bob":       {Owner: "bob", Title: "Bob's note", Body: "Private to bob.", Importance: 5},
	}
	for _, key := range []string{"ownership", "borrow", "bob"} {
		if err := db.CreateNote(ctx, notes[key]); err != nil {
			t.Fatalf("CreateNote: %v", err)
		}
	}
	edge := &store.Edge{SourceID: notes["ownership"].ID, TargetID: notes["borrow"].ID, Type: store.Supports, Strength: 0.8}
	if err := db.CreateEdge(ctx, edge); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}

	c := cache.New(rdb, cache.DefaultConfig(), nil)
	t.Cleanup(func() { c.Close() })
	mock := &llm.MockClient{Response: &llm.Response{Content: "Every value has one owner."}}
	m := metrics.NewCollector("recall")
	eng, err := engine.New(db, db, mock, c, engine.Options{Metrics: m})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	srv := New(eng, db, Options{
		Version: "test-version",
		Metrics: m,
		Limiter: NewRateLimiter(rdb, rateLimit, nil),
	})
	return &fixture{srv: srv, db: db, mock: mock, mr: mr, notes: notes}
}

func (f *fixture) do(t *testing.T, method, path, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := testServer(t, 0)

	w := f.do(t, "GET", "/api/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}

	var body map[string]any
	decode(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test-version" {
		t.Errorf("version = %v, want test-version", body["version"])
	}
	if body["db"] != true {
		t.Errorf("db = %v, want true", body["db"])
	}
	if body["cache"] != true || body["generation"] != true {
		t.Errorf("cache = %v, generation = %v, want both true", body["cache"], body["generation"])
	}
}

func TestAskRequiresOwner(t *testing.T) {
	f := testServer(t, 0)

	w := f.do(t, "POST", "/api/ask", "", `{"question":"What about Rust ownership?"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if f.mock.CallCount() != 0 {
		t.Errorf("backend called %d times", f.mock.CallCount())
	}
}

func TestOwnerMayNotSpanNamespaces(t *testing.T) {
	f := testServer(t, 0)
	f.do(t, "POST", "/api/ask", "alice", `{"question":"What about Rust ownership?"}`)

	for _, tc := range []struct{ method, path string }{
		{"DELETE", "/api/cache/answers"},
		{"GET", "/api/cache/answers/stats"},
		{"GET", "/api/search?q=rust"},
	} {
		w := f.do(t, tc.method, tc.path, "alice:work", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s %s status = %d, want %d", tc.method, tc.path, w.Code, http.StatusBadRequest)
		}
	}

	w := f.do(t, "GET", "/api/cache/answers/stats", "alice", "")
	var st cache.Stats
	decode(t, w, &st)
	if st.EntryCount != 1 {
		t.Errorf("alice has %d entries after a rejected clear, want 1", st.EntryCount)
	}
}

func TestAsk(t *testing.T) {
	f := testServer(t, 0)

	w := f.do(t, "POST", "/api/ask", "alice", `{"question":"What about Rust ownership?","owner_id":"mallory"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var res engine.AnswerResult
	decode(t, w, &res)
	if res.Answer != "Every value has one owner." {
		t.Errorf("answer = %q", res.Answer)
	}
	if len(res.Sources) == 0 || res.Sources[0].NoteID != f.notes["ownership"].ID {
		t.Errorf("sources = %+v, want ownership note first", res.Sources)
	}
	if len(res.RelatedNoteIDs) != 1 || res.RelatedNoteIDs[0] != f.notes["borrow"].ID {
		t.Errorf("related = %v, want [%d]", res.RelatedNoteIDs, f.notes["borrow"].ID)
	}
	if res.Cached {
		t.Error("first answer should not be cached")
	}

	w = f.do(t, "GET", "/api/ask?q=Tell+me+about+Rust%27s+ownership", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d; body: %s", w.Code, w.Body.String())
	}
	decode(t, w, &res)
	if !res.Cached {
		t.Error("rephrased question should hit the cache")
	}
	if f.mock.CallCount() != 1 {
		t.Errorf("backend calls = %d, want 1", f.mock.CallCount())
	}
}

func TestAskOwnerComesFromHeader(t *testing.T) {
	f := testServer(t, 0)

	w := f.do(t, "POST", "/api/ask", "bob", `{"question":"What about Rust ownership?","owner_id":"alice"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var res engine.AnswerResult
	decode(t, w, &res)
	if len(res.Sources) != 0 {
		t.Errorf("bob sees alice's notes: %+v", res.Sources)
	}
	if res.Answer != engine.InsufficientMemoriesAnswer {
		t.Errorf("answer = %q", res.Answer)
	}
}

func TestAskValidation(t *testing.T) {
	f := testServer(t, 0)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		field  string
	}{
		{"bad json", "POST", "/api/ask", `{"question":`, ""},
		{"short question", "POST", "/api/ask", `{"question":"hi"}`, "question"},
		{"missing q", "GET", "/api/ask", "", "question"},
		{"bad max_sources", "GET", "/api/ask?q=rust+ownership&max_sources=lots", "", ""},
		{"max_sources range", "POST", "/api/ask", `{"question":"rust ownership","max_sources":99}`, "max_sources"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, "alice", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
			var body map[string]string
			decode(t, w, &body)
			if body["error"] == "" {
				t.Error("expected error message")
			}
			if tt.field != "" && body["field"] != tt.field {
				t.Errorf("field = %q, want %q", body["field"], tt.field)
			}
		})
	}
}

func TestCacheEndpoints(t *testing.T) {
	f := testServer(t, 0)
	f.do(t, "POST", "/api/ask", "alice", `{"question":"What about Rust ownership?"}`)

	w := f.do(t, "GET", "/api/cache/answers/stats", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d; body: %s", w.Code, w.Body.String())
	}
	var st cache.Stats
	decode(t, w, &st)
	if st.Namespace != "answers:alice" || st.EntryCount != 1 {
		t.Errorf("stats = %+v, want 1 entry in answers:alice", st)
	}

	w = f.do(t, "GET", "/api/cache/answers/stats", "bob", "")
	decode(t, w, &st)
	if st.EntryCount != 0 {
		t.Errorf("bob sees %d entries", st.EntryCount)
	}

	w = f.do(t, "DELETE", "/api/cache/answers", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d; body: %s", w.Code, w.Body.String())
	}
	var cleared struct {
		Namespace string `json:"namespace"`
		Deleted   int64  `json:"deleted"`
	}
	decode(t, w, &cleared)
	if cleared.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", cleared.Deleted)
	}

	w = f.do(t, "DELETE", "/api/cache/semantic", "alice", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown namespace status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSearchEndpoint(t *testing.T) {
	f := testServer(t, 0)

	w := f.do(t, "GET", "/api/search?q=rust+ownership&limit=5", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var res engine.SearchResult
	decode(t, w, &res)
	if res.Strategy != "fulltext" {
		t.Errorf("strategy = %q, want fulltext", res.Strategy)
	}
	if len(res.Results) == 0 || res.Results[0].NoteID != f.notes["ownership"].ID {
		t.Fatalf("results = %+v, want the ownership note first", res.Results)
	}
	for _, hit := range res.Results {
		if hit.NoteID == f.notes["bob"].ID {
			t.Error("search returned bob's note")
		}
	}
	if f.mock.CallCount() != 0 {
		t.Errorf("search called the backend %d times", f.mock.CallCount())
	}

	tests := []struct {
		name, path, owner string
		want              int
	}{
		{"no owner", "/api/search?q=rust", "", http.StatusUnauthorized},
		{"empty query", "/api/search?q=", "alice", http.StatusBadRequest},
		{"bad limit", "/api/search?q=rust&limit=many", "alice", http.StatusBadRequest},
		{"limit too large", "/api/search?q=rust&limit=500", "alice", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, "GET", tt.path, tt.owner, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRelatedEndpoint(t *testing.T) {
	f := testServer(t, 0)
	path := func(n *store.Note) string { return "/api/notes/" + strconvI(n.ID) + "/related" }

	w := f.do(t, "GET", path(f.notes["ownership"]), "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var body struct {
		Count   int                  `json:"count"`
		Related []engine.RelatedNote `json:"related"`
	}
	decode(t, w, &body)
	if body.Count != 1 || body.Related[0].Note.ID != f.notes["borrow"].ID {
		t.Errorf("related = %+v", body.Related)
	}
	if body.Related[0].Relation != store.Supports {
		t.Errorf("relation = %s, want %s", body.Related[0].Relation, store.Supports)
	}

	if w := f.do(t, "GET", path(f.notes["ownership"]), "bob", ""); w.Code != http.StatusNotFound {
		t.Errorf("foreign note status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := f.do(t, "GET", "/api/notes/abc/related", "alice", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := testServer(t, 0)
	f.do(t, "GET", "/api/health", "", "")

	w := f.do(t, "GET", "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `route="/api/health"`) {
		t.Errorf("metrics missing health route:\n%s", w.Body.String())
	}
}
