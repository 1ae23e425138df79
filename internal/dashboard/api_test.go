package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jaakkos/gwp/internal/app"
	"github.com/jaakkos/gwp/internal/chat"
	"github.com/jaakkos/gwp/internal/domain"
	"github.com/jaakkos/gwp/internal/gwpapi"
	"github.com/jaakkos/gwp/internal/policy"
	"github.com/jaakkos/gwp/internal/render"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type mockBackend struct {
	mu       sync.Mutex
	user     gwpapi.User
	loggedIn bool
	uploads  []string
	puts     map[string]any
	err      error
}

func (b *mockBackend) CurrentUser() (gwpapi.User, bool) { return b.user, b.loggedIn }

func (b *mockBackend) Upload(_ context.Context, planID int, filename string, content io.Reader) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, _ := io.ReadAll(content)
	b.uploads = append(b.uploads, filename+":"+string(data))
	return b.err
}

func (b *mockBackend) Put(_ context.Context, path string, body, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.puts == nil {
		b.puts = make(map[string]any)
	}
	b.puts[path] = body
	return b.err
}

type mockAsker struct {
	docs []domain.Record
	err  error
}

func (a *mockAsker) Ask(_ context.Context, question string, docs []domain.Record) (*chat.Turn, error) {
	a.docs = docs
	turn := &chat.Turn{ID: "t1", Question: question}
	if a.err != nil {
		return turn, a.err
	}
	turn.Reply = chat.ParseReply("Respuesta [[ID:1]]\n[SUGERENCIA: ¿Y el agua?]")
	return turn, nil
}

type memKV struct {
	mu sync.Mutex
	m  map[string]string
}

func (kv *memKV) Get(key string) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.m[key]
	return v, ok, nil
}

func (kv *memKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.m[key] = value
	return nil
}

func (kv *memKV) Delete(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.m, key)
	return nil
}

func (kv *memKV) All() (map[string]string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	out := make(map[string]string, len(kv.m))
	for k, v := range kv.m {
		out[k] = v
	}
	return out, nil
}

func testData() map[domain.Collection][]domain.Record {
	return map[domain.Collection][]domain.Record{
		domain.CollectionPlan: {
			{"id": float64(1), "activity_code": "A1", "task_name": "Informe", "product_code": "P1", "primary_responsible": "Ana", "status": "Pendiente", "fecha_inicio": "2026-03-01", "fecha_fin": "2026-03-12"},
			{"id": float64(2), "activity_code": "A2", "task_name": "Taller", "product_code": "P2", "primary_responsible": "Luis", "status": "Completado", "fecha_inicio": "2026-02-01", "fecha_fin": "2026-02-20"},
		},
		domain.CollectionHitos: {
			{"id": float64(5), "nombre": "Kickoff", "fecha_estimada": "2026-04-01", "estado": "Pendiente"},
		},
		domain.CollectionRepositorio: {
			{"id": float64(1), "titulo": "Ley de aguas", "etiquetas": "agua, ley"},
			{"id": float64(2), "titulo": "Plan energía", "etiquetas": "energía"},
		},
	}
}

type testEnv struct {
	mux     *http.ServeMux
	store   *app.Store
	backend *mockBackend
	asker   *mockAsker
	prefs   *memKV
	fetches int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		backend: &mockBackend{user: gwpapi.User{ID: 1, Nombre: "Ana"}, loggedIn: true},
		asker:   &mockAsker{},
		prefs:   &memKV{m: map[string]string{gwpapi.KeyToken: "secret"}},
	}
	data := testData()
	var mu sync.Mutex
	fetcher := app.FetcherFunc(func(_ context.Context, c domain.Collection) ([]domain.Record, error) {
		mu.Lock()
		defer mu.Unlock()
		env.fetches++
		return data[c], nil
	})
	logger := log.New(io.Discard, "", 0)
	env.store = app.NewStore(fetcher, data, logger)
	h := NewHandler(env.store, policy.New(policy.DefaultConfig()),
		WithBackend(env.backend),
		WithAsker(env.asker),
		WithPrefs(env.prefs),
		WithLogger(logger),
		WithClock(func() time.Time { return testNow }),
	)
	env.mux = http.NewServeMux()
	h.RegisterRoutes(env.mux)
	return env
}

func (env *testEnv) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json decode: %v\n%s", err, w.Body.String())
	}
	return v
}

func TestAPIViews(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("GET", "/api/views", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	views := decode[[]ViewInfo](t, w)
	if len(views) != 5 {
		t.Errorf("expected 5 views, got %d", len(views))
	}
}

func TestAPIView_Filters(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("GET", "/api/views/plan?filterResp=ana", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	snap := decode[ViewSnapshot](t, w)
	if snap.Total != 2 || len(snap.Records) != 1 || snap.Records[0].ID() != 1 {
		t.Errorf("records = %v (total %d), want only id 1", snap.Records, snap.Total)
	}
	if got := snap.Options["filterProduct"]; len(got) != 1 || got[0] != "P1" {
		t.Errorf("product options = %v, want [P1]", got)
	}
	// "ana" is a substring match and is not itself an option, so it resets.
	if snap.Selection["filterResp"] != "" {
		t.Errorf("reconciled selection = %v", snap.Selection)
	}
	if len(snap.Chips) != 1 || snap.Chips[0].Label != "Responsable" {
		t.Errorf("chips = %v", snap.Chips)
	}
}

func TestAPIView_SearchAndUnknown(t *testing.T) {
	env := newTestEnv(t)
	snap := decode[ViewSnapshot](t, env.do("GET", "/api/views/plan?q=taller", nil))
	if len(snap.Records) != 1 || snap.Records[0].ID() != 2 {
		t.Errorf("search records = %v", snap.Records)
	}
	if w := env.do("GET", "/api/views/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown view: expected 404, got %d", w.Code)
	}
}

func TestViewHTML(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("GET", "/views/plan?filterStatus=Completado", nil)
	if w.Code != 200 || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("expected html 200, got %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "Taller") || strings.Contains(w.Body.String(), "Informe") {
		t.Errorf("filtered html:\n%s", w.Body.String())
	}

	w = env.do("GET", "/views/observaciones", nil)
	if !strings.Contains(w.Body.String(), render.EmptyObservaciones) {
		t.Errorf("empty collection should render its empty state:\n%s", w.Body.String())
	}

	w = env.do("GET", "/views/gantt", nil)
	if !strings.Contains(w.Body.String(), "gantt-bar") {
		t.Errorf("gantt html:\n%s", w.Body.String())
	}

	w = env.do("GET", "/views/calendar", nil)
	if !strings.Contains(w.Body.String(), "Marzo 2026") || strings.Contains(w.Body.String(), "Febrero 2026") {
		t.Errorf("calendar html:\n%s", w.Body.String())
	}
}

func TestAPIStats(t *testing.T) {
	env := newTestEnv(t)
	resp := decode[StatsResponse](t, env.do("GET", "/api/stats", nil))
	if resp.Total != 2 || resp.Done != 1 || resp.Milestones != 1 || resp.ProgressPct != 50 {
		t.Errorf("stats = %+v", resp.Summary)
	}
	if resp.DueThisWeek != 1 {
		t.Errorf("due this week = %d, want 1", resp.DueThisWeek)
	}
}

type calendarResponse struct {
	Events []json.RawMessage `json:"events"`
}

func TestAPICalendar(t *testing.T) {
	env := newTestEnv(t)
	resp := decode[calendarResponse](t, env.do("GET", "/api/calendar", nil))
	if len(resp.Events) != 2 {
		t.Errorf("events = %d, want 2 (February is hidden)", len(resp.Events))
	}
	resp = decode[calendarResponse](t, env.do("GET", "/api/calendar?history=1", nil))
	if len(resp.Events) != 3 {
		t.Errorf("events with history = %d, want 3", len(resp.Events))
	}
}

func TestAPIRefresh(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do("GET", "/api/refresh", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET refresh: expected 405, got %d", w.Code)
	}
	w := env.do("POST", "/api/refresh?collection=plan&collection=hitos", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.fetches != 2 {
		t.Errorf("fetches = %d, want 2", env.fetches)
	}
	if w := env.do("POST", "/api/refresh?collection=bogus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bogus collection: expected 400, got %d", w.Code)
	}
}

func TestAPIRefresh_Options(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("OPTIONS", "/api/refresh", nil)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Methods") != "POST, OPTIONS" {
		t.Errorf("preflight = %d %q", w.Code, w.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestAPIChat(t *testing.T) {
	env := newTestEnv(t)
	body := `{"question":"¿Qué dice la ley?","filters":{"repoFilterTags":"agua"}}`
	w := env.do("POST", "/api/chat", strings.NewReader(body))
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(env.asker.docs) != 1 || env.asker.docs[0].ID() != 1 {
		t.Errorf("context docs = %v, want the agua document", env.asker.docs)
	}
	turn := decode[chat.Turn](t, w)
	if len(turn.Reply.Citations) != 1 || turn.Reply.Citations[0] != 1 || len(turn.Reply.SuggestedFollowUps) != 1 {
		t.Errorf("reply = %+v", turn.Reply)
	}
}

func TestAPIChat_Errors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{chat.ErrServiceBusy, http.StatusServiceUnavailable},
		{chat.ErrEmptyQuestion, http.StatusBadRequest},
		{&chat.ServerError{Status: 500}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		env := newTestEnv(t)
		env.asker.err = tc.err
		w := env.do("POST", "/api/chat", strings.NewReader(`{"question":"x","ids":[2]}`))
		if w.Code != tc.want {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
		if msg := decode[map[string]string](t, w)["error"]; msg == "" {
			t.Errorf("%v: missing error message", tc.err)
		}
	}
}

func TestAPIPrefs(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("PUT", "/api/prefs", strings.NewReader(`{"sidebar-collapsed":"true"}`))
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	prefs := decode[map[string]string](t, env.do("GET", "/api/prefs", nil))
	if prefs["sidebar-collapsed"] != "true" {
		t.Errorf("prefs = %v", prefs)
	}
	if _, leaked := prefs[gwpapi.KeyToken]; leaked || len(prefs) != 1 {
		t.Errorf("prefs should only expose preference keys: %v", prefs)
	}
}

func TestAPISession(t *testing.T) {
	env := newTestEnv(t)
	info := decode[SessionInfo](t, env.do("GET", "/api/session", nil))
	if !info.LoggedIn || info.User.Nombre != "Ana" || info.ReadOnly {
		t.Errorf("session = %+v", info)
	}
}

func uploadRequest(t *testing.T, planID string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("plan_id", planID); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("file", "informe.pdf")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("pdf"))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestAPIUpload(t *testing.T) {
	env := newTestEnv(t)
	body, ct := uploadRequest(t, "1")
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(env.backend.uploads) != 1 || env.backend.uploads[0] != "informe.pdf:pdf" {
		t.Errorf("uploads = %v", env.backend.uploads)
	}
	if env.fetches != 2 {
		t.Errorf("expected plan and documentos to be refreshed, fetches = %d", env.fetches)
	}
}

func TestAPIStatus(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("PUT", "/api/status/hitos/5", strings.NewReader(`{"status":"Completado"}`))
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got, ok := env.backend.puts["/hitos/5"].(map[string]string)
	if !ok || got["estado"] != "Completado" {
		t.Errorf("put body = %#v", env.backend.puts["/hitos/5"])
	}
	if w := env.do("PUT", "/api/status/repositorio/1", strings.NewReader(`{"status":"x"}`)); w.Code != http.StatusBadRequest {
		t.Errorf("repositorio status: expected 400, got %d", w.Code)
	}
}

func TestAPIStatus_BackendError(t *testing.T) {
	env := newTestEnv(t)
	env.backend.err = &gwpapi.HTTPError{Method: "PUT", Path: "/plan-maestro/1", Status: 404, Message: "not found"}
	w := env.do("PUT", "/api/status/plan/1", strings.NewReader(`{"status":"Listo"}`))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected backend 404 passed through, got %d", w.Code)
	}
	env.backend.err = errors.New("connection refused")
	w = env.do("PUT", "/api/status/plan/1", strings.NewReader(`{"status":"Listo"}`))
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for transport errors, got %d", w.Code)
	}
}

func TestReadOnlyUserForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.backend.user = gwpapi.User{ID: 9, Nombre: "Visita"}

	if w := env.do("PUT", "/api/status/plan/1", strings.NewReader(`{"status":"Listo"}`)); w.Code != http.StatusForbidden {
		t.Errorf("status: expected 403, got %d", w.Code)
	}
	body, ct := uploadRequest(t, "1")
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("upload: expected 403, got %d", w.Code)
	}
	if len(env.backend.puts) != 0 || len(env.backend.uploads) != 0 {
		t.Error("read-only user reached the backend")
	}
	// Reads stay available.
	if w := env.do("GET", "/api/views/plan", nil); w.Code != 200 {
		t.Errorf("read-only GET: expected 200, got %d", w.Code)
	}
	if info := decode[SessionInfo](t, env.do("GET", "/api/session", nil)); !info.ReadOnly {
		t.Error("session should report read-only")
	}
}

func TestDashboardPage(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("GET", "/dashboard", nil)
	if w.Code != 200 || !strings.Contains(w.Body.String(), "GWP Dashboard") {
		t.Errorf("dashboard = %d", w.Code)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Producto con un nombre muy largo", 25); got != "Producto con un nombre mu..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("corto", 25); got != "corto" {
		t.Errorf("truncate = %q", got)
	}
}
