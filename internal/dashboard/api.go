// Package dashboard serves the GWP views over HTTP: a JSON API for the
// filtered collections, statistics, calendar and chat assistant, and an HTML
// page that drives them.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jaakkos/gwp/internal/app"
	"github.com/jaakkos/gwp/internal/chat"
	"github.com/jaakkos/gwp/internal/domain"
	"github.com/jaakkos/gwp/internal/filter"
	"github.com/jaakkos/gwp/internal/gwpapi"
	"github.com/jaakkos/gwp/internal/policy"
	"github.com/jaakkos/gwp/internal/render"
	"github.com/jaakkos/gwp/internal/stats"
)

// Pseudo-views rendered from the plan collection.
const (
	ViewGantt    = "gantt"
	ViewCalendar = "calendar"
)

// PrefPrefix namespaces UI preferences in the local store so /api/prefs never
// exposes the session token.
const PrefPrefix = "pref:"

const (
	maxUploadBytes   = 32 << 20
	productLabelRune = 25
)

// Backend is the subset of the REST client the dashboard writes through.
// Implementation: gwpapi.Client.
type Backend interface {
	CurrentUser() (gwpapi.User, bool)
	Upload(ctx context.Context, planID int, filename string, content io.Reader) error
	Put(ctx context.Context, path string, body, out any) error
}

// Asker answers chat questions. Implementation: chat.Bridge.
type Asker interface {
	Ask(ctx context.Context, question string, docs []domain.Record) (*chat.Turn, error)
}

// ViewSnapshot is the JSON response of /api/views/{view}.
type ViewSnapshot struct {
	Timestamp  string              `json:"timestamp"`
	View       string              `json:"view"`
	Title      string              `json:"title"`
	Collection domain.Collection   `json:"collection"`
	Facets     []domain.Facet      `json:"facets"`
	Search     *domain.Search      `json:"search,omitempty"`
	Total      int                 `json:"total"`
	Records    []domain.Record     `json:"records"`
	Options    map[string][]string `json:"options"`
	Selection  map[string]string   `json:"selection"`
	Term       string              `json:"term,omitempty"`
	Chips      []filter.Chip       `json:"chips"`
}

// ViewInfo lists one configured view.
type ViewInfo struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	Collection string `json:"collection"`
}

// SessionInfo describes the logged-in user.
type SessionInfo struct {
	LoggedIn bool        `json:"logged_in"`
	User     gwpapi.User `json:"user"`
	ReadOnly bool        `json:"read_only"`
}

// ChatRequest is the body of POST /api/chat. The context documents are the
// repository records matching Filters and Term, optionally narrowed to IDs.
type ChatRequest struct {
	Question string            `json:"question"`
	Filters  map[string]string `json:"filters,omitempty"`
	Term     string            `json:"term,omitempty"`
	IDs      []int             `json:"ids,omitempty"`
}

// StatusUpdate is the body of PUT /api/status/{collection}/{id}.
type StatusUpdate struct {
	Status string `json:"status"`
}

// Handler holds dependencies for dashboard HTTP handlers.
type Handler struct {
	store   *app.Store
	policy  *policy.Policy
	backend Backend
	chat    Asker
	prefs   app.KeyValueStore
	logger  *log.Logger
	now     func() time.Time
}

// NewHandler creates a dashboard handler.
func NewHandler(store *app.Store, pol *policy.Policy, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:  store,
		policy: pol,
		logger: log.New(io.Discard, "", 0),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandlerOption configures optional dependencies for the dashboard handler.
type HandlerOption func(*Handler)

// WithBackend enables the session, upload and status endpoints.
func WithBackend(b Backend) HandlerOption {
	return func(h *Handler) { h.backend = b }
}

// WithAsker enables POST /api/chat.
func WithAsker(a Asker) HandlerOption {
	return func(h *Handler) { h.chat = a }
}

// WithPrefs enables GET/PUT /api/prefs.
func WithPrefs(kv app.KeyValueStore) HandlerOption {
	return func(h *Handler) { h.prefs = kv }
}

// WithLogger sets the handler logger.
func WithLogger(l *log.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock overrides the clock used for statistics and the calendar.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// RegisterRoutes adds dashboard routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/views", h.handleAPIViews)
	mux.HandleFunc("/api/views/{view}", h.handleAPIView)
	mux.HandleFunc("/views/{view}", h.handleViewHTML)
	mux.HandleFunc("/api/stats", h.handleAPIStats)
	mux.HandleFunc("/api/calendar", h.handleAPICalendar)
	mux.HandleFunc("/api/refresh", h.handleAPIRefresh)
	mux.HandleFunc("/api/chat", h.handleAPIChat)
	mux.HandleFunc("/api/prefs", h.handleAPIPrefs)
	mux.HandleFunc("/api/session", h.handleAPISession)
	mux.HandleFunc("/api/upload", h.handleAPIUpload)
	mux.HandleFunc("/api/status/{collection}/{id}", h.handleAPIStatus)
	mux.HandleFunc("/dashboard", h.handleDashboard)
	mux.HandleFunc("/dashboard/", h.handleDashboard)
}

// preflight writes the CORS headers and answers OPTIONS. It returns false
// when the request has been fully handled.
func preflight(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(append(methods, http.MethodOptions), ", "))
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	writeError(w, http.StatusMethodNotAllowed, strings.Join(methods, " or ")+" required")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readOnly reports whether the logged-in user may not change data.
func (h *Handler) readOnly() bool {
	if h.backend == nil {
		return false
	}
	u, ok := h.backend.CurrentUser()
	return ok && h.policy.IsReadOnly(u.Nombre, u.Username)
}

// requireWriter answers 403 for read-only users and 404 when no backend is
// configured. It returns true when the request may proceed.
func (h *Handler) requireWriter(w http.ResponseWriter) bool {
	if h.backend == nil {
		writeError(w, http.StatusNotFound, "no backend configured")
		return false
	}
	if h.readOnly() {
		writeError(w, http.StatusForbidden, "read-only user")
		return false
	}
	return true
}

func (h *Handler) handleAPIViews(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodGet) {
		return
	}
	views := []ViewInfo{}
	for _, name := range h.policy.ViewNames() {
		v, _ := h.policy.View(name)
		views = append(views, ViewInfo{Name: name, Title: v.Title, Collection: v.Collection})
	}
	writeJSON(w, http.StatusOK, views)
}

// selectionFromQuery reads facet values keyed by facet ID and the "q" term.
func selectionFromQuery(set domain.FilterSet, r *http.Request) domain.Selection {
	q := r.URL.Query()
	sel := domain.Selection{Values: make(map[string]string, len(set.Facets)), Term: q.Get("q")}
	for _, f := range set.Facets {
		if v := q.Get(f.ID); v != "" {
			sel.Values[f.ID] = v
		}
	}
	return sel
}

// computeView runs the filter engine for a configured view.
func (h *Handler) computeView(name string, sel domain.Selection) (ViewSnapshot, error) {
	v, ok := h.policy.View(name)
	if !ok {
		return ViewSnapshot{}, errUnknownView
	}
	c, err := domain.ParseCollection(v.Collection)
	if err != nil {
		return ViewSnapshot{}, err
	}
	set := v.FilterSet()
	records := h.store.Get(c)
	res := filter.Compute(records, set, sel)
	rec := filter.Reconciled(sel, set, res)

	snap := ViewSnapshot{
		Timestamp:  h.now().Format(time.RFC3339),
		View:       name,
		Title:      v.Title,
		Collection: c,
		Facets:     set.Facets,
		Search:     set.Search,
		Total:      len(records),
		Records:    res.Filtered,
		Options:    res.Options,
		Selection:  rec.Values,
		Term:       sel.Term,
		Chips:      filter.Chips(set, sel),
	}
	if snap.Chips == nil {
		snap.Chips = []filter.Chip{}
	}
	return snap, nil
}

var errUnknownView = errors.New("unknown view")

func (h *Handler) handleAPIView(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodGet) {
		return
	}
	name := r.PathValue("view")
	v, ok := h.policy.View(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown view: "+name)
		return
	}
	snap, err := h.computeView(name, selectionFromQuery(v.FilterSet(), r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleViewHTML(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodGet) {
		return
	}
	name := r.PathValue("view")
	q := r.URL.Query()

	var (
		renderer render.Renderer
		records  []domain.Record
	)
	switch name {
	case ViewGantt:
		renderer, records = render.Gantt{}, h.store.Get(domain.CollectionPlan)
	case ViewCalendar:
		renderer = render.Calendar{
			Hitos:   h.store.Get(domain.CollectionHitos),
			Now:     h.now(),
			History: q.Get("history") != "",
			Agenda:  q.Get("agenda") != "",
		}
		records = h.store.Get(domain.CollectionPlan)
	default:
		v, ok := h.policy.View(name)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown view: "+name)
			return
		}
		snap, err := h.computeView(name, selectionFromQuery(v.FilterSet(), r))
		if err == nil {
			renderer, err = render.ForCollection(snap.Collection)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		records = snap.Records
	}

	var buf bytes.Buffer
	if err := renderer.Render(&buf, records); err != nil {
		h.logger.Printf("dashboard: render %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// StatsResponse is the JSON response of /api/stats.
type StatsResponse struct {
	Timestamp string `json:"timestamp"`
	stats.Summary
}

func (h *Handler) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodGet) {
		return
	}
	sum := stats.Summarize(h.store.Get(domain.CollectionPlan), h.store.Get(domain.CollectionHitos), h.now())
	for i := range sum.ByProduct {
		sum.ByProduct[i].Label = truncate(sum.ByProduct[i].Label, productLabelRune)
	}
	writeJSON(w, http.StatusOK, StatsResponse{Timestamp: h.now().Format(time.RFC3339), Summary: sum})
}

func (h *Handler) handleAPICalendar(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodGet) {
		return
	}
	events := stats.Events(h.store.Get(domain.CollectionPlan), h.store.Get(domain.CollectionHitos))
	events = stats.FromMonth(events, h.now(), r.URL.Query().Get("history") != "")
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "months": stats.ByMonth(events)})
}

func (h *Handler) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodPost) {
		return
	}
	var cs []domain.Collection
	for _, name := range r.URL.Query()["collection"] {
		c, err := domain.ParseCollection(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cs = append(cs, c)
	}
	if err := h.store.RefreshAll(r.Context(), cs...); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleAPIChat(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodPost) {
		return
	}
	if h.chat == nil {
		writeError(w, http.StatusNotFound, "chat assistant not configured")
		return
	}
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	docs, err := h.chatDocuments(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	turn, err := h.chat.Ask(r.Context(), req.Question, docs)
	if err != nil {
		var se *chat.ServerError
		switch {
		case errors.Is(err, chat.ErrEmptyQuestion):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, chat.ErrServiceBusy):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.As(err, &se):
			writeError(w, http.StatusBadGateway, "Error del servidor: "+strconv.Itoa(se.Status))
		default:
			h.logger.Printf("dashboard: chat: %v", err)
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// chatDocuments selects the repository records sent as chat context.
func (h *Handler) chatDocuments(req ChatRequest) ([]domain.Record, error) {
	var docs []domain.Record
	if _, ok := h.policy.View(string(domain.CollectionRepositorio)); ok {
		snap, err := h.computeView(string(domain.CollectionRepositorio), domain.Selection{Values: req.Filters, Term: req.Term})
		if err != nil {
			return nil, err
		}
		docs = snap.Records
	} else {
		docs = h.store.Get(domain.CollectionRepositorio)
	}
	if len(req.IDs) == 0 {
		return docs, nil
	}
	want := make(map[int]bool, len(req.IDs))
	for _, id := range req.IDs {
		want[id] = true
	}
	var out []domain.Record
	for _, d := range docs {
		if want[d.ID()] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (h *Handler) handleAPIPrefs(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	if h.prefs == nil {
		writeError(w, http.StatusNotFound, "preferences not configured")
		return
	}
	if r.Method == http.MethodPut {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		for k, v := range body {
			if k == "" {
				continue
			}
			if err := h.prefs.Set(PrefPrefix+k, v); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
	}
	all, err := h.prefs.All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make(map[string]string)
	for k, v := range all {
		if name, ok := strings.CutPrefix(k, PrefPrefix); ok {
			out[name] = v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAPISession(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodGet) {
		return
	}
	info := SessionInfo{}
	if h.backend != nil {
		info.User, info.LoggedIn = h.backend.CurrentUser()
		info.ReadOnly = h.readOnly()
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleAPIUpload(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodPost) {
		return
	}
	if !h.requireWriter(w) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	planID, err := strconv.Atoi(r.FormValue("plan_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "plan_id is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if err := h.backend.Upload(r.Context(), planID, header.Filename, file); err != nil {
		writeError(w, backendStatus(err), err.Error())
		return
	}
	h.refreshAfterWrite(r.Context(), domain.CollectionPlan, domain.CollectionDocumentos)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFields maps collections with an editable status to their field.
var statusFields = map[domain.Collection]string{
	domain.CollectionPlan:  "status",
	domain.CollectionHitos: "estado",
}

func (h *Handler) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodPut) {
		return
	}
	if !h.requireWriter(w) {
		return
	}
	c, err := domain.ParseCollection(r.PathValue("collection"))
	field, editable := statusFields[c]
	if err != nil || !editable {
		writeError(w, http.StatusBadRequest, "status is not editable for "+r.PathValue("collection"))
		return
	}
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var body StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Status) == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	path := c.Path() + "/" + strconv.Itoa(id)
	if err := h.backend.Put(r.Context(), path, map[string]string{field: body.Status}, nil); err != nil {
		writeError(w, backendStatus(err), err.Error())
		return
	}
	h.refreshAfterWrite(r.Context(), c)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// refreshAfterWrite reloads the touched collections. A failed reload keeps
// the previous snapshot and is only logged.
func (h *Handler) refreshAfterWrite(ctx context.Context, cs ...domain.Collection) {
	if err := h.store.RefreshAll(ctx, cs...); err != nil {
		h.logger.Printf("dashboard: refresh after write: %v", err)
	}
}

// backendStatus maps a backend failure to the status returned to the page.
func backendStatus(err error) int {
	var he *gwpapi.HTTPError
	if errors.As(err, &he) && he.Status >= 400 && he.Status < 500 {
		return he.Status
	}
	return http.StatusBadGateway
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
