package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaakkos/gwp/internal/domain"
	"github.com/jaakkos/gwp/internal/retry"
)

// fastPolicy records backoff delays instead of sleeping.
func fastPolicy(delays *[]time.Duration) retry.Policy {
	return retry.Policy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		Multiplier: 2,
		Sleep: func(ctx context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
}

func completion(content string) string {
	data, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": content}}},
	})
	return string(data)
}

func TestAsk_Success(t *testing.T) {
	var got completionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(completion("Según [[ID:12]] sí. [SUGERENCIA: ¿Desde cuándo?]")))
	}))
	defer srv.Close()

	var states []TurnState
	b := NewBridge(Config{Endpoint: srv.URL, Model: "glm", APIKey: "k", Temperature: 0.2, MaxItems: 20, MaxCharsPerItem: 200},
		WithStateObserver(func(t Turn) { states = append(states, t.State) }))

	turn, err := b.Ask(context.Background(), "¿Aplica la ley?", docs(3))
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if turn.Reply.Body != "Según  sí." || !reflect.DeepEqual(turn.Reply.Citations, []int{12}) {
		t.Errorf("reply = %+v", turn.Reply)
	}
	if turn.ID == "" || turn.Attempts != 1 || turn.State != StateIdle {
		t.Errorf("turn = %+v", turn)
	}
	if auth != "Bearer k" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.Model != "glm" || got.Temperature != 0.2 || len(got.Messages) != 2 {
		t.Fatalf("request = %+v", got)
	}
	if got.Messages[0].Role != "system" || !strings.Contains(got.Messages[0].Content, "biblioteca de 3 documentos") {
		t.Errorf("system message = %q", got.Messages[0].Content)
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Content != "¿Aplica la ley?" {
		t.Errorf("user message = %+v", got.Messages[1])
	}
	want := []TurnState{StateSending, StateAwaitingResponse, StateRendered, StateIdle}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
}

func TestAsk_ThrottledTwiceThenBusy(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var delays []time.Duration
	var states []TurnState
	b := NewBridge(Config{Endpoint: srv.URL, Retry: fastPolicy(&delays)},
		WithStateObserver(func(t Turn) { states = append(states, t.State) }))

	turn, err := b.Ask(context.Background(), "hola", nil)
	if !errors.Is(err, ErrServiceBusy) {
		t.Fatalf("err = %v, want ErrServiceBusy", err)
	}
	if n := atomic.LoadInt32(&requests); n != 3 {
		t.Errorf("requests = %d, want 3 (1 + 2 retries)", n)
	}
	if len(delays) != 2 || delays[1] <= delays[0] {
		t.Errorf("delays = %v, want two increasing delays", delays)
	}
	if turn.Attempts != 3 || !errors.Is(turn.Err, ErrServiceBusy) {
		t.Errorf("turn = %+v", turn)
	}
	want := []TurnState{
		StateSending,
		StateAwaitingResponse, StateRetryBackoff,
		StateAwaitingResponse, StateRetryBackoff,
		StateAwaitingResponse,
		StateFailed, StateIdle,
	}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
}

func TestAsk_ZeroRetryPolicyFailsFast(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	turn, err := NewBridge(Config{Endpoint: srv.URL, Retry: retry.Policy{}}).Ask(context.Background(), "hola", nil)
	if !errors.Is(err, ErrServiceBusy) {
		t.Fatalf("err = %v, want ErrServiceBusy", err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("requests = %d, want 1 (retries disabled)", n)
	}
	if turn.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", turn.Attempts)
	}
}

func TestAsk_ThrottledThenOK(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(completion("listo")))
	}))
	defer srv.Close()

	var delays []time.Duration
	turn, err := NewBridge(Config{Endpoint: srv.URL, Retry: fastPolicy(&delays)}).Ask(context.Background(), "hola", nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if turn.Reply.Body != "listo" || turn.Attempts != 2 || len(delays) != 1 {
		t.Errorf("turn = %+v, delays = %v", turn, delays)
	}
}

func TestAsk_ServerErrorNotRetried(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var delays []time.Duration
	_, err := NewBridge(Config{Endpoint: srv.URL, Retry: fastPolicy(&delays)}).Ask(context.Background(), "hola", nil)
	var se *ServerError
	if !errors.As(err, &se) || se.Status != http.StatusBadGateway {
		t.Fatalf("err = %v, want ServerError 502", err)
	}
	if atomic.LoadInt32(&requests) != 1 || len(delays) != 0 {
		t.Errorf("requests = %d, delays = %v; want a single attempt", requests, delays)
	}
}

func TestAsk_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	turn, err := NewBridge(Config{Endpoint: srv.URL}).Ask(context.Background(), "hola", nil)
	if err != nil {
		t.Fatal(err)
	}
	if turn.Reply.Body != noAnswer {
		t.Errorf("body = %q, want %q", turn.Reply.Body, noAnswer)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	b := NewBridge(Config{Endpoint: "http://unused.invalid"})
	if _, err := b.Ask(context.Background(), "   ", nil); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("err = %v, want ErrEmptyQuestion", err)
	}
}

type fakeDetails struct {
	ids []int
	err error
}

func (f *fakeDetails) DocumentDetails(ctx context.Context, ids []int) ([]domain.Record, error) {
	f.ids = ids
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Record{"id": float64(id), "titulo": "Completo", "file_content": "texto íntegro"})
	}
	return out, nil
}

func systemCapture(t *testing.T, system *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		*system = req.Messages[0].Content
		_, _ = w.Write([]byte(completion("ok")))
	}))
}

func TestAsk_DeepDive(t *testing.T) {
	var system string
	srv := systemCapture(t, &system)
	defer srv.Close()

	details := &fakeDetails{}
	turn, err := NewBridge(Config{Endpoint: srv.URL}, WithDetailFetcher(details)).Ask(context.Background(), "¿Resumen?", docs(2))
	if err != nil {
		t.Fatal(err)
	}
	if !turn.DeepDive || !reflect.DeepEqual(details.ids, []int{1, 2}) {
		t.Errorf("deep dive = %v, ids = %v", turn.DeepDive, details.ids)
	}
	if !strings.Contains(system, "=== INICIO DOCUMENTO ID:2 ===") || !strings.Contains(system, "texto íntegro") {
		t.Errorf("system prompt is not the deep-dive context:\n%s", system)
	}
}

func TestAsk_DeepDiveFallsBack(t *testing.T) {
	var system string
	srv := systemCapture(t, &system)
	defer srv.Close()

	details := &fakeDetails{err: errors.New("404")}
	turn, err := NewBridge(Config{Endpoint: srv.URL}, WithDetailFetcher(details)).Ask(context.Background(), "¿Resumen?", docs(1))
	if err != nil {
		t.Fatal(err)
	}
	if turn.DeepDive || !strings.Contains(system, "biblioteca de 1 documentos") {
		t.Errorf("expected summary context after detail failure:\n%s", system)
	}

	// Three documents never trigger a deep dive.
	details = &fakeDetails{}
	if _, err := NewBridge(Config{Endpoint: srv.URL}, WithDetailFetcher(details)).Ask(context.Background(), "x", docs(3)); err != nil {
		t.Fatal(err)
	}
	if details.ids != nil {
		t.Errorf("details fetched for 3 documents: %v", details.ids)
	}
}

type reverseRanker struct{}

func (reverseRanker) Rank(ctx context.Context, q string, docs []domain.Record) ([]domain.Record, error) {
	out := make([]domain.Record, len(docs))
	for i, d := range docs {
		out[len(docs)-1-i] = d
	}
	return out, nil
}

func TestAsk_RankerOrdersContext(t *testing.T) {
	var system string
	srv := systemCapture(t, &system)
	defer srv.Close()

	_, err := NewBridge(Config{Endpoint: srv.URL, MaxItems: 1}, WithRanker(reverseRanker{})).Ask(context.Background(), "x", docs(3))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(system, "[ID:3]") || strings.Contains(system, "[ID:1]") {
		t.Errorf("ranked context should keep only document 3:\n%s", system)
	}
}

func TestTurnState_String(t *testing.T) {
	if StateRetryBackoff.String() != "retry_backoff" || TurnState(42).String() != "TurnState(42)" {
		t.Error("unexpected TurnState names")
	}
}
