package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jaakkos/gwp/internal/domain"
	"github.com/jaakkos/gwp/internal/retry"
)

// ErrServiceBusy is returned when the endpoint keeps throttling after every
// retry.
var ErrServiceBusy = errors.New("el asistente está ocupado, inténtalo de nuevo en unos segundos")

// ErrEmptyQuestion is returned by Ask for a blank question.
var ErrEmptyQuestion = errors.New("empty question")

// ServerError is any non-2xx response other than throttling.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("chat endpoint error: %d", e.Status)
}

// errThrottled marks a 429 response inside the retry loop.
var errThrottled = errors.New("throttled")

const noAnswer = "Sin respuesta"

// TurnState is the lifecycle state of one chat turn.
type TurnState int

const (
	StateIdle TurnState = iota
	StateSending
	StateAwaitingResponse
	StateRetryBackoff
	StateRendered
	StateFailed
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateRetryBackoff:
		return "retry_backoff"
	case StateRendered:
		return "rendered"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("TurnState(%d)", int(s))
}

// Turn is one question and its outcome.
type Turn struct {
	ID       string    `json:"id"`
	Question string    `json:"question"`
	State    TurnState `json:"-"`
	Attempts int       `json:"attempts"`
	DeepDive bool      `json:"deep_dive"`
	Reply    Reply     `json:"reply"`
	Err      error     `json:"-"`
}

// Config holds the endpoint settings.
type Config struct {
	Endpoint         string
	Model            string
	APIKey           string
	Temperature      float64
	MaxItems         int
	MaxCharsPerItem  int
	DeepDiveMaxChars int
	Retry            retry.Policy // used as given; the zero policy never retries
}

// DetailFetcher loads the full content of repository documents.
// Implementation: gwpapi.Client.
type DetailFetcher interface {
	DocumentDetails(ctx context.Context, ids []int) ([]domain.Record, error)
}

// Ranker orders documents by relevance to a question.
// Implementation: knowledge.Store.
type Ranker interface {
	Rank(ctx context.Context, question string, docs []domain.Record) ([]domain.Record, error)
}

// Bridge sends chat turns to the completion endpoint.
type Bridge struct {
	cfg     Config
	http    *http.Client
	details DetailFetcher
	ranker  Ranker
	logger  *log.Logger
	observe func(Turn)
}

// Option configures the bridge.
type Option func(*Bridge)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *Bridge) { b.http = hc }
}

// WithDetailFetcher enables deep-dive mode for one or two documents.
func WithDetailFetcher(f DetailFetcher) Option {
	return func(b *Bridge) { b.details = f }
}

// WithRanker orders documents by relevance before the context is cut.
func WithRanker(r Ranker) Option {
	return func(b *Bridge) { b.ranker = r }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithStateObserver registers fn to receive every turn state transition.
func WithStateObserver(fn func(Turn)) Option {
	return func(b *Bridge) { b.observe = fn }
}

// NewBridge creates a bridge.
func NewBridge(cfg Config, opts ...Option) *Bridge {
	if cfg.DeepDiveMaxChars == 0 {
		cfg.DeepDiveMaxChars = DefaultDeepDiveMaxChars
	}
	b := &Bridge{
		cfg:    cfg,
		http:   &http.Client{Timeout: 120 * time.Second},
		logger: log.New(io.Discard, "", 0),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Ask sends question with docs as context. The returned turn is always
// non-nil and ends in StateIdle; its Err matches the returned error.
func (b *Bridge) Ask(ctx context.Context, question string, docs []domain.Record) (*Turn, error) {
	turn := &Turn{ID: uuid.NewString(), Question: strings.TrimSpace(question), State: StateIdle}
	if turn.Question == "" {
		turn.Err = ErrEmptyQuestion
		return turn, ErrEmptyQuestion
	}
	b.transition(turn, StateSending)

	system := b.systemPrompt(ctx, turn, docs)
	req := completionRequest{
		Model: b.cfg.Model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: turn.Question},
		},
		Temperature: b.cfg.Temperature,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return b.fail(turn, fmt.Errorf("marshal request: %w", err))
	}

	policy := b.cfg.Retry
	policy.Retryable = func(err error) bool { return errors.Is(err, errThrottled) }
	policy.OnRetry = func(attempt int, delay time.Duration, _ error) {
		b.logger.Printf("chat: turn %s throttled, retry %d/%d in %s", turn.ID, attempt, policy.MaxRetries, delay)
		b.transition(turn, StateRetryBackoff)
	}
	content, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		turn.Attempts++
		b.transition(turn, StateAwaitingResponse)
		return b.send(ctx, payload)
	})
	if err != nil {
		if errors.Is(err, errThrottled) {
			err = ErrServiceBusy
		}
		return b.fail(turn, err)
	}

	turn.Reply = ParseReply(content)
	b.transition(turn, StateRendered)
	b.transition(turn, StateIdle)
	return turn, nil
}

func (b *Bridge) systemPrompt(ctx context.Context, turn *Turn, docs []domain.Record) string {
	if b.details != nil && ShouldDeepDive(docs) {
		ids := make([]int, 0, len(docs))
		for _, d := range docs {
			ids = append(ids, d.ID())
		}
		full, err := b.details.DocumentDetails(ctx, ids)
		if err == nil && len(full) > 0 {
			turn.DeepDive = true
			return BuildDeepDiveContext(full, turn.Question, b.cfg.DeepDiveMaxChars)
		}
		b.logger.Printf("chat: deep dive for %v unavailable (%v), using summaries", ids, err)
	}
	if b.ranker != nil && len(docs) > 1 {
		ranked, err := b.ranker.Rank(ctx, turn.Question, docs)
		if err != nil {
			b.logger.Printf("chat: rank documents: %v", err)
		} else {
			docs = ranked
		}
	}
	return BuildContext(docs, b.cfg.MaxItems, b.cfg.MaxCharsPerItem)
}

func (b *Bridge) send(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errThrottled
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ServerError{Status: resp.StatusCode, Body: string(body)}
	}

	var out completionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return noAnswer, nil
	}
	return out.Choices[0].Message.Content, nil
}

func (b *Bridge) fail(turn *Turn, err error) (*Turn, error) {
	turn.Err = err
	b.logger.Printf("chat: turn %s failed: %v", turn.ID, err)
	b.transition(turn, StateFailed)
	b.transition(turn, StateIdle)
	return turn, err
}

func (b *Bridge) transition(turn *Turn, s TurnState) {
	turn.State = s
	if b.observe != nil {
		b.observe(*turn)
	}
}
