package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jaakkos/gwp/internal/domain"
)

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	last  []domain.Collection
	err   error
}

func (r *countingRefresher) RefreshAll(ctx context.Context, cs ...domain.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = cs
	return r.err
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestNotifier_CheckOnce_NoRefreshWithoutChange(t *testing.T) {
	signalPath := filepath.Join(t.TempDir(), ".gwp-refresh")
	_ = TouchNotifySignal(signalPath)

	r := &countingRefresher{}
	n := NewNotifier(signalPath, r, nil)
	if n.CheckOnce(context.Background()) {
		t.Error("the startup revision should not trigger a refresh")
	}
	if r.count() != 0 {
		t.Errorf("refresh calls = %d, want 0", r.count())
	}
}

func TestNotifier_CheckOnce_RefreshOnNewRevision(t *testing.T) {
	signalPath := filepath.Join(t.TempDir(), ".gwp-refresh")
	r := &countingRefresher{}
	n := NewNotifier(signalPath, r, nil, WithCollections(domain.CollectionPlan, domain.CollectionHitos))

	if err := TouchNotifySignal(signalPath); err != nil {
		t.Fatal(err)
	}
	if !n.CheckOnce(context.Background()) {
		t.Fatal("new revision should trigger a refresh")
	}
	if n.CheckOnce(context.Background()) {
		t.Error("same revision should refresh once")
	}
	if r.count() != 1 {
		t.Errorf("refresh calls = %d, want 1", r.count())
	}
	if len(r.last) != 2 || r.last[0] != domain.CollectionPlan {
		t.Errorf("refreshed %v, want [plan hitos]", r.last)
	}
}

func TestNotifier_CheckOnce_MissingSignalFile(t *testing.T) {
	signalPath := filepath.Join(t.TempDir(), ".gwp-refresh")
	r := &countingRefresher{}
	n := NewNotifier(signalPath, r, nil)
	if n.CheckOnce(context.Background()) || r.count() != 0 {
		t.Error("no refresh expected without a signal file")
	}
}

func TestNotifier_CheckOnce_RefreshErrorConsumesRevision(t *testing.T) {
	signalPath := filepath.Join(t.TempDir(), ".gwp-refresh")
	r := &countingRefresher{err: errors.New("backend down")}
	n := NewNotifier(signalPath, r, nil)

	_ = os.WriteFile(signalPath, []byte("42"), 0644)
	n.CheckOnce(context.Background())
	n.CheckOnce(context.Background())
	if r.count() != 1 {
		t.Errorf("refresh calls = %d, want 1", r.count())
	}
}

func TestNotifier_PollPicksUpRevision(t *testing.T) {
	signalPath := filepath.Join(t.TempDir(), ".gwp-refresh")
	r := &countingRefresher{}
	n := NewNotifier(signalPath, r, nil, WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Start(ctx)

	_ = os.WriteFile(signalPath, []byte("1"), 0644)
	deadline := time.Now().Add(2 * time.Second)
	for r.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.count() == 0 {
		t.Error("notifier did not refresh after the signal changed")
	}
	cancel()
	n.Stop()
}

func TestNotifier_Start_Stop_Graceful(t *testing.T) {
	signalPath := filepath.Join(t.TempDir(), ".gwp-refresh")
	_ = os.WriteFile(signalPath, []byte("1"), 0644)

	n := NewNotifier(signalPath, &countingRefresher{}, nil, WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		n.Start(ctx)
		close(done)
	}()
	time.Sleep(25 * time.Millisecond)
	cancel()
	n.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestNotifier_StopWithoutStart(t *testing.T) {
	n := NewNotifier(filepath.Join(t.TempDir(), ".gwp-refresh"), &countingRefresher{}, nil)

	done := make(chan struct{})
	go func() {
		n.Stop()
		n.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without Start")
	}

	// Start after Stop returns at once.
	started := make(chan struct{})
	go func() {
		n.Start(context.Background())
		close(started)
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("Start after Stop did not return")
	}
}
