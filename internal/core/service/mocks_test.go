package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rl1809/labstock/internal/core/domain"
)

const validEndpoint = "https://script.google.com/macros/s/AKfy-test/exec"

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

// Mock KeyValueStore
type mockKV struct {
	data      map[string][]byte
	failWrite error
	sets      int
	multiSets int
	mu        sync.Mutex
}

func newMockKV() *mockKV {
	return &mockKV{data: make(map[string][]byte)}
}

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockKV) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	m.sets++
	m.data[key] = value
	return nil
}

func (m *mockKV) SetMulti(ctx context.Context, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	m.multiSets++
	for k, v := range entries {
		m.data[k] = v
	}
	return nil
}

func (m *mockKV) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *mockKV) raw(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.data[key])
}

func (m *mockKV) setFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = err
}

// Mock RemoteClient
type mockRemote struct {
	posts     [][]byte
	fetches   int
	fetchBody []byte
	fetchErr  error
	postErr   error
	gate      chan struct{} // when set, Fetch blocks until it is closed
	mu        sync.Mutex
}

func (m *mockRemote) Post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, body)
	if m.postErr != nil {
		return nil, m.postErr
	}
	return []byte("OK"), nil
}

func (m *mockRemote) Fetch(ctx context.Context, endpoint, action string) ([]byte, error) {
	m.mu.Lock()
	m.fetches++
	gate := m.gate
	body, err := m.fetchBody, m.fetchErr
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return body, err
}

func (m *mockRemote) postCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

func (m *mockRemote) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// Mock Syncer
type mockSyncer struct {
	pushes      []domain.Snapshot
	pulls       int
	invalidates int
	pushErr     error
	mu          sync.Mutex
}

func (m *mockSyncer) SchedulePush(snapshot domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes = append(m.pushes, snapshot)
	return m.pushErr
}

func (m *mockSyncer) SchedulePull() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulls++
}

func (m *mockSyncer) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidates++
}

// Mock Recorder
type mockRecorder struct {
	outcomes []string
	mu       sync.Mutex
}

func (m *mockRecorder) SyncStarted(op string) {}

func (m *mockRecorder) SyncFinished(op, outcome string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, op+":"+outcome)
}

func (m *mockRecorder) SyncSkipped(op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, op+":"+outcome)
}

func (m *mockRecorder) has(entry string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.outcomes {
		if o == entry {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T, opts InventoryOptions) (*InventoryService, *mockKV) {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	kv := newMockKV()
	svc := NewInventoryService(NewLocalStore(kv, ""), nil, opts)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return svc, kv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
