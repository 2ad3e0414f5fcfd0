package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/rl1809/labstock/internal/core/domain"
)

func newTestEngine(t *testing.T, endpoint string, opts SyncOptions) (*SyncEngine, *InventoryService, *mockRemote, *mockKV) {
	t.Helper()
	svc, kv := newTestService(t, InventoryOptions{})
	if endpoint != "" {
		// Spreadsheet links are refused by the service, so tests that need
		// one write the config key directly and reload.
		raw, _ := json.Marshal(endpoint)
		kv.data[DefaultKeyPrefix+keyEndpointURL] = raw
		if err := svc.Load(context.Background()); err != nil {
			t.Fatalf("reload failed: %v", err)
		}
	}
	remote := &mockRemote{}
	engine := NewSyncEngine(remote, svc, nil, opts)
	svc.AttachSyncer(engine)
	return engine, svc, remote, kv
}

func TestPush_NoRequestUnlessValidExec(t *testing.T) {
	for _, url := range []string{"", "https://example.com/exec", "https://script.google.com/macros/s/X/dev"} {
		engine, _, remote, _ := newTestEngine(t, url, SyncOptions{})

		outcome, err := engine.Push(context.Background(), nil)
		if err != nil || outcome != PushSkipped {
			t.Errorf("%q: expected silent skip, got %s %v", url, outcome, err)
		}
		if remote.postCount() != 0 {
			t.Errorf("%q: expected no request, got %d", url, remote.postCount())
		}
	}
}

func TestPush_SpreadsheetLinkReported(t *testing.T) {
	engine, _, remote, _ := newTestEngine(t, "https://docs.google.com/spreadsheets/d/abc/edit", SyncOptions{})

	outcome, err := engine.Push(context.Background(), nil)
	if !errors.Is(err, ErrSpreadsheetLink) || outcome != PushRejected {
		t.Errorf("expected spreadsheet rejection, got %s %v", outcome, err)
	}
	if err := engine.SchedulePush(domain.Snapshot{}); !errors.Is(err, ErrSpreadsheetLink) {
		t.Errorf("expected SchedulePush to report spreadsheet link, got %v", err)
	}
	if remote.postCount() != 0 {
		t.Errorf("expected no request, got %d", remote.postCount())
	}
	if engine.Report().Link != domain.LinkSpreadsheetUI {
		t.Errorf("expected SPREADSHEET_UI link state, got %s", engine.Report().Link)
	}
}

func TestPush_CapsTransactions(t *testing.T) {
	engine, _, remote, _ := newTestEngine(t, validEndpoint, SyncOptions{})

	snap := domain.Snapshot{}
	for i := 0; i < 1000; i++ {
		snap.Transactions = append(snap.Transactions, domain.Transaction{ID: fmt.Sprintf("t%04d", i)})
	}

	if _, err := engine.Push(context.Background(), &snap); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	var sent pushPayload
	if err := json.Unmarshal(remote.posts[0], &sent); err != nil {
		t.Fatalf("payload unreadable: %v", err)
	}
	if len(sent.Transactions) != 800 {
		t.Fatalf("expected 800 transactions, got %d", len(sent.Transactions))
	}
	if sent.Transactions[0].ID != "t0000" || sent.Transactions[799].ID != "t0799" {
		t.Errorf("expected newest 800 kept, got %s..%s", sent.Transactions[0].ID, sent.Transactions[799].ID)
	}
	if sent.Items == nil || sent.Users == nil || sent.Suppliers == nil {
		t.Error("empty collections must encode as arrays")
	}
}

func TestPush_DefaultsToCurrentState(t *testing.T) {
	engine, svc, remote, _ := newTestEngine(t, validEndpoint, SyncOptions{})

	if _, err := engine.Push(context.Background(), nil); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	var sent pushPayload
	if err := json.Unmarshal(remote.posts[0], &sent); err != nil {
		t.Fatalf("payload unreadable: %v", err)
	}
	if !reflect.DeepEqual(sent.Items, svc.Items()) {
		t.Errorf("pushed items differ from local catalog")
	}
}

func TestPush_FailureSettlesToIdle(t *testing.T) {
	engine, _, remote, _ := newTestEngine(t, validEndpoint, SyncOptions{SettleDelay: 30 * time.Millisecond})
	remote.postErr = errors.New("connection reset")

	outcome, err := engine.Push(context.Background(), nil)
	if !errors.Is(err, ErrRemoteUnavailable) || outcome != PushFailed {
		t.Fatalf("expected ErrRemoteUnavailable, got %s %v", outcome, err)
	}
	if engine.Status() != domain.SyncPushing {
		t.Errorf("expected status to stay visible during settle delay, got %s", engine.Status())
	}
	waitFor(t, "idle status", func() bool { return engine.Status() == domain.SyncIdle })
	if engine.Report().LastError == "" {
		t.Error("expected last error recorded")
	}
}

func TestPull_ReadyLeavesCatalogIdentical(t *testing.T) {
	engine, svc, remote, kv := newTestEngine(t, validEndpoint, SyncOptions{})
	remote.fetchBody = []byte("READY")

	items := svc.Items()
	stored := kv.raw(DefaultKeyPrefix + keyItems)

	outcome, err := engine.Pull(context.Background())
	if err != nil || outcome != PullAlive {
		t.Fatalf("expected alive, got %s %v", outcome, err)
	}
	if !reflect.DeepEqual(items, svc.Items()) {
		t.Error("catalog changed after readiness reply")
	}
	if kv.raw(DefaultKeyPrefix+keyItems) != stored {
		t.Error("stored catalog changed after readiness reply")
	}
}

func TestPull_AppliesItems(t *testing.T) {
	engine, svc, remote, _ := newTestEngine(t, validEndpoint, SyncOptions{})
	remote.fetchBody = []byte(`{"items":[{"id":"R1","namabarang":"Remote","stok":"7"}],"users":[]}`)

	outcome, err := engine.Pull(context.Background())
	if err != nil || outcome != PullApplied {
		t.Fatalf("expected applied, got %s %v", outcome, err)
	}
	items := svc.Items()
	if len(items) != 1 || items[0].ID != "R1" || items[0].Stock != 7 {
		t.Errorf("unexpected catalog: %+v", items)
	}
	if got := len(svc.Users()); got != len(domain.SeedUsers()) {
		t.Errorf("users must not be refreshed by pull, got %d", got)
	}
}

func TestPull_MalformedIgnored(t *testing.T) {
	engine, svc, remote, _ := newTestEngine(t, validEndpoint, SyncOptions{})
	remote.fetchBody = []byte(`{"items":[{"id":"R1","stock":-4}]}`)
	before := svc.Items()

	outcome, err := engine.Pull(context.Background())
	if !errors.Is(err, ErrMalformedPayload) || outcome != PullIgnored {
		t.Fatalf("expected malformed payload ignored, got %s %v", outcome, err)
	}
	if !reflect.DeepEqual(before, svc.Items()) {
		t.Error("catalog changed after malformed pull")
	}
}

func TestPull_SkippedForForeignHost(t *testing.T) {
	engine, _, remote, _ := newTestEngine(t, "https://example.com/exec", SyncOptions{})

	outcome, err := engine.Pull(context.Background())
	if err != nil || outcome != PullSkipped {
		t.Errorf("expected skip, got %s %v", outcome, err)
	}
	if remote.fetchCount() != 0 {
		t.Error("expected no request")
	}
}

func TestPull_InvalidateDiscardsInFlight(t *testing.T) {
	recorder := &mockRecorder{}
	engine, svc, remote, _ := newTestEngine(t, validEndpoint, SyncOptions{Recorder: recorder})
	remote.fetchBody = []byte(`{"items":[{"id":"late","stock":1}]}`)
	remote.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Close()

	if _, err := svc.Login("admin", "1234"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	waitFor(t, "pull request", func() bool { return remote.fetchCount() == 1 })
	if engine.Status() != domain.SyncPulling {
		t.Errorf("expected PULLING, got %s", engine.Status())
	}

	svc.Logout()
	close(remote.gate)

	waitFor(t, "stale pull", func() bool { return recorder.has("pull:stale") })
	if _, err := svc.Item("late"); err == nil {
		t.Error("stale pull was applied after logout")
	}
	waitFor(t, "idle status", func() bool { return engine.Status() == domain.SyncIdle })
}

func TestPull_ResetDiscardsInFlight(t *testing.T) {
	recorder := &mockRecorder{}
	engine, svc, remote, kv := newTestEngine(t, validEndpoint, SyncOptions{Recorder: recorder})
	remote.fetchBody = []byte(`{"items":[{"id":"late","stock":1}]}`)
	remote.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Close()

	if _, err := svc.Login("admin", "1234"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	waitFor(t, "pull request", func() bool { return remote.fetchCount() == 1 })

	if err := svc.Reset(ctx); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	close(remote.gate)

	waitFor(t, "stale pull", func() bool { return recorder.has("pull:stale") })
	if _, err := svc.Item("late"); err == nil {
		t.Error("pull started before reset was applied")
	}
	if raw := kv.raw(DefaultKeyPrefix + keyItems); raw != "" {
		t.Errorf("remote catalog persisted after reset: %s", raw)
	}
}

func TestPull_NewerPullSupersedesOlder(t *testing.T) {
	engine, svc, remote, _ := newTestEngine(t, validEndpoint, SyncOptions{})
	remote.fetchBody = []byte(`{"items":[{"id":"first"}]}`)
	firstGate := make(chan struct{})
	remote.gate = firstGate

	done := make(chan PullOutcome, 1)
	go func() {
		outcome, _ := engine.Pull(context.Background())
		done <- outcome
	}()
	waitFor(t, "first pull", func() bool { return remote.fetchCount() == 1 })

	remote.mu.Lock()
	remote.gate = nil
	remote.fetchBody = []byte(`{"items":[{"id":"second"}]}`)
	remote.mu.Unlock()

	if outcome, err := engine.Pull(context.Background()); err != nil || outcome != PullApplied {
		t.Fatalf("expected second pull applied, got %s %v", outcome, err)
	}

	close(firstGate)

	if outcome := <-done; outcome != PullStale {
		t.Errorf("expected first pull stale, got %s", outcome)
	}
	if items := svc.Items(); len(items) != 1 || items[0].ID != "second" {
		t.Errorf("expected catalog from newer pull, got %+v", items)
	}
}

func TestSchedulePush_WorkerSendsSnapshot(t *testing.T) {
	engine, svc, remote, _ := newTestEngine(t, validEndpoint, SyncOptions{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	if err := svc.SetAutoSync(ctx, true); err != nil {
		t.Fatalf("enable auto-sync failed: %v", err)
	}
	if _, err := svc.AddSupplier(ctx, domain.Supplier{Name: "PT Auto"}); err != nil {
		t.Fatalf("add supplier failed: %v", err)
	}

	engine.Close()
	if remote.postCount() != 1 {
		t.Fatalf("expected one push, got %d", remote.postCount())
	}

	var sent pushPayload
	if err := json.Unmarshal(remote.posts[0], &sent); err != nil {
		t.Fatalf("payload unreadable: %v", err)
	}
	if len(sent.Suppliers) != len(domain.SeedSuppliers())+1 {
		t.Errorf("expected new supplier in push, got %d suppliers", len(sent.Suppliers))
	}

	if err := engine.SchedulePush(domain.Snapshot{}); !errors.Is(err, ErrSyncClosed) {
		t.Errorf("expected ErrSyncClosed after close, got %v", err)
	}
}

func TestSchedulePush_QueueFull(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, validEndpoint, SyncOptions{QueueSize: 1})

	// not started: the first task stays queued
	if err := engine.SchedulePush(domain.Snapshot{}); err != nil {
		t.Fatalf("first schedule failed: %v", err)
	}
	if err := engine.SchedulePush(domain.Snapshot{}); !errors.Is(err, ErrSyncQueueFull) {
		t.Errorf("expected ErrSyncQueueFull, got %v", err)
	}
}
