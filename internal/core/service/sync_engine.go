package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/labstock/internal/core/domain"
	"github.com/rl1809/labstock/internal/port"
)

var (
	ErrSpreadsheetLink   = errors.New("endpoint is a spreadsheet link, not a deployed script")
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrSyncQueueFull     = errors.New("sync queue full")
	ErrSyncClosed        = errors.New("sync engine closed")
)

const (
	DefaultMaxTransactions = 800
	pullAction             = "getData"
	maxLoggedResponse      = 256
)

type PushOutcome string

const (
	PushSkipped  PushOutcome = "skipped"
	PushRejected PushOutcome = "rejected"
	PushSent     PushOutcome = "sent"
	PushFailed   PushOutcome = "failed"
)

type PullOutcome string

const (
	PullSkipped PullOutcome = "skipped"
	PullAlive   PullOutcome = "alive"
	PullIgnored PullOutcome = "ignored"
	PullNoItems PullOutcome = "no_items"
	PullStale   PullOutcome = "stale"
	PullApplied PullOutcome = "applied"
	PullFailed  PullOutcome = "failed"
)

// Recorder receives sync telemetry. Every SyncStarted is matched by one
// SyncFinished; attempts gated out before any request only see SyncSkipped.
type Recorder interface {
	SyncStarted(op string)
	SyncFinished(op, outcome string, elapsed time.Duration)
	SyncSkipped(op, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) SyncStarted(string)                         {}
func (nopRecorder) SyncFinished(string, string, time.Duration) {}
func (nopRecorder) SyncSkipped(string, string)                 {}

type SyncOptions struct {
	Workers         int
	QueueSize       int
	SettleDelay     time.Duration
	Timeout         time.Duration
	MaxTransactions int
	Recorder        Recorder
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.MaxTransactions <= 0 {
		o.MaxTransactions = DefaultMaxTransactions
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	return o
}

// SyncReport is the externally visible state of the engine.
type SyncReport struct {
	Status     domain.SyncStatus `json:"status"`
	Link       domain.LinkState  `json:"link"`
	LastPushAt *time.Time        `json:"lastPushAt,omitempty"`
	LastPullAt *time.Time        `json:"lastPullAt,omitempty"`
	LastError  string            `json:"lastError,omitempty"`
}

type taskKind int

const (
	taskPush taskKind = iota
	taskPull
)

type syncTask struct {
	kind       taskKind
	snapshot   domain.Snapshot
	generation uint64
}

// pushPayload fixes the field order of the uploaded document.
type pushPayload struct {
	Items        []domain.InventoryItem `json:"items"`
	Users        []domain.UserAccount   `json:"users"`
	Suppliers    []domain.Supplier      `json:"suppliers"`
	Transactions []domain.Transaction   `json:"transactions"`
}

// SyncEngine moves snapshots to the remote mirror and catalogs back from
// it. Work is queued and executed by a fixed pool of workers; pushes and
// pulls may overlap.
type SyncEngine struct {
	client port.RemoteClient
	sink   port.CatalogSink
	logger *zap.Logger
	opts   SyncOptions

	queue   chan syncTask
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool
	ctx     context.Context

	// generation identifies the latest pull; a pull that finds it moved on
	// discards its response. applyMu makes the check and the write atomic
	// with respect to Invalidate.
	generation atomic.Uint64
	applyMu    sync.Mutex

	statusMu   sync.Mutex
	pushing    int
	pulling    int
	lastPushAt time.Time
	lastPullAt time.Time
	lastErr    error
}

func NewSyncEngine(client port.RemoteClient, sink port.CatalogSink, logger *zap.Logger, opts SyncOptions) *SyncEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &SyncEngine{
		client: client,
		sink:   sink,
		logger: logger,
		opts:   opts,
		queue:  make(chan syncTask, opts.QueueSize),
		ctx:    context.Background(),
	}
}

// Start launches the workers. Cancelling ctx aborts in-flight requests.
func (e *SyncEngine) Start(ctx context.Context) {
	e.ctx = ctx
	for i := 0; i < e.opts.Workers; i++ {
		e.wg.Add(1)
		go func(id int) {
			defer e.wg.Done()
			e.workerLoop(id)
		}(i)
	}
	e.logger.Info("sync workers started", zap.Int("workers", e.opts.Workers))
}

// Close stops accepting work and waits for queued tasks to finish.
func (e *SyncEngine) Close() {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.closeMu.Unlock()

	e.wg.Wait()
	e.logger.Info("sync workers stopped")
}

func (e *SyncEngine) workerLoop(id int) {
	for task := range e.queue {
		ctx, cancel := context.WithTimeout(e.ctx, e.opts.Timeout)

		switch task.kind {
		case taskPush:
			if _, err := e.Push(ctx, &task.snapshot); err != nil {
				e.logger.Warn("push failed", zap.Int("worker", id), zap.Error(err))
			}
		case taskPull:
			outcome, err := e.pull(ctx, task.generation)
			if err != nil {
				e.logger.Warn("pull failed", zap.Int("worker", id), zap.String("outcome", string(outcome)), zap.Error(err))
			} else {
				e.logger.Debug("pull finished", zap.Int("worker", id), zap.String("outcome", string(outcome)))
			}
		}

		cancel()
	}
}

func (e *SyncEngine) enqueue(task syncTask) error {
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		return ErrSyncClosed
	}
	select {
	case e.queue <- task:
		return nil
	default:
		return ErrSyncQueueFull
	}
}

// SchedulePush queues a push of snapshot. The link is checked up front so
// a spreadsheet link is reported to the caller and a missing or partial
// one never occupies a worker.
func (e *SyncEngine) SchedulePush(snapshot domain.Snapshot) error {
	switch ClassifyLink(e.sink.SyncConfig().EndpointURL) {
	case domain.LinkSpreadsheetUI:
		e.opts.Recorder.SyncSkipped("push", string(PushRejected))
		return ErrSpreadsheetLink
	case domain.LinkEmpty, domain.LinkMalformed:
		e.opts.Recorder.SyncSkipped("push", string(PushSkipped))
		return nil
	}
	return e.enqueue(syncTask{kind: taskPush, snapshot: snapshot.Clone()})
}

// SchedulePull queues a catalog refresh. Any pull queued or running
// before it becomes stale.
func (e *SyncEngine) SchedulePull() {
	gen := e.generation.Add(1)
	if err := e.enqueue(syncTask{kind: taskPull, generation: gen}); err != nil {
		e.logger.Warn("pull not scheduled", zap.Error(err))
	}
}

// Invalidate makes every pull started so far stale. Once it returns no
// such pull can still write to the catalog.
func (e *SyncEngine) Invalidate() {
	e.applyMu.Lock()
	e.generation.Add(1)
	e.applyMu.Unlock()
}

// Push uploads snapshot, or the current local state when snapshot is nil.
// Nothing is sent unless the endpoint is a deployed script. The response
// body is only logged.
func (e *SyncEngine) Push(ctx context.Context, snapshot *domain.Snapshot) (PushOutcome, error) {
	url := e.sink.SyncConfig().EndpointURL
	switch link := ClassifyLink(url); link {
	case domain.LinkValidExec:
	case domain.LinkSpreadsheetUI:
		e.logger.Warn("push suppressed: endpoint is a spreadsheet link", zap.String("url", url))
		e.opts.Recorder.SyncSkipped("push", string(PushRejected))
		return PushRejected, ErrSpreadsheetLink
	default:
		e.logger.Debug("push skipped", zap.String("link", string(link)))
		e.opts.Recorder.SyncSkipped("push", string(PushSkipped))
		return PushSkipped, nil
	}

	if snapshot == nil {
		s := e.sink.Snapshot()
		snapshot = &s
	}
	body, err := json.Marshal(e.payload(*snapshot))
	if err != nil {
		return PushFailed, fmt.Errorf("encode push payload: %w", err)
	}

	start := e.begin(taskPush)
	resp, err := e.client.Post(ctx, url, body)
	e.end(taskPush, err)

	outcome := PushSent
	if err != nil {
		outcome = PushFailed
		err = remoteError(err)
	}
	e.opts.Recorder.SyncFinished("push", string(outcome), time.Since(start))
	if err != nil {
		return outcome, err
	}

	e.logger.Debug("push sent",
		zap.Int("items", len(snapshot.Items)),
		zap.Int("bytes", len(body)),
		zap.String("response", truncate(string(resp), maxLoggedResponse)),
	)
	return outcome, nil
}

// payload caps the transaction log to the most recent entries; the log is
// kept newest first, so the tail is what gets dropped.
func (e *SyncEngine) payload(s domain.Snapshot) pushPayload {
	txs := s.Transactions
	if len(txs) > e.opts.MaxTransactions {
		txs = txs[:e.opts.MaxTransactions]
	}
	return pushPayload{
		Items:        cloneOrEmpty(s.Items),
		Users:        cloneOrEmpty(s.Users),
		Suppliers:    cloneOrEmpty(s.Suppliers),
		Transactions: cloneOrEmpty(txs),
	}
}

// Pull fetches the remote catalog and, if it carries items, replaces the
// local catalog with it. Calling Pull supersedes any pull in flight.
func (e *SyncEngine) Pull(ctx context.Context) (PullOutcome, error) {
	return e.pull(ctx, e.generation.Add(1))
}

func (e *SyncEngine) pull(ctx context.Context, gen uint64) (PullOutcome, error) {
	url := e.sink.SyncConfig().EndpointURL
	if !CanPull(url) {
		e.opts.Recorder.SyncSkipped("pull", string(PullSkipped))
		return PullSkipped, nil
	}

	start := e.begin(taskPull)
	outcome, err := e.fetchAndApply(ctx, url, gen)
	e.end(taskPull, err)
	e.opts.Recorder.SyncFinished("pull", string(outcome), time.Since(start))
	return outcome, err
}

func (e *SyncEngine) fetchAndApply(ctx context.Context, url string, gen uint64) (PullOutcome, error) {
	body, err := e.client.Fetch(ctx, url, pullAction)
	if err != nil {
		return PullFailed, remoteError(err)
	}
	if isReadinessMarker(body) {
		return PullAlive, nil
	}

	items, hasItems, err := decodeRemoteCatalog(body)
	if err != nil {
		return PullIgnored, err
	}
	if !hasItems {
		return PullNoItems, nil
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	if e.generation.Load() != gen {
		return PullStale, nil
	}
	if err := e.sink.ReplaceItems(ctx, items); err != nil {
		return PullFailed, fmt.Errorf("apply pulled catalog: %w", err)
	}
	e.logger.Info("catalog refreshed from remote", zap.Int("items", len(items)))
	return PullApplied, nil
}

func remoteError(err error) error {
	if errors.Is(err, ErrRemoteUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
}

func (e *SyncEngine) begin(kind taskKind) time.Time {
	e.statusMu.Lock()
	if kind == taskPush {
		e.pushing++
		e.opts.Recorder.SyncStarted("push")
	} else {
		e.pulling++
		e.opts.Recorder.SyncStarted("pull")
	}
	e.statusMu.Unlock()
	return time.Now()
}

// end records the result and releases the in-flight status. A push stays
// visible for SettleDelay, success or not; a pull clears at once.
func (e *SyncEngine) end(kind taskKind, err error) {
	now := time.Now()
	e.statusMu.Lock()
	e.lastErr = err
	if kind == taskPull {
		e.pulling--
		e.lastPullAt = now
		e.statusMu.Unlock()
		return
	}
	e.lastPushAt = now
	if e.opts.SettleDelay <= 0 {
		e.pushing--
		e.statusMu.Unlock()
		return
	}
	e.statusMu.Unlock()

	time.AfterFunc(e.opts.SettleDelay, func() {
		e.statusMu.Lock()
		e.pushing--
		e.statusMu.Unlock()
	})
}

func (e *SyncEngine) Status() domain.SyncStatus {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.statusLocked()
}

func (e *SyncEngine) statusLocked() domain.SyncStatus {
	switch {
	case e.pushing > 0:
		return domain.SyncPushing
	case e.pulling > 0:
		return domain.SyncPulling
	default:
		return domain.SyncIdle
	}
}

func (e *SyncEngine) Report() SyncReport {
	link := ClassifyLink(e.sink.SyncConfig().EndpointURL)

	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	r := SyncReport{Status: e.statusLocked(), Link: link}
	if !e.lastPushAt.IsZero() {
		t := e.lastPushAt
		r.LastPushAt = &t
	}
	if !e.lastPullAt.IsZero() {
		t := e.lastPullAt
		r.LastPullAt = &t
	}
	if e.lastErr != nil {
		r.LastError = e.lastErr.Error()
	}
	return r
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
