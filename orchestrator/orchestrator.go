// Package orchestrator runs generation sessions: it turns a style
// selection into a sequential run of transform calls, tracks per-item
// progress, charges and refunds credits, and archives finished sessions.
//
// All methods are safe for concurrent use. Transform calls never run under
// the orchestrator's lock; everything else is synchronous bookkeeping.
package orchestrator

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"alterego/credits"
	"alterego/favorites"
	"alterego/history"
	"alterego/imagegen"
	"alterego/logging"
	"alterego/metrics"
	"alterego/models"
	"alterego/styles"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder receives one activity record per transform call. *db.Repository
// satisfies it. RecordTransform must not block.
type Recorder interface {
	RecordTransform(ev models.TransformEvent) bool
}

// Tracker gates background runs during shutdown. *shutdown.OperationTracker
// satisfies it.
type Tracker interface {
	Start() bool
	Done()
}

// ErrShuttingDown is returned when the tracker refuses new runs.
var ErrShuttingDown = errors.New("orchestrator: shutting down")

// Config wires an Orchestrator. Catalog, Transformer, Ledger and History
// are required.
type Config struct {
	Catalog     *styles.Catalog
	Transformer imagegen.Transformer
	Ledger      *credits.Ledger
	History     *history.History
	Favorites   *favorites.Favorites

	// Provider names the backend in activity records
	Provider string
	Logger   *logging.Logger
	Metrics  *metrics.Metrics
	Recorder Recorder
	Tracker  Tracker
	// Rand drives wildcard resolution and shuffles (default math/rand/v2)
	Rand styles.Rand
	// Now is the clock used for history timestamps (default time.Now)
	Now func() time.Time
}

// Snapshot is a deep copy of the observable state.
type Snapshot struct {
	State   models.AppState `json:"state"`
	Session models.Session  `json:"session"`
	// GeneratingIndex is the batch cursor, -1 when not generating
	GeneratingIndex int            `json:"generatingIndex"`
	Restored        bool           `json:"restored"`
	ActiveStyles    []styles.Style `json:"activeStyles"`
	Credits         credits.State  `json:"credits"`
	// Version increases with every published change
	Version uint64 `json:"version"`
}

// batch is the bookkeeping of the running batch. It is owned by o.mu.
type batch struct {
	run    *Run
	cancel context.CancelFunc
	epoch  uint64
}

// Orchestrator owns the working session and the app state machine.
type Orchestrator struct {
	catalog     *styles.Catalog
	transformer imagegen.Transformer
	ledger      *credits.Ledger
	history     *history.History
	favorites   *favorites.Favorites
	provider    string
	logger      *logging.Logger
	metrics     *metrics.Metrics
	recorder    Recorder
	tracker     Tracker
	rng         styles.Rand
	now         func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	state    models.AppState
	session  models.Session
	restored bool
	offer    []styles.Style
	genIndex int
	batch    *batch
	// epoch changes whenever the active session is replaced; late results
	// tagged with an older epoch are dropped
	epoch uint64
	// archivePending is set when a batch finished while a regenerate was
	// still in flight; the regenerate archives on completion
	archivePending bool
	version        uint64
	closed         bool
	subs           map[uint64]*subscriber
	nextSub        uint64
}

// globalRand is math/rand/v2's concurrency-safe top-level source.
type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// New creates an Orchestrator in the Idle state.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Catalog == nil:
		return nil, errors.New("orchestrator: catalog is required")
	case cfg.Transformer == nil:
		return nil, errors.New("orchestrator: transformer is required")
	case cfg.Ledger == nil:
		return nil, errors.New("orchestrator: ledger is required")
	case cfg.History == nil:
		return nil, errors.New("orchestrator: history is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = globalRand{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		catalog:     cfg.Catalog,
		transformer: cfg.Transformer,
		ledger:      cfg.Ledger,
		history:     cfg.History,
		favorites:   cfg.Favorites,
		provider:    cfg.Provider,
		logger:      logger.Named("orchestrator"),
		metrics:     cfg.Metrics,
		recorder:    cfg.Recorder,
		tracker:     cfg.Tracker,
		rng:         rng,
		now:         now,
		baseCtx:     ctx,
		baseCancel:  cancel,
		state:       models.StateIdle,
		offer:       cfg.Catalog.Defaults(),
		genIndex:    -1,
		subs:        make(map[uint64]*subscriber),
	}
	o.session = o.emptySession("")
	o.metrics.SetBalance(cfg.Ledger.Balance())
	return o, nil
}

// Ledger returns the credit ledger.
func (o *Orchestrator) Ledger() *credits.Ledger { return o.ledger }

// History returns the session history store.
func (o *Orchestrator) History() *history.History { return o.history }

// Favorites returns the favorites store. It may be nil.
func (o *Orchestrator) Favorites() *favorites.Favorites { return o.favorites }

// Catalog returns the style catalog.
func (o *Orchestrator) Catalog() *styles.Catalog { return o.catalog }

// State returns the current app state.
func (o *Orchestrator) State() models.AppState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot returns a deep copy of the observable state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		State:           o.state,
		Session:         o.session.Clone(),
		GeneratingIndex: o.genIndex,
		Restored:        o.restored,
		ActiveStyles:    append([]styles.Style(nil), o.offer...),
		Credits:         o.ledger.State(),
		Version:         o.version,
	}
}

// publishLocked bumps the version and hands the new snapshot to every
// subscriber without blocking.
func (o *Orchestrator) publishLocked() {
	o.version++
	if len(o.subs) == 0 {
		return
	}
	snap := o.snapshotLocked()
	for _, s := range o.subs {
		s.offer(snap)
	}
}

// Notify publishes the current state. Callers use it after mutating the
// ledger directly (packs, pro toggle) so subscribers see the new balance.
func (o *Orchestrator) Notify() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metrics.SetBalance(o.ledger.Balance())
	o.publishLocked()
}

func (o *Orchestrator) emptySession(source models.ImageHandle) models.Session {
	return models.Session{
		SourceImage:    source,
		SelectedStyles: []string{},
		Images:         map[string]models.GeneratedImage{},
	}
}

// replaceSessionLocked installs s as the active session and invalidates
// every result still in flight for the previous one.
func (o *Orchestrator) replaceSessionLocked(s models.Session, restored bool) {
	o.epoch++
	o.session = s
	o.restored = restored
	o.archivePending = false
}

// startOp registers a background run with the tracker.
func (o *Orchestrator) startOp() bool {
	if o.tracker == nil {
		return true
	}
	return o.tracker.Start()
}

func (o *Orchestrator) endOp() {
	if o.tracker != nil {
		o.tracker.Done()
	}
}

func newRunID() string {
	return uuid.NewString()
}

// record reports one finished transform to the activity log and metrics.
func (o *Orchestrator) record(run *Run, style, target string, started time.Time, status, message string) {
	elapsed := time.Since(started)
	if o.recorder != nil {
		ok := o.recorder.RecordTransform(models.TransformEvent{
			RunID:        run.ID,
			Kind:         run.Kind,
			Style:        style,
			Target:       target,
			Provider:     o.provider,
			Status:       status,
			ErrorMessage: message,
			DurationMS:   elapsed.Milliseconds(),
			CreatedAt:    started,
		})
		if !ok {
			o.logger.Warn("Activity record dropped", zap.String("run_id", run.ID))
		}
	}

	taskStatus := metrics.TaskStatusSuccess
	switch status {
	case models.OutcomeError:
		taskStatus = metrics.TaskStatusError
	case models.OutcomeCancelled:
		taskStatus = metrics.TaskStatusCancelled
	}
	o.metrics.RecordTransform(metrics.TaskRecord{
		ID:        run.ID,
		Kind:      string(run.Kind),
		Style:     style,
		Target:    target,
		Provider:  o.provider,
		Status:    taskStatus,
		StartTime: started,
		Duration:  elapsed,
		ErrorMsg:  message,
	})
}

// archive appends a finished session to history. It runs outside o.mu.
func (o *Orchestrator) archive(runID string, images map[string]models.GeneratedImage, source models.ImageHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry, err := o.history.Append(ctx, models.HistorySession{
		SourceImage: source,
		Images:      images,
		Timestamp:   o.now().UnixMilli(),
	})
	if err != nil {
		o.logger.Error("Failed to persist history", zap.String("run_id", runID), zap.Error(err))
		return
	}
	o.logger.Info("Session archived",
		zap.String("run_id", runID),
		zap.Int64("timestamp", entry.Timestamp),
		zap.Int("images", len(images)))
}

// Close cancels any running batch with a refund, aborts in-flight
// transforms, closes every subscription and waits for background work.
// It is idempotent.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	if o.batch != nil {
		o.cancelBatchLocked(models.StateImageUploaded)
	}
	subs := o.subs
	o.subs = map[uint64]*subscriber{}
	o.metrics.SetSubscribers(0)
	o.mu.Unlock()

	o.baseCancel()
	for _, s := range subs {
		s.close()
	}
	o.wg.Wait()
	return nil
}

// Shutdown is Close bounded by ctx, for the shutdown manager.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.Close()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
