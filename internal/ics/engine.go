package ics

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// State is the lifecycle stage of an Engine.
type State uint8

const (
	Uninitialized State = iota
	ParamsLoaded
	Trained
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case ParamsLoaded:
		return "params_loaded"
	case Trained:
		return "trained"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

// WithWorkers sets how many goroutines the training and evaluation loops use.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithProgress registers a callback invoked as users are processed during
// training. Calls are serialized.
func WithProgress(fn func(done, total int)) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// Engine owns the split, the train-only label counts and the trained
// parameter table. Datasets are passed to every call and never retained.
// Once trained, Evaluate and Predict may run concurrently.
type Engine struct {
	cfg      Config
	workers  int
	log      *zap.Logger
	progress func(done, total int)

	// runMu serializes Prepare, Train and LoadParameters.
	runMu sync.Mutex

	mu     sync.RWMutex
	state  State
	split  Split
	counts LabelCounts
	params ParameterTable
}

func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		workers: 1,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Split returns the current partition.
func (e *Engine) Split() Split {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.split
}

// TrainCounts returns the label counts of the train partition.
func (e *Engine) TrainCounts() LabelCounts {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.counts
}

// Parameters returns a copy of the trained table.
func (e *Engine) Parameters() ParameterTable {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params.Clone()
}

// Prepare splits the corpus of ds with a stratified, seeded split and
// computes the train-only label counts. Any previous training is discarded.
func (e *Engine) Prepare(ds *Dataset, testFraction float64, seed int64) error {
	split, err := StratifiedSplit(ds.News(), testFraction, seed)
	if err != nil {
		return err
	}
	return e.PrepareSplit(split)
}

// PrepareSplit installs a caller supplied partition.
func (e *Engine) PrepareSplit(split Split) error {
	if err := split.validate(); err != nil {
		return err
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.split = split
	e.counts = split.TrainCounts()
	e.params = nil
	e.state = ParamsLoaded

	e.log.Info("dataset split",
		zap.Int("train", len(split.Train)),
		zap.Int("test", len(split.Test)),
		zap.Int("legitimate_train", e.counts.Legitimate),
		zap.Int("fake_train", e.counts.Fake),
	)
	return nil
}

// LoadParameters installs a previously trained table, moving the engine
// straight to Trained. Evaluation still needs a split.
func (e *Engine) LoadParameters(table ParameterTable) error {
	if len(table) == 0 {
		return fmt.Errorf("load parameters: empty parameter table")
	}
	for userID, p := range table {
		if userID != p.UserID {
			return fmt.Errorf("load parameters: key %q holds parameters of %q", userID, p.UserID)
		}
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = table.Clone()
	e.state = Trained
	return nil
}

// trained returns a stable snapshot of the trained state.
func (e *Engine) trained(op string) (ParameterTable, Split, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != Trained {
		return nil, Split{}, &NotTrainedError{Op: op, State: e.state}
	}
	return e.params, e.split, nil
}

// chunks splits n items into at most parts contiguous [from, to) ranges.
func chunks(n, parts int) [][2]int {
	if n == 0 {
		return nil
	}
	parts = max(1, min(parts, n))
	size := (n + parts - 1) / parts

	out := make([][2]int, 0, parts)
	for from := 0; from < n; from += size {
		out = append(out, [2]int{from, min(from+size, n)})
	}
	return out
}
