package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"ics/internal/ics"
	"ics/internal/model"
)

type DatasetFetcher interface {
	Fetch(ctx context.Context) (*ics.Dataset, error)
}

type ModelStore interface {
	Save(ctx context.Context, run model.TrainingRun, params []model.UserParameters) error
	Parameters(ctx context.Context) ([]model.UserParameters, error)
}

type Notifier interface {
	SendEvaluation(run model.TrainingRun, ev *ics.Evaluation) error
	SendPrediction(p ics.Prediction) error
}

type Options struct {
	TestFraction float64
	Seed         int64
	Workers      int
}

// Runner wires the dataset fetcher, the engine, persistence and reporting.
type Runner struct {
	fetcher  DatasetFetcher
	store    ModelStore
	notifier Notifier
	cfg      ics.Config
	opts     Options
	log      *zap.Logger
}

// New returns a Runner. notifier may be nil.
func New(fetcher DatasetFetcher, store ModelStore, notifier Notifier, cfg ics.Config, opts Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		fetcher:  fetcher,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		opts:     opts,
		log:      logger,
	}
}

type Report struct {
	Run        model.TrainingRun
	Evaluation *ics.Evaluation
}

// Train loads the views, splits, trains, evaluates the test partition and
// persists the run together with the new parameter table.
func (r *Runner) Train(ctx context.Context) (*Report, error) {
	ds, err := r.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	engine, err := r.engine()
	if err != nil {
		return nil, err
	}
	if err := engine.Prepare(ds, r.opts.TestFraction, r.opts.Seed); err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	if err := engine.Train(ctx, ds); err != nil {
		return nil, err
	}
	ev, err := engine.Evaluate(ctx, ds)
	if err != nil {
		return nil, err
	}

	split, counts, params := engine.Split(), engine.TrainCounts(), engine.Parameters()
	run := model.TrainingRun{
		ID:                   uuid.New(),
		Smoothing:            r.cfg.Smoothing,
		Omega:                r.cfg.Omega,
		TestFraction:         r.opts.TestFraction,
		Seed:                 r.opts.Seed,
		CountLegitimateTrain: counts.Legitimate,
		CountFakeTrain:       counts.Fake,
		TrainSize:            len(split.Train),
		TestSize:             len(split.Test),
		Users:                len(params),
		Accuracy:             ev.Accuracy,
		CreatedAt:            time.Now().UTC(),
	}

	rows := lo.Values(params)
	slices.SortFunc(rows, func(a, b model.UserParameters) int { return cmp.Compare(a.UserID, b.UserID) })
	if err := r.store.Save(ctx, run, rows); err != nil {
		return nil, fmt.Errorf("save run %s: %w", run.ID, err)
	}
	r.log.Info("training run saved", zap.Stringer("run_id", run.ID), zap.Float64("accuracy", run.Accuracy))

	if r.notifier != nil {
		if err := r.notifier.SendEvaluation(run, ev); err != nil {
			r.log.Error("failed to send evaluation report", zap.Error(err))
		}
	}

	return &Report{Run: run, Evaluation: ev}, nil
}

// Predict classifies newsID with the persisted parameter table.
func (r *Runner) Predict(ctx context.Context, newsID string) (ics.Prediction, error) {
	stored, err := r.store.Parameters(ctx)
	if err != nil {
		return ics.Prediction{}, fmt.Errorf("load parameters: %w", err)
	}

	engine, err := r.engine()
	if err != nil {
		return ics.Prediction{}, err
	}
	if len(stored) == 0 {
		return ics.Prediction{}, &ics.NotTrainedError{Op: "predict", State: engine.State()}
	}
	table := lo.SliceToMap(stored, func(p model.UserParameters) (string, model.UserParameters) {
		return p.UserID, p
	})
	if err := engine.LoadParameters(table); err != nil {
		return ics.Prediction{}, err
	}

	ds, err := r.fetcher.Fetch(ctx)
	if err != nil {
		return ics.Prediction{}, err
	}

	p, err := engine.Predict(ds, newsID)
	if err != nil {
		return ics.Prediction{}, err
	}

	if r.notifier != nil {
		if err := r.notifier.SendPrediction(p); err != nil {
			r.log.Error("failed to send prediction", zap.Error(err))
		}
	}
	return p, nil
}

func (r *Runner) engine() (*ics.Engine, error) {
	return ics.NewEngine(r.cfg, ics.WithWorkers(r.opts.Workers), ics.WithLogger(r.log))
}
