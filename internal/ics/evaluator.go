package ics

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ics/internal/model"
	"ics/internal/worker"
)

// ConfusionMatrix counts outcomes indexed by [actual][predicted], rows and
// columns ordered legitimate, fake.
type ConfusionMatrix [2][2]int

func (m *ConfusionMatrix) Add(actual, predicted model.Label) {
	m[actual][predicted]++
}

func (m *ConfusionMatrix) Merge(other ConfusionMatrix) {
	for i := range m {
		for j := range m[i] {
			m[i][j] += other[i][j]
		}
	}
}

func (m ConfusionMatrix) Total() int {
	return m[0][0] + m[0][1] + m[1][0] + m[1][1]
}

func (m ConfusionMatrix) Correct() int {
	return m[0][0] + m[1][1]
}

// Accuracy is zero for an empty matrix.
func (m ConfusionMatrix) Accuracy() float64 {
	total := m.Total()
	if total == 0 {
		return 0
	}
	return float64(m.Correct()) / float64(total)
}

func (m ConfusionMatrix) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %10s %10s\n", "", model.Legitimate, model.Fake)
	for _, actual := range model.Labels {
		fmt.Fprintf(&b, "%-12s %10d %10d\n", actual, m[actual][model.Legitimate], m[actual][model.Fake])
	}
	return b.String()
}

// Outcome pairs a prediction with the ground truth it was scored against.
type Outcome struct {
	Prediction
	Actual model.Label
}

func (o Outcome) Correct() bool {
	return o.Label == o.Actual
}

// Evaluation is the result of scoring the whole test partition.
type Evaluation struct {
	Matrix      ConfusionMatrix
	Accuracy    float64
	Predictions []Outcome
	// Degenerate counts test items without any recognized sharer.
	Degenerate int
}

// Evaluate scores every test news item against the full relation of ds.
// Test items may be shared by users absent from training; they abstain.
func (e *Engine) Evaluate(ctx context.Context, ds *Dataset) (*Evaluation, error) {
	params, split, err := e.trained("evaluate")
	if err != nil {
		return nil, err
	}
	if len(split.Test) == 0 {
		return nil, ErrNotPrepared
	}

	test := split.Test
	outcomes := make([]Outcome, len(test))
	parts := chunks(len(test), e.workers*chunksPerWorker)
	partials := make([]ConfusionMatrix, len(parts))

	pool := worker.New(e.workers, 0)
	pool.Start(ctx)
	for n, r := range parts {
		from, to := r[0], r[1]
		err := pool.Submit(ctx, func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := from; i < to; i++ {
				item := test[i]
				sharers, _ := ds.Sharers(item.ID)
				p := predict(item.ID, sharers, params, e.cfg.Omega)
				outcomes[i] = Outcome{Prediction: p, Actual: item.Label}
				partials[n].Add(item.Label, p.Label)
			}
			return nil
		})
		if err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("evaluate: %w", err)
		}
	}
	if err := pool.Close(); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	ev := &Evaluation{Predictions: outcomes}
	for _, m := range partials {
		ev.Matrix.Merge(m)
	}
	ev.Accuracy = ev.Matrix.Accuracy()
	for _, o := range outcomes {
		if o.Degenerate() {
			ev.Degenerate++
		}
	}

	e.log.Info("evaluation complete",
		zap.Int("test_news", len(test)),
		zap.Float64("accuracy", ev.Accuracy),
		zap.Int("degenerate", ev.Degenerate),
	)
	return ev, nil
}
