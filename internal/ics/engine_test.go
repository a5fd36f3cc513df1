package ics

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ics/internal/model"
)

// scenarioDataset builds a corpus where u1 shared five legitimate train
// items, u2 shared fakeTrain fake train items and u3 only appears in test.
// Test items: X shared by u1 and u2, A by u1, B by u2, Y by u3.
func scenarioDataset(t *testing.T, fakeTrain int) (*Dataset, Split) {
	t.Helper()

	var (
		news     []model.NewsItem
		relation []model.SharingEvent
		split    Split
	)
	add := func(id string, label model.Label, test bool, users ...string) {
		item := model.NewsItem{ID: id, Label: label}
		news = append(news, item)
		if test {
			split.Test = append(split.Test, item)
		} else {
			split.Train = append(split.Train, item)
		}
		for _, u := range users {
			relation = append(relation, model.SharingEvent{NewsID: id, UserID: u})
		}
	}

	for i := 1; i <= 5; i++ {
		add(fmt.Sprintf("L%d", i), model.Legitimate, false, "u1")
	}
	for i := 1; i <= fakeTrain; i++ {
		add(fmt.Sprintf("F%d", i), model.Fake, false, "u2")
	}
	add("X", model.Legitimate, true, "u1", "u2")
	add("A", model.Legitimate, true, "u1")
	add("B", model.Fake, true, "u2")
	add("Y", model.Fake, true, "u3")

	ds, err := NewDataset(news, nil, relation)
	require.NoError(t, err)
	return ds, split
}

func trainedEngine(t *testing.T, ds *Dataset, split Split, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), opts...)
	require.NoError(t, err)
	require.NoError(t, e.PrepareSplit(split))
	require.NoError(t, e.Train(context.Background(), ds))
	return e
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"zero smoothing", Config{Smoothing: 0, Omega: 0.5}, "Smoothing"},
		{"negative smoothing", Config{Smoothing: -0.01, Omega: 0.5}, "Smoothing"},
		{"omega above one", Config{Smoothing: 0.01, Omega: 1.5}, "Omega"},
		{"negative omega", Config{Smoothing: 0.01, Omega: -0.1}, "Omega"},
		{"nan omega", Config{Smoothing: 0.01, Omega: math.NaN()}, "Omega"},
		{"nan smoothing", Config{Smoothing: math.NaN(), Omega: 0.5}, "Smoothing"},
		{"infinite smoothing", Config{Smoothing: math.Inf(1), Omega: 0.5}, "Smoothing"},
		{"smoothing above max", Config{Smoothing: MaxSmoothing * 10, Omega: 0.5}, "Smoothing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.cfg)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	_, err := NewEngine(Config{Smoothing: 0.01, Omega: 1})
	assert.NoError(t, err)
}

func TestEngineStateMachine(t *testing.T) {
	ds, split := scenarioDataset(t, 5)
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, e.State())

	assert.ErrorIs(t, e.Train(context.Background(), ds), ErrNotPrepared)

	var notTrained *NotTrainedError
	_, err = e.Evaluate(context.Background(), ds)
	require.ErrorAs(t, err, &notTrained)
	assert.Equal(t, Uninitialized, notTrained.State)

	require.NoError(t, e.PrepareSplit(split))
	assert.Equal(t, ParamsLoaded, e.State())
	assert.Equal(t, LabelCounts{Legitimate: 5, Fake: 5}, e.TrainCounts())

	_, err = e.Predict(ds, "X")
	require.ErrorAs(t, err, &notTrained)
	assert.Equal(t, ParamsLoaded, notTrained.State)

	require.NoError(t, e.Train(context.Background(), ds))
	assert.Equal(t, Trained, e.State())

	// a new split discards the trained table
	require.NoError(t, e.PrepareSplit(split))
	assert.Equal(t, ParamsLoaded, e.State())
	assert.Empty(t, e.Parameters())
}

func TestPrepareSplitRejectsOverlap(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	item := model.NewsItem{ID: "n1", Label: model.Fake}
	err = e.PrepareSplit(Split{Train: []model.NewsItem{item}, Test: []model.NewsItem{item}})
	require.Error(t, err)
	assert.Equal(t, Uninitialized, e.State())
}

func TestTrainSkipsUsersUnseenInTrain(t *testing.T) {
	ds, split := scenarioDataset(t, 5)
	e := trainedEngine(t, ds, split)

	params := e.Parameters()
	assert.Len(t, params, 2)
	assert.Contains(t, params, "u1")
	assert.Contains(t, params, "u2")
	assert.NotContains(t, params, "u3")
}

func TestScenarioBalancedTrainSplit(t *testing.T) {
	ds, split := scenarioDataset(t, 5)
	e := trainedEngine(t, ds, split)
	params := e.Parameters()

	u1, u2 := params["u1"], params["u2"]
	assert.Greater(t, u1.ProbAlpha, 0.9)
	assert.InDelta(t, 0.99800796812749, u1.ProbAlpha, 1e-14)
	assert.InDelta(t, 0.99800796812749, u1.ProbBeta, 1e-14)
	// u2 leans fake: its fake-leaning mass sits in the beta complement
	assert.Greater(t, u2.ProbBetaComplement, 0.9)
	assert.InDelta(t, 0.0019920318725099606, u2.ProbBeta, 1e-15)

	p, err := e.Predict(ds, "X")
	require.NoError(t, err)
	assert.InDelta(t, 0.00019761986009070502, p.Score.Legitimate, 1e-18)
	assert.InDelta(t, 0.00019761986009070502, p.Score.Fake, 1e-18)
	// equal counts make both terms identical; the tie resolves to legitimate
	assert.Equal(t, p.Score.Legitimate, p.Score.Fake)
	assert.Equal(t, model.Legitimate, p.Label)
	assert.False(t, p.Degenerate())
	assert.Equal(t, 2, p.Score.Recognized)
}

func TestScenarioUnbalancedTrainSplit(t *testing.T) {
	ds, split := scenarioDataset(t, 2)
	e := trainedEngine(t, ds, split)

	tests := []struct {
		newsID     string
		legitimate float64
		fake       float64
		label      model.Label
	}{
		{"X", 0.000489658856959247, 0.0004836554432009723, model.Legitimate},
		{"A", 0.24629938241348912, 0.039975631020879344, model.Legitimate},
		{"B", 0.09940318407644325, 0.6049378469452529, model.Fake},
	}

	for _, tt := range tests {
		t.Run(tt.newsID, func(t *testing.T) {
			p, err := e.Predict(ds, tt.newsID)
			require.NoError(t, err)
			assert.InDelta(t, tt.legitimate, p.Score.Legitimate, 1e-15)
			assert.InDelta(t, tt.fake, p.Score.Fake, 1e-15)
			assert.Equal(t, tt.label, p.Label)
		})
	}
}

func TestPredictDegenerate(t *testing.T) {
	ds, split := scenarioDataset(t, 5)
	e := trainedEngine(t, ds, split)

	p, err := e.Predict(ds, "Y")
	require.NoError(t, err)
	assert.Equal(t, model.Legitimate, p.Label)
	require.True(t, p.Degenerate())
	assert.Equal(t, "Y", p.Warning.NewsID)
	assert.Equal(t, 1, p.Score.Sharers)
	assert.Zero(t, p.Score.Recognized)
	assert.Equal(t, 50.0, p.Score.Legitimate)
	assert.Equal(t, 50.0, p.Score.Fake)
}

func TestPredictUnknownNews(t *testing.T) {
	ds, split := scenarioDataset(t, 5)
	e := trainedEngine(t, ds, split)

	_, err := e.Predict(ds, "nope")
	var unknown *UnknownNewsError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.NewsID)
}

func TestPredictIsIdempotent(t *testing.T) {
	ds, split := scenarioDataset(t, 2)
	e := trainedEngine(t, ds, split)

	first, err := e.Predict(ds, "X")
	require.NoError(t, err)
	second, err := e.Predict(ds, "X")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluateScenario(t *testing.T) {
	ds, split := scenarioDataset(t, 5)
	e := trainedEngine(t, ds, split)

	ev, err := e.Evaluate(context.Background(), ds)
	require.NoError(t, err)

	require.Len(t, ev.Predictions, len(split.Test))
	assert.Equal(t, len(split.Test), ev.Matrix.Total())
	assert.Equal(t, 1, ev.Degenerate)

	// A and B are ties under balanced counts, X ties, Y is degenerate:
	// everything resolves to legitimate
	assert.Equal(t, ConfusionMatrix{{2, 0}, {2, 0}}, ev.Matrix)
	assert.InDelta(t, 0.5, ev.Accuracy, 1e-12)

	for _, o := range ev.Predictions {
		assert.Equal(t, model.Legitimate, o.Label, o.NewsID)
	}
}

func TestEvaluateUnbalancedIsPerfect(t *testing.T) {
	ds, split := scenarioDataset(t, 2)
	e := trainedEngine(t, ds, split, WithWorkers(3))

	ev, err := e.Evaluate(context.Background(), ds)
	require.NoError(t, err)

	// Y (fake, only unseen sharers) is the single miss
	assert.Equal(t, ConfusionMatrix{{2, 0}, {1, 1}}, ev.Matrix)
	assert.InDelta(t, 0.75, ev.Accuracy, 1e-12)
}

// syntheticDataset spreads users over a corpus with a fixed pattern so the
// results are reproducible.
func syntheticDataset(t *testing.T) *Dataset {
	t.Helper()
	news := corpus(60, 40)
	var relation []model.SharingEvent
	for i, item := range news {
		for u := 0; u < 30; u++ {
			if (i*7+u*13)%5 == 0 || (item.Label == model.Fake && u%4 == i%4) {
				relation = append(relation, model.SharingEvent{NewsID: item.ID, UserID: fmt.Sprintf("user%02d", u)})
			}
		}
	}
	ds, err := NewDataset(news, nil, relation)
	require.NoError(t, err)
	return ds
}

func TestTrainingIsDeterministic(t *testing.T) {
	ds := syntheticDataset(t)

	run := func(workers int) (ParameterTable, *Evaluation) {
		e, err := NewEngine(DefaultConfig(), WithWorkers(workers))
		require.NoError(t, err)
		require.NoError(t, e.Prepare(ds, 0.3, 42))
		require.NoError(t, e.Train(context.Background(), ds))
		ev, err := e.Evaluate(context.Background(), ds)
		require.NoError(t, err)
		return e.Parameters(), ev
	}

	p1, ev1 := run(1)
	p2, ev2 := run(1)
	p3, ev3 := run(8)

	assert.Equal(t, p1, p2)
	assert.Equal(t, p1, p3)
	assert.Equal(t, ev1.Matrix, ev2.Matrix)
	assert.Equal(t, ev1.Matrix, ev3.Matrix)
	assert.Equal(t, ev1.Predictions, ev3.Predictions)
	assert.Equal(t, 30, ev1.Matrix.Total())
}

func TestTrainReportsProgress(t *testing.T) {
	ds := syntheticDataset(t)

	var last, total int
	e, err := NewEngine(DefaultConfig(), WithWorkers(4), WithProgress(func(done, n int) {
		last, total = done, n
	}))
	require.NoError(t, err)
	require.NoError(t, e.Prepare(ds, 0.3, 1))
	require.NoError(t, e.Train(context.Background(), ds))

	assert.Equal(t, len(e.Parameters()), total)
	assert.Equal(t, total, last)
}

func TestTrainHonorsCancellation(t *testing.T) {
	ds := syntheticDataset(t)
	e, err := NewEngine(DefaultConfig(), WithWorkers(2))
	require.NoError(t, err)
	require.NoError(t, e.Prepare(ds, 0.3, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = e.Train(ctx, ds)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ParamsLoaded, e.State())
}

func TestLoadParameters(t *testing.T) {
	ds, split := scenarioDataset(t, 2)
	trained := trainedEngine(t, ds, split)

	fresh, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	require.Error(t, fresh.LoadParameters(nil))
	require.NoError(t, fresh.LoadParameters(trained.Parameters()))
	assert.Equal(t, Trained, fresh.State())

	want, err := trained.Predict(ds, "B")
	require.NoError(t, err)
	got, err := fresh.Predict(ds, "B")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = fresh.Evaluate(context.Background(), ds)
	assert.ErrorIs(t, err, ErrNotPrepared)
}

func TestConcurrentPredictions(t *testing.T) {
	ds := syntheticDataset(t)
	e, err := NewEngine(DefaultConfig(), WithWorkers(4))
	require.NoError(t, err)
	require.NoError(t, e.Prepare(ds, 0.3, 5))
	require.NoError(t, e.Train(context.Background(), ds))

	want := make(map[string]model.Label)
	for _, item := range ds.News() {
		p, err := e.Predict(ds, item.ID)
		require.NoError(t, err)
		want[item.ID] = p.Label
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, item := range ds.News() {
				p, err := e.Predict(ds, item.ID)
				if assert.NoError(t, err) {
					assert.Equal(t, want[item.ID], p.Label)
				}
			}
		}()
	}
	wg.Wait()
}

func TestConfusionMatrixMerge(t *testing.T) {
	var a, b ConfusionMatrix
	a.Add(model.Legitimate, model.Legitimate)
	a.Add(model.Fake, model.Legitimate)
	b.Add(model.Fake, model.Fake)
	b.Add(model.Fake, model.Fake)

	a.Merge(b)
	assert.Equal(t, ConfusionMatrix{{1, 0}, {1, 2}}, a)
	assert.Equal(t, 4, a.Total())
	assert.Equal(t, 3, a.Correct())
	assert.InDelta(t, 0.75, a.Accuracy(), 1e-12)
	assert.Zero(t, ConfusionMatrix{}.Accuracy())
	assert.Contains(t, a.String(), "legitimate")
}

func TestEvaluateHonorsCancellation(t *testing.T) {
	ds := syntheticDataset(t)
	e, err := NewEngine(DefaultConfig(), WithWorkers(2))
	require.NoError(t, err)
	require.NoError(t, e.Prepare(ds, 0.3, 1))
	require.NoError(t, e.Train(context.Background(), ds))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev, err := e.Evaluate(ctx, ds)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, ev)
	assert.Equal(t, Trained, e.State())
}

func TestPredictWidelySharedItemDoesNotUnderflow(t *testing.T) {
	const trolls = 400

	var (
		news     []model.NewsItem
		relation []model.SharingEvent
		split    Split
	)
	for i := 1; i <= 5; i++ {
		item := model.NewsItem{ID: fmt.Sprintf("L%d", i), Label: model.Legitimate}
		news = append(news, item)
		split.Train = append(split.Train, item)
		relation = append(relation, model.SharingEvent{NewsID: item.ID, UserID: "good"})
	}
	fake := []model.NewsItem{
		{ID: "F1", Label: model.Fake},
		{ID: "F2", Label: model.Fake},
		{ID: "X", Label: model.Fake},
	}
	news = append(news, fake...)
	split.Train = append(split.Train, fake[:2]...)
	split.Test = append(split.Test, fake[2])
	for _, item := range fake {
		for i := 0; i < trolls; i++ {
			relation = append(relation, model.SharingEvent{NewsID: item.ID, UserID: fmt.Sprintf("troll%03d", i)})
		}
	}

	ds, err := NewDataset(news, nil, relation)
	require.NoError(t, err)
	e := trainedEngine(t, ds, split)

	p, err := e.Predict(ds, "X")
	require.NoError(t, err)

	// both linear scores are below the smallest float64
	assert.Zero(t, p.Score.Legitimate)
	assert.Zero(t, p.Score.Fake)
	assert.Equal(t, trolls, p.Score.Recognized)
	assert.False(t, p.Degenerate())
	assert.Greater(t, p.Score.LogFake, p.Score.LogLegitimate)
	assert.Equal(t, model.Fake, p.Label)
}
