package ics

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"ics/internal/model"
	"ics/internal/worker"
)

// chunksPerWorker keeps progress reporting reasonably fine grained.
const chunksPerWorker = 4

// Train computes the opinion of every user who shared at least one train
// news item and replaces the parameter table. Users who never shared a
// train item get no record.
func (e *Engine) Train(ctx context.Context, ds *Dataset) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.RLock()
	state, split, counts := e.state, e.split, e.counts
	e.mu.RUnlock()
	if state == Uninitialized || len(split.Train) == 0 {
		return ErrNotPrepared
	}

	start := time.Now()
	tallies := tally(ds, split.Train)
	users := lo.Keys(tallies)
	slices.Sort(users)

	results := make([]model.UserParameters, len(users))
	report := e.progressReporter(len(users))

	pool := worker.New(e.workers, 0)
	pool.Start(ctx)
	for _, r := range chunks(len(users), e.workers*chunksPerWorker) {
		from, to := r[0], r[1]
		err := pool.Submit(ctx, func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := from; i < to; i++ {
				t := tallies[users[i]]
				results[i] = Opinion(users[i], t[model.Legitimate], t[model.Fake], counts, e.cfg.Smoothing)
			}
			report(to - from)
			return nil
		})
		if err != nil {
			_ = pool.Close()
			return fmt.Errorf("train: %w", err)
		}
	}
	if err := pool.Close(); err != nil {
		return fmt.Errorf("train: %w", err)
	}

	table := lo.SliceToMap(results, func(p model.UserParameters) (string, model.UserParameters) {
		return p.UserID, p
	})

	e.mu.Lock()
	e.params = table
	e.state = Trained
	e.mu.Unlock()

	e.log.Info("training complete",
		zap.Int("users", len(table)),
		zap.Int("train_news", len(split.Train)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// tally counts, per user, the legitimate and fake train items they shared.
func tally(ds *Dataset, train []model.NewsItem) map[string]*[2]int {
	out := make(map[string]*[2]int)
	for _, item := range train {
		sharers, _ := ds.Sharers(item.ID)
		for _, userID := range sharers {
			t, ok := out[userID]
			if !ok {
				t = new([2]int)
				out[userID] = t
			}
			t[item.Label]++
		}
	}
	return out
}

func (e *Engine) progressReporter(total int) func(n int) {
	var (
		mu   sync.Mutex
		done int
	)
	return func(n int) {
		mu.Lock()
		defer mu.Unlock()
		done += n
		e.log.Debug("training progress", zap.Int("done", done), zap.Int("total", total))
		if e.progress != nil {
			e.progress(done, total)
		}
	}
}
