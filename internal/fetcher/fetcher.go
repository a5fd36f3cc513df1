package fetcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ics/internal/ics"
	"ics/internal/model"
)

type NewsProvider interface {
	News(ctx context.Context) ([]model.NewsItem, error)
}

type SharerProvider interface {
	Users(ctx context.Context) ([]string, error)
	Relation(ctx context.Context) ([]model.SharingEvent, error)
}

// Fetcher reads the labeled news, the sharing accounts and the news/user
// relation once and materializes them as an ics.Dataset.
type Fetcher struct {
	news    NewsProvider
	sharers SharerProvider
	log     *zap.Logger
}

func New(news NewsProvider, sharers SharerProvider, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		news:    news,
		sharers: sharers,
		log:     logger,
	}
}

func (f *Fetcher) Fetch(ctx context.Context) (*ics.Dataset, error) {
	start := time.Now()

	var (
		news     []model.NewsItem
		users    []string
		relation []model.SharingEvent
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if news, err = f.news.News(ctx); err != nil {
			return fmt.Errorf("query news: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if users, err = f.sharers.Users(ctx); err != nil {
			return fmt.Errorf("query users: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if relation, err = f.sharers.Relation(ctx); err != nil {
			return fmt.Errorf("query user/news relation: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ds, err := ics.NewDataset(news, users, relation)
	if err != nil {
		return nil, fmt.Errorf("build dataset: %w", err)
	}

	f.log.Info("dataset loaded",
		zap.Int("news", len(news)),
		zap.Int("users", len(ds.Users())),
		zap.Int("relations", len(ds.Relation())),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ds, nil
}
