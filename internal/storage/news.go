package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"ics/internal/model"
)

type NewsStorage struct {
	db *sqlx.DB
}

type dbNews struct {
	NewsID         string `db:"news_id"`
	Classification string `db:"classification"`
}

func NewNewsStorage(db *sqlx.DB) *NewsStorage {
	return &NewsStorage{
		db: db,
	}
}

func (s *NewsStorage) Store(ctx context.Context, item model.NewsItem) error {
	if !item.Label.Valid() {
		return fmt.Errorf("news %q: invalid label %d", item.ID, item.Label)
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(
		ctx,
		s.db.Rebind(`INSERT INTO news (news_id, classification) VALUES (?, ?) ON CONFLICT (news_id) DO NOTHING`),
		item.ID,
		item.Label.String(),
	)
	return err
}

// News returns the full labeled corpus.
func (s *NewsStorage) News(ctx context.Context) ([]model.NewsItem, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []dbNews
	if err := conn.SelectContext(ctx, &rows, `SELECT news_id, classification FROM news ORDER BY news_id`); err != nil {
		return nil, err
	}

	items := make([]model.NewsItem, 0, len(rows))
	for _, row := range rows {
		label, err := model.ParseLabel(row.Classification)
		if err != nil {
			return nil, fmt.Errorf("news %q: %w", row.NewsID, err)
		}
		items = append(items, model.NewsItem{ID: row.NewsID, Label: label})
	}
	return items, nil
}
