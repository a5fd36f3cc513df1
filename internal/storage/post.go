package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"ics/internal/model"
)

// PostStorage keeps primary shares and reshares in a single table, so the
// union of both kinds is a plain DISTINCT query.
type PostStorage struct {
	db *sqlx.DB
}

type dbSharingEvent struct {
	NewsID string `db:"news_id"`
	UserID string `db:"user_id"`
}

func NewPostStorage(db *sqlx.DB) *PostStorage {
	return &PostStorage{
		db: db,
	}
}

func (s *PostStorage) Store(ctx context.Context, post model.Post) error {
	if err := post.Validate(); err != nil {
		return err
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(
		ctx,
		s.db.Rebind(`INSERT INTO posts (post_id, news_id, user_id, kind, reshare_of, created_at)
						VALUES (?, ?, ?, ?, ?, ?)
						ON CONFLICT (post_id) DO NOTHING`),
		post.ID,
		post.NewsID,
		post.UserID,
		post.Kind.String(),
		sql.NullString{String: post.ReshareOf, Valid: post.ReshareOf != ""},
		post.CreatedAt.UTC(),
	)
	return err
}

// Users returns every account that shared or reshared any news item.
func (s *PostStorage) Users(ctx context.Context) ([]string, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var users []string
	if err := conn.SelectContext(ctx, &users, `SELECT DISTINCT user_id FROM posts ORDER BY user_id`); err != nil {
		return nil, err
	}
	return users, nil
}

// Relation returns the deduplicated (news, user) pairs over both post kinds.
func (s *PostStorage) Relation(ctx context.Context) ([]model.SharingEvent, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []dbSharingEvent
	if err := conn.SelectContext(
		ctx,
		&rows,
		`SELECT DISTINCT news_id, user_id FROM posts ORDER BY news_id, user_id`,
	); err != nil {
		return nil, err
	}

	return lo.Map(rows, func(row dbSharingEvent, _ int) model.SharingEvent {
		return model.SharingEvent(row)
	}), nil
}
