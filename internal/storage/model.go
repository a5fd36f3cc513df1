package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"ics/internal/model"
)

// ModelStorage persists training runs and the parameter table of the most
// recent run.
type ModelStorage struct {
	db *sqlx.DB
}

type dbTrainingRun struct {
	ID                   uuid.UUID `db:"run_id"`
	Smoothing            float64   `db:"smoothing"`
	Omega                float64   `db:"omega"`
	TestFraction         float64   `db:"test_fraction"`
	Seed                 int64     `db:"seed"`
	CountLegitimateTrain int       `db:"count_legitimate_train"`
	CountFakeTrain       int       `db:"count_fake_train"`
	TrainSize            int       `db:"train_size"`
	TestSize             int       `db:"test_size"`
	Users                int       `db:"users"`
	Accuracy             float64   `db:"accuracy"`
	CreatedAt            time.Time `db:"created_at"`
}

type dbUserParameters struct {
	UserID              string    `db:"user_id"`
	RunID               uuid.UUID `db:"run_id"`
	Alpha               float64   `db:"alpha"`
	AlphaComplement     float64   `db:"alpha_complement"`
	Beta                float64   `db:"beta"`
	BetaComplement      float64   `db:"beta_complement"`
	ProbAlpha           float64   `db:"prob_alpha"`
	ProbAlphaComplement float64   `db:"prob_alpha_complement"`
	ProbBeta            float64   `db:"prob_beta"`
	ProbBetaComplement  float64   `db:"prob_beta_complement"`
}

func NewModelStorage(db *sqlx.DB) *ModelStorage {
	return &ModelStorage{
		db: db,
	}
}

// Save records the run and replaces the whole parameter table in a single
// transaction.
func (s *ModelStorage) Save(ctx context.Context, run model.TrainingRun, params []model.UserParameters) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	if _, err := tx.NamedExecContext(ctx, `INSERT INTO training_runs (
			run_id, smoothing, omega, test_fraction, seed, count_legitimate_train, count_fake_train,
			train_size, test_size, users, accuracy, created_at)
		VALUES (
			:run_id, :smoothing, :omega, :test_fraction, :seed, :count_legitimate_train, :count_fake_train,
			:train_size, :test_size, :users, :accuracy, :created_at)`,
		dbTrainingRun(run),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_parameters`); err != nil {
		return fmt.Errorf("clear parameters: %w", err)
	}

	stmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO user_parameters (
			user_id, run_id, alpha, alpha_complement, beta, beta_complement,
			prob_alpha, prob_alpha_complement, prob_beta, prob_beta_complement)
		VALUES (
			:user_id, :run_id, :alpha, :alpha_complement, :beta, :beta_complement,
			:prob_alpha, :prob_alpha_complement, :prob_beta, :prob_beta_complement)`)
	if err != nil {
		return fmt.Errorf("prepare parameters insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range params {
		row := dbUserParameters{
			UserID:              p.UserID,
			RunID:               run.ID,
			Alpha:               p.Alpha,
			AlphaComplement:     p.AlphaComplement,
			Beta:                p.Beta,
			BetaComplement:      p.BetaComplement,
			ProbAlpha:           p.ProbAlpha,
			ProbAlphaComplement: p.ProbAlphaComplement,
			ProbBeta:            p.ProbBeta,
			ProbBetaComplement:  p.ProbBetaComplement,
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("insert parameters of %q: %w", p.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run (%d users): %w", len(params), err)
	}
	return nil
}

// Parameters returns the table written by the latest Save.
func (s *ModelStorage) Parameters(ctx context.Context) ([]model.UserParameters, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []dbUserParameters
	if err := conn.SelectContext(ctx, &rows, `SELECT * FROM user_parameters ORDER BY user_id`); err != nil {
		return nil, err
	}

	return lo.Map(rows, func(row dbUserParameters, _ int) model.UserParameters {
		return model.UserParameters{
			UserID:              row.UserID,
			Alpha:               row.Alpha,
			AlphaComplement:     row.AlphaComplement,
			Beta:                row.Beta,
			BetaComplement:      row.BetaComplement,
			ProbAlpha:           row.ProbAlpha,
			ProbAlphaComplement: row.ProbAlphaComplement,
			ProbBeta:            row.ProbBeta,
			ProbBetaComplement:  row.ProbBetaComplement,
		}
	}), nil
}

func (s *ModelStorage) LatestRun(ctx context.Context) (model.TrainingRun, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return model.TrainingRun{}, err
	}
	defer conn.Close()

	var row dbTrainingRun
	err = conn.GetContext(ctx, &row, `SELECT * FROM training_runs ORDER BY created_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TrainingRun{}, ErrNotFound
	}
	if err != nil {
		return model.TrainingRun{}, err
	}
	return model.TrainingRun(row), nil
}
