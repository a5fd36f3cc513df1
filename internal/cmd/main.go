package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ics/internal/config"
	"ics/internal/fetcher"
	"ics/internal/notifier"
	"ics/internal/pipeline"
	"ics/internal/storage"
)

const usage = `usage: ics <command> [flags]

commands:
  migrate            create the schema
  train              split, train, evaluate and persist a new parameter table
  predict -news ID   classify one news item with the persisted parameters
  serve              answer /predict and /status on the Telegram bot`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer db.Close()

	if command == "migrate" {
		if err := storage.Migrate(ctx, db); err != nil {
			return err
		}
		logger.Info("schema is up to date")
		return nil
	}

	var (
		newsStorage  = storage.NewNewsStorage(db)
		postStorage  = storage.NewPostStorage(db)
		modelStorage = storage.NewModelStorage(db)
		datasets     = fetcher.New(newsStorage, postStorage, logger)
		opts         = pipeline.Options{
			TestFraction: cfg.TestFraction,
			Seed:         cfg.SplitSeed,
			Workers:      cfg.Workers,
		}
	)

	var (
		botAPI  *tgbotapi.BotAPI
		reports pipeline.Notifier
	)
	if cfg.TelegramBotToken != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			return fmt.Errorf("create bot api: %w", err)
		}
	}
	if botAPI != nil && cfg.NotificationsEnabled() {
		reports = notifier.New(botAPI, cfg.TelegramChannelID)
	}

	switch command {
	case "train":
		runner := pipeline.New(datasets, modelStorage, reports, cfg.Model(), opts, logger)
		report, err := runner.Train(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("run %s\n%s\naccuracy %.4f (%d of %d), degenerate %d\n",
			report.Run.ID,
			report.Evaluation.Matrix,
			report.Evaluation.Accuracy,
			report.Evaluation.Matrix.Correct(),
			report.Evaluation.Matrix.Total(),
			report.Evaluation.Degenerate,
		)
		return nil

	case "predict":
		fs := flag.NewFlagSet("predict", flag.ContinueOnError)
		newsID := fs.String("news", "", "news id to classify")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *newsID == "" {
			return errors.New("predict: -news is required")
		}

		runner := pipeline.New(datasets, modelStorage, reports, cfg.Model(), opts, logger)
		p, err := runner.Predict(ctx, *newsID)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s legitimate=%g fake=%g recognized=%d/%d\n",
			p.NewsID, p.Label, p.Score.Legitimate, p.Score.Fake, p.Score.Recognized, p.Score.Sharers)
		return nil

	case "serve":
		if botAPI == nil {
			return errors.New("serve: telegram_bot_token is not set")
		}
		runner := pipeline.New(datasets, modelStorage, nil, cfg.Model(), opts, logger)

		bot := NewBot(botAPI, logger)
		bot.RegisterCmdView("start", ViewCmdStart())
		bot.RegisterCmdView("predict", ViewCmdPredict(runner.Predict))
		bot.RegisterCmdView("status", ViewCmdStatus(modelStorage.LatestRun))

		if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("bot has stopped")
		return nil

	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
