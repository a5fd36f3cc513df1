package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"ics/internal/ics"
	"ics/internal/model"
	"ics/internal/notifier"
	"ics/internal/storage"
)

type ViewFunc func(ctx context.Context, bot notifier.Sender, update tgbotapi.Update) error

func ViewCmdStart() ViewFunc {
	return func(ctx context.Context, bot notifier.Sender, update tgbotapi.Update) error {
		msg := tgbotapi.NewMessage(update.FromChat().ID,
			"/predict <news id> classifies a news item from the accounts that shared it\n/status shows the latest training run")
		if _, err := bot.Send(msg); err != nil {
			return err
		}

		return nil
	}
}

type PredictFunc func(ctx context.Context, newsID string) (ics.Prediction, error)

func ViewCmdPredict(predict PredictFunc) ViewFunc {
	return func(ctx context.Context, bot notifier.Sender, update tgbotapi.Update) error {
		newsID := strings.TrimSpace(update.Message.CommandArguments())
		if newsID == "" {
			_, err := bot.Send(tgbotapi.NewMessage(update.FromChat().ID, "usage: /predict <news id>"))
			return err
		}

		var text string
		p, err := predict(ctx, newsID)

		var (
			unknown    *ics.UnknownNewsError
			notTrained *ics.NotTrainedError
		)
		switch {
		case errors.As(err, &unknown):
			text = notifier.EscapeForMarkdown(fmt.Sprintf("no sharing events for %q", newsID))
		case errors.As(err, &notTrained):
			text = "no trained model yet, run `ics train` first"
		case err != nil:
			return err
		default:
			text = notifier.FormatPrediction(p)
		}

		msg := tgbotapi.NewMessage(update.FromChat().ID, text)
		msg.ParseMode = tgbotapi.ModeMarkdownV2
		_, err = bot.Send(msg)
		return err
	}
}

type LatestRunFunc func(ctx context.Context) (model.TrainingRun, error)

func ViewCmdStatus(latest LatestRunFunc) ViewFunc {
	return func(ctx context.Context, bot notifier.Sender, update tgbotapi.Update) error {
		run, err := latest(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			_, err = bot.Send(tgbotapi.NewMessage(update.FromChat().ID, "no training runs yet"))
			return err
		}
		if err != nil {
			return err
		}

		text := fmt.Sprintf(
			"run %s at %s\ntrain %d, test %d, users %d, accuracy %.4f",
			run.ID,
			run.CreatedAt.Format(time.RFC3339),
			run.TrainSize,
			run.TestSize,
			run.Users,
			run.Accuracy,
		)
		_, err = bot.Send(tgbotapi.NewMessage(update.FromChat().ID, text))
		return err
	}
}

type Bot struct {
	api      *tgbotapi.BotAPI
	cmdViews map[string]ViewFunc
	log      *zap.Logger
}

func NewBot(api *tgbotapi.BotAPI, logger *zap.Logger) *Bot {
	return &Bot{api: api, log: logger}
}

func (b *Bot) RegisterCmdView(cmd string, view ViewFunc) {
	if b.cmdViews == nil {
		b.cmdViews = make(map[string]ViewFunc)
	}

	b.cmdViews[cmd] = view
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if p := recover(); p != nil {
			b.log.Error("panic in view recovered", zap.Any("panic", p))
		}
	}()

	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	command := update.Message.Command()
	view, ok := b.cmdViews[command]
	if !ok {
		return
	}

	if err := view(ctx, b.api, update); err != nil {
		b.log.Error("view failed", zap.String("command", command), zap.Error(err))

		if _, sendErr := b.api.Send(tgbotapi.NewMessage(update.Message.Chat.ID, "Internal error")); sendErr != nil {
			b.log.Error("failed to send error message", zap.Error(sendErr))
		}
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case update := <-updates:
			updateCtx, updateCancel := context.WithTimeout(ctx, 5*time.Minute)
			b.handleUpdate(updateCtx, update)
			updateCancel()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
