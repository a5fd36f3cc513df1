package notifier

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ics/internal/ics"
	"ics/internal/model"
)

// Sender is satisfied by *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts training reports and predictions to a Telegram channel.
type Notifier struct {
	bot       Sender
	channelID int64
}

func New(bot Sender, channelID int64) *Notifier {
	return &Notifier{
		bot:       bot,
		channelID: channelID,
	}
}

func (n *Notifier) SendEvaluation(run model.TrainingRun, ev *ics.Evaluation) error {
	const msgFormat = "*ICS training run* `%s`\n\n" +
		"train %d \\(legitimate %d, fake %d\\), test %d, users %d\n" +
		"s\\=%s ω\\=%s\n\n" +
		"```\n%s```\n" +
		"accuracy *%s*, degenerate %d"

	text := fmt.Sprintf(
		msgFormat,
		run.ID,
		run.TrainSize,
		run.CountLegitimateTrain,
		run.CountFakeTrain,
		run.TestSize,
		run.Users,
		EscapeForMarkdown(fmt.Sprint(run.Smoothing)),
		EscapeForMarkdown(fmt.Sprint(run.Omega)),
		ev.Matrix,
		EscapeForMarkdown(fmt.Sprintf("%.4f", ev.Accuracy)),
		ev.Degenerate,
	)
	return n.send(text)
}

func (n *Notifier) SendPrediction(p ics.Prediction) error {
	return n.send(FormatPrediction(p))
}

// FormatPrediction renders p as a MarkdownV2 message.
func FormatPrediction(p ics.Prediction) string {
	text := fmt.Sprintf(
		"*%s* is *%s*\nlegitimate %s, fake %s, %d of %d sharers recognized",
		EscapeForMarkdown(p.NewsID),
		p.Label,
		EscapeForMarkdown(fmt.Sprintf("%.6g", p.Score.Legitimate)),
		EscapeForMarkdown(fmt.Sprintf("%.6g", p.Score.Fake)),
		p.Score.Recognized,
		p.Score.Sharers,
	)
	text += fmt.Sprintf("\nlog legitimate %s, log fake %s",
		EscapeForMarkdown(fmt.Sprintf("%.6g", p.Score.LogLegitimate)),
		EscapeForMarkdown(fmt.Sprintf("%.6g", p.Score.LogFake)),
	)
	if p.Degenerate() {
		text += "\n_no recognized sharers, default label_"
	}
	return text
}

func (n *Notifier) send(text string) error {
	msg := tgbotapi.NewMessage(n.channelID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

var replacer = strings.NewReplacer(
	"\\", "\\\\",
	"-", "\\-",
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

func EscapeForMarkdown(src string) string {
	return replacer.Replace(src)
}
