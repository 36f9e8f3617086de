// Package notify posts ledger workflow events to the finance team's Telegram chat.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/logging"
	"github.com/Spok95/student-debt-ledger/internal/models"
	"github.com/Spok95/student-debt-ledger/internal/tg"
)

// Telegram implements ledger.Notifier. Sends are fire-and-forget: a failed
// message is logged and never affects the committed ledger change.
type Telegram struct {
	bot    tg.Sender
	chatID int64
	log    *zap.Logger
	async  bool
}

var _ ledger.Notifier = (*Telegram)(nil)

func NewTelegram(bot tg.Sender, chatID int64, log *zap.Logger) *Telegram {
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{bot: bot, chatID: chatID, log: log}
}

// Dial connects to the Bot API. An empty token disables notifications.
func Dial(token string, chatID int64, log *zap.Logger) (ledger.Notifier, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	t := NewTelegram(bot, chatID, log)
	t.async = true
	return t, nil
}

// send delivers text; in async mode the ledger call does not wait for Telegram.
func (t *Telegram) send(ctx context.Context, text string) {
	if t.async {
		go t.deliver(context.WithoutCancel(ctx), text)
		return
	}
	t.deliver(ctx, text)
}

func (t *Telegram) deliver(ctx context.Context, text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := tg.Send(t.bot, msg); err != nil {
		logging.With(ctx, t.log).Warn("telegram send failed", zap.Error(err))
	}
}

func describeTarget(tgt *models.ComponentTarget) string {
	if tgt == nil {
		return "lump sum"
	}
	return tgt.String()
}

func (t *Telegram) RequestSubmitted(ctx context.Context, r models.PaymentRequest) {
	t.send(ctx, fmt.Sprintf("🧾 New payment request #%d\nStudent: %d\nAmount: %s (%s)\nMethod: %s",
		r.ID, r.StudentID, r.Amount.StringFixed(2), describeTarget(r.Target), r.PaymentMethod))
}

func (t *Telegram) RequestDecided(ctx context.Context, r models.PaymentRequest, res *ledger.AllocationResult) {
	var b strings.Builder
	switch r.Status {
	case models.Verified:
		fmt.Fprintf(&b, "✅ Request #%d verified: %s applied", r.ID, r.Amount.StringFixed(2))
		if res != nil {
			fmt.Fprintf(&b, ", balance now %s", res.Balance.StringFixed(2))
			for _, l := range res.Lines {
				fmt.Fprintf(&b, "\n• %s %s: %s", l.Component.Type, l.Component.Semester, l.Amount.StringFixed(2))
			}
		}
	case models.Rejected:
		fmt.Fprintf(&b, "❌ Request #%d rejected", r.ID)
		if r.RejectionReason != "" {
			fmt.Fprintf(&b, ": %s", r.RejectionReason)
		}
	default:
		return
	}
	t.send(ctx, b.String())
}

func (t *Telegram) ClearanceIssued(ctx context.Context, l models.ClearanceLetter) {
	t.send(ctx, fmt.Sprintf("🎓 Clearance letter #%d issued for student %d", l.ID, l.StudentID))
}
