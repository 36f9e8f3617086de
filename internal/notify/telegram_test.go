package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, f.err
}

func TestTelegram_Messages(t *testing.T) {
	bot := &fakeBot{}
	n := NewTelegram(bot, 42, nil)
	ctx := context.Background()

	n.RequestSubmitted(ctx, models.PaymentRequest{ID: 7, StudentID: 3, Amount: decimal.NewFromInt(500), PaymentMethod: "RECEIPT"})
	n.RequestDecided(ctx, models.PaymentRequest{ID: 7, Status: models.Verified, Amount: decimal.NewFromInt(500)}, &ledger.AllocationResult{
		Balance: decimal.NewFromInt(100),
		Lines: []ledger.AllocationLine{{
			Component: models.DebtComponent{Type: models.Medical, Semester: "2024-FALL"},
			Amount:    decimal.NewFromInt(500),
		}},
	})
	n.RequestDecided(ctx, models.PaymentRequest{ID: 8, Status: models.Rejected, RejectionReason: "blurry"}, nil)
	n.RequestDecided(ctx, models.PaymentRequest{ID: 9, Status: models.Pending}, nil)

	if len(bot.sent) != 3 {
		t.Fatalf("sent %d messages", len(bot.sent))
	}
	if bot.sent[0].ChatID != 42 || !strings.Contains(bot.sent[0].Text, "lump sum") {
		t.Fatalf("submitted: %+v", bot.sent[0])
	}
	if !strings.Contains(bot.sent[1].Text, "balance now 100.00") || !strings.Contains(bot.sent[1].Text, "MEDICAL 2024-FALL: 500.00") {
		t.Fatalf("verified: %q", bot.sent[1].Text)
	}
	if !strings.Contains(bot.sent[2].Text, "rejected: blurry") {
		t.Fatalf("rejected: %q", bot.sent[2].Text)
	}
}

func TestTelegram_SendErrorIsSwallowed(t *testing.T) {
	bot := &fakeBot{err: errors.New("Bad Request: chat not found")}
	n := NewTelegram(bot, 1, nil)
	n.ClearanceIssued(context.Background(), models.ClearanceLetter{ID: 1, StudentID: 2})
	if len(bot.sent) != 1 {
		t.Fatal("message not attempted")
	}
}

func TestDial_DisabledWithoutToken(t *testing.T) {
	n, err := Dial("", 0, nil)
	if err != nil || n != nil {
		t.Fatalf("n=%v err=%v", n, err)
	}
}
