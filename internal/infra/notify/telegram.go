// Package notify sends integrity run summaries to the admin Telegram chat.
package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/decant-pricing/internal/pricing"
)

// Notifier is satisfied by Telegram and by Nop.
type Notifier interface {
	AuditFinished(rep *pricing.Report, fix *pricing.FixReport, xlsx []byte)
}

type Nop struct{}

func (Nop) AuditFinished(*pricing.Report, *pricing.FixReport, []byte) {}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	api       sender
	adminChat int64
	log       *slog.Logger
}

func NewTelegram(token string, adminChat int64, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{api: api, adminChat: adminChat, log: log}, nil
}

func (t *Telegram) send(msg tgbotapi.Chattable) {
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("send failed", "err", err)
	}
}

// AuditFinished posts a summary and, when xlsx is set, the full report as a document.
func (t *Telegram) AuditFinished(rep *pricing.Report, fix *pricing.FixReport, xlsx []byte) {
	t.send(tgbotapi.NewMessage(t.adminChat, Summary(rep, fix)))
	if len(xlsx) == 0 {
		return
	}
	doc := tgbotapi.NewDocument(t.adminChat, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("integrity_%s.xlsx", time.Now().Format("20060102_150405")),
		Bytes: xlsx,
	})
	doc.Caption = fmt.Sprintf("Integrity report %s", rep.RunID)
	t.send(doc)
}

// Summary renders a run as plain text.
func Summary(rep *pricing.Report, fix *pricing.FixReport) string {
	var b strings.Builder
	mode := "check"
	if fix != nil {
		mode = "auto-fix"
	}
	fmt.Fprintf(&b, "Price integrity %s %s\n", mode, rep.RunID)
	fmt.Fprintf(&b, "Products: %d, sizes: %d\n", rep.Products, rep.SizesChecked)
	if len(rep.Discrepancies) == 0 {
		b.WriteString("No discrepancies.")
		return b.String()
	}
	fmt.Fprintf(&b, "Discrepancies: %d\n", len(rep.Discrepancies))
	for _, a := range []pricing.Action{
		pricing.ActionRecalculate,
		pricing.ActionMissingPrice,
		pricing.ActionMissingMargin,
		pricing.ActionMissingRecipe,
		pricing.ActionMissingMaterial,
		pricing.ActionManualOverride,
	} {
		if n := rep.Count(a); n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", a, n)
		}
	}
	if fix != nil {
		fmt.Fprintf(&b, "Fixed: %d, skipped: %d, failed: %d", fix.Fixed, fix.Skipped, fix.Failed)
	}
	return strings.TrimRight(b.String(), "\n")
}
