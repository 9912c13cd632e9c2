package notify

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/decant-pricing/internal/infra/logger"
	"github.com/Spok95/decant-pricing/internal/pricing"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.sent = append(s.sent, c)
	return tgbotapi.Message{}, s.err
}

func report() *pricing.Report {
	return &pricing.Report{
		RunID:        "run-1",
		Products:     3,
		SizesChecked: 7,
		Discrepancies: []pricing.Discrepancy{
			{ProductID: 1, SizeMl: 10, Action: pricing.ActionRecalculate},
			{ProductID: 2, SizeMl: 5, Action: pricing.ActionRecalculate},
			{ProductID: 3, SizeMl: 2, Action: pricing.ActionMissingRecipe},
		},
	}
}

func TestSummary(t *testing.T) {
	got := Summary(report(), &pricing.FixReport{Fixed: 2, Skipped: 0, Failed: 0})
	assert.Equal(t, "Price integrity auto-fix run-1\n"+
		"Products: 3, sizes: 7\n"+
		"Discrepancies: 3\n"+
		"  recalculate: 2\n"+
		"  missing_recipe: 1\n"+
		"Fixed: 2, skipped: 0, failed: 0", got)

	clean := &pricing.Report{RunID: "run-2", Products: 1, SizesChecked: 1}
	assert.Equal(t, "Price integrity check run-2\nProducts: 1, sizes: 1\nNo discrepancies.", Summary(clean, nil))
}

func TestAuditFinished(t *testing.T) {
	fs := &fakeSender{}
	tg := &Telegram{api: fs, adminChat: 42, log: logger.Nop()}

	tg.AuditFinished(report(), nil, nil)
	require.Len(t, fs.sent, 1)
	msg, ok := fs.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)

	tg.AuditFinished(report(), nil, []byte("xlsx"))
	require.Len(t, fs.sent, 3)
	doc, ok := fs.sent[2].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, "Integrity report run-1", doc.Caption)
}

func TestAuditFinishedSurvivesSendErrors(t *testing.T) {
	fs := &fakeSender{err: errors.New("bad gateway")}
	tg := &Telegram{api: fs, adminChat: 42, log: logger.Nop()}

	tg.AuditFinished(report(), nil, []byte("xlsx"))
	assert.Len(t, fs.sent, 2)
}
