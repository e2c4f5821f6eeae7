package notifier

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"gatebot/internal/trader"

	"github.com/stretchr/testify/assert"
)

func TestEventAlertFields(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	a := eventAlert(trader.Event{Symbol: "SOL_USDT", Side: "short", Size: 0, At: at, Error: "timeout"})
	a.Add("note", "%s", "  ")

	assert.Equal(t, []Field{{Key: "symbol", Value: "SOL_USDT"}, {Key: "side", Value: "short"}}, a.Fields)
	text := a.Markdown()
	assert.Contains(t, text, "```\nsymbol: SOL_USDT\nside: short\n```")
	assert.Contains(t, text, "error: timeout")
	assert.True(t, strings.HasSuffix(text, "时间：2024-03-01 08:00:00 UTC"))
	assert.NotContains(t, text, "size:")
}

func TestAlertMarkdownEscapesAndTruncates(t *testing.T) {
	a := Alert{Title: "x", Error: "bad ```payload```"}
	assert.Contains(t, a.Markdown(), "error: bad '''payload'''")

	long := Alert{Title: "长消息", Error: strings.Repeat("爆仓", 2000)}
	text := long.Markdown()
	assert.True(t, utf8.ValidString(text))
	assert.True(t, strings.HasSuffix(text, "..."))
	assert.LessOrEqual(t, len(text), maxAlertLen+3)
}
