package notifier

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gatebot/internal/trader"
)

// Telegram 单条消息上限 4096，留出余量
const maxAlertLen = 3800

// Field 是告警里的一行 key: value。
type Field struct {
	Key   string
	Value string
}

// Alert 是一条待推送的告警。
type Alert struct {
	Icon   string
	Title  string
	Fields []Field
	Error  string
	At     time.Time
}

// eventAlert 预填 symbol/side/size，其余字段由调用方按事件类型追加。
func eventAlert(evt trader.Event) Alert {
	a := Alert{At: evt.At}
	a.Add("symbol", "%s", evt.Symbol)
	if evt.Side != "" {
		a.Add("side", "%s", evt.Side)
	}
	if evt.Size != 0 {
		a.Add("size", "%v", evt.Size)
	}
	a.Error = evt.Error
	return a
}

// Add appends a field; empty values are skipped.
func (a *Alert) Add(key, format string, args ...any) {
	value := strings.TrimSpace(fmt.Sprintf(format, args...))
	if value == "" {
		return
	}
	a.Fields = append(a.Fields, Field{Key: key, Value: value})
}

// Markdown renders the alert for Telegram. Fields go into a code block so
// symbols like BTC_USDT are not parsed as markup.
func (a Alert) Markdown() string {
	var b strings.Builder
	if header := strings.TrimSpace(a.Icon + " " + a.Title); header != "" {
		b.WriteString(header + "\n\n")
	}
	if len(a.Fields) > 0 {
		b.WriteString("```\n")
		for _, f := range a.Fields {
			b.WriteString(escapeFence(f.Key + ": " + f.Value))
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}
	if msg := strings.TrimSpace(a.Error); msg != "" {
		b.WriteString("error: " + escapeFence(msg) + "\n")
	}
	if !a.At.IsZero() {
		b.WriteString("时间：" + a.At.Format("2006-01-02 15:04:05 MST"))
	}
	return truncate(strings.TrimSpace(b.String()), maxAlertLen)
}

func escapeFence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}

// truncate cuts on a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
