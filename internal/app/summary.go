package app

import (
	"fmt"
	"sort"
	"strings"

	cfgloader "gatebot/internal/config/loader"
)

type StartupSummary struct {
	Env          string
	Driver       string
	HTTPAddr     string
	Symbols      []string
	Leverage     int
	Settings     cfgloader.RuntimeSettings
	SettingsPath string
	JournalPath  string
	Heartbeat    bool
	Telegram     bool
}

func (s *StartupSummary) Print() {
	fmt.Print(s.Render())
}

func (s *StartupSummary) Render() string {
	var b strings.Builder
	line := strings.Repeat("=", 80)
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(&b, line)

	fmt.Fprintln(&b, "[运行环境 (RUNTIME)]")
	fmt.Fprintf(&b, "  环境: %s\n", s.Env)
	fmt.Fprintf(&b, "  执行器: %s\n", s.Driver)
	fmt.Fprintf(&b, "  HTTP: %s\n", s.HTTPAddr)
	fmt.Fprintf(&b, "  心跳: %s   Telegram: %s\n", onOff(s.Heartbeat), onOff(s.Telegram))
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[行情 (MARKET)]")
	fmt.Fprintf(&b, "  监控币种: %s\n", formatList(s.Symbols))
	fmt.Fprintln(&b)

	st := s.Settings
	fmt.Fprintln(&b, "[交易参数 (TRADING)]")
	fmt.Fprintf(&b, "  杠杆: %dx   最大持仓数: %d\n", s.Leverage, st.MaxTotalOpenPositions)
	fmt.Fprintf(&b, "  入场延迟: %d-%dms\n", st.MinEntryDelayMs, st.MaxEntryDelayMs)
	fmt.Fprintf(&b, "  止盈/止损: %.2f%% / %.2f%%\n", st.TakeProfitPct, st.StopLossPct)
	if st.TimeoutEnabled {
		fmt.Fprintf(&b, "  超时平仓: %dms\n", st.TimeoutMs)
	} else {
		fmt.Fprintln(&b, "  超时平仓: off")
	}
	fmt.Fprintf(&b, "  限频窗口: %s\n", formatLimits(st.RateLimits))
	fmt.Fprintf(&b, "  设置文件: %s\n", s.SettingsPath)
	fmt.Fprintf(&b, "  事件日志: %s\n", s.JournalPath)
	fmt.Fprintln(&b, line)
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func formatLimits(limits map[string]int) string {
	keys := make([]string, 0, len(limits))
	for k, v := range limits {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "-"
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s<=%d", k, limits[k]))
	}
	return strings.Join(parts, " ")
}
