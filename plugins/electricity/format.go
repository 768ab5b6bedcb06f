package electricity

import (
	"fmt"
	"strings"
	"time"

	kit "powerbot/internal/transport"
)

func notification(target kit.ChatTarget, text string, priority int) kit.Notification {
	return kit.Notification{
		Channel:  "telegram",
		Priority: priority,
		Target:   target,
		Text:     text,
	}
}

func formatReading(r Reading, threshold float64) string {
	var b strings.Builder
	b.WriteString("⚡ Electricity balance\n")
	fmt.Fprintf(&b, "🏠 Room: %s\n", r.RoomName)
	if r.DeviceName != "" {
		fmt.Fprintf(&b, "🔌 Meter: %s\n", r.DeviceName)
	}
	fmt.Fprintf(&b, "💰 Balance: %.2f CNY\n", r.Balance)
	if r.Price > 0 {
		fmt.Fprintf(&b, "💴 Price: %.2f CNY/kWh\n", r.Price)
	}
	fmt.Fprintf(&b, "📉 Threshold: %.2f CNY\n", threshold)
	fmt.Fprintf(&b, "📡 Online: %s | Switch: %s\n", yesNo(r.IsOnline), onOff(r.SwitchStatus))
	if r.UpdateTime != "" {
		fmt.Fprintf(&b, "🕐 Updated: %s", r.UpdateTime)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatLowBalance(r Reading, threshold float64) string {
	var b strings.Builder
	b.WriteString("Electricity balance is low!\n")
	fmt.Fprintf(&b, "🏠 Room: %s\n", r.RoomName)
	fmt.Fprintf(&b, "💰 Balance: %.2f CNY (below %.2f)\n", r.Balance, threshold)
	b.WriteString("Please recharge soon to avoid a power cut.")
	return b.String()
}

func formatRecharge(r Reading, amount float64) string {
	var b strings.Builder
	b.WriteString("Electricity recharge detected 🎉\n")
	fmt.Fprintf(&b, "🏠 Room: %s\n", r.RoomName)
	fmt.Fprintf(&b, "➕ Amount: %.2f CNY\n", amount)
	fmt.Fprintf(&b, "💰 Balance: %.2f CNY", r.Balance)
	return b.String()
}

func formatAuthExpired(err error) string {
	msg := "Electricity portal session expired and could not be refreshed."
	if err != nil {
		msg += "\n" + err.Error()
	}
	msg += "\nUpdate the credentials or token, then run /power check."
	return msg
}

func formatStatus(cfg Config, st monitorState, subscribed bool, subCount int) string {
	var b strings.Builder
	b.WriteString("⚡ Electricity monitor status\n")
	fmt.Fprintf(&b, "🔁 Auto check: %s\n", onOff(cfg.AutoCheck))
	if d, err := time.ParseDuration(cfg.CheckInterval); err == nil && d > 0 {
		fmt.Fprintf(&b, "⏱ Interval: %s\n", d)
	}
	fmt.Fprintf(&b, "📉 Threshold: %.2f CNY\n", cfg.Threshold)
	fmt.Fprintf(&b, "🔔 This chat subscribed: %s (total %d)\n", yesNo(subscribed), subCount)
	if st.LastBalance != nil {
		fmt.Fprintf(&b, "💰 Last balance: %.2f CNY\n", *st.LastBalance)
	}
	if !st.LastCheck.IsZero() {
		fmt.Fprintf(&b, "🕐 Last check: %s", st.LastCheck.Format("2006-01-02 15:04:05"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
