package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
)

// ErrNotConfigured is returned when no bot token or destination chat is set.
var ErrNotConfigured = errors.New("notify: not configured")

// Payload is the structured content of one alert notification.
type Payload struct {
	Type          string `json:"type"`
	Severity      string `json:"severity"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	WalletAddress string `json:"wallet_address"`
	TxSignature   string `json:"tx_signature,omitempty"`
}

// Notifier delivers alert payloads. An empty target means the default destination.
type Notifier interface {
	Send(ctx context.Context, p Payload, target string) error
}

var severityIcon = map[string]string{
	"CRITICAL": "🚨",
	"WARNING":  "⚠️",
	"INFO":     "ℹ️",
}

// FormatHTML renders a payload in Telegram's HTML subset.
func FormatHTML(p Payload) string {
	var b strings.Builder
	icon := severityIcon[p.Severity]
	if icon == "" {
		icon = "🔔"
	}
	fmt.Fprintf(&b, "%s <b>%s</b>\n", icon, html.EscapeString(p.Title))
	fmt.Fprintf(&b, "<i>%s · %s</i>\n\n", html.EscapeString(p.Severity), html.EscapeString(p.Type))
	if p.Message != "" {
		b.WriteString(html.EscapeString(p.Message))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Wallet: <code>%s</code>", html.EscapeString(p.WalletAddress))
	if p.TxSignature != "" {
		fmt.Fprintf(&b, "\n<a href=\"https://solscan.io/tx/%s\">View transaction</a>", html.EscapeString(p.TxSignature))
	}
	return b.String()
}
