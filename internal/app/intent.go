/**
 * @description
 * Free-text intent resolution. Messages that are not commands and not an open
 * amount-entry reply get mapped to a tool call (send, request, balance,
 * history) or to a plain chat response. The resolver is an interface so the
 * pattern-based default can be swapped for an LLM-backed one without touching
 * the dispatcher.
 */

package app

import (
	"context"
	"regexp"
	"strings"

	"github.com/stablepay/walletbot/internal/domain"
)

// Tool names an intent resolver may emit.
const (
	ToolSendPayment    = "send_payment"
	ToolRequestPayment = "request_payment"
	ToolGetBalance     = "get_balance"
	ToolGetHistory     = "get_history"
)

// IntentResolver maps free text to a structured intent.
type IntentResolver interface {
	ResolveIntent(ctx context.Context, text string) (*domain.Intent, error)
}

var (
	// "send 5 to @bob", "pay 12.50 usdc to alice", "send @bob 5"
	sendPattern      = regexp.MustCompile(`(?i)^(?:send|pay|transfer)\s+([0-9.]+)(?:\s+usdc)?\s+to\s+(\S+)\s*$`)
	sendFlipPattern  = regexp.MustCompile(`(?i)^(?:send|pay|transfer)\s+(\S+)\s+([0-9.]+)(?:\s+usdc)?\s*$`)
	requestPattern   = regexp.MustCompile(`(?i)^(?:request|ask for)\s+([0-9.]+)(?:\s+usdc)?\s+from\s+(\S+?)(?:\s+for\s+(.+?))?\s*$`)
	balancePattern   = regexp.MustCompile(`(?i)\b(?:balance|how much.*(?:have|hold|left))\b`)
	historyPattern   = regexp.MustCompile(`(?i)\b(?:history|transactions|recent (?:payments|transfers))\b`)
)

// RegexIntentResolver is the default pattern-based resolver.
type RegexIntentResolver struct{}

// ResolveIntent never fails; unrecognized text becomes a help response.
func (RegexIntentResolver) ResolveIntent(_ context.Context, text string) (*domain.Intent, error) {
	trimmed := strings.TrimSpace(text)

	if m := sendPattern.FindStringSubmatch(trimmed); m != nil {
		return &domain.Intent{ToolCall: &domain.ToolCall{
			Name: ToolSendPayment,
			Args: map[string]string{"amount": m[1], "recipient": m[2]},
		}}, nil
	}
	if m := sendFlipPattern.FindStringSubmatch(trimmed); m != nil {
		return &domain.Intent{ToolCall: &domain.ToolCall{
			Name: ToolSendPayment,
			Args: map[string]string{"amount": m[2], "recipient": m[1]},
		}}, nil
	}
	if m := requestPattern.FindStringSubmatch(trimmed); m != nil {
		args := map[string]string{"amount": m[1], "from": m[2]}
		if m[3] != "" {
			args["reason"] = strings.TrimSpace(m[3])
		}
		return &domain.Intent{ToolCall: &domain.ToolCall{Name: ToolRequestPayment, Args: args}}, nil
	}
	if balancePattern.MatchString(trimmed) {
		return &domain.Intent{ToolCall: &domain.ToolCall{Name: ToolGetBalance}}, nil
	}
	if historyPattern.MatchString(trimmed) {
		return &domain.Intent{ToolCall: &domain.ToolCall{Name: ToolGetHistory}}, nil
	}

	return &domain.Intent{ChatResponse: "I can help you send and request USDC. Try \"send 5 to @bob\", \"request 10 from alice for lunch\", or the /balance, /send, /request, /friends and /history commands."}, nil
}
