/**
 * @description
 * Slash-command handlers. Every command body funnels into the application
 * service; this file only parses arguments and renders list output. The
 * /start command doubles as the deep-link entry point: a "pay_<address>" or
 * "pay_<address>_<amount>" payload drops the user straight into the
 * confirmation machine after registration.
 */

package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/stablepay/walletbot/internal/app"
	"github.com/stablepay/walletbot/internal/domain"
	"github.com/stablepay/walletbot/pkg/chatclient"
)

func (d *Dispatcher) handleCommand(ctx context.Context, msg *chatclient.Message, text string) {
	fields := strings.Fields(text)
	command := strings.ToLower(fields[0])
	// "/send@stablepaybot" addressing is stripped before matching.
	if i := strings.IndexByte(command, '@'); i > 0 {
		command = command[:i]
	}
	args := fields[1:]

	switch command {
	case "/start":
		d.cmdStart(ctx, msg, args)
	case "/balance":
		d.cmdBalance(ctx, msg)
	case "/send":
		d.cmdSend(ctx, msg, args)
	case "/request":
		d.cmdRequest(ctx, msg, args)
	case "/requests":
		d.cmdRequests(ctx, msg)
	case "/friends":
		d.cmdFriends(ctx, msg, args)
	case "/receive":
		d.cmdReceive(ctx, msg)
	case "/history":
		d.cmdHistory(ctx, msg)
	case "/help":
		d.reply(ctx, msg.Chat.ID, helpText)
	default:
		d.reply(ctx, msg.Chat.ID, "Unknown command. "+helpText)
	}
}

const helpText = `Here's what I can do:
/balance — show your USDC balance
/send <recipient> [amount] — send USDC to an address, @username, user id, or friend alias
/request <amount> <from> [reason] — request USDC from a registered user
/requests — list your sent and received payment requests
/friends add <alias> <target> | remove <alias> | list — manage your address book
/receive — show your address, payment URI and deep link
/history — recent transfers

You can also just tell me what to do, e.g. "send 5 to @bob".`

// cmdStart registers the user (idempotent) and then follows any deep-link
// payload into the payment flow.
func (d *Dispatcher) cmdStart(ctx context.Context, msg *chatclient.Message, args []string) {
	profile, created, err := d.svc.RegisterUser(ctx, msg.From.ID, msg.From.Username)
	if err != nil {
		log.Printf("level=error component=bot msg=\"registration failed\" user_id=%d err=%v", msg.From.ID, err)
		d.reply(ctx, msg.Chat.ID, "Sorry, I couldn't set up your wallet. Please try again.")
		return
	}
	if created {
		d.reply(ctx, msg.Chat.ID, fmt.Sprintf("Welcome! Your %s wallet is ready.\nAddress: %s\n\n%s", domain.Currency, profile.WalletAddress, helpText))
	} else if len(args) == 0 {
		d.reply(ctx, msg.Chat.ID, "Welcome back! "+helpText)
	}

	if len(args) > 0 {
		d.followDeepLink(ctx, msg, args[0])
	}
}

// followDeepLink handles "pay_<address>" and "pay_<address>_<amount>" start
// payloads minted by /receive.
func (d *Dispatcher) followDeepLink(ctx context.Context, msg *chatclient.Message, payload string) {
	if !strings.HasPrefix(payload, "pay_") {
		return
	}
	parts := strings.Split(payload, "_")
	switch len(parts) {
	case 2:
		d.startSend(ctx, msg, parts[1], "")
	case 3:
		d.startSend(ctx, msg, parts[1], parts[2])
	default:
		d.reply(ctx, msg.Chat.ID, "That payment link looks broken. Please ask the sender for a fresh one.")
	}
}

func (d *Dispatcher) cmdBalance(ctx context.Context, msg *chatclient.Message) {
	balance, err := d.svc.Balance(ctx, msg.From.ID)
	if err != nil {
		d.replyServiceError(ctx, msg.Chat.ID, err, "balance lookup failed", msg.From.ID)
		return
	}
	d.reply(ctx, msg.Chat.ID, fmt.Sprintf("Your balance: %s %s", domain.FormatAmount(balance), domain.Currency))
}

// cmdSend accepts "/send <recipient> [amount]" and "/send <amount> <recipient>".
func (d *Dispatcher) cmdSend(ctx context.Context, msg *chatclient.Message, args []string) {
	switch len(args) {
	case 1:
		d.startSend(ctx, msg, args[0], "")
	case 2:
		recipient, amount := args[0], args[1]
		if _, err := domain.ParseAmount(args[0]); err == nil {
			recipient, amount = args[1], args[0]
		}
		d.startSend(ctx, msg, recipient, amount)
	default:
		d.reply(ctx, msg.Chat.ID, "Usage: /send <recipient> [amount]")
	}
}

// cmdRequest accepts "/request <amount> <from> [reason...]".
func (d *Dispatcher) cmdRequest(ctx context.Context, msg *chatclient.Message, args []string) {
	if len(args) < 2 {
		d.reply(ctx, msg.Chat.ID, "Usage: /request <amount> <from> [reason]")
		return
	}
	reason := strings.Join(args[2:], " ")
	d.startRequest(ctx, msg, args[1], args[0], reason)
}

func (d *Dispatcher) cmdRequests(ctx context.Context, msg *chatclient.Message) {
	views, err := d.svc.ListRequests(ctx, msg.From.ID, d.historyLimit)
	if err != nil {
		d.replyServiceError(ctx, msg.Chat.ID, err, "request listing failed", msg.From.ID)
		return
	}
	if len(views) == 0 {
		d.reply(ctx, msg.Chat.ID, "You have no payment requests.")
		return
	}

	var b strings.Builder
	b.WriteString("Your payment requests:\n")
	for _, v := range views {
		direction := "from " + v.CounterpartyName
		if v.Outgoing {
			direction = "to " + v.CounterpartyName
		}
		fmt.Fprintf(&b, "• %s %s %s — %s\n", domain.FormatAmount(v.Request.AmountMicro), v.Request.Currency, direction, v.Request.Status)
	}
	d.reply(ctx, msg.Chat.ID, strings.TrimRight(b.String(), "\n"))
}

func (d *Dispatcher) cmdFriends(ctx context.Context, msg *chatclient.Message, args []string) {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) != 3 {
			d.reply(ctx, msg.Chat.ID, "Usage: /friends add <alias> <target>")
			return
		}
		d.cmdFriendsAdd(ctx, msg, args[1], args[2])
	case "remove":
		if len(args) != 2 {
			d.reply(ctx, msg.Chat.ID, "Usage: /friends remove <alias>")
			return
		}
		if err := d.svc.RemoveFriend(ctx, msg.From.ID, args[1]); err != nil {
			if errors.Is(err, app.ErrAliasNotFound) {
				d.reply(ctx, msg.Chat.ID, fmt.Sprintf("You have no friend named %q.", args[1]))
				return
			}
			d.replyServiceError(ctx, msg.Chat.ID, err, "friend removal failed", msg.From.ID)
			return
		}
		d.reply(ctx, msg.Chat.ID, fmt.Sprintf("Removed %q from your friends.", args[1]))
	case "list":
		d.cmdFriendsList(ctx, msg)
	default:
		d.reply(ctx, msg.Chat.ID, "Usage: /friends add <alias> <target> | remove <alias> | list")
	}
}

func (d *Dispatcher) cmdFriendsAdd(ctx context.Context, msg *chatclient.Message, alias, target string) {
	err := d.svc.AddFriend(ctx, msg.From.ID, alias, target)
	if err == nil {
		d.reply(ctx, msg.Chat.ID, fmt.Sprintf("Saved %q. You can now send with /send %s <amount>.", alias, alias))
		return
	}

	var conflict *app.AliasConflictError
	switch {
	case errors.As(err, &conflict):
		d.reply(ctx, msg.Chat.ID, fmt.Sprintf("You already have a friend named %q (→ %s). Remove it first if you want to replace it.", conflict.Alias, conflict.Existing))
	case errors.Is(err, app.ErrAliasTargetIsAlias):
		d.reply(ctx, msg.Chat.ID, "A friend can't point at another alias. Use their address, @username or user id instead.")
	case errors.Is(err, domain.ErrInvalidAlias):
		d.reply(ctx, msg.Chat.ID, "Aliases are 1-16 letters, digits, hyphens or underscores, and can't start with @ or 0x or be \"me\".")
	case isParseError(err):
		d.reply(ctx, msg.Chat.ID, recipientErrorText(err))
	default:
		d.replyServiceError(ctx, msg.Chat.ID, err, "friend addition failed", msg.From.ID)
	}
}

func (d *Dispatcher) cmdFriendsList(ctx context.Context, msg *chatclient.Message) {
	friends, err := d.svc.ListFriends(ctx, msg.From.ID)
	if err != nil {
		d.replyServiceError(ctx, msg.Chat.ID, err, "friend listing failed", msg.From.ID)
		return
	}
	if len(friends) == 0 {
		d.reply(ctx, msg.Chat.ID, "You have no friends saved yet. Add one with /friends add <alias> <target>.")
		return
	}

	var b strings.Builder
	b.WriteString("Your friends:\n")
	for _, f := range friends {
		fmt.Fprintf(&b, "• %s → %s\n", f.Alias, f.Target)
	}
	d.reply(ctx, msg.Chat.ID, strings.TrimRight(b.String(), "\n"))
}

// cmdReceive shows the user's address plus a payment URI and a deep link that
// drops the payer straight into the confirmation flow.
func (d *Dispatcher) cmdReceive(ctx context.Context, msg *chatclient.Message) {
	profile, err := d.svc.Profile(ctx, msg.From.ID)
	if err != nil {
		d.replyServiceError(ctx, msg.Chat.ID, err, "profile lookup failed", msg.From.ID)
		return
	}
	text := fmt.Sprintf(
		"Your address: %s\nPayment URI: ethereum:%s\nDeep link: %s?start=pay_%s",
		profile.WalletAddress, profile.WalletAddress, d.deepLinkBase, profile.WalletAddress,
	)
	d.reply(ctx, msg.Chat.ID, text)
}

func (d *Dispatcher) cmdHistory(ctx context.Context, msg *chatclient.Message) {
	items, err := d.svc.History(ctx, msg.From.ID, d.historyLimit)
	if err != nil {
		d.replyServiceError(ctx, msg.Chat.ID, err, "history lookup failed", msg.From.ID)
		return
	}
	if len(items) == 0 {
		d.reply(ctx, msg.Chat.ID, "No transfers yet.")
		return
	}

	var b strings.Builder
	b.WriteString("Recent transfers:\n")
	for _, item := range items {
		arrow := "→"
		if !item.Outgoing {
			arrow = "←"
		}
		fmt.Fprintf(&b, "• %s %s %s %s (%s)\n", arrow, domain.FormatAmount(item.Entry.AmountMicro), domain.Currency, item.CounterpartyName, item.Entry.Date.Format("Jan 2"))
	}
	d.reply(ctx, msg.Chat.ID, strings.TrimRight(b.String(), "\n"))
}

// replyServiceError logs the real failure and sends the right generic copy:
// unregistered users are pointed at /start, everything else gets an apology.
func (d *Dispatcher) replyServiceError(ctx context.Context, chatID int64, err error, what string, userID int64) {
	log.Printf("level=error component=bot msg=%q user_id=%d err=%v", what, userID, err)
	if isNotRegistered(err) {
		d.reply(ctx, chatID, "You don't have a wallet yet. Send /start to create one.")
		return
	}
	d.reply(ctx, chatID, "Sorry, something went wrong. Please try again.")
}
