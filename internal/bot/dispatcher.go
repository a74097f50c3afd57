/**
 * @description
 * Update dispatcher for the wallet bot. Each incoming webhook update is
 * handled on its own goroutine by the HTTP layer; this file routes it:
 * callback queries to the confirmation or request handlers via the payload
 * codec, slash commands to the command table, and remaining free text first
 * to an open amount-entry slot and otherwise through the intent resolver.
 *
 * All user-correctable failures (bad identifiers, bad amounts, unknown
 * recipients) become chat messages here; anything unclassified is caught by
 * the top-level recover and turned into an apology, never a crashed loop.
 *
 * @dependencies
 * - internal/app: the service facade and the callback payload codec.
 * - pkg/chatclient: wire types for updates.
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
	"github.com/stablepay/walletbot/internal/store"
	"github.com/stablepay/walletbot/pkg/chatclient"
)

// Dispatcher routes incoming updates to the application service.
type Dispatcher struct {
	svc          *app.Service
	chat         app.ChatSender
	intents      app.IntentResolver
	deepLinkBase string
	historyLimit int
}

// NewDispatcher creates a dispatcher. deepLinkBase is the public bot URL used
// to mint /receive deep links, e.g. "https://t.me/stablepaybot".
func NewDispatcher(svc *app.Service, chat app.ChatSender, intents app.IntentResolver, deepLinkBase string, historyLimit int) *Dispatcher {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Dispatcher{
		svc:          svc,
		chat:         chat,
		intents:      intents,
		deepLinkBase: deepLinkBase,
		historyLimit: historyLimit,
	}
}

// HandleUpdate processes one update end to end.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update chatclient.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("level=error component=bot msg=\"panic in update handler\" update_id=%d panic=%v", update.UpdateID, r)
			if chatID, ok := updateChatID(update); ok {
				d.reply(ctx, chatID, "Sorry, something went wrong. Please try again.")
			}
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		d.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		d.handleMessage(ctx, update.Message)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *chatclient.Message) {
	if msg.From == nil || msg.Text == "" {
		return
	}
	text := strings.TrimSpace(msg.Text)

	if strings.HasPrefix(text, "/") {
		d.handleCommand(ctx, msg, text)
		return
	}

	// An open amount-entry slot claims free text before intent parsing does.
	handled, err := d.svc.SubmitAmount(ctx, msg.From.ID, msg.Chat.ID, text)
	if err != nil {
		log.Printf("level=error component=bot msg=\"amount submission failed\" user_id=%d err=%v", msg.From.ID, err)
		d.reply(ctx, msg.Chat.ID, "Sorry, something went wrong. Please try again.")
		return
	}
	if handled {
		return
	}

	d.handleFreeText(ctx, msg, text)
}

func (d *Dispatcher) handleFreeText(ctx context.Context, msg *chatclient.Message, text string) {
	intent, err := d.intents.ResolveIntent(ctx, text)
	if err != nil {
		log.Printf("level=error component=bot msg=\"intent resolution failed\" user_id=%d err=%v", msg.From.ID, err)
		d.reply(ctx, msg.Chat.ID, "Sorry, something went wrong. Please try again.")
		return
	}
	if intent.ToolCall == nil {
		d.reply(ctx, msg.Chat.ID, intent.ChatResponse)
		return
	}

	switch intent.ToolCall.Name {
	case app.ToolSendPayment:
		d.startSend(ctx, msg, intent.ToolCall.Args["recipient"], intent.ToolCall.Args["amount"])
	case app.ToolRequestPayment:
		d.startRequest(ctx, msg, intent.ToolCall.Args["from"], intent.ToolCall.Args["amount"], intent.ToolCall.Args["reason"])
	case app.ToolGetBalance:
		d.cmdBalance(ctx, msg)
	case app.ToolGetHistory:
		d.cmdHistory(ctx, msg)
	default:
		d.reply(ctx, msg.Chat.ID, "I didn't understand that. Try /send, /request, /balance or /history.")
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb *chatclient.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID

	action, err := app.ParseCallbackPayload(cb.Data)
	if err != nil {
		log.Printf("level=warn component=bot msg=\"unparseable callback payload\" user_id=%d data=%q", cb.From.ID, cb.Data)
		if ackErr := d.chat.AnswerCallbackQuery(ctx, cb.ID, "This button is no longer valid.", false); ackErr != nil {
			log.Printf("level=warn component=bot msg=\"callback ack failed\" err=%v", ackErr)
		}
		return
	}

	switch action.Kind {
	case app.ActionConfirmPay:
		err = d.svc.ConfirmPayment(ctx, cb.From.ID, chatID, messageID, cb.ID, action.TicketID)
	case app.ActionCancelPay:
		err = d.svc.CancelPayment(ctx, cb.From.ID, chatID, messageID, cb.ID, action.TicketID)
	case app.ActionAcceptRequest:
		err = d.svc.AcceptRequest(ctx, cb.From.ID, chatID, messageID, cb.ID, action.RequestID)
	case app.ActionDeclineRequest:
		err = d.svc.DeclineRequest(ctx, cb.From.ID, chatID, messageID, cb.ID, action.RequestID)
	}
	if err != nil {
		log.Printf("level=error component=bot msg=\"callback handling failed\" kind=%s user_id=%d err=%v", action.Kind, cb.From.ID, err)
	}
}

// startSend drives the shared entry into the confirmation machine: resolve
// the recipient, then stage immediately when an amount is present or open the
// amount slot when it is not.
func (d *Dispatcher) startSend(ctx context.Context, msg *chatclient.Message, rawRecipient, rawAmount string) {
	recipient, err := d.svc.Resolve(ctx, rawRecipient, msg.From.ID)
	if err != nil {
		d.reply(ctx, msg.Chat.ID, recipientErrorText(err))
		return
	}

	if rawAmount == "" {
		if err := d.svc.PromptAmount(ctx, msg.From.ID, msg.Chat.ID, recipient, nil); err != nil {
			log.Printf("level=error component=bot msg=\"amount prompt failed\" user_id=%d err=%v", msg.From.ID, err)
		}
		return
	}

	amountMicro, err := domain.ParseAmount(rawAmount)
	if err != nil {
		d.reply(ctx, msg.Chat.ID, fmt.Sprintf("%q is not a valid amount. Enter a positive %s amount, e.g. 12.50.", rawAmount, domain.Currency))
		return
	}
	if _, err := d.svc.StageTransfer(ctx, msg.From.ID, msg.Chat.ID, recipient, amountMicro, nil); err != nil {
		log.Printf("level=error component=bot msg=\"transfer staging failed\" user_id=%d err=%v", msg.From.ID, err)
		d.reply(ctx, msg.Chat.ID, "Sorry, something went wrong. Please try again.")
	}
}

func (d *Dispatcher) startRequest(ctx context.Context, msg *chatclient.Message, rawTarget, rawAmount, reason string) {
	amountMicro, err := domain.ParseAmount(rawAmount)
	if err != nil {
		d.reply(ctx, msg.Chat.ID, fmt.Sprintf("%q is not a valid amount. Enter a positive %s amount, e.g. 12.50.", rawAmount, domain.Currency))
		return
	}
	if _, err := d.svc.CreateRequest(ctx, msg.From.ID, msg.Chat.ID, rawTarget, amountMicro, reason); err != nil {
		switch {
		case errors.Is(err, app.ErrRequestSelf):
			d.reply(ctx, msg.Chat.ID, "You can't request a payment from yourself.")
		case errors.Is(err, app.ErrRequestTargetUnknown), errors.Is(err, app.ErrRecipientNotFound), errors.Is(err, app.ErrAliasNotFound):
			d.reply(ctx, msg.Chat.ID, "I couldn't find that user. Payment requests can only be sent to registered users.")
		case isParseError(err):
			d.reply(ctx, msg.Chat.ID, recipientErrorText(err))
		default:
			log.Printf("level=error component=bot msg=\"request creation failed\" user_id=%d err=%v", msg.From.ID, err)
			d.reply(ctx, msg.Chat.ID, "Sorry, something went wrong. Please try again.")
		}
	}
}

// recipientErrorText maps resolution failures to user copy. Not-found stays
// generic so the bot never confirms whether an account exists.
func recipientErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		return "That doesn't look like a valid wallet address. Addresses start with 0x and are 42 characters long."
	case errors.Is(err, domain.ErrInvalidUsername):
		return "That doesn't look like a valid username. Usernames start with @ and are 5-32 characters."
	case errors.Is(err, domain.ErrInvalidUserID):
		return "That doesn't look like a valid user id."
	case errors.Is(err, domain.ErrInvalidAlias), errors.Is(err, domain.ErrInvalidFormat):
		return "I couldn't make sense of that recipient. Use a 0x address, an @username, a user id, or one of your friend aliases."
	case errors.Is(err, app.ErrRecipientNotFound), errors.Is(err, app.ErrAliasNotFound):
		return "I couldn't find that recipient. Please check it and try again."
	default:
		return "Sorry, something went wrong. Please try again."
	}
}

func isNotRegistered(err error) bool {
	return errors.Is(err, store.ErrUserNotFound)
}

func isParseError(err error) bool {
	return errors.Is(err, domain.ErrInvalidAddress) ||
		errors.Is(err, domain.ErrInvalidUsername) ||
		errors.Is(err, domain.ErrInvalidUserID) ||
		errors.Is(err, domain.ErrInvalidAlias) ||
		errors.Is(err, domain.ErrInvalidFormat)
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	if _, err := d.chat.SendMessage(ctx, chatID, text, nil); err != nil {
		log.Printf("level=warn component=bot msg=\"reply send failed\" chat_id=%d err=%v", chatID, err)
	}
}

func updateChatID(update chatclient.Update) (int64, bool) {
	if update.Message != nil {
		return update.Message.Chat.ID, true
	}
	if update.CallbackQuery != nil && update.CallbackQuery.Message != nil {
		return update.CallbackQuery.Message.Chat.ID, true
	}
	return 0, false
}
