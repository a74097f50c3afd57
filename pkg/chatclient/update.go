/**
 * @description
 * Wire types for incoming webhook updates from the chat platform. An update
 * carries either a message (command or free text) or a callback query (inline
 * button press). These structs are decoded by the webhook handler and passed to
 * the bot dispatcher untouched.
 */
package chatclient

// User identifies the chat-platform account behind a message or button press.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// Chat identifies the conversation a message belongs to. For this bot it is
// always the private chat with the user, so Chat.ID equals User.ID in practice.
type Chat struct {
	ID int64 `json:"id"`
}

// Message is one inbound message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
}

// CallbackQuery is one inline button press. Data is the opaque payload the bot
// attached to the button.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// Update is one webhook delivery.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}
