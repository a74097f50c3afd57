/**
 * @description
 * This package provides a client for the chat platform's bot HTTP API. It
 * covers the small surface the bot needs: sending and editing messages with
 * optional inline keyboards, answering callback (button) interactions, and
 * registering the webhook. Wire types for incoming updates live in update.go;
 * callers outside this package never build raw API payloads.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the bot API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new bot API client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// InlineButton is one button on an inline keyboard. Payload is the opaque
// callback string returned to us when the button is pressed.
type InlineButton struct {
	Text    string `json:"text"`
	Payload string `json:"callback_data"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// APIError is a non-ok response from the bot API.
type APIError struct {
	Method      string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bot api %s failed: %s", e.Method, e.Description)
}

func (c *Client) post(ctx context.Context, method string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.BaseURL, c.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var decoded apiResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !decoded.OK {
		return &APIError{Method: method, Description: decoded.Description}
	}
	if out != nil && len(decoded.Result) > 0 {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

type replyMarkup struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard"`
}

type sendMessagePayload struct {
	ChatID      int64        `json:"chat_id"`
	Text        string       `json:"text"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

// SendMessage delivers a message, optionally with an inline keyboard, and
// returns the new message's id so it can be edited later.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, buttons [][]InlineButton) (int64, error) {
	payload := sendMessagePayload{ChatID: chatID, Text: text}
	if len(buttons) > 0 {
		payload.ReplyMarkup = &replyMarkup{InlineKeyboard: buttons}
	}
	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.post(ctx, "sendMessage", payload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

type editMessagePayload struct {
	ChatID      int64        `json:"chat_id"`
	MessageID   int64        `json:"message_id"`
	Text        string       `json:"text"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

// EditMessageText rewrites a previously sent message, replacing its keyboard.
// Passing no buttons clears the keyboard.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, buttons [][]InlineButton) error {
	payload := editMessagePayload{ChatID: chatID, MessageID: messageID, Text: text}
	if len(buttons) > 0 {
		payload.ReplyMarkup = &replyMarkup{InlineKeyboard: buttons}
	}
	return c.post(ctx, "editMessageText", payload, nil)
}

type answerCallbackPayload struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// AnswerCallbackQuery acknowledges a button press. Clients time the triggering
// interaction out after a few seconds, so confirm handlers call this before
// doing any slow work.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string, alert bool) error {
	return c.post(ctx, "answerCallbackQuery", answerCallbackPayload{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	}, nil)
}

type setWebhookPayload struct {
	URL         string `json:"url"`
	SecretToken string `json:"secret_token,omitempty"`
}

// SetWebhook registers the public webhook URL with the platform. The secret
// token is echoed back on every delivery and checked by our middleware.
func (c *Client) SetWebhook(ctx context.Context, url, secretToken string) error {
	return c.post(ctx, "setWebhook", setWebhookPayload{URL: url, SecretToken: secretToken}, nil)
}
