/**
 * @description
 * Intent is the union produced by an intent resolver for free-form text: either
 * a structured tool call the dispatcher routes like a command, or a plain chat
 * response sent back verbatim. The dispatcher does not care which resolver
 * implementation produced the intent.
 */

package domain

// ToolCall names a bot operation with its extracted arguments.
type ToolCall struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args"`
}

// Intent carries exactly one of ToolCall or ChatResponse.
type Intent struct {
	ToolCall     *ToolCall `json:"tool_call,omitempty"`
	ChatResponse string    `json:"chat_response,omitempty"`
}
