package conversation

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of dialogue handed to the NLU oracle.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest describes a single completion call. Temperature stays low
// for classification/extraction prompts; a negative value means
// "provider default".
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
}

// LLMResponse is the oracle's raw reply.
type LLMResponse struct {
	Text       string
	StopReason string
}

// LLMClient is the black-box NLU oracle. Its output is advisory: every
// extracted field is re-validated deterministically before use.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
