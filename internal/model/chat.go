package model

// ChatMessage is one turn of a knowledge-base chat.
type ChatMessage struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required,max=20000"`
}

// ChatRequest is the payload for a streamed chat reply.
type ChatRequest struct {
	Messages     []ChatMessage `json:"messages" binding:"required,min=1,max=50,dive"`
	SystemPrompt string        `json:"system_prompt" binding:"omitempty,max=4000"`
	UseRAG       *bool         `json:"use_rag"`
}

// ChatRecall is one knowledge-base fragment a reply was grounded on.
type ChatRecall struct {
	DocID   string  `json:"doc_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// ChatMeta closes a chat stream.
type ChatMeta struct {
	ConversationID string       `json:"conversation_id"`
	Usage          *Usage       `json:"usage,omitempty"`
	Recall         []ChatRecall `json:"recall,omitempty"`
}
