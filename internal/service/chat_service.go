package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/generation"
	"github.com/stemsi/exstem-examgen/internal/llm"
	"github.com/stemsi/exstem-examgen/internal/model"
)

const chatContextRunes = 6000

const chatContextPreamble = "The knowledge base entries below relate to this conversation. " +
	"Use them when answering. Where they conflict with the user's question or common knowledge, " +
	"prefer the question and common knowledge.\n\n"

// ChatService answers questions over the knowledge base. Conversations are
// not stored; the client sends the full history each time.
type ChatService struct {
	chatter    llm.Chatter
	retriever  generation.Retriever
	ragEnabled bool
	log        zerolog.Logger
}

// NewChatService creates a new ChatService. retriever may be nil when
// retrieval is disabled.
func NewChatService(chatter llm.Chatter, retriever generation.Retriever, log zerolog.Logger) *ChatService {
	return &ChatService{
		chatter:    chatter,
		retriever:  retriever,
		ragEnabled: retriever != nil,
		log:        log.With().Str("component", "chat_service").Logger(),
	}
}

// Stream sends the reply to emit chunk by chunk and returns the closing
// metadata. Retrieval failures degrade to a reply without context.
func (s *ChatService) Stream(ctx context.Context, req *model.ChatRequest, emit func(string) error) (*model.ChatMeta, error) {
	meta := &model.ChatMeta{ConversationID: uuid.NewString()}

	messages := make([]llm.Message, 0, len(req.Messages)+2)
	if s.useRAG(req) {
		if query := lastUserMessage(req.Messages); query != "" {
			ragText, recall := s.recall(ctx, query)
			meta.Recall = recall
			if ragText != "" {
				messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: chatContextPreamble + ragText})
			}
		}
	}
	if p := strings.TrimSpace(req.SystemPrompt); p != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: p})
	}
	for _, m := range req.Messages {
		messages = append(messages, llm.Message{Role: chatRole(m.Role), Content: m.Content})
	}

	usage, err := s.chatter.StreamChat(ctx, messages, emit)
	if err != nil {
		return nil, err
	}
	meta.Usage = usage
	s.log.Info().Int("turns", len(req.Messages)).Int("recall", len(meta.Recall)).Msg("Chat answered")
	return meta, nil
}

func (s *ChatService) useRAG(req *model.ChatRequest) bool {
	if req.UseRAG != nil {
		return *req.UseRAG && s.ragEnabled
	}
	return s.ragEnabled
}

func (s *ChatService) recall(ctx context.Context, query string) (string, []model.ChatRecall) {
	fragments, err := s.retriever.Retrieve(ctx, generation.TruncateRunes(query, generation.RetrievalQueryBound))
	if err != nil {
		s.log.Warn().Err(err).Msg("Chat retrieval failed, continuing without context")
		return "", nil
	}

	texts := make([]string, 0, len(fragments))
	recall := make([]model.ChatRecall, 0, len(fragments))
	for _, f := range fragments {
		t := strings.TrimSpace(f.Text)
		if t == "" {
			continue
		}
		texts = append(texts, t)
		recall = append(recall, model.ChatRecall{DocID: f.Source, Content: t, Score: f.Score})
	}
	return generation.TruncateRunes(strings.Join(texts, "\n\n"), chatContextRunes), recall
}

func lastUserMessage(msgs []model.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if chatRole(msgs[i].Role) == llm.RoleUser && strings.TrimSpace(msgs[i].Content) != "" {
			return msgs[i].Content
		}
	}
	return ""
}

// chatRole maps unknown roles to user.
func chatRole(role string) string {
	switch r := strings.ToLower(strings.TrimSpace(role)); r {
	case llm.RoleSystem, llm.RoleAssistant:
		return r
	default:
		return llm.RoleUser
	}
}
