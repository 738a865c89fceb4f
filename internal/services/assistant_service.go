package services

import (
	"context"
	"log"

	"chromechat-service/internal/assistant"
	"chromechat-service/internal/models"
)

const maxReplyRunes = 4000

// Completer produces the assistant's reply for a conversation history.
type Completer interface {
	Complete(ctx context.Context, history []assistant.Turn) (string, error)
}

// AssistantService runs a prompt through the responder. Prompt and reply
// are ordinary messages in the user's chat with the assistant.
type AssistantService struct {
	chats     *ChatService
	completer Completer
}

func NewAssistantService(chats *ChatService, completer Completer) *AssistantService {
	return &AssistantService{chats: chats, completer: completer}
}

func (s *AssistantService) Ask(ctx context.Context, userID, prompt string) (models.Message, models.Message, error) {
	ctx, span := tracer.Start(ctx, "AssistantService.Ask")
	defer span.End()

	chatID, _, err := s.chats.EnsureChatExists(ctx, userID, models.AssistantUserID)
	if err != nil {
		return models.Message{}, models.Message{}, err
	}
	sent, err := s.chats.SendMessage(ctx, userID, chatID, prompt)
	if err != nil {
		return models.Message{}, models.Message{}, err
	}

	history, err := s.chats.ListMessages(ctx, userID, chatID)
	if err != nil {
		history = []models.Message{sent}
	}
	turns := make([]assistant.Turn, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.SenderID == models.AssistantUserID {
			role = "assistant"
		}
		turns = append(turns, assistant.Turn{Role: role, Content: msg.Text})
	}

	text, err := s.completer.Complete(ctx, turns)
	if err != nil {
		log.Printf("assistant completion failed: user_id=%s err=%v", userID, err)
		text = assistant.FallbackReply
	}
	if r := []rune(text); len(r) > maxReplyRunes {
		text = string(r[:maxReplyRunes])
	}

	reply, err := s.chats.SendMessage(ctx, models.AssistantUserID, chatID, text)
	if err != nil {
		return sent, models.Message{}, err
	}
	return sent, reply, nil
}
