package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/realtime"
	"kwetu-store/internal/util"

	"go.uber.org/zap"
)

// MaxMessageLength is the longest chat message accepted, in characters.
const MaxMessageLength = 1000

// ChatService relays support conversations between customers and admins.
type ChatService struct {
	chats  ChatRepository
	roles  auth.AdminChecker
	hub    *realtime.Hub
	logger *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(chats ChatRepository, roles auth.AdminChecker, hub *realtime.Hub) *ChatService {
	return &ChatService{chats: chats, roles: roles, hub: hub, logger: util.Component("chat")}
}

// StartConversation returns the customer's active conversation, opening one if needed.
func (s *ChatService) StartConversation(ctx context.Context, sess auth.Session, name, email string) (*models.ChatConversation, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		return nil, apperr.Validation("Name and email are required")
	}

	conv, err := s.chats.GetActiveConversation(ctx, sess.UserID)
	if err == nil {
		return conv, nil
	}
	if appErr := storeError(err, "conversation"); !apperr.HasCode(appErr, apperr.CodeNotFound) {
		return nil, appErr
	}

	conv, err = s.chats.CreateConversation(ctx, sess.UserID, name, email)
	if err != nil {
		return nil, storeError(err, "conversation")
	}
	s.logger.Info("Conversation started", zap.String("conversation_id", conv.ID), zap.String("customer_id", sess.UserID))
	return conv, nil
}

// ListMyConversations returns the customer's own conversations.
func (s *ChatService) ListMyConversations(ctx context.Context, sess auth.Session) ([]models.ChatConversation, error) {
	convs, err := s.chats.ListConversationsByCustomer(ctx, sess.UserID)
	if err != nil {
		return nil, storeError(err, "conversations")
	}
	return convs, nil
}

// ListConversations returns every conversation for the admin inbox.
func (s *ChatService) ListConversations(ctx context.Context, capability auth.AdminCapability) ([]models.ChatConversation, error) {
	if err := requireAdmin(capability); err != nil {
		return nil, err
	}
	convs, err := s.chats.ListConversations(ctx)
	if err != nil {
		return nil, storeError(err, "conversations")
	}
	return convs, nil
}

// OpenConversation returns a conversation the caller may read: its own, or any for admins.
// It also reports whether the caller acts as admin.
func (s *ChatService) OpenConversation(ctx context.Context, sess auth.Session, conversationID string) (*models.ChatConversation, bool, error) {
	conv, err := s.chats.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, false, storeError(err, "conversation")
	}
	if conv.CustomerID == sess.UserID {
		return conv, false, nil
	}

	if _, err := auth.RequireAdmin(ctx, s.roles, sess); err != nil {
		if errors.Is(err, auth.ErrNotAdmin) {
			return nil, false, apperr.NotFound("conversation")
		}
		return nil, false, storeError(err, "user")
	}
	return conv, true, nil
}

// ListMessages returns a readable conversation's messages in order.
func (s *ChatService) ListMessages(ctx context.Context, sess auth.Session, conversationID string) ([]models.ChatMessage, error) {
	if _, _, err := s.OpenConversation(ctx, sess, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.chats.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, storeError(err, "conversation")
	}
	return msgs, nil
}

// SendMessage appends a message. The sender type follows from the caller's role.
func (s *ChatService) SendMessage(ctx context.Context, sess auth.Session, conversationID, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("Message cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, apperr.Validation("Message cannot exceed 1000 characters")
	}

	conv, asAdmin, err := s.OpenConversation(ctx, sess, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status != models.ConversationActive {
		return nil, apperr.Rule(apperr.CodeConversationClosed, "This conversation has been closed")
	}

	senderType := models.SenderCustomer
	if asAdmin {
		senderType = models.SenderAdmin
	}

	msg, err := s.chats.InsertMessage(ctx, conversationID, sess.UserID, senderType, text)
	if err != nil {
		return nil, storeError(err, "conversation")
	}
	util.ChatMessagesTotal.WithLabelValues(senderType).Inc()
	return msg, nil
}

// CloseConversation ends an active conversation.
func (s *ChatService) CloseConversation(ctx context.Context, capability auth.AdminCapability, conversationID string) (*models.ChatConversation, error) {
	if err := requireAdmin(capability); err != nil {
		return nil, err
	}
	conv, err := s.chats.SetConversationStatus(ctx, conversationID, models.ConversationClosed)
	if err != nil {
		return nil, storeError(err, "conversation")
	}
	s.logger.Info("Conversation closed", zap.String("conversation_id", conversationID), zap.String("admin_id", capability.UserID()))
	return conv, nil
}

// DeleteAllChats removes every conversation and message.
func (s *ChatService) DeleteAllChats(ctx context.Context, capability auth.AdminCapability) (int64, error) {
	if err := requireAdmin(capability); err != nil {
		return 0, err
	}
	n, err := s.chats.DeleteAllChats(ctx)
	if err != nil {
		return 0, storeError(err, "conversations")
	}
	s.logger.Warn("All chats deleted", zap.Int64("conversations", n), zap.String("admin_id", capability.UserID()))
	return n, nil
}

// StreamMessages emits every message of a conversation exactly once: the history
// first, then live messages. It subscribes before fetching the history so nothing
// inserted in between is missed. emit is called from the caller's goroutine; the
// stream ends when ctx is done or emit fails.
func (s *ChatService) StreamMessages(ctx context.Context, sess auth.Session, conversationID string, emit func(models.ChatMessage) error) error {
	if _, _, err := s.OpenConversation(ctx, sess, conversationID); err != nil {
		return err
	}

	sub := s.hub.Subscribe(realtime.Filter{Table: "chat_messages", Column: "conversation_id", Value: conversationID})
	defer sub.Close()

	history, err := s.chats.ListMessages(ctx, conversationID)
	if err != nil {
		return storeError(err, "conversation")
	}

	timeline := NewMessageTimeline()
	for _, msg := range timeline.Merge(history...) {
		if err := emit(msg); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-sub.C:
			if !ok {
				return nil
			}
			var msg models.ChatMessage
			if err := change.Decode(&msg); err != nil {
				s.logger.Warn("Undecodable chat message change", zap.Error(err))
				continue
			}
			for _, m := range timeline.Merge(msg) {
				if err := emit(m); err != nil {
					return err
				}
			}
		}
	}
}

// MessageTimeline remembers which messages a stream has already emitted.
type MessageTimeline struct {
	seen map[string]struct{}
}

// NewMessageTimeline creates an empty timeline.
func NewMessageTimeline() *MessageTimeline {
	return &MessageTimeline{seen: make(map[string]struct{})}
}

// Merge returns the messages not emitted before, in the order given.
func (t *MessageTimeline) Merge(msgs ...models.ChatMessage) []models.ChatMessage {
	fresh := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if _, dup := t.seen[m.ID]; dup {
			continue
		}
		t.seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	return fresh
}

// Len is the number of distinct messages seen.
func (t *MessageTimeline) Len() int {
	return len(t.seen)
}
