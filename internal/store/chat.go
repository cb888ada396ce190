package store

import (
	"context"
	"fmt"

	"kwetu-store/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const conversationColumns = `id, customer_id, customer_name, customer_email, status, created_at, updated_at`

// CreateConversation opens an active conversation for a customer.
func (s *Store) CreateConversation(ctx context.Context, customerID, name, email string) (*models.ChatConversation, error) {
	var conv models.ChatConversation
	err := s.db.GetContext(ctx, &conv, `
		INSERT INTO chat_conversations (id, customer_id, customer_name, customer_email, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+conversationColumns,
		uuid.New().String(), customerID, name, email, models.ConversationActive)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", classify(err))
	}
	return &conv, nil
}

// GetConversation retrieves a conversation by ID
func (s *Store) GetConversation(ctx context.Context, id string) (*models.ChatConversation, error) {
	var conv models.ChatConversation
	err := s.db.GetContext(ctx, &conv,
		"SELECT "+conversationColumns+" FROM chat_conversations WHERE id = $1", id)
	if err != nil {
		return nil, classify(err)
	}
	return &conv, nil
}

// GetActiveConversation returns the customer's most recent active conversation.
func (s *Store) GetActiveConversation(ctx context.Context, customerID string) (*models.ChatConversation, error) {
	var conv models.ChatConversation
	err := s.db.GetContext(ctx, &conv, `
		SELECT `+conversationColumns+` FROM chat_conversations
		WHERE customer_id = $1 AND status = $2
		ORDER BY updated_at DESC
		LIMIT 1`, customerID, models.ConversationActive)
	if err != nil {
		return nil, classify(err)
	}
	return &conv, nil
}

// ListConversations returns every conversation, most recently active first.
func (s *Store) ListConversations(ctx context.Context) ([]models.ChatConversation, error) {
	convs := []models.ChatConversation{}
	err := s.db.SelectContext(ctx, &convs,
		"SELECT "+conversationColumns+" FROM chat_conversations ORDER BY updated_at DESC")
	return convs, err
}

// ListConversationsByCustomer returns a customer's own conversations.
func (s *Store) ListConversationsByCustomer(ctx context.Context, customerID string) ([]models.ChatConversation, error) {
	convs := []models.ChatConversation{}
	err := s.db.SelectContext(ctx, &convs, `
		SELECT `+conversationColumns+` FROM chat_conversations
		WHERE customer_id = $1
		ORDER BY updated_at DESC`, customerID)
	return convs, err
}

// SetConversationStatus moves a conversation to status.
func (s *Store) SetConversationStatus(ctx context.Context, id, status string) (*models.ChatConversation, error) {
	var conv models.ChatConversation
	err := s.db.GetContext(ctx, &conv, `
		UPDATE chat_conversations SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+conversationColumns, status, id)
	if err != nil {
		return nil, fmt.Errorf("set conversation %s status: %w", id, classify(err))
	}
	return &conv, nil
}

// InsertMessage appends a message and bumps the conversation's updated_at.
// The insert only succeeds while the conversation is active.
func (s *Store) InsertMessage(ctx context.Context, conversationID, senderID, senderType, text string) (*models.ChatMessage, error) {
	var msg models.ChatMessage

	err := s.WithTransaction(ctx, nil, func(tx *sqlx.Tx) error {
		var status string
		err := tx.GetContext(ctx, &status,
			"SELECT status FROM chat_conversations WHERE id = $1 FOR UPDATE", conversationID)
		if err != nil {
			return classify(err)
		}
		if status != models.ConversationActive {
			return ErrConversationClosed
		}

		err = tx.GetContext(ctx, &msg, `
			INSERT INTO chat_messages (id, conversation_id, sender_id, sender_type, message)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, seq, conversation_id, sender_id, sender_type, message, created_at`,
			uuid.New().String(), conversationID, senderID, senderType, text)
		if err != nil {
			return classify(err)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE chat_conversations SET updated_at = NOW() WHERE id = $1", conversationID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

// ListMessages returns a conversation's messages in insertion order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	msgs := []models.ChatMessage{}
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT id, seq, conversation_id, sender_id, sender_type, message, created_at
		FROM chat_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// DeleteAllChats removes every conversation and, by cascade, every message.
func (s *Store) DeleteAllChats(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chat_conversations")
	if err != nil {
		return 0, fmt.Errorf("delete chats: %w", err)
	}
	return res.RowsAffected()
}
