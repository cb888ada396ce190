package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatFixture(t *testing.T) (*ChatService, *fakeChats, *realtime.Hub) {
	t.Helper()
	chats := newFakeChats()
	roles := &fakeRoles{admins: map[string]bool{"admin-1": true}}
	hub := realtime.NewHub(16)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		hub.Wait()
	})
	return NewChatService(chats, roles, hub), chats, hub
}

func messageChange(t *testing.T, msg models.ChatMessage) realtime.Change {
	t.Helper()
	record, err := json.Marshal(msg)
	require.NoError(t, err)
	return realtime.Change{Table: "chat_messages", Type: realtime.ChangeInsert, Record: record}
}

func TestMessageTimeline_Merge(t *testing.T) {
	tl := NewMessageTimeline()

	first := tl.Merge(models.ChatMessage{ID: "a"}, models.ChatMessage{ID: "b"})
	assert.Len(t, first, 2)

	second := tl.Merge(models.ChatMessage{ID: "b"}, models.ChatMessage{ID: "c"}, models.ChatMessage{ID: "c"})
	require.Len(t, second, 1)
	assert.Equal(t, "c", second[0].ID)
	assert.Equal(t, 3, tl.Len())
}

func TestChatService_StartConversationReusesActive(t *testing.T) {
	svc, _, _ := newChatFixture(t)
	ctx := context.Background()
	sess := auth.Session{UserID: "u1"}

	_, err := svc.StartConversation(ctx, sess, "", "ama@example.com")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidInput))

	first, err := svc.StartConversation(ctx, sess, "Ama", "ama@example.com")
	require.NoError(t, err)
	second, err := svc.StartConversation(ctx, sess, "Ama", "ama@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestChatService_SendMessage(t *testing.T) {
	svc, _, _ := newChatFixture(t)
	ctx := context.Background()
	customer := auth.Session{UserID: "u1"}
	admin := auth.Session{UserID: "admin-1"}

	conv, err := svc.StartConversation(ctx, customer, "Ama", "ama@example.com")
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, customer, conv.ID, "  Where is my order?  ")
	require.NoError(t, err)
	assert.Equal(t, models.SenderCustomer, msg.SenderType)
	assert.Equal(t, "Where is my order?", msg.Message)

	reply, err := svc.SendMessage(ctx, admin, conv.ID, "On its way")
	require.NoError(t, err)
	assert.Equal(t, models.SenderAdmin, reply.SenderType)

	_, err = svc.SendMessage(ctx, auth.Session{UserID: "u2"}, conv.ID, "hello")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))

	_, err = svc.SendMessage(ctx, customer, conv.ID, "   ")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidInput))

	_, err = svc.SendMessage(ctx, customer, conv.ID, strings.Repeat("x", MaxMessageLength+1))
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidInput))

	_, err = svc.SendMessage(ctx, customer, conv.ID, strings.Repeat("é", MaxMessageLength))
	assert.NoError(t, err)
}

func TestChatService_ClosedConversation(t *testing.T) {
	svc, chats, _ := newChatFixture(t)
	ctx := context.Background()
	customer := auth.Session{UserID: "u1"}
	capability, err := auth.RequireAdmin(ctx, &fakeRoles{admins: map[string]bool{"admin-1": true}}, auth.Session{UserID: "admin-1"})
	require.NoError(t, err)

	conv, err := svc.StartConversation(ctx, customer, "Ama", "ama@example.com")
	require.NoError(t, err)

	_, err = svc.CloseConversation(ctx, auth.AdminCapability{}, conv.ID)
	assert.True(t, apperr.HasCode(err, apperr.CodeNotAdmin))

	closed, err := svc.CloseConversation(ctx, capability, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationClosed, closed.Status)

	_, err = svc.SendMessage(ctx, customer, conv.ID, "still there?")
	assert.True(t, apperr.HasCode(err, apperr.CodeConversationClosed))
	assert.Empty(t, chats.messages[conv.ID])

	next, err := svc.StartConversation(ctx, customer, "Ama", "ama@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.ConversationActive, next.Status)
}

func TestChatService_StreamMessagesEmitsEachOnce(t *testing.T) {
	svc, chats, hub := newChatFixture(t)
	sess := auth.Session{UserID: "u1"}

	conv, err := svc.StartConversation(context.Background(), sess, "Ama", "ama@example.com")
	require.NoError(t, err)
	early, err := chats.InsertMessage(context.Background(), conv.ID, "u1", models.SenderCustomer, "hello")
	require.NoError(t, err)

	// A message committed while the history is being read arrives both ways.
	racing := models.ChatMessage{ID: "racing", ConversationID: conv.ID, SenderType: models.SenderAdmin, Message: "hi"}
	chats.onList = func() {
		chats.mu.Lock()
		chats.messages[conv.ID] = append(chats.messages[conv.ID], racing)
		chats.mu.Unlock()
		hub.Publish(messageChange(t, racing))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu      sync.Mutex
		emitted []string
	)
	late := models.ChatMessage{ID: "late", ConversationID: conv.ID, Message: "thanks"}
	other := models.ChatMessage{ID: "elsewhere", ConversationID: "another", Message: "ignored"}
	emit := func(m models.ChatMessage) error {
		mu.Lock()
		defer mu.Unlock()
		emitted = append(emitted, m.ID)
		switch m.ID {
		case "racing":
			hub.Publish(messageChange(t, other))
			hub.Publish(messageChange(t, late))
		case "late":
			cancel()
		}
		return nil
	}

	require.NoError(t, svc.StreamMessages(ctx, sess, conv.ID, emit))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{early.ID, "racing", "late"}, emitted)
}

func TestChatService_DeleteAllChats(t *testing.T) {
	svc, _, _ := newChatFixture(t)
	ctx := context.Background()
	roles := &fakeRoles{admins: map[string]bool{"admin-1": true}}
	capability, err := auth.RequireAdmin(ctx, roles, auth.Session{UserID: "admin-1"})
	require.NoError(t, err)

	_, err = svc.StartConversation(ctx, auth.Session{UserID: "u1"}, "Ama", "ama@example.com")
	require.NoError(t, err)

	n, err := svc.DeleteAllChats(ctx, capability)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	convs, err := svc.ListConversations(ctx, capability)
	require.NoError(t, err)
	assert.Empty(t, convs)
}
