package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, buffer int) *Hub {
	t.Helper()
	hub := NewHub(buffer)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		hub.Wait()
	})
	return hub
}

func mustParse(t *testing.T, payload string) Change {
	t.Helper()
	c, err := ParseNotification(payload)
	require.NoError(t, err)
	return c
}

func receive(t *testing.T, sub *Subscription) Change {
	t.Helper()
	select {
	case c := <-sub.C:
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func TestHubFiltersByTableAndColumn(t *testing.T) {
	hub := startHub(t, 8)

	convA := hub.Subscribe(Filter{Table: "chat_messages", Column: "conversation_id", Value: "conv-a"})
	defer convA.Close()
	orders := hub.Subscribe(Filter{Table: "orders"})
	defer orders.Close()

	hub.Publish(mustParse(t, `{"table":"chat_messages","type":"INSERT","record":{"id":"m1","conversation_id":"conv-b"}}`))
	hub.Publish(mustParse(t, `{"table":"chat_messages","type":"INSERT","record":{"id":"m2","conversation_id":"conv-a"}}`))
	hub.Publish(mustParse(t, `{"table":"orders","type":"INSERT","record":{"id":"o1","total_amount":25.5}}`))

	got := receive(t, convA)
	id, ok := got.Field("id")
	require.True(t, ok)
	assert.Equal(t, "m2", id)

	order := receive(t, orders)
	total, ok := order.Field("total_amount")
	require.True(t, ok)
	assert.Equal(t, "25.5", total)

	select {
	case extra := <-convA.C:
		t.Fatalf("unexpected change %s", extra.Record)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	hub := startHub(t, 1)
	sub := hub.Subscribe(Filter{Table: "products"})

	sub.Close()
	sub.Close()

	_, open := <-sub.C
	assert.False(t, open)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := startHub(t, 1)
	slow := hub.Subscribe(Filter{Table: "products"})
	defer slow.Close()
	fast := hub.Subscribe(Filter{Table: "orders"})
	defer fast.Close()

	for i := 0; i < 5; i++ {
		hub.Publish(mustParse(t, `{"table":"products","type":"UPDATE","record":{"id":"p1"}}`))
	}
	hub.Publish(mustParse(t, `{"table":"orders","type":"INSERT","record":{"id":"o1"}}`))

	receive(t, fast)
	receive(t, slow)
}

func TestHubClosesSubscriptionsOnShutdown(t *testing.T) {
	hub := NewHub(1)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	sub := hub.Subscribe(Filter{Table: "orders"})
	cancel()
	hub.Wait()

	_, open := <-sub.C
	assert.False(t, open)
	sub.Close()
}

func TestChangeDecodeOld(t *testing.T) {
	c := mustParse(t, `{"table":"products","type":"UPDATE",
		"record":{"id":"p1","stock_quantity":3},
		"old_record":{"id":"p1","stock_quantity":5}}`)

	var before, after struct {
		Stock int `json:"stock_quantity"`
	}
	require.NoError(t, c.Decode(&after))
	require.NoError(t, c.DecodeOld(&before))
	assert.Equal(t, 5, before.Stock)
	assert.Equal(t, 3, after.Stock)

	insert := mustParse(t, `{"table":"orders","type":"INSERT","record":{"id":"o1"},"old_record":null}`)
	assert.Error(t, insert.DecodeOld(&before))

	_, err := ParseNotification(`{"type":"INSERT"}`)
	assert.Error(t, err)
}
