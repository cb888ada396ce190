package service

import (
	"context"
	"testing"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartService_GetCart(t *testing.T) {
	carts := &fakeCarts{lines: map[string][]models.CartLine{"u1": sampleCart()}}
	svc := NewCartService(carts, &fakeRoles{})

	view, err := svc.GetCart(context.Background(), auth.Session{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "25.50", view.Total.StringFixed(2))
	assert.Equal(t, 3, view.ItemCount)
	assert.Equal(t, "20.00", view.Items[0].Subtotal.StringFixed(2))
}

func TestCartService_AddItem(t *testing.T) {
	carts := &fakeCarts{}
	roles := &fakeRoles{admins: map[string]bool{"admin-1": true}}
	svc := NewCartService(carts, roles)
	ctx := context.Background()

	item, err := svc.AddItem(ctx, auth.Session{UserID: "u1"}, "p1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Quantity)

	_, err = svc.AddItem(ctx, auth.Session{UserID: "u1"}, "p1", -2)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidInput))

	_, err = svc.AddItem(ctx, auth.Session{UserID: "admin-1"}, "p1", 1)
	appErr, ok := apperr.From(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeAdminPurchase, appErr.Code)
	assert.Equal(t, "/admin/dashboard", appErr.Redirect)

	carts.err = store.ErrOutOfStock
	_, err = svc.AddItem(ctx, auth.Session{UserID: "u1"}, "p1", 1)
	assert.True(t, apperr.HasCode(err, apperr.CodeOutOfStock))
}

func TestCartService_UpdateQuantity(t *testing.T) {
	carts := &fakeCarts{lines: map[string][]models.CartLine{"u1": sampleCart()}}
	svc := NewCartService(carts, &fakeRoles{})
	ctx := context.Background()
	sess := auth.Session{UserID: "u1"}

	assert.True(t, apperr.HasCode(svc.UpdateQuantity(ctx, sess, "item-p2", 0), apperr.CodeInvalidInput))
	assert.True(t, apperr.HasCode(svc.UpdateQuantity(ctx, sess, "item-p2", 4), apperr.CodeInsufficientStock))
	assert.True(t, apperr.HasCode(svc.UpdateQuantity(ctx, sess, "item-missing", 1), apperr.CodeNotFound))

	require.NoError(t, svc.UpdateQuantity(ctx, sess, "item-p2", 3))
	assert.Equal(t, 3, carts.lines["u1"][1].Quantity)
}
