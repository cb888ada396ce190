package service

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"missing row", fmt.Errorf("get order 1: %w", store.ErrNotFound), apperr.CodeNotFound, http.StatusNotFound},
		{"empty cart", store.ErrEmptyCart, apperr.CodeEmptyCart, http.StatusUnprocessableEntity},
		{"out of stock", store.ErrOutOfStock, apperr.CodeOutOfStock, http.StatusUnprocessableEntity},
		{"closed conversation", store.ErrConversationClosed, apperr.CodeConversationClosed, http.StatusUnprocessableEntity},
		{"driver failure", errors.New("connection reset"), apperr.CodeUpstream, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr, ok := apperr.From(storeError(tt.err, "order"))
			require.True(t, ok)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.Status())
		})
	}
}
