// Package payment wraps the hosted checkout provider.
package payment

import (
	"context"
	"errors"
	"fmt"

	"kwetu-store/internal/models"

	"github.com/shopspring/decimal"
)

// StatusPaid is the provider's payment_status for a fully settled session.
const StatusPaid = "paid"

// Gateway creates and retrieves hosted checkout sessions.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}

// LineItem is one charged row of a checkout session. UnitAmount is in minor units.
type LineItem struct {
	Name        string
	Description string
	UnitAmount  int64
	Quantity    int64
}

// SessionRequest describes a checkout session to create.
type SessionRequest struct {
	CustomerEmail string
	LineItems     []LineItem
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// Session is the provider's view of a checkout session.
type Session struct {
	ID            string
	URL           string
	PaymentStatus string
	AmountTotal   int64
	Metadata      map[string]string
}

// Paid reports whether the session has been paid in full.
func (s *Session) Paid() bool {
	return s.PaymentStatus == StatusPaid
}

// Metadata keys written at checkout and read back at verification.
const (
	metaUserID         = "user_id"
	metaPaymentOption  = "payment_option"
	metaTotalAmount    = "total_amount"
	metaPaidAmount     = "paid_amount"
	metaStreetAddress  = "street_address"
	metaApartmentSuite = "apartment_suite"
	metaCity           = "city"
	metaState          = "state"
	metaZipCode        = "zip_code"
	metaDeliveryNotes  = "delivery_notes"
)

// ErrMissingMetadata is returned when a session lacks a required metadata key.
var ErrMissingMetadata = errors.New("session metadata incomplete")

// CheckoutMetadata travels with the session from checkout to verification.
type CheckoutMetadata struct {
	UserID        string
	PaymentOption string
	TotalAmount   decimal.Decimal
	PaidAmount    decimal.Decimal
	Address       models.DeliveryAddress
}

// ToMap encodes the metadata as provider key/value pairs.
func (m CheckoutMetadata) ToMap() map[string]string {
	return map[string]string{
		metaUserID:         m.UserID,
		metaPaymentOption:  m.PaymentOption,
		metaTotalAmount:    m.TotalAmount.StringFixed(2),
		metaPaidAmount:     m.PaidAmount.StringFixed(2),
		metaStreetAddress:  m.Address.StreetAddress,
		metaApartmentSuite: m.Address.ApartmentSuite,
		metaCity:           m.Address.City,
		metaState:          m.Address.State,
		metaZipCode:        m.Address.ZipCode,
		metaDeliveryNotes:  m.Address.DeliveryNotes,
	}
}

// ParseCheckoutMetadata decodes what ToMap wrote.
func ParseCheckoutMetadata(md map[string]string) (*CheckoutMetadata, error) {
	for _, key := range []string{metaUserID, metaPaymentOption, metaTotalAmount, metaPaidAmount} {
		if md[key] == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingMetadata, key)
		}
	}

	total, err := decimal.NewFromString(md[metaTotalAmount])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", metaTotalAmount, err)
	}
	paid, err := decimal.NewFromString(md[metaPaidAmount])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", metaPaidAmount, err)
	}

	return &CheckoutMetadata{
		UserID:        md[metaUserID],
		PaymentOption: md[metaPaymentOption],
		TotalAmount:   total,
		PaidAmount:    paid,
		Address: models.DeliveryAddress{
			StreetAddress:  md[metaStreetAddress],
			ApartmentSuite: md[metaApartmentSuite],
			City:           md[metaCity],
			State:          md[metaState],
			ZipCode:        md[metaZipCode],
			DeliveryNotes:  md[metaDeliveryNotes],
		},
	}, nil
}

// PaymentStatus maps the chosen option onto the order's payment_status.
func (m CheckoutMetadata) PaymentStatus() string {
	if m.PaymentOption == models.PaymentOptionHalf {
		return models.PaymentStatusPartial
	}
	return models.PaymentStatusFull
}
