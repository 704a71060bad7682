// Package payment moves real money behind the ledger's escrow gateway
// boundary. The Stripe gateway holds customer funds with a
// manual-capture payment intent, captures on release and cancels on
// refund. The ledger stays the source of truth; gateway failures after
// commit are logged and retried out of band.
package payment

import (
	"context"
	"fmt"
	"log"
	"strings"

	"zone4/internal/models"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/paymentintent"
)

// StripeGateway escrows bank-transfer funds through Stripe payment
// intents with manual capture.
type StripeGateway struct{}

func NewStripeGateway(secretKey string) *StripeGateway {
	if secretKey == "" {
		panic("stripe secret key is required")
	}
	stripe.Key = secretKey
	return &StripeGateway{}
}

// HoldFunds places the customer's funds in escrow. Physical cash is
// escrowed out of band, so only bank transfers touch Stripe. The payment
// reference is written onto the transaction before it is persisted.
func (g *StripeGateway) HoldFunds(ctx context.Context, tx *models.Transaction) error {
	if tx.PaymentMethod != models.PaymentMethodBankTransfer {
		return nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(minorUnits(tx.AmountSent)),
		Currency:      stripe.String(strings.ToLower(tx.CurrencyFrom)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String(fmt.Sprintf("escrow hold for transaction %s", tx.ID)),
	}
	params.Context = ctx
	params.AddMetadata("transaction_id", tx.ID)

	intent, err := paymentintent.New(params)
	if err != nil {
		log.Printf("stripe hold failed for tx %s: %v", tx.ID, err)
		return fmt.Errorf("failed to hold funds: %w", err)
	}

	tx.EscrowPaymentRef = intent.ID
	return nil
}

// ReleaseToAgent captures the held intent, paying the agent out of
// escrow.
func (g *StripeGateway) ReleaseToAgent(ctx context.Context, tx *models.Transaction) error {
	if tx.EscrowPaymentRef == "" {
		return nil
	}

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if _, err := paymentintent.Capture(tx.EscrowPaymentRef, params); err != nil {
		log.Printf("stripe capture failed for tx %s: %v", tx.ID, err)
		return fmt.Errorf("failed to release escrow: %w", err)
	}
	return nil
}

// RefundToCustomer cancels the held intent, returning the funds.
func (g *StripeGateway) RefundToCustomer(ctx context.Context, tx *models.Transaction) error {
	if tx.EscrowPaymentRef == "" {
		return nil
	}

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := paymentintent.Cancel(tx.EscrowPaymentRef, params); err != nil {
		log.Printf("stripe cancel failed for tx %s: %v", tx.ID, err)
		return fmt.Errorf("failed to refund escrow: %w", err)
	}
	return nil
}

// minorUnits converts a major-unit amount to the smallest currency unit.
func minorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

// NoopGateway tracks escrow logically without moving money. Used in
// development and tests.
type NoopGateway struct{}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{}
}

func (g *NoopGateway) HoldFunds(ctx context.Context, tx *models.Transaction) error {
	log.Printf("noop escrow hold for tx %s (%0.2f %s)", tx.ID, tx.AmountSent, tx.CurrencyFrom)
	return nil
}

func (g *NoopGateway) ReleaseToAgent(ctx context.Context, tx *models.Transaction) error {
	log.Printf("noop escrow release for tx %s", tx.ID)
	return nil
}

func (g *NoopGateway) RefundToCustomer(ctx context.Context, tx *models.Transaction) error {
	log.Printf("noop escrow refund for tx %s", tx.ID)
	return nil
}
