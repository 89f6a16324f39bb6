package gateway

import "context"

// IntentStatus is the gateway-reported lifecycle state of a payment intent.
type IntentStatus string

const (
	IntentStatusRequiresPayment IntentStatus = "requires_payment_method"
	IntentStatusProcessing      IntentStatus = "processing"
	IntentStatusSucceeded       IntentStatus = "succeeded"
	IntentStatusCanceled        IntentStatus = "canceled"
)

// PaymentIntent is the subset of the gateway object the core consumes.
type PaymentIntent struct {
	ID           string       `json:"id"`
	ClientSecret string       `json:"client_secret"`
	Amount       int64        `json:"amount"`
	Currency     string       `json:"currency"`
	Status       IntentStatus `json:"status"`
}

// PaymentGateway creates and inspects payment authorizations. The core only
// needs "amount in, opaque client secret out" plus a status probe for the
// reconciliation sweep.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string) (*PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*PaymentIntent, error)
}
