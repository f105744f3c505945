package payments

import (
	"context"
	"errors"
	"time"
)

// ErrGatewayUnavailable marks transport-level gateway failures that are safe to retry.
var ErrGatewayUnavailable = errors.New("payments: gateway unavailable")

// IntentRequest asks the gateway to open a payment for an amount in minor units.
type IntentRequest struct {
	Amount         int64
	Currency       string
	Receipt        string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the gateway-side payment handle the client completes.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       string
	CreatedAt    time.Time
}

// Gateway is the external payment processor.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}
