package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mhasan-dev/course-market-api/pkg/config"
	appErrors "github.com/mhasan-dev/course-market-api/pkg/errors"
)

// StripeGateway talks to the Stripe REST API. Only the payment-intent
// endpoints are used; amounts are in minor units per Stripe convention.
type StripeGateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
	logger    *zap.Logger
}

// NewStripeGateway constructs the adapter with an explicit per-call timeout.
func NewStripeGateway(cfg config.StripeConfig, logger *zap.Logger) *StripeGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &StripeGateway{
		secretKey: cfg.SecretKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

// CreateIntent asks Stripe for a new payment intent and returns its client
// secret for browser-side confirmation.
func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency string) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", currency)
	form.Set("payment_method_types[]", "card")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build create intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return g.do(req)
}

// GetIntent fetches the current state of a payment intent.
func (g *StripeGateway) GetIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/payment_intents/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("build get intent request: %w", err)
	}

	return g.do(req)
}

func (g *StripeGateway) do(req *http.Request) (*PaymentIntent, error) {
	req.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPaymentGateway.Code, appErrors.ErrPaymentGateway.Status, "gateway request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPaymentGateway.Code, appErrors.ErrPaymentGateway.Status, "read gateway response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Warn("stripe request rejected",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, appErrors.Wrap(
			fmt.Errorf("stripe status %d", resp.StatusCode),
			appErrors.ErrPaymentGateway.Code, appErrors.ErrPaymentGateway.Status,
			"payment gateway rejected request",
		)
	}

	var intent PaymentIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPaymentGateway.Code, appErrors.ErrPaymentGateway.Status, "decode gateway response")
	}
	return &intent, nil
}
