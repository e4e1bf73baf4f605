// Package billing handles payment provider webhooks and checkouts and turns
// successful payments into access grants.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"leasecheck/internal/access"
	"leasecheck/internal/logger"
	"leasecheck/pkg/models"
)

const (
	// DefaultAPIBaseURL is the payment provider API.
	DefaultAPIBaseURL = "https://api.paddle.com"

	// DefaultMonthlyPriceID and DefaultYearlyPriceID are the sandbox prices.
	DefaultMonthlyPriceID = "pri_01khstd1ehd0v9xs84ev0wttg6"
	DefaultYearlyPriceID  = "pri_01khstexva93m2jzdw38cx0gj8"

	defaultDisplayName = "30-Day Lease Analysis Access"
)

// Config holds the payment provider settings.
type Config struct {
	WebhookSecret string

	APIKey      string
	VendorID    string
	PriceID     string
	Environment string
	APIBaseURL  string
	FrontendURL string
	DisplayName string

	MonthlyPriceID string
	YearlyPriceID  string

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// PlanFor maps a price id onto a plan. Unknown ids are yearly.
func (c Config) PlanFor(priceID string) models.Plan {
	if priceID != "" && priceID == c.MonthlyPriceID {
		return models.PlanMonthly
	}
	return models.PlanYearly
}

// checkoutConfigured reports whether CreateCheckout can reach the provider.
func (c Config) checkoutConfigured() bool {
	return c.APIKey != "" && c.VendorID != "" && c.PriceID != ""
}

// WebhookResult reports what a webhook did.
type WebhookResult struct {
	EventType string
	Processed bool
	UserID    string
	Plan      models.Plan
}

// Checkout is an opened checkout session. AlreadyActive is set, with no URL,
// when the user still holds an active plan.
type Checkout struct {
	URL           string `json:"checkout_url,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	AlreadyActive bool   `json:"already_active,omitempty"`
}

// GrantDirectRequest is the admin grant call.
type GrantDirectRequest struct {
	UserID        string `json:"user_id"`
	TransactionID string `json:"transaction_id"`
	CustomerEmail string `json:"customer_email"`
	PriceID       string `json:"price_id"`
}

// Service is the billing facade over the access gate.
type Service struct {
	gate    *access.Gate
	pending PendingStore
	config  Config
	http    *http.Client
	log     zerolog.Logger
}

// NewService creates a billing service.
func NewService(gate *access.Gate, pending PendingStore, config Config) *Service {
	return NewServiceWithClient(gate, pending, config, &http.Client{Timeout: 30 * time.Second})
}

// NewServiceWithClient creates a billing service with an explicit HTTP client.
func NewServiceWithClient(gate *access.Gate, pending PendingStore, config Config, client *http.Client) *Service {
	if config.APIBaseURL == "" {
		config.APIBaseURL = DefaultAPIBaseURL
	}
	if config.MonthlyPriceID == "" {
		config.MonthlyPriceID = DefaultMonthlyPriceID
	}
	if config.YearlyPriceID == "" {
		config.YearlyPriceID = DefaultYearlyPriceID
	}
	if config.FrontendURL == "" {
		config.FrontendURL = "https://qiyoga.xyz"
	}
	if config.DisplayName == "" {
		config.DisplayName = defaultDisplayName
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Service{
		gate:    gate,
		pending: pending,
		config:  config,
		http:    client,
		log:     logger.WithComponent("billing"),
	}
}

// HandleWebhook verifies and applies a payment webhook. Events that are not
// payment successes, or whose user cannot be resolved, are acknowledged
// without effect.
func (s *Service) HandleWebhook(ctx context.Context, signature string, body []byte) (WebhookResult, error) {
	const op = "HandleWebhook"

	if err := VerifySignature(s.config.WebhookSecret, signature, body, s.config.Now()); err != nil {
		s.log.Warn().Err(err).Msg("Webhook signature rejected")
		return WebhookResult{}, err
	}

	ev, err := ParseEvent(body)
	if err != nil {
		return WebhookResult{}, err
	}

	log := s.log.With().Str("event_type", ev.Type).Str("event_id", ev.ID).Str("transaction_id", ev.TransactionID).Logger()
	result := WebhookResult{EventType: ev.Type}

	userID, source, err := s.resolveUser(ctx, ev)
	if err != nil {
		return result, WrapBillingError(op, err, "pending payment lookup failed")
	}

	if !ev.Success() || userID == "" {
		log.Warn().Str("user_id", userID).Msg("Webhook not processed")
		return result, nil
	}

	plan := s.config.PlanFor(ev.PriceID)
	if _, err := s.gate.GrantAccess(ctx, access.GrantRequest{
		UserID:         userID,
		Plan:           plan,
		CustomerEmail:  ev.CustomerEmail,
		TransactionID:  ev.TransactionID,
		SubscriptionID: ev.SubscriptionID,
	}); err != nil {
		return result, WrapBillingError(op, err, "grant failed")
	}

	if ev.TransactionID != "" {
		if err := s.pending.Delete(ctx, ev.TransactionID); err != nil {
			log.Warn().Err(err).Msg("Failed to clean up pending payment")
		}
	}

	log.Info().
		Str("user_id", userID).
		Str("user_source", source).
		Str("price_id", ev.PriceID).
		Str("plan", string(plan)).
		Msg("Webhook processed")

	result.Processed = true
	result.UserID = userID
	result.Plan = plan
	return result, nil
}

// resolveUser finds the paying user: custom data, then checkout custom data,
// then a pending payment for the transaction, then the customer e-mail.
func (s *Service) resolveUser(ctx context.Context, ev *Event) (string, string, error) {
	if ev.UserID != "" {
		return ev.UserID, "custom_data", nil
	}
	if ev.CheckoutUserID != "" {
		return ev.CheckoutUserID, "checkout.custom_data", nil
	}
	if ev.TransactionID != "" {
		p, ok, err := s.pending.Get(ctx, ev.TransactionID)
		if err != nil {
			return "", "", err
		}
		if ok && p.UserID != "" {
			return p.UserID, "pending", nil
		}
	}
	if ev.CustomerEmail != "" {
		return ev.CustomerEmail, "customer_email", nil
	}
	return "", "", nil
}

// RegisterPending records that userID opened checkoutID. The key is the
// checkout id, or the user id when there is none.
func (s *Service) RegisterPending(ctx context.Context, userID, checkoutID string) (string, error) {
	const op = "RegisterPending"

	if strings.TrimSpace(userID) == "" {
		return "", WrapBillingError(op, access.ErrInvalidUser, "")
	}
	key := checkoutID
	if key == "" {
		key = userID
	}
	if err := s.pending.Put(ctx, key, Pending{UserID: userID, CheckoutID: checkoutID, RegisteredAt: s.config.Now()}); err != nil {
		return "", WrapBillingError(op, err, "")
	}

	s.log.Info().Str("user_id", userID).Str("key", key).Msg("Pending payment registered")
	return key, nil
}

// GrantDirect grants access without a webhook. The plan comes from the price
// id, yearly when absent.
func (s *Service) GrantDirect(ctx context.Context, req GrantDirectRequest) (models.AccessGrant, error) {
	grant, err := s.gate.GrantAccess(ctx, access.GrantRequest{
		UserID:        req.UserID,
		Plan:          s.config.PlanFor(req.PriceID),
		CustomerEmail: req.CustomerEmail,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		return models.AccessGrant{}, WrapBillingError("GrantDirect", err, "")
	}
	return grant, nil
}

// CheckAccess returns the user's access summary.
func (s *Service) CheckAccess(ctx context.Context, userID string) (access.Status, error) {
	st, err := s.gate.Status(ctx, userID)
	if err != nil {
		return access.Status{}, WrapBillingError("CheckAccess", err, "")
	}
	return st, nil
}

type checkoutRequest struct {
	Items []checkoutItem `json:"items"`
	CustomData struct {
		UserID string `json:"user_id"`
	} `json:"custom_data"`
	Settings struct {
		DisplayName string `json:"display_name"`
		SuccessURL  string `json:"success_url"`
		CancelURL   string `json:"cancel_url"`
	} `json:"settings"`
}

type checkoutItem struct {
	PriceID  string `json:"price_id"`
	Quantity int    `json:"quantity"`
}

type checkoutResponse struct {
	Data struct {
		ID          string `json:"id"`
		CheckoutURL string `json:"checkout_url"`
		Checkout    *struct {
			URL string `json:"url"`
		} `json:"checkout"`
	} `json:"data"`
}

// CreateCheckout opens a provider checkout carrying userID in its custom data.
func (s *Service) CreateCheckout(ctx context.Context, userID string) (Checkout, error) {
	const op = "CreateCheckout"

	if strings.TrimSpace(userID) == "" {
		return Checkout{}, WrapBillingError(op, access.ErrInvalidUser, "")
	}

	st, err := s.gate.Status(ctx, userID)
	if err != nil {
		return Checkout{}, WrapBillingError(op, err, "")
	}
	if st.HasActivePlan && !st.Bypass {
		s.log.Info().Str("user_id", userID).Msg("User already has active access, skipping checkout")
		return Checkout{AlreadyActive: true}, nil
	}

	if !s.config.checkoutConfigured() {
		return Checkout{}, WrapBillingError(op, ErrNotConfigured, "set PADDLE_VENDOR_ID, PADDLE_API_KEY and PADDLE_PRICE_ID")
	}

	var payload checkoutRequest
	payload.Items = []checkoutItem{{PriceID: s.config.PriceID, Quantity: 1}}
	payload.CustomData.UserID = userID
	payload.Settings.DisplayName = s.config.DisplayName
	payload.Settings.SuccessURL = fmt.Sprintf("%s/#/billing/success?user_id=%s", s.config.FrontendURL, url.QueryEscape(userID))
	payload.Settings.CancelURL = s.config.FrontendURL + "/#/pricing"

	body, err := json.Marshal(payload)
	if err != nil {
		return Checkout{}, WrapBillingError(op, err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return Checkout{}, WrapBillingError(op, err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return Checkout{}, WrapBillingError(op, ErrCheckoutFailed, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Checkout{}, WrapBillingError(op, ErrCheckoutFailed, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.log.Error().Int("status", resp.StatusCode).Str("body", logger.Preview(string(respBody), 300)).Msg("Payment provider rejected checkout")
		return Checkout{}, WrapBillingError(op, ErrCheckoutFailed, fmt.Sprintf("status %d", resp.StatusCode))
	}

	var out checkoutResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Checkout{}, WrapBillingError(op, ErrCheckoutFailed, "decode response")
	}

	checkout := Checkout{URL: out.Data.CheckoutURL, TransactionID: out.Data.ID}
	if checkout.URL == "" && out.Data.Checkout != nil {
		checkout.URL = out.Data.Checkout.URL
	}

	s.log.Info().Str("user_id", userID).Str("transaction_id", checkout.TransactionID).Msg("Checkout created")
	return checkout, nil
}
