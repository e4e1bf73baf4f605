package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"leasecheck/internal/access"
	"leasecheck/pkg/models"
)

const testSecret = "pdl_ntfset_test"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, cfg Config) (*Service, *access.Gate, *MemoryPendingStore) {
	t.Helper()
	store := access.NewMemoryStore()
	now := func() time.Time { return testNow }
	gate := access.NewGate(store, store, access.Config{Now: now})
	pending := NewMemoryPendingStore()
	if cfg.WebhookSecret == "" {
		cfg.WebhookSecret = testSecret
	}
	cfg.Now = now
	return NewService(gate, pending, cfg), gate, pending
}

func eventBody(t *testing.T, eventType string, data map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event_id":   "evt_01",
		"event_type": eventType,
		"data":       data,
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event_type":"transaction.completed","data":{}}`)
	good := Sign(testSecret, testNow, body)

	tests := []struct {
		name    string
		secret  string
		header  string
		body    []byte
		now     time.Time
		wantErr error
	}{
		{"valid", testSecret, good, body, testNow, nil},
		{"within tolerance", testSecret, good, body, testNow.Add(4 * time.Minute), nil},
		{"rotation", testSecret, good + ";h1=deadbeef", body, testNow, nil},
		{"no secret", "", good, body, testNow, ErrNotConfigured},
		{"missing header", testSecret, "", body, testNow, ErrMissingSignature},
		{"malformed", testSecret, "garbage", body, testNow, ErrInvalidSignature},
		{"tampered body", testSecret, good, []byte(`{}`), testNow, ErrInvalidSignature},
		{"wrong secret", "other", good, body, testNow, ErrInvalidSignature},
		{"stale", testSecret, good, body, testNow.Add(10 * time.Minute), ErrInvalidSignature},
		{"bad timestamp", testSecret, "ts=abc;h1=00", body, testNow, ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.secret, tt.header, tt.body, tt.now)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("VerifySignature() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifySignature() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseEvent(t *testing.T) {
	body := eventBody(t, "transaction.completed", map[string]any{
		"id":           "txn_1",
		"custom_data":  map[string]any{"user_id": " user_a@x.com "},
		"checkout":     map[string]any{"custom_data": map[string]any{"user_id": "user_b@x.com"}},
		"customer":     map[string]any{"email": "payer@x.com"},
		"subscription": map[string]any{"id": "sub_1"},
		"items":        []any{map[string]any{"price": map[string]any{"id": DefaultMonthlyPriceID}}},
	})

	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	want := Event{
		ID:             "evt_01",
		Type:           "transaction.completed",
		TransactionID:  "txn_1",
		UserID:         "user_a@x.com",
		CheckoutUserID: "user_b@x.com",
		CustomerEmail:  "payer@x.com",
		PriceID:        DefaultMonthlyPriceID,
		SubscriptionID: "sub_1",
	}
	if *ev != want {
		t.Errorf("ParseEvent() = %+v, want %+v", *ev, want)
	}
	if !ev.Success() {
		t.Error("transaction.completed should be a success event")
	}
}

func TestParseEventRejectsBadEnvelope(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"data":{}}`,
		`{"event_type":"","data":{}}`,
		`{"event_type":"transaction.completed","data":"x"}`,
	} {
		if _, err := ParseEvent([]byte(body)); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("ParseEvent(%s) error = %v, want ErrInvalidEvent", body, err)
		}
	}
}

func TestHandleWebhookResolvesUser(t *testing.T) {
	tests := []struct {
		name     string
		data     map[string]any
		pending  map[string]string
		wantUser string
	}{
		{
			name: "custom data wins",
			data: map[string]any{
				"id":          "txn_1",
				"custom_data": map[string]any{"user_id": "u_custom"},
				"checkout":    map[string]any{"custom_data": map[string]any{"user_id": "u_checkout"}},
				"customer":    map[string]any{"email": "payer@x.com"},
			},
			pending:  map[string]string{"txn_1": "u_pending"},
			wantUser: "u_custom",
		},
		{
			name: "checkout custom data",
			data: map[string]any{
				"id":       "txn_1",
				"checkout": map[string]any{"custom_data": map[string]any{"user_id": "u_checkout"}},
				"customer": map[string]any{"email": "payer@x.com"},
			},
			pending:  map[string]string{"txn_1": "u_pending"},
			wantUser: "u_checkout",
		},
		{
			name: "pending payment",
			data: map[string]any{
				"id":       "txn_1",
				"customer": map[string]any{"email": "payer@x.com"},
			},
			pending:  map[string]string{"txn_1": "u_pending"},
			wantUser: "u_pending",
		},
		{
			name: "customer email",
			data: map[string]any{
				"id":       "txn_2",
				"customer": map[string]any{"email": "payer@x.com"},
			},
			pending:  map[string]string{"txn_1": "u_pending"},
			wantUser: "payer@x.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, gate, pending := newTestService(t, Config{})
			ctx := context.Background()
			for key, user := range tt.pending {
				if _, err := svc.RegisterPending(ctx, user, key); err != nil {
					t.Fatalf("RegisterPending() error = %v", err)
				}
			}

			body := eventBody(t, "transaction.completed", tt.data)
			res, err := svc.HandleWebhook(ctx, Sign(testSecret, testNow, body), body)
			if err != nil {
				t.Fatalf("HandleWebhook() error = %v", err)
			}
			if !res.Processed || res.UserID != tt.wantUser {
				t.Errorf("HandleWebhook() = %+v, want processed for %q", res, tt.wantUser)
			}

			ok, err := gate.HasActiveAccess(ctx, tt.wantUser)
			if err != nil || !ok {
				t.Errorf("HasActiveAccess(%q) = %v, %v, want true", tt.wantUser, ok, err)
			}

			if _, found, _ := pending.Get(ctx, tt.data["id"].(string)); found {
				t.Error("pending payment should be removed after the grant")
			}
		})
	}
}

func TestHandleWebhookPlans(t *testing.T) {
	svc, gate, _ := newTestService(t, Config{})
	ctx := context.Background()

	body := eventBody(t, "subscription.activated", map[string]any{
		"id":          "sub_txn",
		"custom_data": map[string]any{"user_id": "monthly_user"},
		"items":       []any{map[string]any{"price": map[string]any{"id": DefaultMonthlyPriceID}}},
	})
	res, err := svc.HandleWebhook(ctx, Sign(testSecret, testNow, body), body)
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if res.Plan != models.PlanMonthly {
		t.Errorf("Plan = %q, want monthly", res.Plan)
	}

	st, err := gate.Status(ctx, "monthly_user")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.ExpiresAt == nil || !st.ExpiresAt.Equal(testNow.Add(30*24*time.Hour)) {
		t.Errorf("ExpiresAt = %v, want 30 days from now", st.ExpiresAt)
	}

	if got := svc.config.PlanFor("pri_unknown"); got != models.PlanYearly {
		t.Errorf("PlanFor(unknown) = %q, want yearly", got)
	}
}

func TestHandleWebhookSkipsEvents(t *testing.T) {
	svc, gate, _ := newTestService(t, Config{})
	ctx := context.Background()

	other := eventBody(t, "transaction.created", map[string]any{
		"id":          "txn_9",
		"custom_data": map[string]any{"user_id": "u1"},
	})
	res, err := svc.HandleWebhook(ctx, Sign(testSecret, testNow, other), other)
	if err != nil || res.Processed {
		t.Errorf("non-success event: res = %+v, err = %v", res, err)
	}

	anonymous := eventBody(t, "transaction.completed", map[string]any{"id": "txn_10"})
	res, err = svc.HandleWebhook(ctx, Sign(testSecret, testNow, anonymous), anonymous)
	if err != nil || res.Processed {
		t.Errorf("event without user: res = %+v, err = %v", res, err)
	}

	if ok, _ := gate.HasActiveAccess(ctx, "u1"); ok {
		t.Error("skipped event must not grant access")
	}

	if _, err := svc.HandleWebhook(ctx, "ts=1;h1=00", other); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("bad signature error = %v, want ErrInvalidSignature", err)
	}
}

func TestRegisterPendingKey(t *testing.T) {
	svc, _, pending := newTestService(t, Config{})
	ctx := context.Background()

	key, err := svc.RegisterPending(ctx, "u1", "")
	if err != nil || key != "u1" {
		t.Errorf("RegisterPending() = %q, %v, want key u1", key, err)
	}
	if p, ok, _ := pending.Get(ctx, "u1"); !ok || p.UserID != "u1" || !p.RegisteredAt.Equal(testNow) {
		t.Errorf("pending = %+v, %v", p, ok)
	}

	if _, err := svc.RegisterPending(ctx, " ", "chk_1"); !errors.Is(err, access.ErrInvalidUser) {
		t.Errorf("empty user error = %v, want ErrInvalidUser", err)
	}
}

func TestGrantDirect(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	grant, err := svc.GrantDirect(ctx, GrantDirectRequest{UserID: "u1", TransactionID: "manual"})
	if err != nil {
		t.Fatalf("GrantDirect() error = %v", err)
	}
	if grant.Plan != models.PlanYearly || !grant.ExpiresAt.Equal(testNow.Add(365*24*time.Hour)) {
		t.Errorf("GrantDirect() = %+v, want yearly grant", grant)
	}

	st, err := svc.CheckAccess(ctx, "u1")
	if err != nil || !st.HasAccess {
		t.Errorf("CheckAccess() = %+v, %v", st, err)
	}
}

func TestCreateCheckout(t *testing.T) {
	var got checkoutRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"txn_42","checkout":{"url":"https://pay.example/checkout/txn_42"}}}`))
	}))
	defer srv.Close()

	svc, _, _ := newTestService(t, Config{
		APIKey:      "key",
		VendorID:    "123",
		PriceID:     "pri_x",
		APIBaseURL:  srv.URL,
		FrontendURL: "https://app.example",
	})
	ctx := context.Background()

	co, err := svc.CreateCheckout(ctx, "u1")
	if err != nil {
		t.Fatalf("CreateCheckout() error = %v", err)
	}
	if co.URL != "https://pay.example/checkout/txn_42" || co.TransactionID != "txn_42" {
		t.Errorf("CreateCheckout() = %+v", co)
	}
	if auth != "Bearer key" {
		t.Errorf("Authorization = %q", auth)
	}
	if len(got.Items) != 1 || got.Items[0].PriceID != "pri_x" || got.Items[0].Quantity != 1 {
		t.Errorf("items = %+v", got.Items)
	}
	if got.CustomData.UserID != "u1" {
		t.Errorf("custom_data.user_id = %q", got.CustomData.UserID)
	}
	if got.Settings.SuccessURL != "https://app.example/#/billing/success?user_id=u1" {
		t.Errorf("success_url = %q", got.Settings.SuccessURL)
	}
	if got.Settings.CancelURL != "https://app.example/#/pricing" {
		t.Errorf("cancel_url = %q", got.Settings.CancelURL)
	}

	if _, err := svc.GrantDirect(ctx, GrantDirectRequest{UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	co, err = svc.CreateCheckout(ctx, "u1")
	if err != nil || !co.AlreadyActive || co.URL != "" {
		t.Errorf("active user checkout = %+v, %v, want AlreadyActive", co, err)
	}
}

func TestCreateCheckoutEscapesUserID(t *testing.T) {
	var got checkoutRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"data":{"id":"txn_7","checkout_url":"https://pay.example/txn_7"}}`))
	}))
	defer srv.Close()

	svc, _, _ := newTestService(t, Config{APIKey: "k", VendorID: "v", PriceID: "p", APIBaseURL: srv.URL, FrontendURL: "https://app.example"})
	if _, err := svc.CreateCheckout(context.Background(), "mary+lease@example.com&x=1"); err != nil {
		t.Fatalf("CreateCheckout() error = %v", err)
	}

	want := "https://app.example/#/billing/success?user_id=mary%2Blease%40example.com%26x%3D1"
	if got.Settings.SuccessURL != want {
		t.Errorf("success_url = %q, want %q", got.Settings.SuccessURL, want)
	}
	if got.CustomData.UserID != "mary+lease@example.com&x=1" {
		t.Errorf("custom_data.user_id = %q, want the raw id", got.CustomData.UserID)
	}
}

func TestCreateCheckoutErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	ctx := context.Background()

	unconfigured, _, _ := newTestService(t, Config{})
	if _, err := unconfigured.CreateCheckout(ctx, "u1"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("unconfigured error = %v, want ErrNotConfigured", err)
	}

	rejected, _, _ := newTestService(t, Config{APIKey: "k", VendorID: "v", PriceID: "p", APIBaseURL: srv.URL})
	_, err := rejected.CreateCheckout(ctx, "u1")
	if !errors.Is(err, ErrCheckoutFailed) {
		t.Errorf("rejected error = %v, want ErrCheckoutFailed", err)
	}
	if err != nil && !strings.Contains(err.Error(), "403") {
		t.Errorf("error %q should carry the status", err)
	}
}
