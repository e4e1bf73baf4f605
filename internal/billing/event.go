package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SuccessEvents are the webhook event types that grant access.
var SuccessEvents = []string{
	"transaction.completed",
	"transaction.paid",
	"subscription.activated",
	"subscription.created",
}

const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event_type", "data"],
  "properties": {
    "event_id": {"type": "string"},
    "event_type": {"type": "string", "minLength": 1},
    "data": {
      "type": "object",
      "properties": {
        "id": {"type": ["string", "null"]},
        "custom_data": {"type": ["object", "null"]},
        "customer": {"type": ["object", "null"]},
        "checkout": {"type": ["object", "null"]},
        "subscription": {"type": ["object", "null"]},
        "items": {"type": ["array", "null"]}
      }
    }
  }
}`

var envelope = jsonschema.MustCompileString("webhook.json", envelopeSchema)

type customData struct {
	UserID string `json:"user_id"`
}

type rawEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Data      struct {
		ID         string      `json:"id"`
		CustomData *customData `json:"custom_data"`
		Customer   *struct {
			Email string `json:"email"`
		} `json:"customer"`
		Checkout *struct {
			CustomData *customData `json:"custom_data"`
		} `json:"checkout"`
		Subscription *struct {
			ID string `json:"id"`
		} `json:"subscription"`
		Items []struct {
			Price *struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"items"`
	} `json:"data"`
}

// Event is the part of a payment webhook needed to grant access.
type Event struct {
	ID             string
	Type           string
	TransactionID  string
	UserID         string
	CheckoutUserID string
	CustomerEmail  string
	PriceID        string
	SubscriptionID string
}

// Success reports whether the event type grants access.
func (e *Event) Success() bool {
	return slices.Contains(SuccessEvents, e.Type)
}

// ParseEvent validates the envelope and extracts the event fields.
func ParseEvent(body []byte) (*Event, error) {
	const op = "ParseEvent"

	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, WrapBillingError(op, ErrInvalidEvent, err.Error())
	}
	if err := envelope.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, WrapBillingError(op, ErrInvalidEvent, ve.Error())
		}
		return nil, WrapBillingError(op, ErrInvalidEvent, err.Error())
	}

	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, WrapBillingError(op, ErrInvalidEvent, fmt.Sprintf("decode: %v", err))
	}

	ev := &Event{
		ID:            raw.EventID,
		Type:          raw.EventType,
		TransactionID: raw.Data.ID,
	}
	if raw.Data.CustomData != nil {
		ev.UserID = strings.TrimSpace(raw.Data.CustomData.UserID)
	}
	if raw.Data.Checkout != nil && raw.Data.Checkout.CustomData != nil {
		ev.CheckoutUserID = strings.TrimSpace(raw.Data.Checkout.CustomData.UserID)
	}
	if raw.Data.Customer != nil {
		ev.CustomerEmail = strings.TrimSpace(raw.Data.Customer.Email)
	}
	if raw.Data.Subscription != nil {
		ev.SubscriptionID = raw.Data.Subscription.ID
	}
	if len(raw.Data.Items) > 0 && raw.Data.Items[0].Price != nil {
		ev.PriceID = raw.Data.Items[0].Price.ID
	}
	return ev, nil
}
