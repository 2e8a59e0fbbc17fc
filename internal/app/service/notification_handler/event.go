package notification_handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/fatflowers/billsync/pkg/types"
)

// thinMarker only appears in thin payloads ("object": "v2.core.event").
var thinMarker = []byte("v2.core")

// Event is a verified webhook delivery: *SnapshotEvent or *ThinEvent.
type Event interface {
	EventID() string
	EventType() string
	Shape() types.PayloadShape
	CreatedAt() time.Time
}

// SnapshotEvent carries the full resource under data.object.
type SnapshotEvent struct {
	Stripe stripe.Event
}

func (e *SnapshotEvent) EventID() string           { return e.Stripe.ID }
func (e *SnapshotEvent) EventType() string         { return string(e.Stripe.Type) }
func (e *SnapshotEvent) Shape() types.PayloadShape { return types.PayloadShapeSnapshot }
func (e *SnapshotEvent) CreatedAt() time.Time      { return time.Unix(e.Stripe.Created, 0).UTC() }

// decodeObject unmarshals data.object into v.
func (e *SnapshotEvent) decodeObject(v any) error {
	if e.Stripe.Data == nil || len(e.Stripe.Data.Raw) == 0 {
		return errors.New("event has no data.object")
	}
	return json.Unmarshal(e.Stripe.Data.Raw, v)
}

// RelatedObject references the resource a thin event is about.
type RelatedObject struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ThinEvent carries only a reference to the changed resource.
type ThinEvent struct {
	ID            string         `json:"id"`
	Object        string         `json:"object"`
	Type          string         `json:"type"`
	Created       time.Time      `json:"created"`
	Context       string         `json:"context,omitempty"`
	Livemode      bool           `json:"livemode"`
	RelatedObject *RelatedObject `json:"related_object,omitempty"`
}

func (e *ThinEvent) EventID() string           { return e.ID }
func (e *ThinEvent) EventType() string         { return e.Type }
func (e *ThinEvent) Shape() types.PayloadShape { return types.PayloadShapeThin }
func (e *ThinEvent) CreatedAt() time.Time      { return e.Created }

// ParseThinEvent decodes a verified thin payload.
func ParseThinEvent(payload []byte) (*ThinEvent, error) {
	var e ThinEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode thin event: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return nil, errors.New("thin event missing id or type")
	}
	return &e, nil
}

// DetectPayloadShape classifies a raw delivery before verification, since the
// shape selects the signing secret. A JSON (or untyped) body containing the
// v2.core marker is thin; everything else is a snapshot.
func DetectPayloadShape(contentType string, body []byte) types.PayloadShape {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil && mediaType != "application/json" {
			return types.PayloadShapeSnapshot
		}
	}
	if bytes.Contains(body, thinMarker) {
		return types.PayloadShapeThin
	}
	return types.PayloadShapeSnapshot
}
