// Package notify announces delivered files to an external webhook.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/netx"
	"github.com/dmitrijs2005/chunkvault/internal/server/models"
)

const defaultTimeout = 10 * time.Second

// Event is the webhook payload.
type Event struct {
	Type        string             `json:"type"`
	DeliveredAt time.Time          `json:"delivered_at"`
	File        *models.FileHandle `json:"file"`
}

const EventFileDelivered = "file.delivered"

// Webhook posts an Event per delivered file. An empty URL disables it.
type Webhook struct {
	url    string
	client *http.Client
	now    func() time.Time
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
		now:    time.Now,
	}
}

func (w *Webhook) FileDelivered(ctx context.Context, h *models.FileHandle) error {
	if w == nil || w.url == "" {
		return nil
	}
	body, err := json.Marshal(Event{Type: EventFileDelivered, DeliveredAt: w.now().UTC(), File: h})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := netx.PostJSON(ctx, w.client, w.url, body); err != nil {
		return fmt.Errorf("webhook %s: %w", w.url, err)
	}
	return nil
}
