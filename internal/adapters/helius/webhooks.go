package helius

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Webhook is a Helius webhook resource.
type Webhook struct {
	WebhookID        string   `json:"webhookID,omitempty"`
	WebhookURL       string   `json:"webhookURL"`
	TransactionTypes []string `json:"transactionTypes"`
	AccountAddresses []string `json:"accountAddresses"`
	WebhookType      string   `json:"webhookType"`
	AuthHeader       string   `json:"authHeader,omitempty"`
}

// NewEnhancedWebhook builds an enhanced webhook covering every transaction type.
func NewEnhancedWebhook(callbackURL string, addresses []string, authHeader string) Webhook {
	if addresses == nil {
		addresses = []string{}
	}
	return Webhook{
		WebhookURL:       callbackURL,
		TransactionTypes: []string{"Any"},
		AccountAddresses: addresses,
		WebhookType:      "enhanced",
		AuthHeader:       authHeader,
	}
}

func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var hooks []Webhook
	if err := c.do(ctx, http.MethodGet, c.endpoint(c.cfg.APIURL, "/v0/webhooks", nil), nil, &hooks); err != nil {
		return nil, err
	}
	return hooks, nil
}

// FindWebhook returns the webhook whose callback URL matches, or nil.
func (c *Client) FindWebhook(ctx context.Context, callbackURL string) (*Webhook, error) {
	hooks, err := c.ListWebhooks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range hooks {
		if hooks[i].WebhookURL == callbackURL {
			return &hooks[i], nil
		}
	}
	return nil, nil
}

func (c *Client) CreateWebhook(ctx context.Context, hook Webhook) (*Webhook, error) {
	var created Webhook
	if err := c.do(ctx, http.MethodPost, c.endpoint(c.cfg.APIURL, "/v0/webhooks", nil), hook, &created); err != nil {
		return nil, err
	}
	if created.WebhookID == "" {
		return nil, fmt.Errorf("helius: create webhook: response missing webhookID")
	}
	return &created, nil
}

// UpdateWebhook replaces the webhook's definition, including its full address list.
func (c *Client) UpdateWebhook(ctx context.Context, id string, hook Webhook) error {
	endpoint := c.endpoint(c.cfg.APIURL, "/v0/webhooks/"+url.PathEscape(id), nil)
	return c.do(ctx, http.MethodPut, endpoint, hook, nil)
}
