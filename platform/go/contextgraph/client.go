package contextgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	tenantHeader = "NGSILD-Tenant"
	ldJSON       = "application/ld+json"
)

// ErrEntityNotFound is returned when the broker has no entity for the id.
var ErrEntityNotFound = errors.New("entity not found")

// StatusError reports an unexpected broker response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("context broker returned %d: %s", e.Status, e.Body)
}

// Subscription describes a standing registration with the broker. The ID is
// caller-chosen so it can encode the owning tenant.
type Subscription struct {
	ID         string
	EntityType string
	Endpoint   string
}

// Client talks to an NGSI-LD context broker. Every call is scoped to a tenant
// via the NGSILD-Tenant header; the broker keeps tenant datasets disjoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a broker client with a bounded per-call timeout.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Entity fetches a single entity by id.
func (c *Client) Entity(ctx context.Context, tenantID, entityID string) (Entity, error) {
	endpoint := c.baseURL + "/ngsi-ld/v1/entities/" + url.PathEscape(entityID)

	body, status, err := c.do(ctx, http.MethodGet, endpoint, tenantID, nil)
	if err != nil {
		return Entity{}, err
	}
	switch status {
	case http.StatusOK:
		var e Entity
		if err := json.Unmarshal(body, &e); err != nil {
			return Entity{}, fmt.Errorf("decode entity: %w", err)
		}
		return e, nil
	case http.StatusNotFound:
		return Entity{}, ErrEntityNotFound
	default:
		return Entity{}, &StatusError{Status: status, Body: string(body)}
	}
}

// EntitiesByType fetches all entities of a declared type, bounded by limit.
func (c *Client) EntitiesByType(ctx context.Context, tenantID, entityType string, limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 1000
	}
	endpoint := c.baseURL + "/ngsi-ld/v1/entities?type=" + url.QueryEscape(entityType) + "&limit=" + strconv.Itoa(limit)

	body, status, err := c.do(ctx, http.MethodGet, endpoint, tenantID, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Status: status, Body: string(body)}
	}

	var entities []Entity
	if err := json.Unmarshal(body, &entities); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	return entities, nil
}

// CreateSubscription registers a subscription. An already existing
// subscription with the same id counts as success, making registration
// idempotent across provisioning retries.
func (c *Client) CreateSubscription(ctx context.Context, tenantID string, sub Subscription) error {
	payload := map[string]any{
		"id":       sub.ID,
		"type":     "Subscription",
		"entities": []map[string]string{{"type": sub.EntityType}},
		"notification": map[string]any{
			"endpoint": map[string]string{
				"uri":    sub.Endpoint,
				"accept": "application/json",
			},
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}

	body, status, err := c.do(ctx, http.MethodPost, c.baseURL+"/ngsi-ld/v1/subscriptions", tenantID, raw)
	if err != nil {
		return err
	}
	if status == http.StatusCreated || status == http.StatusConflict {
		return nil
	}
	return &StatusError{Status: status, Body: string(body)}
}

// DeleteSubscription cancels a subscription; a missing subscription is fine.
func (c *Client) DeleteSubscription(ctx context.Context, tenantID, subscriptionID string) error {
	endpoint := c.baseURL + "/ngsi-ld/v1/subscriptions/" + url.PathEscape(subscriptionID)

	body, status, err := c.do(ctx, http.MethodDelete, endpoint, tenantID, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNoContent || status == http.StatusNotFound {
		return nil
	}
	return &StatusError{Status: status, Body: string(body)}
}

func (c *Client) do(ctx context.Context, method, endpoint, tenantID string, payload []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("build broker request: %w", err)
	}
	req.Header.Set("Accept", ldJSON)
	req.Header.Set(tenantHeader, tenantID)
	if payload != nil {
		req.Header.Set("Content-Type", ldJSON)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("context broker call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read broker response: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug("context broker call",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
	}

	return body, resp.StatusCode, nil
}
