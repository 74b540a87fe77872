// Package notify отправляет события о заказах и брифах во внешний webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Типы событий.
const (
	EventOrderCreated   = "order.created"
	EventBriefSubmitted = "brief.submitted"
	EventStatusChanged  = "order.status_changed"
)

// Event описывает одно уведомление.
type Event struct {
	Type       string            `json:"type"`
	OrderID    string            `json:"order_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

// RateLimitError возвращается, если получатель попросил повторить позже.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("webhook rate limited, retry after %s", e.RetryAfter)
}

// Client инкапсулирует HTTP-взаимодействие с webhook получателя.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient создаёт клиент webhook по указанному адресу.
func NewClient(url string) *Client {
	return &Client{
		url: strings.TrimSpace(url),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Notify отправляет событие POST-запросом с телом JSON.
func (c *Client) Notify(ctx context.Context, ev Event) error {
	if c == nil || c.url == "" {
		return fmt.Errorf("notify client not configured")
	}

	target := c.url
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "http://" + target
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
