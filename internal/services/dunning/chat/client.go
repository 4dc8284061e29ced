// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package chat is a small client for the messaging platform's account API:
// contacts, conversations and outgoing messages.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/licenseops/dunning/internal/buildinfo"
	"github.com/licenseops/dunning/internal/domain"
	"github.com/licenseops/dunning/pkg/httphelpers"
)

const providerName = "chat"

var ErrNotConfigured = errors.New("chat platform is not configured")

type Contact struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

type ContactInput struct {
	InboxID     int64  `json:"inbox_id,omitempty"`
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email,omitempty"`
}

type Conversation struct {
	ID               int64          `json:"id"`
	InboxID          int64          `json:"inbox_id"`
	Status           string         `json:"status"`
	CustomAttributes map[string]any `json:"custom_attributes"`
}

// Attribute returns a custom attribute as a string, or "" when unset.
func (c Conversation) Attribute(key string) string {
	v, ok := c.CustomAttributes[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

type ConversationInput struct {
	ContactID        int64          `json:"contact_id"`
	InboxID          int64          `json:"inbox_id"`
	SourceID         string         `json:"source_id,omitempty"`
	Status           string         `json:"status,omitempty"`
	CustomAttributes map[string]any `json:"custom_attributes,omitempty"`
}

type Message struct {
	ID             int64  `json:"id"`
	Content        string `json:"content"`
	ConversationID int64  `json:"conversation_id"`
}

type Config struct {
	BaseURL     string
	AccessToken string
	AccountID   string
	InboxID     int64
	// RetryAttempts bounds retries of idempotent lookups on transport errors.
	RetryAttempts uint
	RateLimit     float64
	RateBurst     int
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// ConfigFromDomain maps the application config onto a client config.
func ConfigFromDomain(cfg *domain.Config) Config {
	return Config{
		BaseURL:       cfg.ChatBaseURL,
		AccessToken:   cfg.ChatAccessToken,
		AccountID:     cfg.ChatAccountID,
		InboxID:       cfg.ChatInboxID,
		RetryAttempts: uint(max(cfg.ChatRetryAttempts, 1)),
		RateLimit:     cfg.ChatRateLimit,
		RateBurst:     cfg.ChatRateBurst,
		Timeout:       cfg.HTTPTimeoutDuration(),
	}
}

type Client struct {
	baseURL       string
	token         string
	accountID     string
	inboxID       int64
	retryAttempts uint
	httpClient    *http.Client
	limiter       *rate.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" || cfg.AccessToken == "" || cfg.AccountID == "" || cfg.InboxID <= 0 {
		return nil, ErrNotConfigured
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid chat base url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.AccessToken,
		accountID:     cfg.AccountID,
		inboxID:       cfg.InboxID,
		retryAttempts: max(cfg.RetryAttempts, 1),
		httpClient:    httpClient,
		limiter:       rate.NewLimiter(limit, max(cfg.RateBurst, 1)),
	}, nil
}

func (c *Client) InboxID() int64 {
	return c.inboxID
}

// SearchContacts looks contacts up by a free-text query, usually a phone number.
func (c *Client) SearchContacts(ctx context.Context, query string) ([]Contact, error) {
	var out struct {
		Payload []Contact `json:"payload"`
	}
	params := url.Values{}
	params.Set("q", query)
	if err := c.get(ctx, "contacts/search", params, &out, "search contacts"); err != nil {
		return nil, err
	}
	return out.Payload, nil
}

func (c *Client) CreateContact(ctx context.Context, in ContactInput) (*Contact, error) {
	if in.InboxID == 0 {
		in.InboxID = c.inboxID
	}

	var out struct {
		Payload struct {
			Contact Contact `json:"contact"`
		} `json:"payload"`
	}
	if err := c.do(ctx, http.MethodPost, "contacts", nil, in, &out, "create contact"); err != nil {
		return nil, err
	}
	return &out.Payload.Contact, nil
}

func (c *Client) ListConversations(ctx context.Context, contactID int64) ([]Conversation, error) {
	var out struct {
		Payload []Conversation `json:"payload"`
	}
	path := fmt.Sprintf("contacts/%d/conversations", contactID)
	if err := c.get(ctx, path, nil, &out, "list conversations"); err != nil {
		return nil, err
	}
	return out.Payload, nil
}

func (c *Client) CreateConversation(ctx context.Context, in ConversationInput) (*Conversation, error) {
	if in.InboxID == 0 {
		in.InboxID = c.inboxID
	}

	var out Conversation
	if err := c.do(ctx, http.MethodPost, "conversations", nil, in, &out, "create conversation"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID int64, content string) (*Message, error) {
	body := map[string]any{
		"content":      content,
		"message_type": "outgoing",
		"private":      false,
		"content_type": "text",
	}

	var out Message
	path := fmt.Sprintf("conversations/%d/messages", conversationID)
	if err := c.do(ctx, http.MethodPost, path, nil, body, &out, "send message"); err != nil {
		return nil, err
	}
	if out.ConversationID == 0 {
		out.ConversationID = conversationID
	}
	return &out, nil
}

func (c *Client) UpdateConversationAttributes(ctx context.Context, conversationID int64, attrs map[string]any) error {
	path := fmt.Sprintf("conversations/%d/custom_attributes", conversationID)
	body := map[string]any{"custom_attributes": attrs}
	return c.do(ctx, http.MethodPost, path, nil, body, nil, "update conversation attributes")
}

// get retries transport failures. Any HTTP answer, even a 5xx, is final.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any, op string) error {
	return retry.Do(
		func() error {
			return c.do(ctx, http.MethodGet, path, params, nil, out, op)
		},
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.Delay(250*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var urlErr *url.Error
			return errors.As(err, &urlErr) && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Uint("attempt", n+1).Str("op", op).Msg("Retrying chat lookup")
		}),
	)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	reqURL := fmt.Sprintf("%s/api/v1/accounts/%s/%s", c.baseURL, url.PathEscape(c.accountID), path)
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, reqURL, reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, reqURL, nil)
	}
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("api_access_token", c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer httphelpers.DrainAndClose(resp)

	if !httphelpers.IsSuccess(resp.StatusCode) {
		return &domain.ExternalServiceError{
			Provider: providerName,
			Op:       op,
			Status:   resp.StatusCode,
			Body:     httphelpers.ReadErrorBody(resp),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
