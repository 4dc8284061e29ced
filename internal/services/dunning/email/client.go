// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package email sends transactional mail through an HTTP JSON provider.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/licenseops/dunning/internal/buildinfo"
	"github.com/licenseops/dunning/internal/domain"
	"github.com/licenseops/dunning/pkg/httphelpers"
)

const providerName = "email"

var ErrNotConfigured = errors.New("email provider is not configured")

type Config struct {
	APIURL   string
	APIKey   string
	From     string
	FromName string
	ReplyTo  string
	Timeout  time.Duration
}

func ConfigFromDomain(cfg *domain.Config) Config {
	return Config{
		APIURL:   cfg.EmailAPIURL,
		APIKey:   cfg.EmailAPIKey,
		From:     cfg.EmailFrom,
		FromName: cfg.EmailFromName,
		ReplyTo:  cfg.EmailReplyTo,
		Timeout:  cfg.HTTPTimeoutDuration(),
	}
}

func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIURL) != "" && strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.From) != ""
}

type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

type SendResult struct {
	ID string `json:"id"`
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
}

func (c *Client) Configured() bool {
	return c != nil && c.cfg.Configured()
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text,omitempty"`
	HTML    string   `json:"html,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// Send delivers msg. A non-2xx answer is returned as a
// *domain.ExternalServiceError and never retried.
func (c *Client) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return nil, errors.New("email has no recipients")
	}

	from := c.cfg.From
	if c.cfg.FromName != "" {
		from = (&mail.Address{Name: c.cfg.FromName, Address: c.cfg.From}).String()
	}

	payload, err := json.Marshal(sendRequest{
		From:    from,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
		ReplyTo: c.cfg.ReplyTo,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send email: %w", err)
	}
	defer httphelpers.DrainAndClose(resp)

	if !httphelpers.IsSuccess(resp.StatusCode) {
		return nil, &domain.ExternalServiceError{
			Provider: providerName,
			Op:       "send",
			Status:   resp.StatusCode,
			Body:     httphelpers.ReadErrorBody(resp),
		}
	}

	var out SendResult
	// some providers answer 202 with an empty body
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return &out, nil
}
