// Package authority delivers signed payroll documents to the tax authority.
package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hrpayroll/internal/domain/epayroll"
)

const maxReplyBytes = 64 * 1024

// Client posts documents to AUTHORITY_URL.
type Client struct {
	url    string
	client *http.Client
}

func NewClient(url string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("authority url is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		url:    url,
		client: &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

// Submit sends one attempt. Transport failures are returned as errors; any
// HTTP response becomes a Reply, with non-2xx statuses mapped to rejections.
func (c *Client) Submit(ctx context.Context, sub epayroll.Submission) (epayroll.Reply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(sub.Content))
	if err != nil {
		return epayroll.Reply{}, fmt.Errorf("build authority request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Document-Code", sub.UniqueCode)
	req.Header.Set("X-Document-Number", sub.DocumentNumber)
	req.Header.Set("X-Signature", sub.Signature)
	req.Header.Set("X-Signature-Algorithm", sub.SignatureAlgorithm)

	resp, err := c.client.Do(req)
	if err != nil {
		return epayroll.Reply{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return epayroll.Reply{}, fmt.Errorf("read authority reply: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return epayroll.Reply{
			Status:  epayroll.TransmissionStatusRejected,
			Code:    fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message: replyMessage(raw, resp.Status),
		}, nil
	}

	var reply epayroll.Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return epayroll.Reply{}, fmt.Errorf("decode authority reply: %w", err)
	}
	if !reply.Accepted() {
		reply.Status = epayroll.TransmissionStatusRejected
	}
	return reply, nil
}

func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

// replyMessage prefers the authority's own message when the error body is JSON.
func replyMessage(raw []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return body.Message
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		if len(text) > 500 {
			text = text[:500]
		}
		return text
	}
	return fallback
}
