// Package remote talks to the hosted dealership platform over HTTP/JSON. It
// implements the push/pull contract the sync engine drives: idempotent batch
// push keyed by client-assigned ids, and incremental pull by timestamp.
package remote

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
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dealersoft/dealerdesk/internal/desktop/models"
	"github.com/dealersoft/dealerdesk/internal/desktop/sync"
	"github.com/dealersoft/dealerdesk/internal/logging"
)

var (
	// ErrUnavailable covers network faults and 5xx answers; the cycle is
	// aborted and retried on the next interval.
	ErrUnavailable = errors.New("remote unavailable")
	// ErrUnauthorized means the platform rejected the bearer token.
	ErrUnauthorized = errors.New("remote authentication rejected")
)

const (
	requestTimeout = 30 * time.Second
	maxRetries     = 3
	retryBase      = 500 * time.Millisecond
)

// Client implements sync.Remote against the platform's sync API.
type Client struct {
	baseURL string
	http    *http.Client
	token   func() string
	log     logging.Logger
}

// NewClient builds a remote client. token supplies the current bearer token
// per request, so a re-login mid-cycle is picked up immediately.
func NewClient(baseURL string, token func() string, log logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		token:   token,
		log:     log.With("component", "remote"),
	}
}

type wireAck struct {
	ID          string `json:"id"`
	CanonicalID string `json:"canonical_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

type pushRequest[T any] struct {
	UserID  string `json:"user_id"`
	Records []T    `json:"records"`
}

type pushResponse struct {
	Acks []wireAck `json:"acks"`
}

type pullResponse[T any] struct {
	Records []T `json:"records"`
}

func (c *Client) PushClients(ctx context.Context, userID string, records []models.Client) ([]sync.Ack, error) {
	return pushRecords(ctx, c, models.KindClient, userID, records)
}

func (c *Client) PullClients(ctx context.Context, userID string, since int64) ([]models.Client, error) {
	return pullRecords[models.Client](ctx, c, models.KindClient, userID, since)
}

func (c *Client) PushVehicles(ctx context.Context, userID string, records []models.Vehicle) ([]sync.Ack, error) {
	return pushRecords(ctx, c, models.KindVehicle, userID, records)
}

func (c *Client) PullVehicles(ctx context.Context, userID string, since int64) ([]models.Vehicle, error) {
	return pullRecords[models.Vehicle](ctx, c, models.KindVehicle, userID, since)
}

func (c *Client) PushDeals(ctx context.Context, userID string, records []models.Deal) ([]sync.Ack, error) {
	return pushRecords(ctx, c, models.KindDeal, userID, records)
}

func (c *Client) PullDeals(ctx context.Context, userID string, since int64) ([]models.Deal, error) {
	return pullRecords[models.Deal](ctx, c, models.KindDeal, userID, since)
}

func (c *Client) PushDocuments(ctx context.Context, userID string, records []models.Document) ([]sync.Ack, error) {
	return pushRecords(ctx, c, models.KindDocument, userID, records)
}

func (c *Client) PullDocuments(ctx context.Context, userID string, since int64) ([]models.Document, error) {
	return pullRecords[models.Document](ctx, c, models.KindDocument, userID, since)
}

func pushRecords[T any](ctx context.Context, c *Client, kind models.Kind, userID string, records []T) ([]sync.Ack, error) {
	body, err := json.Marshal(pushRequest[T]{UserID: userID, Records: records})
	if err != nil {
		return nil, fmt.Errorf("encode %s push: %w", kind, err)
	}

	var resp pushResponse
	path := fmt.Sprintf("/api/v1/sync/%s/push", kind)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}

	acks := make([]sync.Ack, 0, len(resp.Acks))
	for _, a := range resp.Acks {
		ack := sync.Ack{ID: a.ID, CanonicalID: a.CanonicalID}
		if a.Error != "" {
			ack.Err = errors.New(a.Error)
		}
		acks = append(acks, ack)
	}
	return acks, nil
}

func pullRecords[T any](ctx context.Context, c *Client, kind models.Kind, userID string, since int64) ([]T, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("since", strconv.FormatInt(since, 10))
	path := fmt.Sprintf("/api/v1/sync/%s/pull?%s", kind, q.Encode())

	var resp pullResponse[T]
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// doJSON performs one request with exponential-backoff retries on transient
// failures. Auth rejections are terminal; 5xx and network faults retry.
func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Debug(ctx, "request failed, will retry", "path", path, "error", err)
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return ErrUnauthorized
		case resp.StatusCode >= 500:
			c.log.Debug(ctx, "server error, will retry", "path", path, "status", resp.StatusCode)
			return retry.RetryableError(fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response from %s: %w", path, err)
		}
		return nil
	})
}
