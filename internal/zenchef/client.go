// Package zenchef is a small client for the Zenchef reservations API.
// Only the paginated reservations listing used by the sync is covered.
package zenchef

import (
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
)

// Defaults for the client.
const (
	DefaultBaseURL = "https://api.zenchef.com/v1"
	DefaultTimeout = 30 * time.Second
)

// maxErrorBody bounds how much of an error response is kept in messages.
const maxErrorBody = 2048

// Credentials authenticate calls for one restaurant.
type Credentials struct {
	APIToken     string
	RestaurantID string
}

// PageQuery selects one page of reservations between two service dates
// (inclusive, YYYY-MM-DD).
type PageQuery struct {
	FromDate string
	ToDate   string
	PerPage  int
	Page     int
}

// Customer is the booker of an upstream reservation.
type Customer struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

// Reservation is one upstream record. NumberOfPeople is kept raw since the
// feed does not always send a number.
type Reservation struct {
	StartTime      string    `json:"startTime"`
	NumberOfPeople any       `json:"numberOfPeople"`
	Customer       *Customer `json:"customer"`
}

type pageResponse struct {
	Reservations []Reservation `json:"reservations"`
}

// UpstreamError is returned for every failed call. Status is the HTTP
// status to surface to our own callers.
type UpstreamError struct {
	Status    int
	Message   string
	Retryable bool
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("zenchef: %d %s", e.Status, e.Message)
}

// Client fetches reservations over HTTP.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient returns a client for baseURL, DefaultBaseURL when empty.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		http:    &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchPage returns one page of reservations. A deadline of the client's
// timeout is applied on top of ctx.
func (c *Client) FetchPage(ctx context.Context, creds Credentials, q PageQuery) ([]Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	v := url.Values{}
	v.Set("restaurantId", creds.RestaurantID)
	v.Set("fromDate", q.FromDate)
	v.Set("toDate", q.ToDate)
	v.Set("perPage", strconv.Itoa(q.PerPage))
	v.Set("page", strconv.Itoa(q.Page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reservations?"+v.Encode(), nil)
	if err != nil {
		return nil, &UpstreamError{Status: http.StatusBadGateway, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{
			Status:    resp.StatusCode,
			Message:   "Zenchef API error: " + strings.TrimSpace(string(body)),
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	var out pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, transportError(ctx, err)
		}
		return nil, &UpstreamError{Status: http.StatusBadGateway, Message: "decode response: " + err.Error()}
	}
	return out.Reservations, nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Status: http.StatusGatewayTimeout, Message: "request timed out", Retryable: true}
	}
	return &UpstreamError{Status: http.StatusBadGateway, Message: err.Error(), Retryable: true}
}
