// Package utilityapi provides an HTTP client for the UtilityAPI bill service.
package utilityapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is an HTTP client for the UtilityAPI service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new UtilityAPI client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// MeterBase carries the service attributes of one meter.
type MeterBase struct {
	ServiceClass   string `json:"service_class"`
	ServiceTariff  string `json:"service_tariff"`
	ServiceAddress string `json:"service_address"`
	BillingAccount string `json:"billing_account"`
}

// Meter is one provider-side sub-account under an authorization.
type Meter struct {
	UID       string    `json:"uid"`
	Base      MeterBase `json:"base"`
	BillCount int       `json:"bill_count"`
}

// MeterList wraps the meters sub-object of an authorization.
type MeterList struct {
	Meters []Meter `json:"meters"`
}

// Authorization is the result of exchanging a user-facing referral for a
// utility data grant.
type Authorization struct {
	UID        string    `json:"uid"`
	IsDeclined bool      `json:"is_declined"`
	UtilityID  string    `json:"utility"`
	Meters     MeterList `json:"meters"`
}

// Bill is one statement as delivered by the provider.
type Bill struct {
	UID           string          `json:"uid"`
	StatementDate string          `json:"statement_date"`
	TotalUsage    float64         `json:"total_usage"`
	TotalUnit     string          `json:"total_unit"`
	TotalCost     float64         `json:"total_cost"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// Error is a typed provider API failure.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("utilityapi: %s (status %d)", e.Message, e.StatusCode)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return &Error{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetAuthorization resolves a referral code from the authorization form into
// the granted authorization, including its meters.
func (c *Client) GetAuthorization(ctx context.Context, referral string) (*Authorization, error) {
	var out struct {
		Authorizations []Authorization `json:"authorizations"`
	}
	query := url.Values{}
	query.Set("referrals", referral)
	query.Set("include", "meters")
	if err := c.get(ctx, "/authorizations", query, &out); err != nil {
		return nil, err
	}
	if len(out.Authorizations) == 0 {
		return nil, &Error{StatusCode: http.StatusNotFound, Message: "no authorization for referral"}
	}
	return &out.Authorizations[0], nil
}

// ListBills fetches all bills for one meter.
func (c *Client) ListBills(ctx context.Context, meterUID string) ([]Bill, error) {
	var out struct {
		Bills []Bill `json:"bills"`
	}
	query := url.Values{}
	query.Set("meters", meterUID)
	if err := c.get(ctx, "/bills", query, &out); err != nil {
		return nil, err
	}
	return out.Bills, nil
}
