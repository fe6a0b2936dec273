// Package mpesa is a minimal client for Safaricom's Daraja API covering the
// two calls the payment flow needs: OAuth token generation and STK push
// submission. Callback envelope parsing lives here too so the wire format has
// a single home.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/13132klain/Cyber-Mtandao/internal/format"
	"github.com/13132klain/Cyber-Mtandao/internal/phone"
)

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"

	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"

	transactionType = "CustomerPayBillOnline"

	defaultAccountReference = "CyberMtandao"
	defaultTransactionDesc  = "Payment for cyber services"

	maxAccountReferenceLen = 12
	maxTransactionDescLen  = 13
)

// Config carries everything the client needs. It is constructed once at
// process start and passed in; the client never reads the environment.
type Config struct {
	Environment    string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	CallbackURL    string
	// CallbackToken, when set, must be echoed by inbound callbacks in the
	// x-callback-token header. Checked by the HTTP layer, not the client.
	CallbackToken string
	// BaseURL overrides the environment-derived host. Used in tests.
	BaseURL string
	Timeout time.Duration
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Environment == EnvironmentProduction {
		return productionBaseURL
	}
	return sandboxBaseURL
}

// Error is a structured Daraja rejection: either a non-"0" ResponseCode on a
// push submission or an error body from the API.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("mpesa: request rejected (code %s): %s", e.Code, e.Description)
}

// PushRequest is the caller-facing STK push input. PhoneNumber may be in any
// accepted Kenyan format; it is normalized before submission. Amount is
// truncated to whole shillings, never rounded up.
type PushRequest struct {
	PhoneNumber      string
	Amount           float64
	AccountReference string
	TransactionDesc  string
}

type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		now:  time.Now,
	}
}

// AccessToken exchanges the consumer key/secret for a short-lived bearer
// token. Tokens are not cached; every initiation re-authenticates.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	url := c.cfg.baseURL() + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call token endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	return body.AccessToken, nil
}

// STKPush submits a payment prompt to the customer's handset and returns the
// provider-issued request identifiers. The caller must persist
// CheckoutRequestID against the order before treating initiation as complete.
func (c *Client) STKPush(ctx context.Context, push PushRequest) (*STKPushResult, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}

	ts := timestamp(c.now())
	reference := push.AccountReference
	if reference == "" {
		reference = defaultAccountReference
	}
	desc := push.TransactionDesc
	if desc == "" {
		desc = defaultTransactionDesc
	}
	msisdn := phone.Normalize(push.PhoneNumber)

	payload := stkPushPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password(c.cfg.ShortCode, c.cfg.PassKey, ts),
		Timestamp:         ts,
		TransactionType:   transactionType,
		Amount:            int64(math.Trunc(push.Amount)),
		PartyA:            msisdn,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       msisdn,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  format.Truncate(reference, maxAccountReferenceLen),
		TransactionDesc:   format.Truncate(desc, maxTransactionDescLen),
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal push payload: %w", err)
	}
	url := c.cfg.baseURL() + "/mpesa/stkpush/v1/processrequest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.ErrorMessage != "" {
			return nil, &Error{Code: apiErr.ErrorCode, Description: apiErr.ErrorMessage}
		}
		return nil, fmt.Errorf("push endpoint status %d", resp.StatusCode)
	}

	var result STKPushResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}
	if result.ResponseCode != "0" {
		return nil, &Error{Code: result.ResponseCode, Description: result.ResponseDescription}
	}
	return &result, nil
}

// timestamp renders local wall-clock time in Daraja's YYYYMMDDHHmmss form.
func timestamp(t time.Time) string {
	return t.Format("20060102150405")
}

// password derives the push password: base64 of shortcode+passkey+timestamp.
// Daraja documents this as an encoding, not a hash.
func password(shortCode, passKey, ts string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + ts))
}
