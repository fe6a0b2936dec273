package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		Environment:    EnvironmentSandbox,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		PassKey:        "passkey",
		CallbackURL:    "https://example.test/api/mpesa/callback",
		BaseURL:        srv.URL,
	})
	c.now = func() time.Time { return time.Date(2025, 3, 7, 14, 30, 5, 0, time.Local) }
	return c, srv
}

func TestAccessToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("key:secret"))
		assert.Equal(t, wantAuth, r.Header.Get("Authorization"))
		assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
	})
	c, _ := newTestClient(t, mux)

	tok, err := c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
}

func TestAccessTokenFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.AccessToken(context.Background())
	assert.Error(t, err)
}

func TestSTKPushPayload(t *testing.T) {
	var got stkPushPayload
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(STKPushResult{
			MerchantRequestID:   "mr-1",
			CheckoutRequestID:   "ws_CO_1",
			ResponseCode:        "0",
			ResponseDescription: "Success. Request accepted for processing",
			CustomerMessage:     "Success. Request accepted for processing",
		})
	})
	c, _ := newTestClient(t, mux)

	res, err := c.STKPush(context.Background(), PushRequest{
		PhoneNumber:      "0712345678",
		Amount:           300.99,
		AccountReference: "ORD-TEST-1-OVERLONG",
	})
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_1", res.CheckoutRequestID)
	assert.Equal(t, "mr-1", res.MerchantRequestID)

	ts := "20250307143005"
	assert.Equal(t, "174379", got.BusinessShortCode)
	assert.Equal(t, ts, got.Timestamp)
	wantPassword := base64.StdEncoding.EncodeToString([]byte("174379" + "passkey" + ts))
	assert.Equal(t, wantPassword, got.Password)
	assert.Equal(t, "CustomerPayBillOnline", got.TransactionType)
	assert.Equal(t, int64(300), got.Amount, "amount must be truncated, never rounded up")
	assert.Equal(t, "254712345678", got.PartyA)
	assert.Equal(t, "254712345678", got.PhoneNumber)
	assert.Equal(t, "174379", got.PartyB)
	assert.Equal(t, "https://example.test/api/mpesa/callback", got.CallBackURL)
	assert.Equal(t, "ORD-TEST-1-O", got.AccountReference, "reference capped at 12 chars")
	assert.Equal(t, "Payment for c", got.TransactionDesc, "default description capped at 13 chars")
}

func TestSTKPushRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(STKPushResult{
			ResponseCode:        "1032",
			ResponseDescription: "Request cancelled by user",
		})
	})
	c, _ := newTestClient(t, mux)

	_, err := c.STKPush(context.Background(), PushRequest{PhoneNumber: "0712345678", Amount: 100})
	var mpesaErr *Error
	require.ErrorAs(t, err, &mpesaErr)
	assert.Equal(t, "1032", mpesaErr.Code)
	assert.Equal(t, "Request cancelled by user", mpesaErr.Description)
}

func TestSTKPushTokenFailureIsFatal(t *testing.T) {
	pushed := false
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusBadRequest)
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		pushed = true
	})
	c, _ := newTestClient(t, mux)

	_, err := c.STKPush(context.Background(), PushRequest{PhoneNumber: "0712345678", Amount: 100})
	assert.Error(t, err)
	assert.False(t, pushed, "push must not be attempted without a token")
}
