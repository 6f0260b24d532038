package learnweb3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fabriguespe/xmtp-faucet-bot/internal/reqid"
	"github.com/fabriguespe/xmtp-faucet-bot/pkg/models"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL + "/", APIKey: "secret", Timeout: time.Second})
}

func TestGetNetworks(t *testing.T) {
	networks := []models.Network{
		{NetworkID: "base_sepolia", NetworkName: "Base Sepolia", NetworkLogo: "logo.png", TokenName: "ETH", DripAmount: "0.01", Balance: "12.5"},
		{NetworkID: "sepolia", NetworkName: "Sepolia", TokenName: "ETH", DripAmount: "0.05", Balance: "0"},
	}

	tests := []struct {
		name string
		body func() []byte
	}{
		{
			name: "bare array",
			body: func() []byte { b, _ := json.Marshal(networks); return b },
		},
		{
			name: "envelope",
			body: func() []byte { b, _ := json.Marshal(map[string]any{"networks": networks}); return b },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/networks", r.URL.Path)
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				_, _ = w.Write(tt.body())
			})

			got, err := client.GetNetworks(context.Background())
			require.NoError(t, err)
			assert.Equal(t, networks, got)
		})
	}
}

func TestGetNetworksEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	got, err := client.GetNetworks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetNetworksErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`, wantStatus: 500},
		{name: "unauthorized", status: http.StatusUnauthorized, body: ``, wantStatus: 401},
		{name: "invalid json", status: http.StatusOK, body: `not json`, wantStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.GetNetworks(context.Background())
			require.Error(t, err)

			var svcErr *ServiceError
			require.True(t, errors.As(err, &svcErr))
			assert.Equal(t, tt.wantStatus, svcErr.StatusCode)
			assert.Equal(t, "get networks", svcErr.Op)
		})
	}
}

func TestGetNetworksTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: url})
	_, err := client.GetNetworks(context.Background())

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Zero(t, svcErr.StatusCode)
}

func TestDripTokens(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   models.DripResult
	}{
		{name: "accepted empty body", status: http.StatusOK, body: ``, want: models.DripResult{OK: true}},
		{name: "accepted ok true", status: http.StatusOK, body: `{"ok":true,"value":"0xtx"}`, want: models.DripResult{OK: true}},
		{name: "ok false in 200", status: http.StatusOK, body: `{"ok":false,"error":"quota exceeded"}`, want: models.DripResult{OK: false, Error: "quota exceeded"}},
		{name: "rejected with error", status: http.StatusTooManyRequests, body: `{"error":"quota exceeded"}`, want: models.DripResult{OK: false, Error: "quota exceeded"}},
		{name: "rejected with message", status: http.StatusBadRequest, body: `{"message":"invalid network"}`, want: models.DripResult{OK: false, Error: "invalid network"}},
		{name: "rejected plain text", status: http.StatusBadRequest, body: `faucet empty`, want: models.DripResult{OK: false, Error: "faucet empty"}},
		{name: "rejected html", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, want: models.DripResult{OK: false, Error: "Bad Gateway"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/drip", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				raw, err := io.ReadAll(r.Body)
				assert.NoError(t, err)
				assert.JSONEq(t, `{"networkId":"base_sepolia","address":"0xRecipient"}`, string(raw))

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := client.DripTokens(context.Background(), "base_sepolia", "0xRecipient")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDripTokensUndecodableSuccessIsLogged(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantLog bool
	}{
		{name: "plain text", body: "queued", wantLog: true},
		{name: "empty", body: "", wantLog: false},
		{name: "json", body: `{"ok":true}`, wantLog: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			var logs bytes.Buffer
			ctx := zerolog.New(&logs).Level(zerolog.DebugLevel).WithContext(context.Background())

			got, err := client.DripTokens(ctx, "base_sepolia", "0xRecipient")
			require.NoError(t, err)
			assert.Equal(t, models.DripResult{OK: true}, got)

			if tt.wantLog {
				assert.Contains(t, logs.String(), "Drip response is not JSON")
				assert.Contains(t, logs.String(), `"body":"queued"`)
			} else {
				assert.NotContains(t, logs.String(), "Drip response is not JSON")
			}
		})
	}
}

func TestDripTokensTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: url})
	_, err := client.DripTokens(context.Background(), "sepolia", "0xRecipient")

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "drip tokens", svcErr.Op)
}

func TestRequestIDForwarded(t *testing.T) {
	ctx, id := reqid.New(context.Background())

	var seen string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(reqid.Header)
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.GetNetworks(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, seen)
}

func TestNoAuthorizationWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	_, err := NewClient(Config{BaseURL: server.URL}).GetNetworks(context.Background())
	require.NoError(t, err)
}

func TestServiceErrorMessage(t *testing.T) {
	err := &ServiceError{Op: "get networks", StatusCode: 503, Err: errors.New("unavailable")}
	assert.Equal(t, "learnweb3 get networks: status 503: unavailable", err.Error())

	inner := errors.New("dial failed")
	err = &ServiceError{Op: "drip tokens", Err: inner}
	assert.Equal(t, "learnweb3 drip tokens: dial failed", err.Error())
	assert.ErrorIs(t, err, inner)
}
