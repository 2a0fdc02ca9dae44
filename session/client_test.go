package session

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/BaSui01/naya/testutil"
	"github.com/BaSui01/naya/testutil/fixtures"
	"github.com/BaSui01/naya/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *RelayClient {
	t.Helper()
	c, err := NewRelayClient(ClientConfig{URL: url, PublishableKey: "pk-test"}, nil)
	require.NoError(t, err)
	return c
}

func TestNewRelayClient_RequiresAbsoluteURL(t *testing.T) {
	for _, raw := range []string{"", "/api/v1/chat", "localhost"} {
		_, err := NewRelayClient(ClientConfig{URL: raw}, nil)
		require.Error(t, err, raw)
		assert.True(t, types.IsErrorCode(err, types.ErrConfiguration), raw)
	}
}

func TestRelayClient_StreamSendsConversation(t *testing.T) {
	gw := testutil.NewGateway(t, fixtures.HaloChunks...)
	c := newTestClient(t, gw.URL)

	body, err := c.Stream(testutil.TestContext(t), fixtures.TourismConversation())
	require.NoError(t, err)
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())

	assert.Equal(t, strings.Join(fixtures.HaloChunks, ""), string(raw))

	reqs := gw.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer pk-test", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
	assert.Equal(t, "text/event-stream", reqs[0].Header.Get("Accept"))

	msgs, ok := reqs[0].Body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 3)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "Apa saja wisata di Sidoarjo?", first["content"])
}

func TestRelayClient_NoKeyNoAuthorization(t *testing.T) {
	gw := testutil.NewGateway(t, "data: [DONE]\n")
	c, err := NewRelayClient(ClientConfig{URL: gw.URL}, nil)
	require.NoError(t, err)

	body, err := c.Stream(testutil.TestContext(t), nil)
	require.NoError(t, err)
	body.Close()
	assert.Empty(t, gw.Requests()[0].Header.Get("Authorization"))
}

func TestRelayClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      types.ErrorCode
		message   string
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, fixtures.RateLimitBody, types.ErrRateLimited,
			"Terlalu banyak permintaan. Mohon tunggu sebentar.", true},
		{"payment required", http.StatusPaymentRequired, fixtures.PaymentRequiredBody, types.ErrQuotaExceeded,
			"Layanan AI memerlukan kredit tambahan.", false},
		{"server error without body", http.StatusInternalServerError, "", types.ErrUpstreamError,
			MsgNoResponse, true},
		{"server error with text body", http.StatusBadGateway, "bad gateway", types.ErrUpstreamError,
			MsgNoResponse, true},
		{"client error", http.StatusBadRequest, `{"error":"Invalid messages"}`, types.ErrUpstreamError,
			"Invalid messages", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := testutil.NewGateway(t).Fail(tt.status, tt.body)
			c := newTestClient(t, gw.URL)

			body, err := c.Stream(testutil.TestContext(t), fixtures.TourismConversation())
			require.Error(t, err)
			assert.Nil(t, body)

			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, tt.status, e.HTTPStatus)
			assert.Equal(t, tt.retryable, e.Retryable)
		})
	}
}

func TestRelayClient_EmptyBody(t *testing.T) {
	gw := testutil.NewGateway(t)
	c := newTestClient(t, gw.URL)

	_, err := c.Stream(testutil.TestContext(t), nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrEmptyResponse))
	assert.Contains(t, err.Error(), MsgEmptyBody)
}

func TestRelayClient_TransportError(t *testing.T) {
	gw := testutil.NewGateway(t)
	url := gw.URL
	gw.Close()

	c := newTestClient(t, url)
	_, err := c.Stream(testutil.TestContext(t), nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
	assert.True(t, types.IsRetryable(err))
}

func TestRelayClient_CanceledContext(t *testing.T) {
	gw := testutil.NewGateway(t)
	c := newTestClient(t, gw.URL)

	_, err := c.Stream(testutil.CancelledContext(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
