package rest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clintrovert/boardbridge/internal/dispatch"
	"github.com/clintrovert/boardbridge/pkg/types"
)

// mockDispatcher records events and returns a fixed outcome
type mockDispatcher struct {
	events  []types.Event
	outcome dispatch.Outcome
}

func (m *mockDispatcher) Dispatch(_ context.Context, ev types.Event) dispatch.Outcome {
	m.events = append(m.events, ev)
	return m.outcome
}

func newTestServer(t *testing.T, dispatcher Dispatcher, secret string) *httptest.Server {
	t.Helper()
	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		NewHandler(dispatcher, secret, zaptest.NewLogger(t)).RegisterRoutes(r)
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func post(t *testing.T, url, eventType string, body []byte, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/api/Webhook", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "d-1")
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestWebhook_Dispatches(t *testing.T) {
	dispatcher := &mockDispatcher{outcome: dispatch.OutcomePromoted}
	server := newTestServer(t, dispatcher, "")

	resp := post(t, server.URL, "issues", payload(issuePayload, "opened"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body WebhookResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, WebhookResponse{DeliveryID: "d-1", Outcome: "promoted"}, body)

	require.Len(t, dispatcher.events, 1)
	assert.IsType(t, types.Opened{}, dispatcher.events[0])
}

func TestWebhook_FailedOutcomeStillAcknowledged(t *testing.T) {
	dispatcher := &mockDispatcher{outcome: dispatch.OutcomeFailed}
	server := newTestServer(t, dispatcher, "")

	resp := post(t, server.URL, "issues", payload(issuePayload, "closed"), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhook_IgnoredDelivery(t *testing.T) {
	dispatcher := &mockDispatcher{outcome: dispatch.OutcomeIgnored}
	server := newTestServer(t, dispatcher, "")

	resp := post(t, server.URL, "ping", []byte(`{"zen":"Keep it logically awesome."}`), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, dispatcher.events, 1)
	assert.Equal(t, types.Ignored{DeliveryType: "ping"}, dispatcher.events[0])
}

func TestWebhook_MalformedBody(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		body      string
	}{
		{name: "not json", eventType: "issues", body: `{not json`},
		{name: "issues without issue", eventType: "issues", body: `{"action":"opened"}`},
		{name: "comment without repository", eventType: "issue_comment", body: `{"action":"created","issue":{"number":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &mockDispatcher{outcome: dispatch.OutcomePromoted}
			server := newTestServer(t, dispatcher, "")

			resp := post(t, server.URL, tt.eventType, []byte(tt.body), "")
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body WebhookResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, WebhookResponse{DeliveryID: "d-1", Outcome: "ignored"}, body)
			assert.Empty(t, dispatcher.events)
		})
	}
}

func TestWebhook_Signature(t *testing.T) {
	const secret = "s3cret"
	body := payload(issuePayload, "labeled")

	tests := []struct {
		name       string
		signature  string
		wantStatus int
		wantEvents int
	}{
		{name: "valid", signature: sign(secret, body), wantStatus: http.StatusOK, wantEvents: 1},
		{name: "wrong secret", signature: sign("other", body), wantStatus: http.StatusUnauthorized},
		{name: "missing", signature: "", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &mockDispatcher{outcome: dispatch.OutcomeSkipped}
			server := newTestServer(t, dispatcher, secret)

			resp := post(t, server.URL, "issues", body, tt.signature)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Len(t, dispatcher.events, tt.wantEvents)
		})
	}
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	server := newTestServer(t, &mockDispatcher{}, "")

	resp, err := http.Get(server.URL + "/api/Webhook")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
