package web

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/internal/automation"
	"github.com/taskweave/taskweave/internal/core"
)

// recordingSink captures delivered events.
type recordingSink struct {
	mu     sync.Mutex
	events []core.Event
}

func (s *recordingSink) HandleEvent(_ context.Context, event core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) all() []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Event(nil), s.events...)
}

func TestServer_WebhookDeliversEvent(t *testing.T) {
	sink := &recordingSink{}
	srv := httptest.NewServer(NewServer(sink).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/hooks/github", "application/json",
		bytes.NewReader([]byte(`{"ref":"main","pushed":true}`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, core.EventWebhookReceived, events[0].Type)
	assert.Equal(t, "github", events[0].Source)
	assert.Equal(t, "main", events[0].PayloadString("ref"))
}

func TestServer_WebhookRejectsMalformedJSON(t *testing.T) {
	sink := &recordingSink{}
	srv := httptest.NewServer(NewServer(sink).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/hooks/github", "application/json",
		bytes.NewReader([]byte(`not-json`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, sink.all())
}

func TestServer_WebhookSignatureVerification(t *testing.T) {
	sink := &recordingSink{}
	server := NewServer(sink, WithSourceSecrets(map[string]string{"ci": "sekret"}))
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	body := []byte(`{"build":"green"}`)

	// Unsigned delivery is rejected.
	resp, err := http.Post(srv.URL+"/hooks/ci", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Correctly signed delivery is accepted.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/hooks/ci", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Taskweave-Signature", automation.SignPayload("sekret", body))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Source without a configured secret accepts unsigned deliveries.
	resp, err = http.Post(srv.URL+"/hooks/other", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Len(t, sink.all(), 2)
}

func TestServer_RuleEndpoints(t *testing.T) {
	engine := automation.NewEngine(automation.Runtime{})
	_, err := engine.Register(&core.AutomationRule{
		ID:      "r1",
		Label:   "sample",
		Enabled: true,
		Trigger: core.Trigger{Kind: core.TriggerManual},
		Actions: []core.Action{{Kind: core.ActionNotify}},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(&recordingSink{}, WithRuleLister(engine)).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/rules/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/rules/r1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/rules/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	srv := httptest.NewServer(NewServer(&recordingSink{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
