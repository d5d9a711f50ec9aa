package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/kioku/internal/config"
	"github.com/harunnryd/kioku/internal/inspect"
	"github.com/harunnryd/kioku/internal/journal"
	"github.com/harunnryd/kioku/internal/session"
	"github.com/harunnryd/kioku/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, in string) (*Server, *session.Manager, *bytes.Buffer) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/p\n"), 0644))

	ps, err := store.Open(root, store.Options{})
	require.NoError(t, err)
	j := journal.New(ps, journal.Config{DedupeWindow: time.Millisecond})
	insp, err := inspect.New(config.InspectConfig{
		IgnoreGlobs: []string{".kioku"},
		KeyFiles:    []string{"go.mod"},
		MaxEntries:  100,
	})
	require.NoError(t, err)
	m := session.NewManager(ps, j, insp, 8)

	var out bytes.Buffer
	return New(m, j, config.ServerConfig{MaxEventsDefault: 5, MaxEventsCap: 10}, strings.NewReader(in), &out), m, &out
}

func serveLines(t *testing.T, srv *Server, out *bytes.Buffer) []response {
	t.Helper()
	require.NoError(t, srv.Serve(context.Background()))

	var responses []response
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp response
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func TestPing(t *testing.T) {
	srv, _, out := testServer(t, `{"method":"ping","params":{"client":"cursor"}}`+"\n")
	responses := serveLines(t, srv, out)

	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)
	result := responses[0].Result.(map[string]any)
	assert.Equal(t, "ok", result["status"])
}

func TestPingWithoutClient(t *testing.T) {
	srv, _, out := testServer(t, `{"method":"ping","params":{}}`+"\n")
	responses := serveLines(t, srv, out)

	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, "ValidationError", responses[0].Error.Kind)
}

func TestAppendEventRoundTrip(t *testing.T) {
	input := `{"method":"append_event","params":{"client":"mcp:claude","event_type":"user_intent","summary":"wire the cache","files_touched":["cache.go"]}}` + "\n" +
		`{"method":"get_context","params":{"max_events":10}}` + "\n"
	srv, m, out := testServer(t, input)
	_, _, err := m.Start(context.Background(), session.StartOptions{AgentKind: session.AgentClaude})
	require.NoError(t, err)

	responses := serveLines(t, srv, out)
	require.Len(t, responses, 2)

	require.Nil(t, responses[0].Error)
	appended := responses[0].Result.(map[string]any)
	assert.Greater(t, appended["id"].(float64), float64(0))

	require.Nil(t, responses[1].Error)
	events := responses[1].Result.(map[string]any)["events"].([]any)
	require.NotEmpty(t, events)
	newest := events[0].(map[string]any)
	assert.Equal(t, "wire the cache", newest["summary"])
	assert.Equal(t, "mcp:claude", newest["source"])
}

func TestAppendEventRequiresActiveSession(t *testing.T) {
	srv, _, out := testServer(t, `{"method":"append_event","params":{"client":"cursor","event_type":"task_status","summary":"x"}}`+"\n")
	responses := serveLines(t, srv, out)

	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, "NoActiveSession", responses[0].Error.Kind)
}

func TestAppendEventRequiresClient(t *testing.T) {
	srv, m, out := testServer(t, `{"method":"append_event","params":{"event_type":"task_status","summary":"x"}}`+"\n")
	_, _, err := m.Start(context.Background(), session.StartOptions{AgentKind: session.AgentClaude})
	require.NoError(t, err)

	responses := serveLines(t, srv, out)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, "ValidationError", responses[0].Error.Kind)
}

func TestGetContextEffectiveState(t *testing.T) {
	srv, m, out := testServer(t, `{"method":"get_context","params":{"include_effective_state":true}}`+"\n")
	_, _, err := m.Start(context.Background(), session.StartOptions{AgentKind: session.AgentClaude})
	require.NoError(t, err)

	responses := serveLines(t, srv, out)
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)

	result := responses[0].Result.(map[string]any)
	state := result["effective_state"].(map[string]any)
	assert.Equal(t, float64(1), state["session_count"])
	assert.NotNil(t, state["active_session"])
}

func TestGetContextCapsMaxEvents(t *testing.T) {
	srv, m, out := testServer(t, `{"method":"get_context","params":{"max_events":5000}}`+"\n")
	ctx := context.Background()
	sess, _, err := m.Start(ctx, session.StartOptions{AgentKind: session.AgentClaude})
	require.NoError(t, err)

	j := journal.New(srv.journal.Store(), journal.Config{DedupeWindow: time.Millisecond})
	for i := 0; i < 15; i++ {
		_, err := j.Append(ctx, sess.ID, journal.Draft{
			Type: journal.TypeTaskStatus, Source: "cli", Summary: fmt.Sprintf("step %d", i),
		})
		require.NoError(t, err)
	}

	responses := serveLines(t, srv, out)
	require.Len(t, responses, 1)
	events := responses[0].Result.(map[string]any)["events"].([]any)
	assert.Len(t, events, 10, "requests above the cap are clamped")
}

func TestChatSessionLifecycle(t *testing.T) {
	input := `{"method":"start_chat_session","params":{"client":"cursor"}}` + "\n"
	srv, m, out := testServer(t, input)

	responses := serveLines(t, srv, out)
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)
	sessionID := int64(responses[0].Result.(map[string]any)["session_id"].(float64))
	assert.NotZero(t, sessionID)

	// A fresh connection to the same project can stop the session.
	input2 := fmt.Sprintf(`{"method":"stop_chat_session","params":{"session_id":%d}}`+"\n", sessionID)
	var out2 bytes.Buffer
	srv2 := New(m, srv.journal, config.ServerConfig{}, strings.NewReader(input2), &out2)
	responses2 := serveLines(t, srv2, &out2)
	require.Len(t, responses2, 1)
	require.Nil(t, responses2[0].Error)
	assert.Equal(t, "stopped", responses2[0].Result.(map[string]any)["status"])
}

func TestMalformedRequestKeepsServing(t *testing.T) {
	input := "{not json}\n" +
		`{"method":"bogus"}` + "\n" +
		`{"method":"ping","params":{"client":"cursor"}}` + "\n"
	srv, _, out := testServer(t, input)

	responses := serveLines(t, srv, out)
	require.Len(t, responses, 3)
	assert.Equal(t, "ProtocolError", responses[0].Error.Kind)
	assert.Equal(t, "ProtocolError", responses[1].Error.Kind)
	assert.Nil(t, responses[2].Error, "the connection survives malformed requests")
}

func TestContentLengthFraming(t *testing.T) {
	body := `{"method":"ping","params":{"client":"codex"}}`
	input := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
	srv, _, out := testServer(t, input)

	require.NoError(t, srv.Serve(context.Background()))

	raw := out.String()
	assert.True(t, strings.HasPrefix(raw, "Content-Length: "), "responses use the client's framing")
	_, payload, ok := strings.Cut(raw, "\r\n\r\n")
	require.True(t, ok)
	var resp response
	require.NoError(t, json.Unmarshal([]byte(payload), &resp))
	require.Nil(t, resp.Error)
	assert.Equal(t, "ok", resp.Result.(map[string]any)["status"])
}

func TestContentLengthFramingSurvivesBadHeader(t *testing.T) {
	body := `{"method":"ping","params":{"client":"codex"}}`
	input := "Content-Length: nope\r\n\r\n" +
		fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
	srv, _, out := testServer(t, input)

	require.NoError(t, srv.Serve(context.Background()))

	// One error response for the bad frame, then a normal pong: the
	// connection stays open across the malformed header.
	parts := strings.Split(out.String(), "\r\n\r\n")
	require.Len(t, parts, 3)

	var errResp response
	require.NoError(t, json.Unmarshal([]byte(parts[1][:strings.Index(parts[1], "Content-Length")]), &errResp))
	require.NotNil(t, errResp.Error)
	assert.Equal(t, "ProtocolError", errResp.Error.Kind)

	var pong response
	require.NoError(t, json.Unmarshal([]byte(parts[2]), &pong))
	require.Nil(t, pong.Error)
	assert.Equal(t, "ok", pong.Result.(map[string]any)["status"])
}

func TestUnknownSessionStopChat(t *testing.T) {
	srv, _, out := testServer(t, `{"method":"stop_chat_session","params":{"session_id":404}}`+"\n")
	responses := serveLines(t, srv, out)

	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, "SessionNotFound", responses[0].Error.Kind)
}
