package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────────────────
// HTTP Client Helpers
// ────────────────────────────────────────────────────────────

// Register creates an account and returns the parsed response (user + token).
func (app *TestApp) Register(t *testing.T, email, name, password string) map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{"email": email, "name": name, "password": password}
	return app.postJSON(t, "/auth/register", "", body, http.StatusCreated)
}

// RegisterUser creates a fresh account and returns its bearer token.
func (app *TestApp) RegisterUser(t *testing.T, email string) string {
	t.Helper()
	resp := app.Register(t, email, "Test User", "test-password-1")
	token, _ := resp["token"].(string)
	require.NotEmpty(t, token, "register response carries no token")
	return token
}

// Login authenticates and returns the parsed response (user + token).
func (app *TestApp) Login(t *testing.T, email, password string) map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{"email": email, "password": password}
	return app.postJSON(t, "/auth/login", "", body, http.StatusOK)
}

// CreateApp creates a workspace and returns its id and the initial chat id.
// The starter template is materialized as part of the call.
func (app *TestApp) CreateApp(t *testing.T, token, name string) (appID, chatID int64) {
	t.Helper()
	resp := app.postJSON(t, "/apps", token, map[string]interface{}{"name": name}, http.StatusCreated)
	a, _ := resp["app"].(map[string]interface{})
	c, _ := resp["chat"].(map[string]interface{})
	appID = toInt64(a["id"])
	chatID = toInt64(c["id"])
	require.NotZero(t, appID, "create app returned no app id")
	require.NotZero(t, chatID, "create app returned no chat id")
	return appID, chatID
}

// ListMessages returns a chat's messages in chronological order.
func (app *TestApp) ListMessages(t *testing.T, token string, chatID int64) []interface{} {
	t.Helper()
	return app.getJSONArray(t, fmt.Sprintf("/chats/%d/messages", chatID), token, http.StatusOK)
}

// ReadWorkspaceFile fetches one file through the files API and returns its
// content.
func (app *TestApp) ReadWorkspaceFile(t *testing.T, token string, appID int64, path string) string {
	t.Helper()
	resp := app.getJSON(t, fmt.Sprintf("/files/app/%d/%s", appID, path), token, http.StatusOK)
	content, _ := resp["content"].(string)
	return content
}

// WriteWorkspaceFile writes one file through the files API.
func (app *TestApp) WriteWorkspaceFile(t *testing.T, token string, appID int64, path, content string) {
	t.Helper()
	app.putJSON(t, fmt.Sprintf("/files/app/%d/%s", appID, path), token,
		map[string]interface{}{"content": content}, http.StatusOK)
}

// StartProcess starts the app's dev server and returns the parsed response.
func (app *TestApp) StartProcess(t *testing.T, token string, appID int64) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, fmt.Sprintf("/process/%d/start", appID), token, nil, http.StatusOK)
}

// StopProcess stops the app's dev server and returns the parsed response.
func (app *TestApp) StopProcess(t *testing.T, token string, appID int64) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, fmt.Sprintf("/process/%d/stop", appID), token, nil, http.StatusOK)
}

// ProcessStatus returns the app's dev-server status.
func (app *TestApp) ProcessStatus(t *testing.T, token string, appID int64) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, fmt.Sprintf("/process/%d/status", appID), token, http.StatusOK)
}

func (app *TestApp) postJSON(t *testing.T, path, token string, body interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.doJSON(t, http.MethodPost, path, token, body, expectedStatus)
}

func (app *TestApp) putJSON(t *testing.T, path, token string, body interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.doJSON(t, http.MethodPut, path, token, body, expectedStatus)
}

func (app *TestApp) patchJSON(t *testing.T, path, token string, body interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.doJSON(t, http.MethodPatch, path, token, body, expectedStatus)
}

func (app *TestApp) getJSON(t *testing.T, path, token string, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.doJSON(t, http.MethodGet, path, token, nil, expectedStatus)
}

func (app *TestApp) doJSON(t *testing.T, method, path, token string, body interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()
	status, raw := app.request(t, method, path, token, body)
	require.Equal(t, expectedStatus, status, "%s %s: unexpected status, body: %s", method, path, raw)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &result), "%s %s: invalid JSON body", method, path)
	return result
}

func (app *TestApp) getJSONArray(t *testing.T, path, token string, expectedStatus int) []interface{} {
	t.Helper()
	status, raw := app.request(t, http.MethodGet, path, token, nil)
	require.Equal(t, expectedStatus, status, "GET %s: unexpected status, body: %s", path, raw)
	var result []interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &result), "GET %s: invalid JSON body", path)
	return result
}

// request performs one API call and returns the status code and raw body.
// Error-path tests use it directly to assert on status and message.
func (app *TestApp) request(t *testing.T, method, path, token string, body interface{}) (int, string) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

// ────────────────────────────────────────────────────────────
// SSE Generation Stream Helpers
// ────────────────────────────────────────────────────────────

// SSEFrame is one parsed generation frame.
type SSEFrame map[string]interface{}

// Type returns the frame's type field.
func (f SSEFrame) Type() string {
	s, _ := f["type"].(string)
	return s
}

// Str returns a string field of the frame.
func (f SSEFrame) Str(key string) string {
	s, _ := f[key].(string)
	return s
}

// Message returns the frame's message object (message and end frames carry
// the persisted row there).
func (f SSEFrame) Message() map[string]interface{} {
	m, _ := f["message"].(map[string]interface{})
	return m
}

// GenerationStream is one in-flight POST /stream/{chatId} response, with
// frames collected by a background reader.
type GenerationStream struct {
	Status int // HTTP status; frames flow only on 200

	mu     sync.Mutex
	frames []SSEFrame
	body   string // raw body for non-200 responses
	done   chan struct{}
}

// Frames returns a snapshot of all frames received so far.
func (s *GenerationStream) Frames() []SSEFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SSEFrame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Body returns the response body of a non-streaming (error) response.
func (s *GenerationStream) Body() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body
}

// WaitForType blocks until a frame of the given type arrives and returns it.
func (s *GenerationStream) WaitForType(t *testing.T, frameType string, timeout time.Duration) SSEFrame {
	t.Helper()
	var found SSEFrame
	require.Eventually(t, func() bool {
		for _, f := range s.Frames() {
			if f.Type() == frameType {
				found = f
				return true
			}
		}
		return false
	}, timeout, 25*time.Millisecond, "no %q frame arrived (have %v)", frameType, frameTypes(s.Frames()))
	return found
}

// StreamID blocks until the streamId frame arrives and returns the id.
func (s *GenerationStream) StreamID(t *testing.T, timeout time.Duration) string {
	t.Helper()
	f := s.WaitForType(t, "streamId", timeout)
	id := f.Str("streamId")
	require.NotEmpty(t, id)
	return id
}

// Wait blocks until the server closes the stream, then returns every frame.
func (s *GenerationStream) Wait(t *testing.T, timeout time.Duration) []SSEFrame {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(timeout):
		t.Fatalf("generation stream still open after %s (frames: %v)", timeout, frameTypes(s.Frames()))
	}
	return s.Frames()
}

// StartGeneration posts a generation request and begins collecting frames in
// the background. The returned stream's Status is already resolved.
func (app *TestApp) StartGeneration(t *testing.T, token string, chatID int64, body map[string]interface{}) *GenerationStream {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		fmt.Sprintf("%s/stream/%d", app.BaseURL, chatID), bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	gs := &GenerationStream{Status: resp.StatusCode, done: make(chan struct{})}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		gs.body = string(raw)
		close(gs.done)
		return gs
	}

	go func() {
		defer close(gs.done)
		defer func() { _ = resp.Body.Close() }()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var frame SSEFrame
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
				continue
			}
			gs.mu.Lock()
			gs.frames = append(gs.frames, frame)
			gs.mu.Unlock()
		}
	}()
	return gs
}

// StreamGenerate runs a generation to completion and returns its frames.
func (app *TestApp) StreamGenerate(t *testing.T, token string, chatID int64, body map[string]interface{}) []SSEFrame {
	t.Helper()
	gs := app.StartGeneration(t, token, chatID, body)
	require.Equal(t, http.StatusOK, gs.Status, "stream rejected: %s", gs.Body())
	return gs.Wait(t, 30*time.Second)
}

// frameTypes projects frames to their type sequence for assertions and
// failure messages.
func frameTypes(frames []SSEFrame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type()
	}
	return out
}

// ────────────────────────────────────────────────────────────
// Process Helpers
// ────────────────────────────────────────────────────────────

// installScript reports its lines on stdout and creates node_modules, which
// is what makes the supervisor skip the install on later starts.
const installScript = `#!/bin/sh
echo "adding packages"
mkdir -p node_modules
echo "install complete"
`

// devServerScript prints one line and parks. The supervisor passes the leased
// port in $PORT; exec keeps the process group signal-able as a single sleep.
const devServerScript = `#!/bin/sh
echo "dev server listening on port $PORT"
exec sleep 300
`

// SeedDevScripts writes the helper scripts the e2e process commands run.
// Used together with WithCommands("sh install.sh", "sh devserver.sh").
func (app *TestApp) SeedDevScripts(t *testing.T, token string, appID int64) {
	t.Helper()
	app.WriteWorkspaceFile(t, token, appID, "install.sh", installScript)
	app.WriteWorkspaceFile(t, token, appID, "devserver.sh", devServerScript)
}

// StartFakeDevServer binds the leased port and answers every request with
// "dev:<path>". The supervised placeholder never listens, so this stands in
// for the vite process when a test needs a live upstream behind the preview
// proxy.
func StartFakeDevServer(t *testing.T, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "dev:%s", r.URL.Path)
	})}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
}

// toInt64 converts a JSON-decoded numeric value (typically float64) to int64.
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
