package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konsolai/bridge/internal/session"
)

type fakeSource struct {
	summaries []session.SessionSummary
	details   map[string]*session.SessionDetail

	// resolveAny makes unknown names resolve to a fresh detail, the way
	// the registry sees a just-created tmux session.
	resolveAny bool
}

func (f *fakeSource) ListSessions(_ context.Context) ([]session.SessionSummary, error) {
	return f.summaries, nil
}

func (f *fakeSource) GetSession(_ context.Context, name string) (*session.SessionDetail, error) {
	if d, ok := f.details[name]; ok {
		return d, nil
	}
	if f.resolveAny {
		return &session.SessionDetail{
			SessionSummary: session.SessionSummary{Name: name, State: session.StateStarting},
		}, nil
	}
	return nil, session.ErrNotFound
}

type fakeCtrl struct {
	calls   []string
	capture string
	fail    bool
}

func (f *fakeCtrl) record(call string) error {
	f.calls = append(f.calls, call)
	if f.fail {
		return assert.AnError
	}
	return nil
}

func (f *fakeCtrl) CapturePane(_ context.Context, name string, lines int) (string, error) {
	if err := f.record("capture:" + name); err != nil {
		return "", err
	}
	return f.capture, nil
}

func (f *fakeCtrl) SendKeys(_ context.Context, name, keys string) error {
	return f.record("keys:" + name + ":" + keys)
}

func (f *fakeCtrl) SendText(_ context.Context, name, text string) error {
	return f.record("text:" + name + ":" + text)
}

func (f *fakeCtrl) SendCtrlC(_ context.Context, name string) error {
	return f.record("ctrlc:" + name)
}

func (f *fakeCtrl) KillSession(_ context.Context, name string) error {
	return f.record("kill:" + name)
}

func (f *fakeCtrl) CreateSession(_ context.Context, name, workingDir, command string) error {
	if err := f.record("create:" + name + ":" + command); err != nil {
		return err
	}
	return nil
}

const testSessionName = "konsolai-Default-a1b2c3d4"

func newTestServer(t *testing.T, token string) (*Server, *fakeSource, *fakeCtrl) {
	t.Helper()
	src := &fakeSource{
		summaries: []session.SessionSummary{
			{Name: testSessionName, Profile: "Default", State: session.StateWaitingInput, NeedsAttention: true},
			{Name: "konsolai-Work-deadbeef", Profile: "Work", State: session.StateWorking},
		},
		details: map[string]*session.SessionDetail{
			testSessionName: {
				SessionSummary: session.SessionSummary{
					Name: testSessionName, Profile: "Default", State: session.StateWaitingInput, NeedsAttention: true,
					TokenUsage: session.TokenUsage{InputTokens: 1000, OutputTokens: 500},
				},
			},
		},
	}
	ctrl := &fakeCtrl{capture: "❯ hello\nworld\n"}
	return NewServer(Config{Token: token}, src, ctrl, NewBroadcaster()), src, ctrl
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestListSessions(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec := doRequest(s, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []session.SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, testSessionName, got[0].Name)
	assert.True(t, got[0].NeedsAttention)
}

func TestListSessionsRequiresToken(t *testing.T) {
	s, _, _ := newTestServer(t, "secret")

	rec := doRequest(s, http.MethodGet, "/api/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/sessions?token=wrong", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/sessions?token=secret", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	hdr := httptest.NewRecorder()
	s.Handler().ServeHTTP(hdr, req)
	assert.Equal(t, http.StatusOK, hdr.Code)
}

func TestSessionDetail(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec := doRequest(s, http.MethodGet, "/api/sessions/"+testSessionName, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var detail session.SessionDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, testSessionName, detail.Name)
	assert.Equal(t, session.StateWaitingInput, detail.State)
}

func TestSessionDetailNotFound(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec := doRequest(s, http.MethodGet, "/api/sessions/konsolai-Nope-ffffffff", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body["error"]["code"])
}

func TestPrompt(t *testing.T) {
	s, _, ctrl := newTestServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/sessions/"+testSessionName+"/prompt",
		`{"text":"  run the tests  "}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"text:" + testSessionName + ":run the tests"}, ctrl.calls)
}

func TestPromptValidation(t *testing.T) {
	s, _, ctrl := newTestServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/sessions/"+testSessionName+"/prompt", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/sessions/"+testSessionName+"/prompt", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	long := `{"text":"` + strings.Repeat("a", maxPromptLen+1) + `"}`
	rec = doRequest(s, http.MethodPost, "/api/sessions/"+testSessionName+"/prompt", long)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, ctrl.calls)
}

func TestPromptUnknownSession(t *testing.T) {
	s, _, ctrl := newTestServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/sessions/konsolai-Nope-ffffffff/prompt", `{"text":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, ctrl.calls)
}

func TestControlActions(t *testing.T) {
	s, _, ctrl := newTestServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/sessions/"+testSessionName+"/approve", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/sessions/"+testSessionName+"/deny", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/sessions/"+testSessionName+"/stop", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/sessions/"+testSessionName+"/kill", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, []string{
		"keys:" + testSessionName + ":Enter",
		"keys:" + testSessionName + ":Escape",
		"text:" + testSessionName + ":n",
		"ctrlc:" + testSessionName,
		"kill:" + testSessionName,
	}, ctrl.calls)
}

func TestControlFailureMapsToBadGateway(t *testing.T) {
	s, _, ctrl := newTestServer(t, "")
	ctrl.fail = true

	rec := doRequest(s, http.MethodPost, "/api/sessions/"+testSessionName+"/approve", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTranscript(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec := doRequest(s, http.MethodGet, "/api/sessions/"+testSessionName+"/transcript", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, testSessionName, body["session_name"])
	assert.NotEmpty(t, body["messages"])
}

func TestTokenUsage(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec := doRequest(s, http.MethodGet, "/api/sessions/"+testSessionName+"/token-usage", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1000), body["input_tokens"])
	assert.Equal(t, float64(1500), body["total_tokens"])
	assert.InDelta(t, 0.0105, body["estimated_cost_usd"].(float64), 1e-9)
}

func TestCreateSession(t *testing.T) {
	s, src, ctrl := newTestServer(t, "")
	src.resolveAny = true

	rec := doRequest(s, http.MethodPost, "/api/sessions/new",
		`{"profile":"Work","working_dir":"/tmp","model":"opus"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, ctrl.calls, 1)
	assert.True(t, strings.HasPrefix(ctrl.calls[0], "create:konsolai-Work-"))
	assert.True(t, strings.HasSuffix(ctrl.calls[0], ":claude --model opus"))

	var detail session.SessionDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.True(t, strings.HasPrefix(detail.Name, "konsolai-Work-"))
}

func TestCreateSessionFailure(t *testing.T) {
	s, _, ctrl := newTestServer(t, "")
	ctrl.fail = true

	rec := doRequest(s, http.MethodPost, "/api/sessions/new", `{"profile":"Work"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestVehicleDashboard(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec := doRequest(s, http.MethodGet, "/api/vehicle/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["total_active"])
	assert.Equal(t, float64(1), body["total_needing_attention"])
}

func TestVehicleVoice(t *testing.T) {
	s, _, ctrl := newTestServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/vehicle/voice", `{"text":"approve"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []string{"keys:" + testSessionName + ":Enter"}, ctrl.calls)
}

func TestAndroidAutoSessions(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec := doRequest(s, http.MethodGet, "/api/vehicle/android-auto/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []map[string]any `json:"items"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, "Default-a1b2c3d4", body.Items[0]["title"])
	assert.Equal(t, "ic_warning", body.Items[0]["icon"])
	assert.Equal(t, true, body.Items[0]["needs_attention"])
}

func TestCarPlaySessions(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec := doRequest(s, http.MethodGet, "/api/vehicle/carplay/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, "session_attention", body.Items[0]["image_name"])
	assert.Equal(t, "waiting_input", body.Items[0]["state"])
	assert.Equal(t, "session_working", body.Items[1]["image_name"])
}

func TestSiriShortcutRoutesVoice(t *testing.T) {
	s, _, ctrl := newTestServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/vehicle/carplay/siri-shortcut", `{"text":"approve"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "approved", body["action_taken"])
	assert.Equal(t, []string{"keys:" + testSessionName + ":Enter"}, ctrl.calls)
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t, "secret")

	// Health checks bypass auth.
	rec := doRequest(s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec := doRequest(s, http.MethodDelete, "/api/sessions", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/sessions/"+testSessionName, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
