package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"draftline/internal/app"
	"draftline/internal/config"
	"draftline/internal/coordinator"
	"draftline/internal/db"
	"draftline/internal/domain"
	"draftline/internal/engine"
	"draftline/internal/generate"
	"draftline/internal/migrate"
)

type stubGenerator struct {
	output    string
	questions []string
	err       error
}

func (s *stubGenerator) ContextQuestions(ctx context.Context, prompt string, t domain.ContentType) ([]string, error) {
	return s.questions, s.err
}

func (s *stubGenerator) Content(ctx context.Context, req generate.ContentRequest) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.output, nil
}

type testServer struct {
	URL    string
	Gen    *stubGenerator
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("ws-1")
	e := engine.New(conn, cfg)
	if err := app.SyncConfig(context.Background(), e.Repo, cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	gen := &stubGenerator{output: "data:image/png;base64,AAAA", questions: []string{"Audience?"}}
	coord := coordinator.New(e, gen)
	handler, err := New(Config{
		Engine:      e,
		Coordinator: coord,
		BasePath:    "/v1",
		Auth:        AuthConfig{JWTSecret: "test-secret"},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Gen:    gen,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer, actorID, pin string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]string{
		"actor_id": actorID,
		"pin":      pin,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s status %d: %s", actorID, res.StatusCode, string(data))
	}
	var parsed LoginResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + parsed.Token}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var parsed struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return parsed.Error.Code
}

func TestLoginRejectsWrongPIN(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]string{
		"actor_id": "u1",
		"pin":      "9999",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_credentials" {
		t.Fatalf("code = %s", code)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", res.StatusCode)
	}
	// health stays open
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestRequestWorkflowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	lead := login(t, srv, "u5", "5555")
	designer := login(t, srv, "u1", "1111")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/requests", map[string]string{
		"type":   "image",
		"prompt": "spring banner",
	}, lead)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request status %d: %s", res.StatusCode, string(data))
	}
	var created ProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if created.Status != "initiated" || created.CreatorID != "u1" {
		t.Fatalf("created = %+v", created)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+created.ID+"/attend", map[string]any{
		"context": map[string]string{"tone": "upbeat"},
	}, designer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("attend status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+created.ID+"/submit", nil, designer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+created.ID+"/review", map[string]string{
		"verdict": "approve",
	}, lead)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("review status %d: %s", res.StatusCode, string(data))
	}
	var approved ProjectResponse
	if err := json.Unmarshal(data, &approved); err != nil {
		t.Fatalf("unmarshal approved: %v", err)
	}
	if approved.Status != "approved" {
		t.Fatalf("status = %s", approved.Status)
	}

	// the repository tab now shows it to everyone
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects?tab=repository", nil, designer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedProjects
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != created.ID {
		t.Fatalf("repository = %+v", page.Items)
	}

	// the full log went along
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/"+created.ID, nil, lead)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var full ProjectResponse
	if err := json.Unmarshal(data, &full); err != nil {
		t.Fatalf("unmarshal full: %v", err)
	}
	if len(full.Logs) != 3 {
		t.Fatalf("logs = %d, want 3", len(full.Logs))
	}
}

func TestReviewForbiddenForProducer(t *testing.T) {
	srv := newTestServer(t)
	editor := login(t, srv, "u3", "3333")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/drafts", map[string]any{
		"type":   "text",
		"prompt": "tagline",
	}, editor)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create draft status %d: %s", res.StatusCode, string(data))
	}
	var created ProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal draft: %v", err)
	}

	if res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+created.ID+"/submit", nil, editor); res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+created.ID+"/review", map[string]string{
		"verdict": "approve",
	}, editor)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "forbidden" {
		t.Fatalf("code = %s", code)
	}
}

func TestIllegalTransitionCode(t *testing.T) {
	srv := newTestServer(t)
	lead := login(t, srv, "u5", "5555")
	designer := login(t, srv, "u1", "1111")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/requests", map[string]string{
		"type":   "image",
		"prompt": "banner",
	}, lead)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request status %d: %s", res.StatusCode, string(data))
	}
	var created ProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}

	// an initiated request cannot be submitted
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+created.ID+"/submit", nil, designer)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "illegal_transition" {
		t.Fatalf("code = %s", code)
	}
}

func TestGenerationFailureCode(t *testing.T) {
	srv := newTestServer(t)
	designer := login(t, srv, "u1", "1111")
	srv.Gen.err = generate.ErrNoResult

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/drafts", map[string]any{
		"type":   "image",
		"prompt": "banner",
	}, designer)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "generation_failed" {
		t.Fatalf("code = %s", code)
	}
}

func TestIterationBudgetCodeOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	designer := login(t, srv, "u1", "1111")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/drafts", map[string]any{
		"type":   "image",
		"prompt": "banner",
	}, designer)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create draft status %d: %s", res.StatusCode, string(data))
	}
	var created ProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal draft: %v", err)
	}
	for i := 0; i < 3; i++ {
		res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+created.ID+"/iterate", map[string]string{
			"instruction": "tweak",
		}, designer)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("iterate %d status %d: %s", i+1, res.StatusCode, string(data))
		}
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+created.ID+"/iterate", map[string]string{
		"instruction": "tweak",
	}, designer)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "budget_exhausted" {
		t.Fatalf("code = %s", code)
	}
}
