package meta

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"metamirror/pkg/reqlog"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logDir := t.TempDir()
	c := NewClient(Config{
		BaseURL:     srv.URL,
		AccessToken: "token-123",
		AccountID:   "act_42",
		PageID:      "page_7",
	}, reqlog.New(logDir))
	return c, logDir
}

func TestCallAttachesAccessToken(t *testing.T) {
	var gotToken string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("access_token")
		w.Write([]byte(`{"id":"camp_1"}`))
	}))

	res, err := c.Call(context.Background(), http.MethodPost, "/act_42/campaigns", map[string]string{"name": "x"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if gotToken != "token-123" {
		t.Fatalf("access token not attached, got %q", gotToken)
	}
	if res.ID() != "camp_1" {
		t.Fatalf("id not extracted: %q", res.ID())
	}
}

func TestCallSendsJSONBody(t *testing.T) {
	var gotBody map[string]interface{}
	var gotContentType string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.Write([]byte(`{"id":"camp_1"}`))
	}))

	_, err := c.Call(context.Background(), http.MethodPost, "/act_42/campaigns", map[string]string{"name": "Spring Sale"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if gotContentType != "application/json" {
		t.Fatalf("wrong content type: %q", gotContentType)
	}
	if gotBody["name"] != "Spring Sale" {
		t.Fatalf("body not sent as JSON: %v", gotBody)
	}
}

func TestCallClassifiesStructuredError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid parameter","code":100,"error_subcode":33}}`))
	}))

	_, err := c.Call(context.Background(), http.MethodPost, "/act_42/campaigns", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Message != "Invalid parameter" || apiErr.Code != 100 || apiErr.Subcode != 33 {
		t.Fatalf("envelope not parsed: %+v", apiErr)
	}
	if apiErr.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("status not preserved: %d", apiErr.HTTPStatus)
	}
	if len(apiErr.Body) == 0 {
		t.Fatal("raw error body discarded")
	}
	if apiErr.Transport() {
		t.Fatal("4xx rejection misclassified as transport failure")
	}
}

func TestCallFallsBackToBodyText(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))

	_, err := c.Call(context.Background(), http.MethodGet, "/camp_1", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Message != "upstream unavailable" {
		t.Fatalf("fallback message wrong: %q", apiErr.Message)
	}
	if !apiErr.Transport() {
		t.Fatal("5xx should classify as transport-level")
	}
}

func TestCallTransportFailure(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", AccessToken: "t", AccountID: "act_42"}, nil)

	_, err := c.Call(context.Background(), http.MethodGet, "/camp_1", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.HTTPStatus != 0 || !apiErr.Transport() {
		t.Fatalf("transport failure not classified: %+v", apiErr)
	}
}

func TestEveryCallIsLogged(t *testing.T) {
	c, logDir := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"nope","code":100}}`))
			return
		}
		w.Write([]byte(`{"id":"camp_1"}`))
	}))

	ctx := context.Background()
	if _, err := c.Call(ctx, http.MethodPost, "/act_42/campaigns", map[string]string{"name": "x"}); err != nil {
		t.Fatalf("call: %v", err)
	}
	if _, err := c.Call(ctx, http.MethodGet, "/camp_1", nil); err == nil {
		t.Fatal("expected error call to fail")
	}

	path := filepath.Join(logDir, time.Now().UTC().Format("2006-01-02")+".log")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("request log missing: %v", err)
	}
	defer f.Close()

	var messages []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec reqlog.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("bad log line: %v", err)
		}
		messages = append(messages, rec.Message)
	}

	// request+response for the success, request+error for the failure
	if len(messages) != 4 {
		t.Fatalf("expected 4 log records, got %d: %v", len(messages), messages)
	}
	if messages[1] != "API response: POST /act_42/campaigns" {
		t.Fatalf("unexpected response record: %q", messages[1])
	}
	if messages[3] != "API error: GET /camp_1" {
		t.Fatalf("unexpected error record: %q", messages[3])
	}
}

func TestLogFailureDoesNotFailCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"camp_1"}`))
	}))
	t.Cleanup(srv.Close)

	// Point the log at a path that cannot be a directory.
	blocked := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	c := NewClient(Config{BaseURL: srv.URL, AccessToken: "t", AccountID: "act_42"}, reqlog.New(filepath.Join(blocked, "logs")))

	res, err := c.Call(context.Background(), http.MethodPost, "/act_42/campaigns", nil)
	if err != nil {
		t.Fatalf("call should succeed despite log failure: %v", err)
	}
	if res.ID() != "camp_1" {
		t.Fatalf("unexpected result: %q", res.ID())
	}
}

func TestCreateCreativeShape(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.Write([]byte(`{"id":"creative_1"}`))
	}))

	res, err := c.CreateCreative(context.Background(), CreativeSpec{
		Title:   "Big Deals",
		Content: "Shop now",
		Link:    "https://example.com",
	})
	if err != nil {
		t.Fatalf("create creative: %v", err)
	}
	if res.ID() != "creative_1" {
		t.Fatalf("creative id: %q", res.ID())
	}
	if gotPath != "/act_42/adcreatives" {
		t.Fatalf("wrong endpoint: %q", gotPath)
	}

	spec, ok := gotBody["object_story_spec"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing object_story_spec: %v", gotBody)
	}
	if spec["page_id"] != "page_7" {
		t.Fatalf("page id not set: %v", spec)
	}
	linkData := spec["link_data"].(map[string]interface{})
	if linkData["name"] != "Big Deals" || linkData["message"] != "Shop now" {
		t.Fatalf("link data wrong: %v", linkData)
	}
	if _, present := linkData["picture"]; present {
		t.Fatal("picture should be omitted without a media url")
	}
}
