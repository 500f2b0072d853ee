package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/faultmatch/core/internal/domain"
)

func fakePickerServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/completions":
			resp := chatResponse{Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: content}}}}
			_ = json.NewEncoder(w).Encode(resp)
		case "/models":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func candidates() []CandidateInput {
	return []CandidateInput{
		{ID: "a", Text: "刹车异响", System: "制动系统", Part: "刹车片"},
		{ID: "b", Text: "发动机抖动", System: "发动机", Part: "曲轴"},
	}
}

func TestPick_ValidChosenID_ReturnsDecision(t *testing.T) {
	srv := fakePickerServer(t, `{"chosen_id":"a","confidence":0.9,"reason":"matches brake noise"}`)
	defer srv.Close()

	p := NewOpenAIPicker(Config{APIBase: srv.URL, Model: "test-model"})
	d, err := p.Pick(context.Background(), "刹车有异响", candidates(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ChosenID != "a" {
		t.Errorf("chosen id = %q, want a", d.ChosenID)
	}
	if d.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", d.Confidence)
	}
}

func TestPick_ChosenIDNotInSet_DegradesToUnknown(t *testing.T) {
	srv := fakePickerServer(t, `{"chosen_id":"ghost","confidence":0.9,"reason":"hallucinated"}`)
	defer srv.Close()

	p := NewOpenAIPicker(Config{APIBase: srv.URL, Model: "test-model"})
	d, err := p.Pick(context.Background(), "query", candidates(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ChosenID != "UNKNOWN" {
		t.Errorf("chosen id = %q, want UNKNOWN for out-of-set id", d.ChosenID)
	}
	if d.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", d.Confidence)
	}
	if d.Reason != "llm parse failure" {
		t.Errorf("reason = %q, want llm parse failure", d.Reason)
	}
}

func TestPick_LiteralUnknown_PassesThrough(t *testing.T) {
	srv := fakePickerServer(t, `{"chosen_id":"UNKNOWN","confidence":0,"reason":"no clear match"}`)
	defer srv.Close()

	p := NewOpenAIPicker(Config{APIBase: srv.URL, Model: "test-model"})
	d, err := p.Pick(context.Background(), "query", candidates(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ChosenID != "UNKNOWN" {
		t.Errorf("chosen id = %q, want UNKNOWN", d.ChosenID)
	}
	if d.Reason != "no clear match" {
		t.Errorf("reason = %q, want no clear match", d.Reason)
	}
}

func TestPick_MalformedJSON_DegradesToUnknownParseFailure(t *testing.T) {
	srv := fakePickerServer(t, `not json at all`)
	defer srv.Close()

	p := NewOpenAIPicker(Config{APIBase: srv.URL, Model: "test-model"})
	d, err := p.Pick(context.Background(), "query", candidates(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ChosenID != "UNKNOWN" {
		t.Errorf("chosen id = %q, want UNKNOWN on malformed response", d.ChosenID)
	}
	if d.Reason != "llm parse failure" {
		t.Errorf("reason = %q, want llm parse failure", d.Reason)
	}
}

func TestPick_ConfidenceOutOfRange_DegradesToUnknown(t *testing.T) {
	srv := fakePickerServer(t, `{"chosen_id":"a","confidence":1.5,"reason":"overclaiming"}`)
	defer srv.Close()

	p := NewOpenAIPicker(Config{APIBase: srv.URL, Model: "test-model"})
	d, err := p.Pick(context.Background(), "query", candidates(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ChosenID != "UNKNOWN" {
		t.Errorf("chosen id = %q, want UNKNOWN for out-of-range confidence", d.ChosenID)
	}
}

func TestPick_UnreachableServer_DegradesToUnknown(t *testing.T) {
	p := NewOpenAIPicker(Config{APIBase: "http://127.0.0.1:1", Model: "test-model"})
	d, err := p.Pick(context.Background(), "query", candidates(), Options{Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ChosenID != "UNKNOWN" {
		t.Errorf("chosen id = %q, want UNKNOWN on unreachable server", d.ChosenID)
	}
}

func TestPick_NoCandidates_ReturnsUnknownWithoutCallingServer(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := NewOpenAIPicker(Config{APIBase: srv.URL, Model: "test-model"})
	d, err := p.Pick(context.Background(), "query", nil, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ChosenID != "UNKNOWN" {
		t.Errorf("chosen id = %q, want UNKNOWN", d.ChosenID)
	}
	if called {
		t.Error("expected no HTTP call for empty candidate set")
	}
}

func TestPick_CachesRepeatedQuery(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		resp := chatResponse{Choices: []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: `{"chosen_id":"a","confidence":0.8,"reason":"x"}`}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAIPicker(Config{APIBase: srv.URL, Model: "test-model"})
	ctx := context.Background()
	d1, _ := p.Pick(ctx, "same query", candidates(), DefaultOptions())
	d2, _ := p.Pick(ctx, "same query", candidates(), DefaultOptions())

	if calls != 1 {
		t.Errorf("expected 1 HTTP call due to caching, got %d", calls)
	}
	if d1.ChosenID != d2.ChosenID {
		t.Errorf("cached decision mismatch: %v vs %v", d1, d2)
	}
}

func TestPick_TruncatesCandidateCountAndLength(t *testing.T) {
	var receivedPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) > 0 {
			receivedPrompt = req.Messages[0].Content
		}
		resp := chatResponse{Choices: []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: `{"chosen_id":"UNKNOWN","confidence":0,"reason":"none"}`}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	many := make([]CandidateInput, 10)
	for i := range many {
		many[i] = CandidateInput{ID: fmt.Sprintf("c%d", i), Text: strings.Repeat("x", 1000)}
	}

	p := NewOpenAIPicker(Config{APIBase: srv.URL, Model: "test-model"})
	_, err := p.Pick(context.Background(), "query", many, Options{MaxCandidates: 2, MaxCandidateLen: 10, MaxQueryLen: 50, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Count(receivedPrompt, "id=c") != 2 {
		t.Errorf("expected exactly 2 candidates in prompt, got prompt: %s", receivedPrompt)
	}
}

func TestAvailable_ReachableServer_ReturnsTrue(t *testing.T) {
	srv := fakePickerServer(t, "")
	defer srv.Close()

	p := NewOpenAIPicker(Config{APIBase: srv.URL})
	if !p.Available(context.Background()) {
		t.Error("expected Available to return true for reachable server")
	}
}

func TestAvailable_UnreachableServer_ReturnsFalse(t *testing.T) {
	p := NewOpenAIPicker(Config{APIBase: "http://127.0.0.1:1"})
	if p.Available(context.Background()) {
		t.Error("expected Available to return false for unreachable server")
	}
}

func TestLLMDecision_HoldsChosenID(t *testing.T) {
	dec := domain.LLMDecision{ChosenID: "a", Confidence: 0.5, Reason: "x"}
	if dec.ChosenID != "a" {
		t.Errorf("sanity check failed")
	}
}

func TestNew_EmptyAPIBase_ReturnsNil(t *testing.T) {
	if New("", "", "") != nil {
		t.Error("expected nil picker for empty api base")
	}
}

func TestNew_WithAPIBase_ReturnsPicker(t *testing.T) {
	p := New("http://localhost:1234/v1", "key", "model")
	if p == nil {
		t.Error("expected non-nil picker")
	}
}
