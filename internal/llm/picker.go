// Package llm implements the closed-set picker: given a query and a
// bounded set of candidate cases, it asks an OpenAI-compatible chat
// completion endpoint to choose exactly one candidate id (or UNKNOWN), and
// enforces that constraint in code rather than trusting the model's output.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/faultmatch/core/internal/domain"
	coreerrors "github.com/faultmatch/core/internal/errors"
)

// Defaults for the picker's input bounds and timeout, per spec §4.10.
const (
	DefaultMaxCandidates   = 5
	DefaultMaxCandidateLen = 500
	DefaultMaxQueryLen     = 200
	DefaultTimeout         = 20 * time.Second
	DefaultCacheSize       = 2000

	unknownID = "UNKNOWN"
)

// errMalformedResponse marks a chat response that arrived but could not be
// parsed into a picker response.
var errMalformedResponse = errors.New("malformed llm response")

// CandidateInput is the per-candidate information submitted to the LLM.
type CandidateInput struct {
	ID     string
	Text   string
	System string
	Part   string
}

// Options bounds one Pick call's inputs.
type Options struct {
	MaxCandidates   int
	MaxCandidateLen int
	MaxQueryLen     int
	Timeout         time.Duration
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxCandidates:   DefaultMaxCandidates,
		MaxCandidateLen: DefaultMaxCandidateLen,
		MaxQueryLen:     DefaultMaxQueryLen,
		Timeout:         DefaultTimeout,
	}
}

// Picker chooses exactly one candidate id from a closed set, or UNKNOWN.
type Picker interface {
	Pick(ctx context.Context, query string, candidates []CandidateInput, opts Options) (domain.LLMDecision, error)
	Available(ctx context.Context) bool
	Close() error
}

// Config configures an OpenAIPicker.
type Config struct {
	APIBase   string
	APIKey    string
	Model     string
	CacheSize int
}

// OpenAIPicker calls an OpenAI-compatible /chat/completions endpoint and
// validates the response against the closed candidate set before it is
// allowed to flow into domain.LLMDecision.ChosenID.
type OpenAIPicker struct {
	client  *http.Client
	config  Config
	cache   *lru.Cache[string, domain.LLMDecision]
	breaker *coreerrors.CircuitBreaker
}

var _ Picker = (*OpenAIPicker)(nil)

// NewOpenAIPicker builds an OpenAIPicker. cfg.CacheSize <= 0 uses
// DefaultCacheSize.
func NewOpenAIPicker(cfg Config) *OpenAIPicker {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, domain.LLMDecision](cfg.CacheSize)

	return &OpenAIPicker{
		client: &http.Client{},
		config: cfg,
		cache:  cache,
		breaker: coreerrors.NewCircuitBreaker(
			"llm-picker",
			coreerrors.WithMaxFailures(5),
			coreerrors.WithResetTimeout(30*time.Second),
		),
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// pickerResponse is the structured JSON the prompt instructs the model to
// emit.
type pickerResponse struct {
	ChosenID   string  `json:"chosen_id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Pick truncates query and candidates to the bounds in opts, caps the
// candidate count, issues one chat completion request within a bounded
// timeout, and validates the result: chosen_id must be one of the
// submitted ids or the literal "UNKNOWN", and confidence must be in
// [0,1]. Any violation — network failure, malformed JSON, an id outside
// the submitted set — degrades to UNKNOWN with confidence 0 rather than
// letting an unconstrained value reach the caller.
func (p *OpenAIPicker) Pick(ctx context.Context, query string, candidates []CandidateInput, opts Options) (domain.LLMDecision, error) {
	opts = applyDefaults(opts)

	query = truncate(query, opts.MaxQueryLen)
	if len(candidates) > opts.MaxCandidates {
		candidates = candidates[:opts.MaxCandidates]
	}
	bounded := make([]CandidateInput, len(candidates))
	for i, c := range candidates {
		bounded[i] = CandidateInput{
			ID:     c.ID,
			Text:   truncate(c.Text, opts.MaxCandidateLen),
			System: c.System,
			Part:   c.Part,
		}
	}

	if len(bounded) == 0 {
		return domain.LLMDecision{ChosenID: unknownID, Confidence: 0, Reason: "no candidates submitted"}, nil
	}

	cacheKey := buildCacheKey(query, bounded)
	if cached, ok := p.cache.Get(cacheKey); ok {
		return cached, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var raw pickerResponse
	breakerErr := p.breaker.Execute(func() error {
		var callErr error
		raw, callErr = p.callChat(timeoutCtx, query, bounded)
		return callErr
	})
	if breakerErr != nil {
		if errors.Is(breakerErr, errMalformedResponse) {
			return unknownDecision("llm parse failure"), nil
		}
		return unknownDecision("llm call failed: " + breakerErr.Error()), nil
	}

	decision := validate(raw, bounded)
	p.cache.Add(cacheKey, decision)
	return decision, nil
}

func applyDefaults(opts Options) Options {
	d := DefaultOptions()
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = d.MaxCandidates
	}
	if opts.MaxCandidateLen <= 0 {
		opts.MaxCandidateLen = d.MaxCandidateLen
	}
	if opts.MaxQueryLen <= 0 {
		opts.MaxQueryLen = d.MaxQueryLen
	}
	if opts.Timeout <= 0 {
		opts.Timeout = d.Timeout
	}
	return opts
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func buildCacheKey(query string, candidates []CandidateInput) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(query)))
	for _, c := range candidates {
		b.WriteByte('\x00')
		b.WriteString(c.ID)
	}
	return b.String()
}

func (p *OpenAIPicker) callChat(ctx context.Context, query string, candidates []CandidateInput) (pickerResponse, error) {
	prompt := buildPrompt(query, candidates)

	body, err := json.Marshal(chatRequest{
		Model: p.config.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return pickerResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.APIBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return pickerResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return pickerResponse{}, fmt.Errorf("chat completion request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return pickerResponse{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pickerResponse{}, fmt.Errorf("%w: decode chat response: %v", errMalformedResponse, err)
	}
	if len(result.Choices) == 0 {
		return pickerResponse{}, fmt.Errorf("%w: no choices in chat response", errMalformedResponse)
	}

	var parsed pickerResponse
	if err := json.Unmarshal([]byte(result.Choices[0].Message.Content), &parsed); err != nil {
		return pickerResponse{}, fmt.Errorf("%w: parse picker response: %v", errMalformedResponse, err)
	}
	return parsed, nil
}

func buildPrompt(query string, candidates []CandidateInput) string {
	var b strings.Builder
	b.WriteString("You are choosing exactly one matching fault case for a query, or UNKNOWN if none clearly matches.\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\nCandidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id=%s system=%s part=%s text=%s\n", c.ID, c.System, c.Part, c.Text)
	}
	b.WriteString(`Respond with ONLY a JSON object: {"chosen_id": "<id or UNKNOWN>", "confidence": <0..1>, "reason": "<short reason>"}`)
	return b.String()
}

// validate enforces spec §4.10's closed-set constraint: chosen_id must be
// one of the submitted candidate ids or the literal UNKNOWN; any other
// value, or a malformed/out-of-range confidence, degrades to UNKNOWN.
func validate(raw pickerResponse, candidates []CandidateInput) domain.LLMDecision {
	if raw.ChosenID == "" || raw.ChosenID == unknownID {
		reason := raw.Reason
		if reason == "" {
			reason = "no clear match"
		}
		return domain.LLMDecision{ChosenID: unknownID, Confidence: 0, Reason: reason}
	}

	valid := false
	for _, c := range candidates {
		if c.ID == raw.ChosenID {
			valid = true
			break
		}
	}
	if !valid {
		return unknownDecision("llm parse failure")
	}

	confidence := raw.Confidence
	if confidence < 0 || confidence > 1 {
		return unknownDecision("llm parse failure")
	}

	return domain.LLMDecision{ChosenID: raw.ChosenID, Confidence: confidence, Reason: raw.Reason}
}

func unknownDecision(reason string) domain.LLMDecision {
	return domain.LLMDecision{ChosenID: unknownID, Confidence: 0, Reason: reason}
}

// Available checks whether the configured endpoint is reachable.
func (p *OpenAIPicker) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.APIBase+"/models", nil)
	if err != nil {
		return false
	}
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections when the client has its own
// *http.Transport. The client built by NewOpenAIPicker uses the shared
// default transport, which Close leaves alone.
func (p *OpenAIPicker) Close() error {
	if transport, ok := p.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}
