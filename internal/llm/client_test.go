package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/odrlfrag/internal/fragment"
	"github.com/alfredjeanlab/odrlfrag/internal/model"
	"github.com/alfredjeanlab/odrlfrag/internal/model/modeltest"
	"github.com/alfredjeanlab/odrlfrag/internal/policy"
)

// testHandler captures the incoming request and returns a canned response.
type testHandler struct {
	path   string
	auth   string
	body   completionRequest
	status int
	reply  string
	delay  time.Duration
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.path = r.URL.Path
	h.auth = r.Header.Get("Authorization")
	data, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(data, &h.body)

	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if h.status != 0 {
		w.WriteHeader(h.status)
		_, _ = w.Write([]byte(h.reply))
		return
	}
	resp := map[string]any{
		"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": h.reply}}},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/v1/", "secret", opts...)
}

const fencedReply = "Here are the rules:\n```json\n" + `[
  {"target_activity_id": "review", "rule_type": "permission", "action": "execute", "assignee": "role:auditor",
   "constraints": [{"constraint_type": "temporal", "operator": "lteq", "value": "48h"}]},
  {"rule_type": "obligation", "action": "log", "assignee": "system:audit", "constraints": []}
]` + "\n```\n"

func TestGenerateRules(t *testing.T) {
	h := &testHandler{reply: fencedReply}
	c := newTestClient(t, h, WithModel("gpt-4o"), WithMaxTokens(500))

	rules, err := c.GenerateRules(context.Background(), policy.Request{
		ProcessName:  "Purchase Approval",
		FragmentID:   "gateway-1",
		ActivityID:   "review",
		ActivityName: "Review Request",
	})
	if err != nil {
		t.Fatalf("GenerateRules: %v", err)
	}
	if h.path != "/v1/chat/completions" {
		t.Errorf("path = %q", h.path)
	}
	if h.auth != "Bearer secret" {
		t.Errorf("Authorization = %q", h.auth)
	}
	if h.body.Model != "gpt-4o" || h.body.MaxTokens != 500 || h.body.Temperature != DefaultTemperature {
		t.Errorf("request body = %+v", h.body)
	}
	if len(h.body.Messages) != 2 || h.body.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", h.body.Messages)
	}
	if !strings.Contains(h.body.Messages[1].Content, `"review"`) {
		t.Errorf("prompt does not name the activity:\n%s", h.body.Messages[1].Content)
	}

	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	if rules[0].Assignee != "role:auditor" || rules[0].Constraints[0].Value != "48h" {
		t.Errorf("rules[0] = %+v", rules[0])
	}
	if rules[1].Type != model.RuleObligation || rules[1].TargetActivityID != "" {
		t.Errorf("rules[1] = %+v", rules[1])
	}
}

func TestGenerateRules_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler *testHandler
		check   func(error) bool
	}{
		{
			name:    "api error message",
			handler: &testHandler{status: http.StatusTooManyRequests, reply: `{"error":{"message":"rate limited"}}`},
			check: func(err error) bool {
				var apiErr *APIError
				return errors.As(err, &apiErr) && apiErr.StatusCode == 429 && apiErr.Message == "rate limited"
			},
		},
		{
			name:    "plain error body",
			handler: &testHandler{status: http.StatusBadGateway, reply: "upstream down\n"},
			check: func(err error) bool {
				var apiErr *APIError
				return errors.As(err, &apiErr) && apiErr.Message == "upstream down"
			},
		},
		{
			name:    "no array",
			handler: &testHandler{reply: "I cannot help with that."},
			check:   func(err error) bool { return errors.Is(err, ErrNoRuleArray) },
		},
		{
			name:    "broken array",
			handler: &testHandler{reply: `[{"rule_type": }]`},
			check:   func(err error) bool { return err != nil && strings.Contains(err.Error(), "decoding rule array") },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.handler)
			_, err := c.GenerateRules(context.Background(), policy.Request{ActivityID: "a"})
			if !tc.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPrompt_ProcessWide(t *testing.T) {
	p, err := Prompt(policy.Request{ProcessName: "Claims", ProcessActivities: []string{"Open Claim"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p, "process-wide") || !strings.Contains(p, "Open Claim") {
		t.Errorf("prompt:\n%s", p)
	}
}

func TestParseRules(t *testing.T) {
	rules, err := ParseRules(`[]`)
	if err != nil || len(rules) != 0 {
		t.Errorf("ParseRules([]) = %v, %v", rules, err)
	}
	if _, err := ParseRules("] backwards ["); !errors.Is(err, ErrNoRuleArray) {
		t.Errorf("err = %v, want ErrNoRuleArray", err)
	}
}

// The client plugs into the generator as its collaborator; a slow endpoint
// falls back to templates once the generator's deadline passes.
func TestClientAsCollaborator(t *testing.T) {
	m := modeltest.ApprovalProcess()
	part, err := fragment.Fragment(m, fragment.Options{Strategy: model.StrategyGateway})
	if err != nil {
		t.Fatal(err)
	}
	frag := &part.Fragments[0]

	fast := newTestClient(t, &testHandler{reply: fencedReply})
	g := policy.NewGenerator(m, policy.WithCollaborator(fast))
	rules, prov, err := g.Generate(context.Background(), frag, "review", model.ModeLLM)
	if err != nil {
		t.Fatal(err)
	}
	if prov.Actual != model.SourceLLM || len(rules) != 2 {
		t.Errorf("provenance = %+v, rules = %d", prov, len(rules))
	}

	slow := newTestClient(t, &testHandler{reply: fencedReply, delay: time.Second})
	g = policy.NewGenerator(m, policy.WithCollaborator(slow), policy.WithTimeout(20*time.Millisecond))
	_, prov, err = g.Generate(context.Background(), frag, "review", model.ModeLLM)
	if err != nil {
		t.Fatal(err)
	}
	if !prov.Fallback() || !strings.Contains(prov.FallbackReason, "timed out") {
		t.Errorf("provenance = %+v, want timeout fallback", prov)
	}
}
