// Package llm is a rule-generation collaborator backed by an
// OpenAI-compatible chat completions endpoint.
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

	"github.com/alfredjeanlab/odrlfrag/internal/model"
	"github.com/alfredjeanlab/odrlfrag/internal/policy"
)

const (
	DefaultModel       = "gpt-4"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 2000
)

const systemPrompt = "You are an expert in ODRL and business process management."

// ErrNoRuleArray is returned when the reply has no JSON array in it.
var ErrNoRuleArray = errors.New("reply contains no JSON array")

// APIError is a non-2xx response from the endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm endpoint returned %d: %s", e.StatusCode, e.Message)
}

// Client calls POST {baseURL}/chat/completions. It implements
// policy.Collaborator.
type Client struct {
	baseURL     string
	token       string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

var _ policy.Collaborator = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithModel sets the model name sent with each request.
func WithModel(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.model = name
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// New creates a client for the given base URL (e.g.
// "https://api.openai.com/v1"). When token is non-empty it is sent as a
// bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		httpClient:  &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// GenerateRules asks the model for candidate rules. The caller bounds the
// call through ctx and validates every returned rule.
func (c *Client) GenerateRules(ctx context.Context, req policy.Request) ([]model.PolicyRule, error) {
	prompt, err := Prompt(req)
	if err != nil {
		return nil, err
	}
	body := completionRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	var resp completionResponse
	if err := c.doJSON(ctx, "/chat/completions", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("reply has no choices")
	}
	return ParseRules(resp.Choices[0].Message.Content)
}

// Prompt renders the user message for req.
func Prompt(req policy.Request) (string, error) {
	ctxJSON, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling request context: %w", err)
	}
	var b strings.Builder
	if req.ProcessWide() {
		fmt.Fprintf(&b, "Generate process-wide ODRL rules for the business process %q.\n", req.ProcessName)
		b.WriteString("Leave target_activity_id empty; rules apply to the whole process.\n")
	} else {
		fmt.Fprintf(&b, "Generate ODRL rules for activity %q (%s) in fragment %s of the business process %q.\n",
			req.ActivityName, req.ActivityID, req.FragmentID, req.ProcessName)
		fmt.Fprintf(&b, "Every rule must target activity %q.\n", req.ActivityID)
	}
	b.WriteString("\nContext:\n")
	b.Write(ctxJSON)
	b.WriteString(`

Return only a JSON array of rules with this structure:
[
  {
    "target_activity_id": "activity_id",
    "rule_type": "permission|prohibition|obligation",
    "action": "execute|read|modify|notify|log",
    "assignee": "role:<name>",
    "constraints": [
      {"constraint_type": "temporal", "operator": "lteq", "value": "24h"}
    ]
  }
]
Operators are eq, neq, lt, lteq, gt, gteq and in. Use realistic roles and
business constraints.
`)
	return b.String(), nil
}

// ParseRules extracts the JSON array from a model reply. Text around the
// array, such as a code fence, is ignored.
func ParseRules(content string) ([]model.PolicyRule, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, ErrNoRuleArray
	}
	var rules []model.PolicyRule
	if err := json.Unmarshal([]byte(content[start:end+1]), &rules); err != nil {
		return nil, fmt.Errorf("decoding rule array: %w", err)
	}
	return rules, nil
}

func (c *Client) doJSON(ctx context.Context, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
