// Package generation produces remediation content for an issue by prompting an
// LLM through the gateway.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/nikhilbhutani/pdfaccess/internal/llm"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/remediation"
)

var (
	ErrMalformedJSON   = errors.New("model returned malformed JSON")
	ErrInvalidLanguage = errors.New("model returned an invalid language tag")
	ErrTruncated       = errors.New("model output hit the token limit")
)

// Chatter is the slice of the LLM gateway the service needs.
type Chatter interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

type Config struct {
	Provider    string // empty uses the gateway default
	Model       string
	Temperature float64
}

func DefaultConfig() Config {
	return Config{Temperature: 0.3}
}

// UsageLogger persists token usage and cost per completion.
type UsageLogger interface {
	LogLLMUsage(ctx context.Context, record models.LLMUsageLog) error
}

type Service struct {
	gateway Chatter
	usage   UsageLogger
	cfg     Config
}

func NewService(gateway Chatter, cfg Config) *Service {
	return &Service{gateway: gateway, cfg: cfg}
}

func (s *Service) WithUsageLog(u UsageLogger) *Service {
	s.usage = u
	return s
}

var _ remediation.Generator = (*Service)(nil)

func (s *Service) Generate(ctx context.Context, req remediation.Request) (remediation.Response, error) {
	p := promptFor(req.IssueType)
	vars := variables(req)

	system, err := render(p.System, vars)
	if err != nil {
		return remediation.Response{}, fmt.Errorf("render system prompt: %w", err)
	}
	user, err := render(p.User, vars)
	if err != nil {
		return remediation.Response{}, fmt.Errorf("render user prompt: %w", err)
	}

	resp, err := s.gateway.Chat(ctx, llm.ChatRequest{
		Provider: s.cfg.Provider,
		Model:    s.cfg.Model,
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   p.MaxTokens,
		JSON:        p.JSON,
	})
	if err != nil {
		return remediation.Response{}, fmt.Errorf("generate %s remediation: %w", req.IssueType, err)
	}

	slog.Info("remediation content generated",
		"issue_id", req.IssueID,
		"issue_type", req.IssueType,
		"provider", resp.Provider,
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"cost_usd", resp.CostUSD,
		"latency_ms", resp.LatencyMs,
		"truncated", resp.Truncated,
	)
	s.logUsage(ctx, req, resp)

	// Clipping repairs truncated prose but not a cut-off JSON document.
	if resp.Truncated && p.JSON {
		return remediation.Response{}, fmt.Errorf("generate %s remediation: %w", req.IssueType, ErrTruncated)
	}

	content, err := normalize(req.IssueType, p, resp.Content)
	if err != nil {
		return remediation.Response{}, fmt.Errorf("normalize %s remediation: %w", req.IssueType, err)
	}
	return remediation.Response{Content: content}, nil
}

func (s *Service) logUsage(ctx context.Context, req remediation.Request, resp *llm.ChatResponse) {
	if s.usage == nil {
		return
	}
	issueID := req.IssueID
	err := s.usage.LogLLMUsage(context.WithoutCancel(ctx), models.LLMUsageLog{
		IssueID:      &issueID,
		IssueType:    req.IssueType,
		Provider:     resp.Provider,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		TotalTokens:  resp.InputTokens + resp.OutputTokens,
		CostUSD:      resp.CostUSD,
		LatencyMs:    resp.LatencyMs,
		Truncated:    resp.Truncated,
	})
	if err != nil {
		slog.Warn("write LLM usage log", "issue_id", req.IssueID, "error", err)
	}
}

// normalize cleans a raw model answer. An empty result is returned as is and
// left for the state machine to reject.
func normalize(t models.IssueType, p prompt, raw string) (string, error) {
	if p.JSON {
		return compactJSON(raw)
	}

	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSpace(s)

	switch t {
	case models.IssueMissingAltText:
		s = trimImagePrefix(s)
	case models.IssueMissingLanguage:
		if s == "" {
			return "", nil
		}
		tag, ok := findLanguageTag(s)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, s)
		}
		return tag.String(), nil
	}

	if p.MaxRunes > 0 {
		s = clip(s, p.MaxRunes)
	}
	return s, nil
}

// findLanguageTag picks the first word of s that parses as a BCP 47 tag,
// trying hyphenated words before bare ones so "Language: en-US." yields en-US.
func findLanguageTag(s string) (language.Tag, bool) {
	var hyphenated, bare []string
	for _, f := range strings.Fields(s) {
		f = strings.Trim(f, ".,;:!?\"'`()[]")
		switch {
		case f == "":
		case strings.ContainsAny(f, "-_"):
			hyphenated = append(hyphenated, strings.ReplaceAll(f, "_", "-"))
		case len(f) == 2 || len(f) == 3:
			bare = append(bare, f)
		}
	}
	for _, f := range append(hyphenated, bare...) {
		tag, err := language.Parse(f)
		if err == nil && tag != language.Und {
			return tag, true
		}
	}
	return language.Und, false
}

func compactJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}

	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal remediation: %w", err)
	}
	return string(out), nil
}

var imagePrefixes = []string{"image of ", "picture of ", "photo of ", "an image of ", "a picture of "}

func trimImagePrefix(s string) string {
	lower := strings.ToLower(s)
	for _, p := range imagePrefixes {
		if strings.HasPrefix(lower, p) {
			rest := strings.TrimSpace(s[len(p):])
			if rest == "" {
				return s
			}
			r, size := utf8.DecodeRuneInString(rest)
			return strings.ToUpper(string(r)) + rest[size:]
		}
	}
	return s
}

// clip cuts s to at most n runes, preferring the last word boundary.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)[:n]
	cut := string(r)
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:-")
}
