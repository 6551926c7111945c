package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfaccess/internal/audit"
	"github.com/nikhilbhutani/pdfaccess/internal/llm"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/remediation"
)

type chatterMock struct {
	ChatFunc func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)

	mu    sync.Mutex
	calls []llm.ChatRequest
}

func (m *chatterMock) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	return m.ChatFunc(ctx, req)
}

func (m *chatterMock) ChatCalls() []llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.ChatRequest(nil), m.calls...)
}

func replying(content string) *chatterMock {
	return &chatterMock{ChatFunc: func(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Provider: "openai", Model: "gpt-4o-mini", Content: content}, nil
	}}
}

func request(t models.IssueType, c remediation.Context) remediation.Request {
	return remediation.Request{
		IssueID:    uuid.New(),
		DocumentID: uuid.New(),
		IssueType:  t,
		WCAG:       "1.1.1",
		Context:    c,
	}
}

func TestGenerate_AltText(t *testing.T) {
	t.Parallel()

	gw := replying(`"Image of a bar chart comparing 2023 and 2024 revenue"`)
	svc := NewService(gw, DefaultConfig())

	resp, err := svc.Generate(context.Background(), request(models.IssueMissingAltText, remediation.Context{
		Page:            3,
		ImageCaption:    "Figure 2: Revenue",
		SurroundingText: "Revenue grew by 12 percent.",
	}))
	require.NoError(t, err)
	assert.Equal(t, "A bar chart comparing 2023 and 2024 revenue", resp.Content)

	calls := gw.ChatCalls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.False(t, req.JSON)
	assert.Equal(t, 0.3, req.Temperature)
	assert.Equal(t, 150, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "Image on page 3")
	assert.Contains(t, req.Messages[1].Content, "Figure 2: Revenue")
	assert.Contains(t, req.Messages[1].Content, "Revenue grew by 12 percent.")
}

func TestGenerate_AltTextIsClipped(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 60)
	svc := NewService(replying(long), DefaultConfig())

	resp, err := svc.Generate(context.Background(), request(models.IssueMissingAltText, remediation.Context{SurroundingText: "x"}))
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(resp.Content)), 125)
	assert.False(t, strings.HasSuffix(resp.Content, " "))
}

func TestGenerate_TableHeadersReturnsCompactJSON(t *testing.T) {
	t.Parallel()

	gw := replying("```json\n{\n  \"headers\": [\"Year\", \"Revenue\"],\n  \"caption\": \"Revenue by year\"\n}\n```")
	svc := NewService(gw, DefaultConfig())

	resp, err := svc.Generate(context.Background(), request(models.IssueTableHeaders, remediation.Context{
		Page:  1,
		Table: [][]string{{"Year", "Revenue"}, {"2023", "10"}, {"2024", "12"}},
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"headers":["Year","Revenue"],"caption":"Revenue by year"}`, resp.Content)

	req := gw.ChatCalls()[0]
	assert.True(t, req.JSON)
	assert.Contains(t, req.Messages[1].Content, "Year | Revenue\n2023 | 10\n2024 | 12")
}

func TestGenerate_MalformedJSON(t *testing.T) {
	t.Parallel()

	svc := NewService(replying("headers: Year, Revenue"), DefaultConfig())

	_, err := svc.Generate(context.Background(), request(models.IssueHeadingStructure, remediation.Context{
		Headings: []models.HeadingDescriptor{{Level: 1, Text: "Intro"}, {Level: 3, Text: "Detail"}},
	}))
	require.ErrorIs(t, err, ErrMalformedJSON)
}

func TestGenerate_TruncatedJSONIsRejected(t *testing.T) {
	t.Parallel()

	gw := &chatterMock{ChatFunc: func(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Content: `{"headings": [{"level": 1, "text": "Intro"}`, Truncated: true}, nil
	}}
	svc := NewService(gw, DefaultConfig())

	_, err := svc.Generate(context.Background(), request(models.IssueHeadingStructure, remediation.Context{
		Headings: []models.HeadingDescriptor{{Level: 1, Text: "Intro"}, {Level: 3, Text: "Detail"}},
	}))
	require.ErrorIs(t, err, ErrTruncated)
}

func TestGenerate_TruncatedProseIsClipped(t *testing.T) {
	t.Parallel()

	gw := &chatterMock{ChatFunc: func(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Content: "Download the annual report", Truncated: true}, nil
	}}
	svc := NewService(gw, DefaultConfig())

	resp, err := svc.Generate(context.Background(), request(models.IssueLinkText, remediation.Context{
		LinkText:        "click here",
		SurroundingText: "For details click here.",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Download the annual report", resp.Content)
}

func TestGenerate_LogsUsage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	usage := audit.NewMemory()
	calls := 0
	gw := &chatterMock{ChatFunc: func(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
		calls++
		switch calls {
		case 1:
			return &llm.ChatResponse{Provider: "openai", Model: "gpt-4o-mini", Content: "Quarterly revenue chart",
				InputTokens: 120, OutputTokens: 8, CostUSD: 0.0002, LatencyMs: 340}, nil
		case 2:
			return &llm.ChatResponse{Provider: "openai", Model: "gpt-4o-mini", Content: `{"headings": [`,
				InputTokens: 200, OutputTokens: 400, CostUSD: 0.0004, Truncated: true}, nil
		default:
			return nil, errors.New("provider down")
		}
	}}
	svc := NewService(gw, DefaultConfig()).WithUsageLog(usage)

	_, err := svc.Generate(ctx, request(models.IssueMissingAltText, remediation.Context{Page: 1}))
	require.NoError(t, err)
	_, err = svc.Generate(ctx, request(models.IssueHeadingStructure, remediation.Context{
		Headings: []models.HeadingDescriptor{{Level: 2, Text: "Intro"}},
	}))
	require.ErrorIs(t, err, ErrTruncated)
	_, err = svc.Generate(ctx, request(models.IssueMissingAltText, remediation.Context{Page: 1}))
	require.Error(t, err)

	summary, err := usage.UsageSummary(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, summary, 1, "a failed call has no usage to record")
	assert.Equal(t, 2, summary[0].TotalCalls)
	assert.Equal(t, 728, summary[0].TotalTokens)
	assert.InDelta(t, 0.0006, summary[0].TotalCostUSD, 1e-9)
}

func TestGenerate_Language(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr error
	}{
		{name: "canonicalised", reply: "en-us", want: "en-US"},
		{name: "first token only", reply: "de\n", want: "de"},
		{name: "trailing period", reply: "en-US.", want: "en-US"},
		{name: "labelled", reply: "Language: en-US", want: "en-US"},
		{name: "underscore", reply: "pt_BR", want: "pt-BR"},
		{name: "empty", reply: "  ", want: ""},
		{name: "garbage", reply: "???", wantErr: ErrInvalidLanguage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := NewService(replying(tc.reply), DefaultConfig())

			resp, err := svc.Generate(context.Background(), request(models.IssueMissingLanguage, remediation.Context{TextSample: "Hello world"}))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.Content)
		})
	}
}

func TestGenerate_GatewayErrorKeepsCause(t *testing.T) {
	t.Parallel()

	gw := &chatterMock{ChatFunc: func(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, context.DeadlineExceeded
	}}
	svc := NewService(gw, DefaultConfig())

	_, err := svc.Generate(context.Background(), request(models.IssueLinkText, remediation.Context{LinkText: "click here"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGenerate_UnknownTypeUsesFallbackPrompt(t *testing.T) {
	t.Parallel()

	gw := replying("Add a text equivalent.")
	cfg := DefaultConfig()
	cfg.Provider = "anthropic"
	cfg.Model = "claude-3-5-haiku-latest"
	svc := NewService(gw, cfg)

	resp, err := svc.Generate(context.Background(), request("color_contrast", remediation.Context{Description: "Low contrast text"}))
	require.NoError(t, err)
	assert.Equal(t, "Add a text equivalent.", resp.Content)

	req := gw.ChatCalls()[0]
	assert.Equal(t, "anthropic", req.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", req.Model)
	assert.Contains(t, req.Messages[1].Content, "Low contrast text")
	assert.Contains(t, req.Messages[1].Content, "Page document text")
}

func TestPromptsRenderWithAllVariables(t *testing.T) {
	t.Parallel()

	vars := variables(remediation.Request{})
	for typ, p := range prompts {
		_, err := render(p.System, vars)
		assert.NoError(t, err, typ)
		_, err = render(p.User, vars)
		assert.NoError(t, err, typ)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	out, err := render("Hello {{name}}, page {{page}}", map[string]string{"name": "Ada", "page": "2"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, page 2", out)

	_, err = render("{{a}} {{b}}", map[string]string{"a": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b")
}
