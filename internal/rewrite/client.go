// Package rewrite calls the document rewrite service that applies an approved
// remediation to the stored PDF.
package rewrite

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nikhilbhutani/pdfaccess/internal/remediation"
)

const maxErrorBody = 4 << 10

type Config struct {
	URL string
	// Secret signs request bodies in X-Rewrite-Signature when set.
	Secret  string
	Timeout time.Duration
}

type Client struct {
	url        string
	secret     string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		secret:     cfg.Secret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ remediation.Rewriter = (*Client)(nil)

// Apply posts the remediation to the rewrite service. Transport failures and
// non-2xx answers are returned as errors; a well-formed {success:false} answer
// is a result, not an error.
func (c *Client) Apply(ctx context.Context, req remediation.RewriteRequest) (remediation.RewriteResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return remediation.RewriteResult{}, fmt.Errorf("marshal rewrite request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return remediation.RewriteResult{}, fmt.Errorf("create rewrite request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Issue-ID", req.IssueID.String())
	if c.secret != "" {
		httpReq.Header.Set("X-Rewrite-Signature", sign(payload, c.secret))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return remediation.RewriteResult{}, fmt.Errorf("rewrite request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return remediation.RewriteResult{}, fmt.Errorf("rewrite service returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out remediation.RewriteResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return remediation.RewriteResult{}, fmt.Errorf("decode rewrite response: %w", err)
	}

	slog.Info("rewrite applied",
		"document_id", req.DocumentID,
		"issue_id", req.IssueID,
		"success", out.Success,
		"took", time.Since(start),
	)
	return out, nil
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}
