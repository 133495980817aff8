package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"freelance-apply-pipeline/internal/domain"
)

// serviceClient is the shared plumbing for the sidecar services (scraper,
// extractor, generator, submitter). All of them speak JSON over POST/GET.
type serviceClient struct {
	base   string
	client *http.Client
}

func newServiceClient(base string, timeout time.Duration) serviceClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return serviceClient{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (c serviceClient) postJSON(ctx context.Context, path string, payload, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c serviceClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c serviceClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string { return fmt.Sprintf("http %d", e.code) }

// classifyHTTPError maps a sidecar failure onto the retry policy. Transport
// errors and 429/5xx responses are retried; anything else means the request
// itself is wrong and retrying cannot help.
func classifyHTTPError(stage string, err error) error {
	if se, ok := err.(*httpStatusError); ok {
		if se.code == http.StatusTooManyRequests || se.code >= 500 {
			return domain.Transient(stage, err)
		}
		return domain.Fatal(stage, err)
	}
	return domain.Transient(stage, err)
}
