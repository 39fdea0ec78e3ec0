package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/videogen/orchestrator/pkg/models"
)

// HTTPCollaborator invokes one generation service over JSON/HTTP. Each stage
// gets its own instance pointing at that service's invoke endpoint. The
// request body is the StageInput; the response body is the StageResult.
type HTTPCollaborator struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewHTTPCollaborator creates a collaborator client for one endpoint. No
// client-level timeout is set; the executor bounds each attempt through ctx
// so the stage's declared timeout is the single source of truth.
func NewHTTPCollaborator(name, endpoint string) *HTTPCollaborator {
	return &HTTPCollaborator{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

func (c *HTTPCollaborator) Name() string { return c.name }

func (c *HTTPCollaborator) Invoke(ctx context.Context, input models.StageInput) (*models.StageResult, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, NewFatal("encode_input", fmt.Errorf("encoding stage input: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatal("build_request", fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode >= 500:
		return nil, NewRetryable(fmt.Sprintf("upstream_%d", resp.StatusCode),
			fmt.Errorf("%s returned status %d", c.name, resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewRetryable("rate_limited",
			fmt.Errorf("%s returned status %d", c.name, resp.StatusCode))
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, NewFatal(fmt.Sprintf("rejected_%d", resp.StatusCode),
			fmt.Errorf("%s rejected request: %s", c.name, string(detail)))
	}

	var result models.StageResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// A malformed collaborator response is permanent: retrying the same
		// payload would decode the same way.
		return nil, NewFatal("malformed_response", fmt.Errorf("decoding %s response: %w", c.name, err))
	}
	if len(result.Data) == 0 {
		return nil, NewFatal("empty_response", fmt.Errorf("%s returned no result data", c.name))
	}
	return &result, nil
}

func classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewRetryable(ReasonTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewFatal("cancelled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewRetryable(ReasonTimeout, err)
	}
	// Connection refused/reset and friends: the service may come back.
	return NewRetryable("unreachable", err)
}

var _ models.Collaborator = (*HTTPCollaborator)(nil)
