package benchmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// RemoteRequest is the body of POST /runs on a kernelbench server.
type RemoteRequest struct {
	Workload     string `json:"workload"`
	WarmupRounds *int   `json:"warmupRounds,omitempty"`
	EpochRounds  *int   `json:"epochRounds,omitempty"`
	Wait         bool   `json:"wait"`
}

// RemoteError is a non-200 answer from a kernelbench server.
type RemoteError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("benchmark request failed with status %d (%s): %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("benchmark request failed with status %d: %s", e.StatusCode, e.Message)
}

var httpClient = http.DefaultClient

// RunRemote asks the server at endpoint to run a workload and waits for its report.
func RunRemote(ctx context.Context, endpoint string, req RemoteRequest) (*Report, error) {
	if strings.TrimSpace(req.Workload) == "" {
		return nil, fmt.Errorf("workload name is required")
	}
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("benchmark endpoint is required")
	}
	req.Wait = true

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal benchmark payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/runs", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("benchmark request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		remoteErr := &RemoteError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
		var errResp struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			remoteErr.Message = errResp.Error
			remoteErr.Kind = errResp.Kind
		}
		return nil, remoteErr
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("benchmark response is not valid JSON")
	}
	var report Report
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("decode benchmark report: %w", err)
	}
	return &report, nil
}
