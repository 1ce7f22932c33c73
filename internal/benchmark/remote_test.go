package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunRemoteReturnsReport(t *testing.T) {
	var got RemoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/runs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Report{
			RunID:             "run-1",
			Workload:          "matmul",
			Backend:           "cpu",
			AverageDurationMs: 4.5,
			Kernels:           AggregatedReport{Rows: []KernelRow{{Kernel: TotalRow, TimeMs: 3}, {Kernel: "BatchMatMul", TimeMs: 3}}, TotalTimeMs: 3},
		})
	}))
	defer srv.Close()

	epochs := 3
	report, err := RunRemote(context.Background(), srv.URL+"/", RemoteRequest{Workload: "matmul", EpochRounds: &epochs})
	if err != nil {
		t.Fatalf("RunRemote: %v", err)
	}
	if !got.Wait {
		t.Fatalf("expected wait=true to be sent")
	}
	if got.EpochRounds == nil || *got.EpochRounds != 3 || got.WarmupRounds != nil {
		t.Fatalf("unexpected request payload: %+v", got)
	}
	if report.RunID != "run-1" || report.AverageDurationMs != 4.5 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Kernels.Rows) != 2 || report.Kernels.Rows[0].Kernel != TotalRow {
		t.Fatalf("unexpected kernel rows: %+v", report.Kernels.Rows)
	}
}

func TestRunRemoteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"workload matmul is busy","kind":"configuration"}`))
	}))
	defer srv.Close()

	_, err := RunRemote(context.Background(), srv.URL, RemoteRequest{Workload: "matmul"})
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remoteErr.StatusCode != http.StatusConflict || remoteErr.Kind != "configuration" {
		t.Fatalf("unexpected remote error: %+v", remoteErr)
	}
	if remoteErr.Message != "workload matmul is busy" {
		t.Fatalf("message = %q", remoteErr.Message)
	}
}

func TestRunRemotePlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := RunRemote(context.Background(), srv.URL, RemoteRequest{Workload: "qna"})
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remoteErr.Message != "boom" || remoteErr.Kind != "" {
		t.Fatalf("unexpected remote error: %+v", remoteErr)
	}
}

func TestRunRemoteInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	if _, err := RunRemote(context.Background(), srv.URL, RemoteRequest{Workload: "qna"}); err == nil {
		t.Fatalf("expected error for invalid response body")
	}
}

func TestRunRemoteValidation(t *testing.T) {
	if _, err := RunRemote(context.Background(), "http://localhost:1", RemoteRequest{}); err == nil {
		t.Fatalf("expected error for missing workload")
	}
	if _, err := RunRemote(context.Background(), "  ", RemoteRequest{Workload: "matmul"}); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
}
