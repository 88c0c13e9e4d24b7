package handler

import (
	"context"
	"fmt"
	"log/slog"
)

// AlwaysSucceedHandler is a deterministic stand-in for a real vendor
// handler, used to exercise the worker runtime end-to-end without a
// browser. Setup/Teardown are no-ops; Run always reports success.
type AlwaysSucceedHandler struct {
	jobID   string
	payload map[string]any
}

// NewAlwaysSucceedFactory returns a Factory producing AlwaysSucceedHandler
// instances, suitable for Registry.Register during tests or local runs.
func NewAlwaysSucceedFactory() Factory {
	return func(jobID string, payload map[string]any) VendorHandler {
		return &AlwaysSucceedHandler{jobID: jobID, payload: payload}
	}
}

func (h *AlwaysSucceedHandler) Setup(context.Context) error { return nil }

func (h *AlwaysSucceedHandler) Run(context.Context) (bool, error) {
	slog.Debug("always-succeed handler running", slog.String("job_id", h.jobID))
	return true, nil
}

func (h *AlwaysSucceedHandler) Teardown(context.Context) error { return nil }

func (h *AlwaysSucceedHandler) ReportError(_ context.Context, code, message string, severity Severity) {
	slog.Warn("handler reported error", slog.String("job_id", h.jobID), slog.String("code", code), slog.String("message", message), slog.String("severity", string(severity)))
}

// FailureInjectingHandler fails its Run call a configurable number of
// times before succeeding, letting tests exercise the retry manager's
// IMMEDIATE_RETRY/REQUEUE/DLQ decision tree without a real browser.
type FailureInjectingHandler struct {
	jobID      string
	failures   int
	classified error
	attempts   int
}

// NewFailureInjectingFactory returns a Factory whose handlers fail with
// failWith for the first failures Run calls, then succeed.
func NewFailureInjectingFactory(failures int, failWith error) Factory {
	return func(jobID string, payload map[string]any) VendorHandler {
		return &FailureInjectingHandler{jobID: jobID, failures: failures, classified: failWith}
	}
}

func (h *FailureInjectingHandler) Setup(context.Context) error { return nil }

func (h *FailureInjectingHandler) Run(context.Context) (bool, error) {
	h.attempts++
	if h.attempts <= h.failures {
		return false, fmt.Errorf("injected failure %d/%d for job %s: %w", h.attempts, h.failures, h.jobID, h.classified)
	}
	return true, nil
}

func (h *FailureInjectingHandler) Teardown(context.Context) error { return nil }

func (h *FailureInjectingHandler) ReportError(_ context.Context, code, message string, severity Severity) {
	slog.Warn("handler reported error", slog.String("job_id", h.jobID), slog.String("code", code), slog.String("message", message), slog.String("severity", string(severity)))
}

var _ VendorHandler = (*AlwaysSucceedHandler)(nil)
var _ VendorHandler = (*FailureInjectingHandler)(nil)
