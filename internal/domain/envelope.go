package domain

import (
	"encoding/json"
	"time"
)

// ErrorType classifies a handler failure for retry-decision purposes.
type ErrorType string

// Error classification values. See the classifier package for how an
// arbitrary error is mapped to one of these.
const (
	ErrorTypeTransient ErrorType = "TRANSIENT"
	ErrorTypeRetriable ErrorType = "RETRIABLE"
	ErrorTypePermanent ErrorType = "PERMANENT"
)

// ErrorDetail is one entry of an envelope's error_history, or its
// last_error.
type ErrorDetail struct {
	Timestamp  time.Time `json:"timestamp"`
	ErrorType  ErrorType `json:"error_type"`
	ErrorCode  string    `json:"error_code"`
	Message    string    `json:"message"`
	StackTrace string    `json:"stack_trace,omitempty"`
}

// envelopeKnownFields lists the top-level keys the wire format recognizes.
// Anything else found at the top level during decode is folded into
// payload, per the backward-compatibility contract.
var envelopeKnownFields = map[string]struct{}{
	"job_id":           {},
	"payload":          {},
	"retry_count":      {},
	"max_retries":      {},
	"first_attempt_at": {},
	"last_error":       {},
	"error_history":    {},
	"timestamp":        {},
}

// DefaultMaxRetries is the envelope default when not specified at ingress.
const DefaultMaxRetries = 3

// Envelope is the on-wire job message.
type Envelope struct {
	JobID          string         `json:"job_id"`
	Payload        map[string]any `json:"payload"`
	RetryCount     int            `json:"retry_count"`
	MaxRetries     int            `json:"max_retries"`
	FirstAttemptAt time.Time      `json:"first_attempt_at"`
	LastError      *ErrorDetail   `json:"last_error"`
	ErrorHistory   []ErrorDetail  `json:"error_history"`
}

// NewEnvelope constructs a fresh envelope for ingress.
func NewEnvelope(jobID string, payload map[string]any, maxRetries int) Envelope {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return Envelope{
		JobID:          jobID,
		Payload:        payload,
		RetryCount:     0,
		MaxRetries:     maxRetries,
		FirstAttemptAt: time.Now().UTC(),
		LastError:      nil,
		ErrorHistory:   []ErrorDetail{},
	}
}

// UnmarshalJSON folds any top-level key that is not one of the known
// envelope fields into payload, unless payload already carries a key of the
// same name. Missing retry metadata
// gets the documented defaults. Malformed JSON is the only failure mode;
// unknown extra fields are never rejected.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var payload map[string]any
	if rawPayload, ok := raw["payload"]; ok {
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return err
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}

	for key, rawVal := range raw {
		if _, known := envelopeKnownFields[key]; known {
			continue
		}
		if _, already := payload[key]; already {
			continue
		}
		var v any
		if err := json.Unmarshal(rawVal, &v); err != nil {
			return err
		}
		payload[key] = v
	}
	// A legacy flat message may carry its extra keys alongside job_id with
	// no payload key at all, or a timestamp that should fold in too.
	if _, hasPayload := raw["payload"]; !hasPayload {
		if rawTimestamp, ok := raw["timestamp"]; ok {
			if _, already := payload["timestamp"]; !already {
				var v any
				if err := json.Unmarshal(rawTimestamp, &v); err != nil {
					return err
				}
				payload["timestamp"] = v
			}
		}
	}

	var jobID string
	if v, ok := raw["job_id"]; ok {
		if err := json.Unmarshal(v, &jobID); err != nil {
			return err
		}
	}

	retryCount := 0
	if v, ok := raw["retry_count"]; ok {
		if err := json.Unmarshal(v, &retryCount); err != nil {
			return err
		}
	}

	maxRetries := DefaultMaxRetries
	if v, ok := raw["max_retries"]; ok {
		if err := json.Unmarshal(v, &maxRetries); err != nil {
			return err
		}
	}

	firstAttemptAt := time.Now().UTC()
	if v, ok := raw["first_attempt_at"]; ok {
		if err := json.Unmarshal(v, &firstAttemptAt); err != nil {
			return err
		}
	}

	var lastError *ErrorDetail
	if v, ok := raw["last_error"]; ok {
		if err := json.Unmarshal(v, &lastError); err != nil {
			return err
		}
	}

	errorHistory := []ErrorDetail{}
	if v, ok := raw["error_history"]; ok {
		if err := json.Unmarshal(v, &errorHistory); err != nil {
			return err
		}
	}

	e.JobID = jobID
	e.Payload = payload
	e.RetryCount = retryCount
	e.MaxRetries = maxRetries
	e.FirstAttemptAt = firstAttemptAt
	e.LastError = lastError
	e.ErrorHistory = errorHistory
	return nil
}

// WithAppendedError returns a copy of the envelope with detail recorded as
// last_error and appended to error_history. error_history is append-only
// within a lineage.
func (e Envelope) WithAppendedError(detail ErrorDetail) Envelope {
	next := e
	history := make([]ErrorDetail, len(e.ErrorHistory), len(e.ErrorHistory)+1)
	copy(history, e.ErrorHistory)
	next.ErrorHistory = append(history, detail)
	next.LastError = &detail
	return next
}

// Requeued returns a copy of the envelope with retry_count incremented,
// ready to be republished to the origin queue.
func (e Envelope) Requeued() Envelope {
	next := e
	next.RetryCount = e.RetryCount + 1
	return next
}

// ExhaustedRetries reports whether the envelope has reached its retry
// budget, i.e. retry_count >= max_retries.
func (e Envelope) ExhaustedRetries() bool {
	return e.RetryCount >= e.MaxRetries
}

// ResetForDLQRetry produces the fresh envelope the DLQ manager publishes
// when an operator re-injects a DLQ'd job:
// job_id and payload survive, retry metadata is zeroed.
func (e Envelope) ResetForDLQRetry() Envelope {
	return Envelope{
		JobID:          e.JobID,
		Payload:        e.Payload,
		RetryCount:     0,
		MaxRetries:     e.MaxRetries,
		FirstAttemptAt: time.Now().UTC(),
		LastError:      nil,
		ErrorHistory:   []ErrorDetail{},
	}
}
