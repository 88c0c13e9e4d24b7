// Package classifier maps an arbitrary error raised by a vendor handler to
// an (error_type, error_code) pair, via a strings.Contains cascade over a
// lowered error string.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

var staleElementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)stale element`),
	regexp.MustCompile(`(?i)element is not attached`),
	regexp.MustCompile(`(?i)element reference is stale`),
}

var camelSplit = regexp.MustCompile(`([a-z0-9])([A-Z])`)
var codeSuffix = regexp.MustCompile(`_(EXCEPTION|ERROR)$`)

// Classify returns the error type and a derived error code for err, checking
// a fixed six-step ordered cascade of patterns.
func Classify(err error) (domain.ErrorType, string) {
	if err == nil {
		return domain.ErrorTypeRetriable, "UNKNOWN"
	}

	// Step 1: explicit type tag carried by a HandlerError.
	var handlerErr *domain.HandlerError
	if errors.As(err, &handlerErr) {
		code := handlerErr.Code
		if code == "" {
			code = deriveCode(handlerErr)
		}
		return handlerErr.Kind, code
	}

	// Step 2: timeouts or not-found lookups.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrNotExist) {
		return domain.ErrorTypeTransient, deriveCode(err)
	}

	message := err.Error()
	lowered := strings.ToLower(message)

	// Step 3: stale-reference patterns.
	if isStaleElement(lowered) {
		return domain.ErrorTypeTransient, "STALE_ELEMENT"
	}

	// Step 5: type-name substring matches (checked before the generic
	// step-4 fallback so a well-named custom error still classifies
	// correctly even when it is not a domain.HandlerError).
	typeName := strings.ToLower(fmt.Sprintf("%T", err))
	switch {
	case strings.Contains(typeName, "auth") || strings.Contains(typeName, "credential"):
		return domain.ErrorTypePermanent, deriveCode(err)
	case strings.Contains(typeName, "notimplemented") || strings.Contains(typeName, "validation"):
		return domain.ErrorTypePermanent, deriveCode(err)
	case strings.Contains(typeName, "ratelimit") || strings.Contains(typeName, "resource"):
		return domain.ErrorTypeRetriable, deriveCode(err)
	}

	// Step 6: unknown error, safe default.
	return domain.ErrorTypeRetriable, deriveCode(err)
}

func isStaleElement(lowered string) bool {
	for _, p := range staleElementPatterns {
		if p.MatchString(lowered) {
			return true
		}
	}
	return false
}

// deriveCode generates an error code from the Go type name of err when one
// was not explicitly supplied: CamelCase -> UPPER_SNAKE_CASE, with a
// trailing _EXCEPTION or _ERROR suffix stripped.
func deriveCode(err error) string {
	name := fmt.Sprintf("%T", err)
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimPrefix(name, "*")
	snake := camelSplit.ReplaceAllString(name, "${1}_${2}")
	upper := strings.ToUpper(snake)
	return codeSuffix.ReplaceAllString(upper, "")
}

// ToErrorDetail builds the wire-level ErrorDetail for a classified error.
// Stack traces are off by default to keep the envelope small;
// callers opt in only for local debugging, never for production publish.
func ToErrorDetail(err error, includeStackTrace bool) domain.ErrorDetail {
	errType, code := Classify(err)
	detail := domain.ErrorDetail{
		Timestamp: time.Now().UTC(),
		ErrorType: errType,
		ErrorCode: code,
		Message:   err.Error(),
	}
	if includeStackTrace {
		detail.StackTrace = string(debug.Stack())
	}
	return detail
}
