package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrConfigLoad = fmt.Errorf("failed to load configuration")
	ErrDecryption = fmt.Errorf("decryption failed")

	// Transcript and session errors.
	ErrUnknownEvent    = fmt.Errorf("unknown stream event")
	ErrNoLastMessage   = fmt.Errorf("no message to amend")
	ErrInputDisabled   = fmt.Errorf("input is disabled while a response is streaming")
	ErrThreadNotReady  = fmt.Errorf("thread not ready")
	ErrToolCallFailure = fmt.Errorf("tool call handler failed")

	// Upstream and gateway errors.
	ErrRateLimit     = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid   = fmt.Errorf("authentication failed")
	ErrCircuitOpen   = fmt.Errorf("circuit open")
	ErrStreamFailed  = fmt.Errorf("stream failed")
	ErrGatewayAuth   = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrPayloadTooBig = fmt.Errorf("request body too large")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Assistant.CreateThread")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "assistant", "gateway"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and API responses.
type ErrorCode string

const (
	CodeUnknown        ErrorCode = "UNKNOWN"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeTimeout        ErrorCode = "TIMEOUT"
	CodeInvalidInput   ErrorCode = "INVALID_INPUT"
	CodeProviderError  ErrorCode = "PROVIDER_ERROR"
	CodeConfigLoad     ErrorCode = "CONFIG_LOAD"
	CodeDecryption     ErrorCode = "DECRYPTION"
	CodeUnknownEvent   ErrorCode = "UNKNOWN_EVENT"
	CodeNoLastMessage  ErrorCode = "NO_LAST_MESSAGE"
	CodeInputDisabled  ErrorCode = "INPUT_DISABLED"
	CodeThreadNotReady ErrorCode = "THREAD_NOT_READY"
	CodeToolCall       ErrorCode = "TOOL_CALL_FAILURE"
	CodeRateLimit      ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid    ErrorCode = "AUTH_INVALID"
	CodeCircuitOpen    ErrorCode = "CIRCUIT_OPEN"
	CodeStreamFailed   ErrorCode = "STREAM_FAILED"
	CodeGatewayAuth    ErrorCode = "GATEWAY_AUTH"
	CodePayloadTooBig  ErrorCode = "PAYLOAD_TOO_BIG"

	CodeThreadNotFound ErrorCode = "THREAD_NOT_FOUND"
	CodeFileNotFound   ErrorCode = "FILE_NOT_FOUND"
	CodeRunNotFound    ErrorCode = "RUN_NOT_FOUND"
)

// errorCodeMap maps sentinel errors to their ErrorCode.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:        CodeNotFound,
	ErrTimeout:         CodeTimeout,
	ErrInvalidInput:    CodeInvalidInput,
	ErrProviderError:   CodeProviderError,
	ErrConfigLoad:      CodeConfigLoad,
	ErrDecryption:      CodeDecryption,
	ErrUnknownEvent:    CodeUnknownEvent,
	ErrNoLastMessage:   CodeNoLastMessage,
	ErrInputDisabled:   CodeInputDisabled,
	ErrThreadNotReady:  CodeThreadNotReady,
	ErrToolCallFailure: CodeToolCall,
	ErrRateLimit:       CodeRateLimit,
	ErrAuthInvalid:     CodeAuthInvalid,
	ErrCircuitOpen:     CodeCircuitOpen,
	ErrStreamFailed:    CodeStreamFailed,
	ErrGatewayAuth:     CodeGatewayAuth,
	ErrPayloadTooBig:   CodePayloadTooBig,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"thread": CodeThreadNotFound,
		"file":   CodeFileNotFound,
		"run":    CodeRunNotFound,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	// ErrGatewayAuth wraps ErrAuthInvalid, so check it before the generic walk.
	if errors.Is(err, ErrGatewayAuth) {
		return CodeGatewayAuth
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		for sentinel, subsysMap := range subSystemCodeMap {
			if code, ok := subsysMap[e.SubSystem]; ok && errors.Is(e.Err, sentinel) {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
