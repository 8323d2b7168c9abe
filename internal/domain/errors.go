package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError to get entity-specific codes.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
)

// Sentinel errors for the real-time channel.
var (
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
	ErrConnectionClosed  = fmt.Errorf("connection closed")
)

// ErrAuditWrite reports a failed audit trail append.
var ErrAuditWrite = fmt.Errorf("audit write failed")

// Subsystem identifiers used with NewSubSystemError.
const (
	SubSystemMission = "mission"
	SubSystemStep    = "step"
	SubSystemReport  = "report"
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "MissionManager.Update")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // entity identifier; used for ErrorCode dispatch
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

// ErrorCode is a machine-parseable error category returned in API error bodies.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeStoreUnavailable  ErrorCode = "STORE_UNAVAILABLE"
	CodeRPCMethodNotFound ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeConnectionClosed  ErrorCode = "CONNECTION_CLOSED"
	CodeAuditWrite        ErrorCode = "AUDIT_WRITE_FAILED"

	CodeMissionNotFound ErrorCode = "MISSION_NOT_FOUND"
	CodeStepNotFound    ErrorCode = "STEP_NOT_FOUND"
	CodeReportNotFound  ErrorCode = "REPORT_NOT_FOUND"
	CodeMissionInvalid  ErrorCode = "MISSION_INVALID"
	CodeStepInvalid     ErrorCode = "STEP_INVALID"
	CodeReportInvalid   ErrorCode = "REPORT_INVALID"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:          CodeNotFound,
	ErrInvalidInput:      CodeInvalidInput,
	ErrStoreUnavailable:  CodeStoreUnavailable,
	ErrRPCMethodNotFound: CodeRPCMethodNotFound,
	ErrRPCInvalidPayload: CodeRPCInvalidPayload,
	ErrConnectionClosed:  CodeConnectionClosed,
	ErrAuditWrite:        CodeAuditWrite,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		SubSystemMission: CodeMissionNotFound,
		SubSystemStep:    CodeStepNotFound,
		SubSystemReport:  CodeReportNotFound,
	},
	ErrInvalidInput: {
		SubSystemMission: CodeMissionInvalid,
		SubSystemStep:    CodeStepInvalid,
		SubSystemReport:  CodeReportInvalid,
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
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
