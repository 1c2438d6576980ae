package main

import "errors"

// ============================================================================
// Lifecycle Errors
// ============================================================================

// Sentinel errors returned by entry lifecycle transitions. Handlers map these
// to user-facing replies; FailureCategory groups them for logging.
var (
	ErrAlreadyConfigured   = errors.New("ticket system is already configured for this guild")
	ErrNotConfigured       = errors.New("ticket system is not configured for this guild")
	ErrRoleMissing         = errors.New("a configured role no longer exists")
	ErrAlreadyClaimed      = errors.New("ticket is already claimed")
	ErrInsufficientRole    = errors.New("member role is below the advisor role")
	ErrReasonTimeout       = errors.New("claim reason was not provided in time")
	ErrNotConfirmed        = errors.New("action was not confirmed in time")
	ErrLogsChannelMissing  = errors.New("logs channel no longer exists")
	ErrCategoryMissing     = errors.New("configured category no longer exists")
	ErrRoleMappingNotFound = errors.New("no role mapping found")
	ErrAlreadyTracked      = errors.New("channel is already tracked as a lobby")
	ErrChannelCreateFailed = errors.New("channel creation failed")
	ErrDuplicateStat       = errors.New("a stat channel of this type already exists")
)

type FailureCategory int

const (
	FailureUnknown FailureCategory = iota
	FailurePrecondition
	FailureResourceMissing
	FailureTimeout
	FailureExternal
)

func (c FailureCategory) String() string {
	switch c {
	case FailurePrecondition:
		return "precondition_failed"
	case FailureResourceMissing:
		return "resource_missing"
	case FailureTimeout:
		return "timeout"
	case FailureExternal:
		return "external_operation_failed"
	default:
		return "unknown"
	}
}

// Categorize maps a lifecycle error to its failure category. Wrapped errors
// are unwrapped via errors.Is, so callers may annotate with fmt.Errorf %w.
func Categorize(err error) FailureCategory {
	switch {
	case err == nil:
		return FailureUnknown
	case errors.Is(err, ErrAlreadyConfigured),
		errors.Is(err, ErrNotConfigured),
		errors.Is(err, ErrAlreadyClaimed),
		errors.Is(err, ErrInsufficientRole),
		errors.Is(err, ErrAlreadyTracked),
		errors.Is(err, ErrDuplicateStat),
		errors.Is(err, ErrRoleMappingNotFound):
		return FailurePrecondition
	case errors.Is(err, ErrRoleMissing),
		errors.Is(err, ErrCategoryMissing),
		errors.Is(err, ErrLogsChannelMissing):
		return FailureResourceMissing
	case errors.Is(err, ErrReasonTimeout),
		errors.Is(err, ErrNotConfirmed):
		return FailureTimeout
	case errors.Is(err, ErrChannelCreateFailed):
		return FailureExternal
	default:
		return FailureExternal
	}
}
