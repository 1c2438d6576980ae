package main

import (
	"errors"
	"fmt"
	"testing"
)

func TestCategorize(t *testing.T) {
	cases := []struct {
		err  error
		want FailureCategory
	}{
		{ErrAlreadyConfigured, FailurePrecondition},
		{ErrNotConfigured, FailurePrecondition},
		{ErrAlreadyClaimed, FailurePrecondition},
		{ErrInsufficientRole, FailurePrecondition},
		{ErrAlreadyTracked, FailurePrecondition},
		{ErrDuplicateStat, FailurePrecondition},
		{ErrRoleMappingNotFound, FailurePrecondition},
		{ErrRoleMissing, FailureResourceMissing},
		{ErrCategoryMissing, FailureResourceMissing},
		{ErrLogsChannelMissing, FailureResourceMissing},
		{ErrReasonTimeout, FailureTimeout},
		{ErrNotConfirmed, FailureTimeout},
		{ErrChannelCreateFailed, FailureExternal},
		{errors.New("disgo: 500"), FailureExternal},
		{nil, FailureUnknown},
	}

	for _, c := range cases {
		if got := Categorize(c.err); got != c.want {
			t.Errorf("Categorize(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

func TestCategorizeWrapped(t *testing.T) {
	wrapped := fmt.Errorf("claiming ticket abc: %w", ErrInsufficientRole)
	if got := Categorize(wrapped); got != FailurePrecondition {
		t.Errorf("wrapped error: got %s, want %s", got, FailurePrecondition)
	}
}

func TestFailureCategoryString(t *testing.T) {
	cases := map[FailureCategory]string{
		FailureUnknown:         "unknown",
		FailurePrecondition:    "precondition_failed",
		FailureResourceMissing: "resource_missing",
		FailureTimeout:         "timeout",
		FailureExternal:        "external_operation_failed",
	}
	for cat, want := range cases {
		if cat.String() != want {
			t.Errorf("%d.String() = %q, want %q", cat, cat.String(), want)
		}
	}
}
