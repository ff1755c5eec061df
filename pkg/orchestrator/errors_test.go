package orchestrator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreExecutionFailure_ErrorReturnsReason(t *testing.T) {
	err := &PreExecutionFailure{Reason: "dial worker: connection refused"}
	assert.Equal(t, "dial worker: connection refused", err.Error())
}

func TestPostExecutionFailure_ErrorIncludesPartialExitCode(t *testing.T) {
	err := &PostExecutionFailure{PartialExitCode: 137, Reason: "killed by signal 9"}
	assert.Contains(t, err.Error(), "killed by signal 9")
	assert.Contains(t, err.Error(), "137")
}

func TestPostExecutionFailure_SurvivesErrorsAsThroughWrapping(t *testing.T) {
	inner := &PostExecutionFailure{PartialExitCode: 101, Reason: "build timed out"}
	wrapped := fmt.Errorf("orchestrator: remote exec: %w", inner)

	var got *PostExecutionFailure
	assert.True(t, errors.As(wrapped, &got))
	assert.Equal(t, 101, got.PartialExitCode)
}

func TestPreExecutionFailure_DoesNotMatchAsPostExecutionFailure(t *testing.T) {
	inner := &PreExecutionFailure{Reason: "dial timeout"}
	wrapped := fmt.Errorf("orchestrator: dial worker w1: %w", inner)

	var post *PostExecutionFailure
	assert.False(t, errors.As(wrapped, &post))
}
