package types

import (
	"fmt"
	"time"
)

// ContainerFailureExitCode is the exit code that signifies a failure
// before even running the container
const ContainerFailureExitCode = -999

// Target is a cloud provider and region pair a test run is launched against.
// Region is empty for providers that do not support one.
type Target struct {
	Provider string `json:"provider" yaml:"provider"`
	Region   string `json:"region" yaml:"region"`
}

func (t Target) String() string {
	if t.Region == "" {
		return t.Provider
	}
	return t.Provider + "/" + t.Region
}

// DispatchResult is the outcome of running the test suite for one
// ClusterImageSet against one Target.
type DispatchResult struct {
	Resource string
	Target   Target

	// The exit code of the test-runner command.
	//
	// NOTE: irrelevant if Err is not nil.
	ExitCode int

	// Err is set when the invocation could not be launched at all.
	Err error

	Duration time.Duration
}

// NewDispatchResult returns a result for resource and target that is
// considered failed until an exit code is recorded.
func NewDispatchResult(resource string, target Target) DispatchResult {
	return DispatchResult{Resource: resource, Target: target, ExitCode: ContainerFailureExitCode}
}

// Success reports whether the invocation was launched and exited with 0.
func (r DispatchResult) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

func (r DispatchResult) String() string {
	status := "passed"
	if r.Err != nil {
		status = "error: " + r.Err.Error()
	} else if r.ExitCode != 0 {
		status = fmt.Sprintf("failed (exit code %d)", r.ExitCode)
	}
	return fmt.Sprintf("%s on %s: %s", r.Resource, r.Target, status)
}

// Aggregate reduces results to the outcome of a whole run: true iff every
// result succeeded. An empty slice is successful.
func Aggregate(results []DispatchResult) bool {
	for _, r := range results {
		if !r.Success() {
			return false
		}
	}
	return true
}
