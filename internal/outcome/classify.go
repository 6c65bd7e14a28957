// Package outcome derives a commit's status from its build and test results.
package outcome

// Status is the classified result of one commit.
type Status string

const (
	Success     Status = "SUCCESS"
	BuildFailed Status = "BUILD_FAILED"
	TestFailed  Status = "TEST_FAILED"
	Error       Status = "ERROR"
)

// Classify computes a commit's status using the fixed precedence rules.
//
// Precedence order:
//  1. build failed => BUILD_FAILED (test result is meaningless without a build)
//  2. build ok, test ok => SUCCESS
//  3. build ok, test failed => TEST_FAILED
//  4. anything else => ERROR
func Classify(buildSucceeded, testSucceeded bool) Status {
	if !buildSucceeded {
		return BuildFailed
	}
	if testSucceeded {
		return Success
	}
	if !testSucceeded {
		return TestFailed
	}
	// Unreachable with two booleans.
	return Error
}

// Describe returns the human-readable description reported for a status.
func Describe(s Status) string {
	switch s {
	case Success:
		return "Build succeeded"
	case BuildFailed:
		return "Build failed"
	case TestFailed:
		return "Tests failed"
	default:
		return "Build error"
	}
}

// APIState maps a status to the commit status API state.
func (s Status) APIState() string {
	switch s {
	case Success:
		return "success"
	case BuildFailed, TestFailed:
		return "failure"
	default:
		return "error"
	}
}

// Terminal reports whether s was determined by the build tool itself
// rather than by an infrastructure failure.
func (s Status) Terminal() bool {
	return s == Success || s == BuildFailed || s == TestFailed
}
