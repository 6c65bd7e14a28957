package outcome

import "testing"

func TestClassify_Precedence(t *testing.T) {
	tests := []struct {
		name  string
		build bool
		test  bool
		want  Status
	}{
		{"build and test succeed", true, true, Success},
		{"test fails after good build", true, false, TestFailed},
		{"build fails, test passes anyway", false, true, BuildFailed},
		{"build and test fail", false, false, BuildFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.build, tt.test); got != tt.want {
				t.Errorf("Classify(%v, %v) = %s, want %s", tt.build, tt.test, got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Success, "Build succeeded"},
		{BuildFailed, "Build failed"},
		{TestFailed, "Tests failed"},
		{Error, "Build error"},
	}
	for _, tt := range tests {
		if got := Describe(tt.status); got != tt.want {
			t.Errorf("Describe(%s) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestAPIState(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Success, "success"},
		{BuildFailed, "failure"},
		{TestFailed, "failure"},
		{Error, "error"},
		{Status("bogus"), "error"},
	}
	for _, tt := range tests {
		if got := tt.status.APIState(); got != tt.want {
			t.Errorf("%s.APIState() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{Success, BuildFailed, TestFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if Error.Terminal() {
		t.Error("ERROR should not be terminal")
	}
}
