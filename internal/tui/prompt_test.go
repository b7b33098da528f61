package tui

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/capboard/internal/errors"
)

func TestShouldPrompt(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
	}{
		{"GitHub Actions", map[string]string{"GITHUB_ACTIONS": "true"}},
		{"GitLab CI", map[string]string{"GITLAB_CI": "true"}},
		{"Jenkins", map[string]string{"JENKINS_URL": "http://jenkins.local"}},
		{"Generic CI", map[string]string{"CI": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}
			if ShouldPrompt() {
				t.Errorf("ShouldPrompt() = true with env %v", tt.envVars)
			}
		})
	}
}

func TestCapabilityWithoutOptions(t *testing.T) {
	_, err := Prompter{}.Capability(context.Background(), nil)
	if errors.CodeOf(err) != errors.ErrCodeInputMissing {
		t.Errorf("Capability(nil) error = %v, want %s", err, errors.ErrCodeInputMissing)
	}
}

func TestRequired(t *testing.T) {
	check := required("Email")
	if err := check("  "); err == nil || err.Error() != "Email is required" {
		t.Errorf("required(blank) = %v", err)
	}
	if err := check("a@example.com"); err != nil {
		t.Errorf("required(value) = %v", err)
	}
}
