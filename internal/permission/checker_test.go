package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckNoRulesDefaultsToAllow(t *testing.T) {
	c := NewChecker()
	d := c.Check("ses1", "read", map[string]any{"filePath": "main.go"}, nil)
	assert.Equal(t, ActionAllow, d.Action)
}

func TestCheckFirstMatchWins(t *testing.T) {
	rules := []Rule{
		{Permission: "edit", Pattern: "vendor/**", Action: ActionDeny},
		{Permission: "edit", Pattern: "**", Action: ActionAllow},
		{Permission: "*", Pattern: "*", Action: ActionAsk},
	}

	tests := []struct {
		name     string
		tool     string
		args     map[string]any
		expected Action
	}{
		{
			name:     "vendor edit denied",
			tool:     "edit",
			args:     map[string]any{"filePath": "vendor/lib/x.go"},
			expected: ActionDeny,
		},
		{
			name:     "other edit allowed by later rule",
			tool:     "edit",
			args:     map[string]any{"filePath": "internal/store/store.go"},
			expected: ActionAllow,
		},
		{
			name:     "unrelated tool hits wildcard ask",
			tool:     "webfetch",
			args:     map[string]any{"path": "https://example.com"},
			expected: ActionAsk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			d := c.Check("ses1", tt.tool, tt.args, rules)
			assert.Equal(t, tt.expected, d.Action)
		})
	}
}

func TestCheckDenyCarriesReason(t *testing.T) {
	c := NewChecker()
	rules := []Rule{{Permission: "bash", Pattern: "rm *", Action: ActionDeny}}

	d := c.Check("ses1", "bash", map[string]any{"command": "rm -rf /tmp/x"}, rules)
	assert.Equal(t, ActionDeny, d.Action)
	assert.NotEmpty(t, d.Reason)
}

func TestCheckAskCarriesPrompt(t *testing.T) {
	c := NewChecker()
	rules := []Rule{{Permission: "edit", Pattern: "*", Action: ActionAsk}}

	d := c.Check("ses1", "edit", map[string]any{"filePath": "main.go"}, rules)
	assert.Equal(t, ActionAsk, d.Action)
	assert.Contains(t, d.Prompt, "main.go")
}

func TestAlwaysAllowanceShortCircuitsRules(t *testing.T) {
	c := NewChecker()
	rules := []Rule{{Permission: "bash", Pattern: "*", Action: ActionDeny}}

	c.RecordAlwaysAllow("ses1", "bash")
	d := c.Check("ses1", "bash", map[string]any{"command": "ls"}, rules)
	assert.Equal(t, ActionAllow, d.Action)

	// Other sessions are unaffected.
	d = c.Check("ses2", "bash", map[string]any{"command": "ls"}, rules)
	assert.Equal(t, ActionDeny, d.Action)
}

func TestAlwaysDeny(t *testing.T) {
	c := NewChecker()

	c.RecordAlwaysDeny("ses1", "webfetch")
	d := c.Check("ses1", "webfetch", map[string]any{"path": "https://x"}, nil)
	assert.Equal(t, ActionDeny, d.Action)
}

func TestRecordedDecisionSuppressesReask(t *testing.T) {
	c := NewChecker()
	rules := []Rule{{Permission: "edit", Pattern: "*", Action: ActionAsk}}
	args := map[string]any{"filePath": "main.go"}

	assert.Equal(t, ActionAsk, c.Check("ses1", "edit", args, rules).Action)

	c.RecordDecision("ses1", "edit", args, true)
	assert.Equal(t, ActionAllow, c.Check("ses1", "edit", args, rules).Action)

	// A different path still asks.
	other := map[string]any{"filePath": "other.go"}
	assert.Equal(t, ActionAsk, c.Check("ses1", "edit", other, rules).Action)
}

func TestRecordedRejectionSticks(t *testing.T) {
	c := NewChecker()
	rules := []Rule{{Permission: "edit", Pattern: "*", Action: ActionAsk}}
	args := map[string]any{"filePath": "secrets.env"}

	c.RecordDecision("ses1", "edit", args, false)
	d := c.Check("ses1", "edit", args, rules)
	assert.Equal(t, ActionDeny, d.Action)
}

func TestShellApprovalUnlocksCommandPattern(t *testing.T) {
	c := NewChecker()
	rules := []Rule{{Permission: "bash", Pattern: "*", Action: ActionAsk}}

	c.RecordDecision("ses1", "bash", map[string]any{"command": "git commit -m first"}, true)

	// Same command shape with different flags is covered by "git commit *".
	d := c.Check("ses1", "bash", map[string]any{"command": "git commit -m second --amend"}, rules)
	assert.Equal(t, ActionAllow, d.Action)

	// A different subcommand still asks.
	d = c.Check("ses1", "bash", map[string]any{"command": "git push origin main"}, rules)
	assert.Equal(t, ActionAsk, d.Action)
}

func TestClearSessionWipesAllowances(t *testing.T) {
	c := NewChecker()
	rules := []Rule{{Permission: "edit", Pattern: "*", Action: ActionAsk}}
	args := map[string]any{"filePath": "main.go"}

	c.RecordAlwaysAllow("ses1", "bash")
	c.RecordDecision("ses1", "edit", args, true)

	c.ClearSession("ses1")

	assert.Equal(t, ActionAsk, c.Check("ses1", "edit", args, rules).Action)
	d := c.Check("ses1", "bash", map[string]any{"command": "ls"},
		[]Rule{{Permission: "bash", Pattern: "*", Action: ActionAsk}})
	assert.Equal(t, ActionAsk, d.Action)
}

func TestDiscriminatingArg(t *testing.T) {
	tests := []struct {
		name     string
		tool     string
		args     map[string]any
		expected string
	}{
		{
			name:     "shell uses full command",
			tool:     "bash",
			args:     map[string]any{"command": "git status", "timeout": 30},
			expected: "git status",
		},
		{
			name:     "file path preferred",
			tool:     "edit",
			args:     map[string]any{"filePath": "a.go", "path": "b.go"},
			expected: "a.go",
		},
		{
			name:     "falls through ordered names",
			tool:     "list",
			args:     map[string]any{"cwd": "/repo"},
			expected: "/repo",
		},
		{
			name:     "search path last",
			tool:     "grep",
			args:     map[string]any{"searchPath": "src"},
			expected: "src",
		},
		{
			name:     "missing args",
			tool:     "edit",
			args:     map[string]any{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DiscriminatingArg(tt.tool, tt.args))
		})
	}
}
