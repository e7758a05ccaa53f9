package permission

import (
	"fmt"
	"sync"

	"github.com/stratuscode/stratuscode/internal/event"
)

// shellTools are tools whose discriminating argument is the full command
// string and whose "always" allowances are tracked per command pattern.
var shellTools = map[string]bool{
	"bash":  true,
	"shell": true,
}

// pathArgNames is the fixed priority order for extracting the
// discriminating argument of file-oriented tools.
var pathArgNames = []string{"filePath", "directoryPath", "path", "cwd", "searchPath"}

// Checker evaluates tool calls against rules and session allowances.
// Allowances are an in-memory UX convenience scoped to a session's
// lifetime, not a durable audit log.
type Checker struct {
	mu sync.RWMutex
	// always holds "always:<tool>" decisions: sessionID -> tool -> allowed.
	always map[string]map[string]bool
	// args holds finer (tool, discriminating-arg) decisions.
	args map[string]map[string]bool
	// patterns holds approved shell command patterns like "git commit *".
	patterns map[string]map[string]bool
}

// NewChecker creates a new permission checker.
func NewChecker() *Checker {
	return &Checker{
		always:   make(map[string]map[string]bool),
		args:     make(map[string]map[string]bool),
		patterns: make(map[string]map[string]bool),
	}
}

// Check evaluates a tool call. Order: session-wide always decision, then
// first matching rule (no rule means allow), then for "ask" rules the
// finer per-argument allowance before actually prompting.
func (c *Checker) Check(sessionID, tool string, args map[string]any, rules []Rule) Decision {
	arg := DiscriminatingArg(tool, args)

	c.mu.RLock()
	if always, ok := c.always[sessionID][tool]; ok {
		c.mu.RUnlock()
		if always {
			return allowDecision()
		}
		return denyDecision(fmt.Sprintf("%s is blocked for this session", tool))
	}
	c.mu.RUnlock()

	rule, matched := firstMatch(tool, arg, rules)
	if !matched {
		return allowDecision()
	}

	switch rule.Action {
	case ActionAllow:
		return allowDecision()
	case ActionDeny:
		return denyDecision(fmt.Sprintf("%s %q denied by rule %q", tool, arg, rule.Pattern))
	}

	// Ask: an earlier per-argument decision avoids prompting again.
	c.mu.RLock()
	if allowed, ok := c.args[sessionID][allowanceKey(tool, arg)]; ok {
		c.mu.RUnlock()
		if allowed {
			return allowDecision()
		}
		return denyDecision(fmt.Sprintf("%s %q was rejected earlier this session", tool, arg))
	}
	c.mu.RUnlock()

	// Shell commands may be covered by previously approved command
	// patterns ("git commit *") even when the exact string is new.
	var patterns []string
	if shellTools[tool] && arg != "" {
		if cmds, err := ParseCommands(arg); err == nil && len(cmds) > 0 {
			patterns = BuildPatterns(cmds)
			if c.patternsApproved(sessionID, patterns) {
				return allowDecision()
			}
		}
	}

	prompt := fmt.Sprintf("Allow %s to run on %q?", tool, arg)
	if arg == "" {
		prompt = fmt.Sprintf("Allow %s?", tool)
	}

	event.Publish(event.Event{
		Type: event.PermissionRequired,
		Data: event.PermissionRequiredData{
			SessionID: sessionID,
			Tool:      tool,
			Prompt:    prompt,
			Patterns:  patterns,
		},
	})

	return askDecision(prompt)
}

// firstMatch scans rules in order for the first whose permission and
// pattern both match.
func firstMatch(tool, arg string, rules []Rule) (Rule, bool) {
	for _, rule := range rules {
		if rule.Permission != "*" && rule.Permission != tool {
			continue
		}
		if MatchPattern(rule.Pattern, arg) {
			return rule, true
		}
	}
	return Rule{}, false
}

// DiscriminatingArg extracts the argument a rule pattern is matched
// against. Shell tools use the full command string; file-oriented tools use
// the first present path-like argument.
func DiscriminatingArg(tool string, args map[string]any) string {
	if shellTools[tool] {
		if cmd, ok := args["command"].(string); ok {
			return cmd
		}
		return ""
	}

	for _, name := range pathArgNames {
		if v, ok := args[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// RecordDecision caches the user's answer for this exact (tool, argument)
// pair. For shell tools an approval also unlocks the derived command
// patterns so minor flag variations stop re-prompting.
func (c *Checker) RecordDecision(sessionID, tool string, args map[string]any, allowed bool) {
	arg := DiscriminatingArg(tool, args)

	c.mu.Lock()
	if c.args[sessionID] == nil {
		c.args[sessionID] = make(map[string]bool)
	}
	c.args[sessionID][allowanceKey(tool, arg)] = allowed

	if allowed && shellTools[tool] && arg != "" {
		if cmds, err := ParseCommands(arg); err == nil {
			if c.patterns[sessionID] == nil {
				c.patterns[sessionID] = make(map[string]bool)
			}
			for _, p := range BuildPatterns(cmds) {
				c.patterns[sessionID][p] = true
			}
		}
	}
	c.mu.Unlock()

	event.Publish(event.Event{
		Type: event.PermissionResolved,
		Data: event.PermissionResolvedData{
			SessionID: sessionID,
			Tool:      tool,
			Granted:   allowed,
		},
	})
}

// RecordAlwaysAllow short-circuits every future check for the tool this
// session.
func (c *Checker) RecordAlwaysAllow(sessionID, tool string) {
	c.recordAlways(sessionID, tool, true)
}

// RecordAlwaysDeny blocks every future check for the tool this session.
func (c *Checker) RecordAlwaysDeny(sessionID, tool string) {
	c.recordAlways(sessionID, tool, false)
}

func (c *Checker) recordAlways(sessionID, tool string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.always[sessionID] == nil {
		c.always[sessionID] = make(map[string]bool)
	}
	c.always[sessionID][tool] = allowed
}

// ClearSession wipes all cached allowances for a session.
func (c *Checker) ClearSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.always, sessionID)
	delete(c.args, sessionID)
	delete(c.patterns, sessionID)
}

func (c *Checker) patternsApproved(sessionID string, patterns []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	approved := c.patterns[sessionID]
	if len(approved) == 0 {
		return false
	}
	for _, p := range patterns {
		if !approved[p] {
			return false
		}
	}
	return true
}

func allowanceKey(tool, arg string) string {
	return tool + "\x00" + arg
}
