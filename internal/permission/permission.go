// Package permission provides the safety gate consulted before tool
// execution: rule evaluation, session-scoped allowances, and repeated-call
// (doom loop) detection.
package permission

// Action is what a matched rule tells the driver to do.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
	ActionAsk   Action = "ask"
)

// Rule maps a tool and argument pattern to an action. Rules are evaluated
// in order; the first match wins.
type Rule struct {
	// Permission is a tool name, or "*" for any tool.
	Permission string `json:"permission"`
	// Pattern matches the tool's discriminating argument: exact, "*",
	// or a glob (see MatchPattern).
	Pattern string `json:"pattern"`
	Action  Action `json:"action"`
}

// Decision is the structured outcome of a permission check. It is a value,
// not an error: the driver reacts to it without unwinding control flow.
type Decision struct {
	Action Action `json:"action"`
	// Reason explains a deny.
	Reason string `json:"reason,omitempty"`
	// Prompt is the question to put to the user on ask.
	Prompt string `json:"prompt,omitempty"`
}

// Allowed reports whether the decision permits execution.
func (d Decision) Allowed() bool { return d.Action == ActionAllow }

func allowDecision() Decision {
	return Decision{Action: ActionAllow}
}

func denyDecision(reason string) Decision {
	return Decision{Action: ActionDeny, Reason: reason}
}

func askDecision(prompt string) Decision {
	return Decision{Action: ActionAsk, Prompt: prompt}
}
