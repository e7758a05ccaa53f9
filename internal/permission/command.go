package permission

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Command is one parsed shell invocation from a tool's command string.
type Command struct {
	Name       string   // executable name, e.g. "git"
	Args       []string // everything after the name
	Subcommand string   // first non-flag argument, e.g. "commit"
}

// ParseCommands parses a shell command string into its individual
// invocations, including those behind pipes and && chains.
func ParseCommands(command string) ([]Command, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}

	var commands []Command
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := callToCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})

	return commands, nil
}

func callToCommand(call *syntax.CallExpr) *Command {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &Command{Name: wordText(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		text := wordText(arg)
		cmd.Args = append(cmd.Args, text)
		if cmd.Subcommand == "" && !strings.HasPrefix(text, "-") {
			cmd.Subcommand = text
		}
	}

	return cmd
}

// wordText flattens a shell word to its literal text. Expansions become
// placeholders so they can never satisfy an allowance pattern.
func wordText(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// BuildPattern derives the allowance pattern for a command:
// "git commit -m msg" -> "git commit *", "ls -la" -> "ls *".
func BuildPattern(cmd Command) string {
	if cmd.Subcommand != "" {
		return cmd.Name + " " + cmd.Subcommand + " *"
	}
	return cmd.Name + " *"
}

// BuildPatterns derives deduplicated allowance patterns for a command
// string's invocations.
func BuildPatterns(commands []Command) []string {
	seen := make(map[string]bool)
	var patterns []string

	for _, cmd := range commands {
		pattern := BuildPattern(cmd)
		if !seen[pattern] {
			seen[pattern] = true
			patterns = append(patterns, pattern)
		}
	}

	return patterns
}
