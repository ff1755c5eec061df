package classify

import (
	"strings"

	"github.com/cuemby/rch/pkg/types"
)

// DefaultConfidenceThreshold is used when a caller doesn't supply one to
// Classify. Commands whose base confidence falls below this are passed
// through as LowConfidence (spec.md §4.1).
const DefaultConfidenceThreshold = 0.5

// complexShellTokens are substrings that change shell execution semantics
// and therefore force a PassThrough (spec.md §4.1 tier 3). "&" is checked
// separately below so a lone trailing background marker is also caught.
var complexShellTokens = []string{
	"|", ";", "&&", "||", ">>", ">", "<", "$(", "`",
}

// Classify implements the five-tier classifier. It is pure and
// deterministic; besides the returned Decision, the only allocation is the
// token slice tokenize builds for commands that reach tier 5.
func Classify(cmd types.Command) types.Decision {
	return classifyWithThreshold(cmd, DefaultConfidenceThreshold)
}

// ClassifyWithThreshold is Classify with an explicit confidence threshold,
// used by callers (the daemon's configuration layer) that tune sensitivity.
func ClassifyWithThreshold(cmd types.Command, threshold float64) types.Decision {
	return classifyWithThreshold(cmd, threshold)
}

func classifyWithThreshold(cmd types.Command, threshold float64) types.Decision {
	// Tier 1: tool tag.
	if cmd.ToolName != "" && !isShellTool(cmd.ToolName) {
		return types.PassThrough(types.ReasonNotShell)
	}

	// Tier 2: emptiness.
	trimmed := strings.TrimSpace(cmd.Text)
	if trimmed == "" {
		return types.PassThrough(types.ReasonEmpty)
	}

	// Tier 3: shell complexity.
	if hasComplexShellSyntax(trimmed) {
		return types.PassThrough(types.ReasonComplexShell)
	}

	// Tier 4: keyword presence, a flat substring scan.
	if !containsKeyword(trimmed) {
		return types.PassThrough(types.ReasonNoKeyword)
	}

	tokens := tokenize(trimmed)
	if len(tokens) == 0 {
		return types.PassThrough(types.ReasonEmpty)
	}

	if isNegative(tokens) {
		return types.PassThrough(types.ReasonNegative)
	}

	kind, runtime, artifacts, confidence, matched := matchPositive(tokens)
	if !matched || confidence < threshold {
		return types.PassThrough(types.ReasonLowConfidence)
	}

	return types.Intercept(kind, confidence, runtime, cmd.WorkingDir, artifacts)
}

func isShellTool(tool string) bool {
	return strings.EqualFold(tool, "Bash") || strings.EqualFold(tool, "shell")
}

// hasComplexShellSyntax reports whether cmd contains metacharacters that
// change execution semantics in a way a single remote invocation can't
// faithfully reproduce.
func hasComplexShellSyntax(cmd string) bool {
	for _, tok := range complexShellTokens {
		if strings.Contains(cmd, tok) {
			return true
		}
	}
	return hasStandaloneAmpersand(cmd)
}

// hasStandaloneAmpersand reports whether cmd contains a "&" that is not
// part of an "&&" pair, anywhere in the string — not just trailing. A bare
// "&" backgrounds the preceding pipeline wherever it appears (e.g.
// "cargo build & sleep 5"), so it forces the same PassThrough{ComplexShell}
// a trailing one does (spec.md §4.1, §8).
func hasStandaloneAmpersand(cmd string) bool {
	for i := 0; i < len(cmd); i++ {
		if cmd[i] != '&' {
			continue
		}
		prevIsAmp := i > 0 && cmd[i-1] == '&'
		nextIsAmp := i+1 < len(cmd) && cmd[i+1] == '&'
		if !prevIsAmp && !nextIsAmp {
			return true
		}
	}
	return false
}

// containsKeyword is the tier-4 flat substring scan. The observable contract
// is byte-exact substring presence (spec.md §4.1); this loop is the
// straightforward implementation of that contract.
func containsKeyword(cmd string) bool {
	for _, kw := range keywords {
		if strings.Contains(cmd, kw) {
			return true
		}
	}
	return false
}

// tokenize splits the command into whitespace-delimited tokens and skips any
// leading NAME=value environment assignments (spec.md §4.1).
func tokenize(cmd string) []string {
	fields := strings.Fields(cmd)
	i := 0
	for i < len(fields) && isEnvAssignment(fields[i]) {
		i++
	}
	return fields[i:]
}

func isEnvAssignment(tok string) bool {
	eq := strings.IndexByte(tok, '=')
	if eq <= 0 {
		return false
	}
	name := tok[:eq]
	for i, r := range name {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isLetter {
			return false
		}
		if i > 0 && !isLetter && !isDigit {
			return false
		}
	}
	return true
}

func isNegative(tokens []string) bool {
	for _, flag := range negativeFlags {
		for _, tok := range tokens {
			if tok == flag {
				return true
			}
		}
	}

	keyword := tokens[0]
	negatives, ok := negativeTokensByKeyword[keyword]
	if !ok || len(tokens) < 2 {
		return false
	}
	sub := tokens[1]
	for _, neg := range negatives {
		if sub == neg {
			return true
		}
	}
	return false
}

// matchPositive finds the most specific matching pattern: longest literal
// token prefix wins; ties fall back to static table order (spec.md §4.1
// "Tie-breaking").
func matchPositive(tokens []string) (types.DecisionKind, types.Runtime, []string, float64, bool) {
	bestLen := -1
	bestIdx := -1

	for idx, p := range positivePatterns {
		if !hasPrefix(tokens, p.Tokens) {
			continue
		}
		if len(p.Tokens) > bestLen {
			bestLen = len(p.Tokens)
			bestIdx = idx
		}
	}

	if bestIdx == -1 {
		return "", "", nil, 0, false
	}
	p := positivePatterns[bestIdx]
	return p.Kind, p.Runtime, p.ArtifactPatterns, p.Confidence, true
}

func hasPrefix(tokens, prefix []string) bool {
	if len(tokens) < len(prefix) {
		return false
	}
	for i, tok := range prefix {
		if tokens[i] != tok {
			return false
		}
	}
	return true
}
