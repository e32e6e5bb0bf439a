package utils

import (
	"strings"
)

// SplitTokens parses a delimited sub-unit column. Empty input yields no tokens;
// malformed delimiters yield empty tokens so the count always matches the separators.
func SplitTokens(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, TokenDelimiter)
}

// JoinTokens serializes tokens into the delimited column form
func JoinTokens(tokens []string) string {
	return strings.Join(tokens, TokenDelimiter)
}

// TokenIndex returns the position of token within the delimited string s, or -1.
// Matching is exact per token, so "B" is not found in "AB|C".
func TokenIndex(s, token string) int {
	if token == "" {
		return -1
	}
	for i, t := range SplitTokens(s) {
		if t == token {
			return i
		}
	}
	return -1
}

// MatchPinToken reports whether pin equals the stored value or is one of its delimited tokens
func MatchPinToken(stored, pin string) bool {
	if pin == "" {
		return false
	}
	return stored == pin || TokenIndex(stored, pin) >= 0
}

// LegacySubstringMatch is the delimiter-bounded substring test of the old store
// ("|P|", "P|" prefix, "|P" suffix). Unlike MatchPinToken it accepts a pin that itself
// spans several tokens, e.g. "A|B" inside "A|B|C".
func LegacySubstringMatch(stored, pin string) bool {
	if pin == "" {
		return false
	}
	return stored == pin ||
		strings.Contains(stored, TokenDelimiter+pin+TokenDelimiter) ||
		strings.HasPrefix(stored, pin+TokenDelimiter) ||
		strings.HasSuffix(stored, TokenDelimiter+pin)
}

// AppendToken applies the artifact merge rule: an empty column takes the value, otherwise it is appended
func AppendToken(existing, value string) string {
	if existing == "" {
		return value
	}
	return existing + TokenDelimiter + value
}

// SetTokenAt writes value into position idx of the delimited string s, padding with empty tokens
func SetTokenAt(s string, idx int, value string) string {
	tokens := SplitTokens(s)
	for len(tokens) <= idx {
		tokens = append(tokens, "")
	}
	tokens[idx] = value
	return JoinTokens(tokens)
}

// HasArtifact reports whether an activation artifact is usable for customer delivery
func HasArtifact(artifact string) bool {
	a := strings.TrimSpace(artifact)
	return a != "" && a != ArtifactUnavailable
}

// FirstArtifact returns the first usable artifact among tokens
func FirstArtifact(tokens []string) string {
	for _, t := range tokens {
		if HasArtifact(t) {
			return t
		}
	}
	return ""
}
