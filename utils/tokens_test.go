package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTokens(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "single", in: "P1", want: []string{"P1"}},
		{name: "many", in: "A|B|C", want: []string{"A", "B", "C"}},
		{name: "empty middle token", in: "A||C", want: []string{"A", "", "C"}},
		{name: "trailing delimiter", in: "A|", want: []string{"A", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitTokens(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.in != "" {
				assert.Equal(t, tt.in, JoinTokens(got))
			}
		})
	}
}

func TestMatchPinToken(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		pin    string
		want   bool
	}{
		{name: "exact single unit", stored: "P1", pin: "P1", want: true},
		{name: "first token", stored: "A|B|C", pin: "A", want: true},
		{name: "middle token", stored: "A|B|C", pin: "B", want: true},
		{name: "last token", stored: "A|B|C", pin: "C", want: true},
		{name: "no partial token match", stored: "AB|C", pin: "B", want: false},
		{name: "no prefix digit match", stored: "112|34", pin: "12", want: false},
		{name: "empty pin", stored: "A|B", pin: "", want: false},
		{name: "multi-token needle", stored: "A|B|C", pin: "A|B", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchPinToken(tt.stored, tt.pin))
		})
	}
}

func TestLegacySubstringMatchDiffersOnlyForMultiTokenNeedles(t *testing.T) {
	assert.True(t, LegacySubstringMatch("A|B|C", "B"))
	assert.False(t, LegacySubstringMatch("AB|C", "B"))
	assert.False(t, LegacySubstringMatch("112|34", "12"))

	assert.True(t, LegacySubstringMatch("A|B|C", "A|B"))
	assert.False(t, MatchPinToken("A|B|C", "A|B"))
}

func TestAppendAndSetToken(t *testing.T) {
	assert.Equal(t, "Q1", AppendToken("", "Q1"))
	assert.Equal(t, "Q1|Q2", AppendToken("Q1", "Q2"))

	assert.Equal(t, "Q1", SetTokenAt("", 0, "Q1"))
	assert.Equal(t, "||Q3", SetTokenAt("", 2, "Q3"))
	assert.Equal(t, "Q1|Q2|Q3", SetTokenAt("Q1||Q3", 1, "Q2"))
}

func TestHasArtifact(t *testing.T) {
	assert.False(t, HasArtifact(""))
	assert.False(t, HasArtifact("  "))
	assert.False(t, HasArtifact("N/A"))
	assert.True(t, HasArtifact("LPA:1$abc"))
	assert.Equal(t, "Q3", FirstArtifact([]string{"", "N/A", "Q3"}))
}

func TestLocalPhone(t *testing.T) {
	assert.Equal(t, "01012345678", LocalPhone("1012345678"))
	assert.Equal(t, "01012345678", LocalPhone("010-1234-5678"))
	assert.Equal(t, "", LocalPhone(""))
}
