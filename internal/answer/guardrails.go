package answer

import "strings"

// SafetyRefusal is the fixed response for questions the gate blocks.
// Identical wording regardless of which phrase matched, so the reply
// leaks nothing about the block list.
const SafetyRefusal = "I can't help with that."

// blockedPhrases are matched as case-insensitive substrings of the
// question before any retrieval or generation work happens.
var blockedPhrases = []string{
	"build a bomb",
	"make a weapon",
	"self-harm",
	"suicide",
	"credit card generator",
}

// IsSafe reports whether a question passes the pre-retrieval gate.
func IsSafe(question string) bool {
	q := strings.ToLower(question)
	for _, phrase := range blockedPhrases {
		if strings.Contains(q, phrase) {
			return false
		}
	}
	return true
}
