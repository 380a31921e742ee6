// Package phrases decides whether a live transcript names one of the
// configured passphrases.
//
// Both sides are normalized (lowercase, ASCII letters and digits only) before
// comparison. A phrase matches when the normalized transcript contains it, or
// failing that, when the Levenshtein distance between the two is at most
// len(phrase) * threshold.
//
// Phrase sets should be designed so that no transcript matches two phrases.
// When it happens anyway, Best picks deterministically: containment beats
// fuzzy, then the smaller distance wins, then the lexically smaller key.
package phrases

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// DefaultThreshold is the fraction of the phrase length allowed as edit
// distance.
const DefaultThreshold = 0.45

// Normalize lowercases s and drops every rune that is not an ASCII letter or
// digit.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Match describes how a phrase matched a transcript.
type Match struct {
	Key       string
	Substring bool
	Distance  int
}

// Compare reports whether phrase matches transcript under threshold.
func Compare(phrase, transcript string, threshold float64) (Match, bool) {
	np := Normalize(phrase)
	nt := Normalize(transcript)

	// A key with no letters or digits would be contained in everything.
	if np == "" {
		return Match{}, false
	}

	if strings.Contains(nt, np) {
		return Match{Key: phrase, Substring: true}, true
	}

	d := levenshtein.ComputeDistance(np, nt)
	if float64(d) <= float64(len(np))*threshold {
		return Match{Key: phrase, Distance: d}, true
	}
	return Match{}, false
}

// IsCloseMatch reports whether phrase matches transcript under threshold.
func IsCloseMatch(phrase, transcript string, threshold float64) bool {
	_, ok := Compare(phrase, transcript, threshold)
	return ok
}

// Best returns the winning phrase among keys for transcript.
func Best(keys []string, transcript string, threshold float64) (Match, bool) {
	var matches []Match
	for _, k := range keys {
		if m, ok := Compare(k, transcript, threshold); ok {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return Match{}, false
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Substring != b.Substring {
			return a.Substring
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.Key < b.Key
	})
	return matches[0], true
}
