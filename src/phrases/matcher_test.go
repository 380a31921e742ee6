package phrases

import "testing"

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"Open, Sesame!":         "opensesame",
		"  The Cat wore a HAT ": "thecatworeahat",
		"café 42":               "caf42",
		"":                      "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
		if again := Normalize(Normalize(in)); again != Normalize(in) {
			t.Errorf("Normalize not idempotent for %q", in)
		}
	}
}

func TestSubstringWinsAtZeroThreshold(t *testing.T) {
	m, ok := Compare("sesame", "well, open sesame please", 0)
	if !ok || !m.Substring {
		t.Fatalf("expected substring match, got %+v ok=%v", m, ok)
	}
}

func TestFuzzyBoundary(t *testing.T) {
	// len("sesame") = 6, 6 * 0.45 = 2.7 -> max distance 2
	tests := []struct {
		transcript string
		distance   int
		want       bool
	}{
		{"sezame", 1, true},
		{"sasamo", 2, true},
		{"tasamo", 3, false},
	}
	for _, tt := range tests {
		m, ok := Compare("sesame", tt.transcript, DefaultThreshold)
		if ok != tt.want {
			t.Errorf("Compare(sesame, %q) = %v, want %v", tt.transcript, ok, tt.want)
		}
		if ok && m.Distance != tt.distance {
			t.Errorf("distance for %q = %d, want %d", tt.transcript, m.Distance, tt.distance)
		}
	}
}

func TestIsCloseMatchScenario(t *testing.T) {
	if !IsCloseMatch("the cat wore a hat", "um, the cat wore a hat I think", DefaultThreshold) {
		t.Fatal("expected match")
	}
	if IsCloseMatch("the cat wore a hat", "purple elephants dancing", DefaultThreshold) {
		t.Fatal("unexpected match")
	}
}

func TestEmptyKeyNeverMatches(t *testing.T) {
	if IsCloseMatch("?!", "anything at all", DefaultThreshold) {
		t.Fatal("punctuation-only key matched")
	}
}

func TestBestIsDeterministic(t *testing.T) {
	keys := []string{"zebra crossing", "sesame", "sesame street"}

	m, ok := Best(keys, "open sesame street now", DefaultThreshold)
	if !ok {
		t.Fatal("expected a match")
	}
	// Both "sesame" and "sesame street" are contained; lexical order decides.
	if m.Key != "sesame" {
		t.Fatalf("Best = %q, want %q", m.Key, "sesame")
	}

	// Reordering the input does not change the winner.
	m2, _ := Best([]string{"sesame street", "zebra crossing", "sesame"}, "open sesame street now", DefaultThreshold)
	if m2.Key != m.Key {
		t.Fatalf("Best depends on input order: %q vs %q", m2.Key, m.Key)
	}
}

func TestBestPrefersSubstringOverFuzzy(t *testing.T) {
	keys := []string{"sezame", "sesame"}
	m, ok := Best(keys, "sesame", DefaultThreshold)
	if !ok || m.Key != "sesame" || !m.Substring {
		t.Fatalf("Best = %+v, want exact sesame", m)
	}
}

func TestBestNoMatch(t *testing.T) {
	if _, ok := Best([]string{"alpha", "beta"}, "completely different words", DefaultThreshold); ok {
		t.Fatal("expected no match")
	}
}
