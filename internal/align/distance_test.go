package align

import "testing"

func TestDistanceIdentity(t *testing.T) {
	for _, s := range []string{"", "a", "lettre", "Marceline Desbordes-Valmore", "à mon âme"} {
		if d := Distance(s, s); d != 0 {
			t.Errorf("Distance(%q, %q) = %d, want 0", s, s, d)
		}
	}
}

func TestDistanceSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"abc", "abd"},
		{"quikc brown", "quick brown"},
		{"mon bon ami", "mon ami"},
		{"élan", "elan"},
		{"", "xyz"},
	}
	for _, p := range pairs {
		if a, b := Distance(p[0], p[1]), Distance(p[1], p[0]); a != b {
			t.Errorf("Distance(%q, %q) = %d but reversed = %d", p[0], p[1], a, b)
		}
	}
}

// The zero first row and column let a match begin anywhere, so anything is
// at distance zero from the empty string. This differs from Levenshtein on
// purpose.
func TestDistanceEmptyMatchesAnywhere(t *testing.T) {
	if d := Distance("", ""); d != 0 {
		t.Errorf("Distance(\"\", \"\") = %d, want 0", d)
	}
	for _, s := range []string{"a", "some longer text"} {
		if d := Distance(s, ""); d != 0 {
			t.Errorf("Distance(%q, \"\") = %d, want 0", s, d)
		}
		if d := Distance("", s); d != 0 {
			t.Errorf("Distance(\"\", %q) = %d, want 0", s, d)
		}
	}
}

func TestDistanceValues(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"abc", "abd", 1},
		{"abc", "xyz", 3},
		{"quikc brown", "quick brown", 2},
		{"âme", "ame", 1},
	}
	for _, c := range cases {
		if got := Distance(c.a, c.b); got != c.want {
			t.Errorf("Distance(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestHammingScore(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"quikc brown", "quick brown", 2},
		{"abc", "ab", 1},
		{"", "ab", 2},
	}
	for _, c := range cases {
		if got := (Hamming{}).Score([]rune(c.a), []rune(c.b)); got != c.want {
			t.Errorf("Hamming(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestScorerByName(t *testing.T) {
	cases := map[string]string{
		"":            ScorerHamming,
		"hamming":     ScorerHamming,
		"Levenshtein": ScorerLevenshtein,
		" edit ":      ScorerLevenshtein,
	}
	for in, want := range cases {
		s, err := ScorerByName(in)
		if err != nil {
			t.Fatalf("ScorerByName(%q): %v", in, err)
		}
		if s.Name() != want {
			t.Errorf("ScorerByName(%q) = %s, want %s", in, s.Name(), want)
		}
	}
	if _, err := ScorerByName("dtw"); err == nil {
		t.Error("expected an error for an unknown scorer")
	}
}
