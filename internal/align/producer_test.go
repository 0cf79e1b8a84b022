package align

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
)

const french = "il y a toujours quelque chose de grave pour arrêter l'élan de mon âme, n'est-ce pas ? voilà tout ce que je voulais te dire ce soir."

func newTestProducer(t *testing.T, cfg ProducerConfig) *Producer {
	t.Helper()
	p, err := NewProducer(cfg)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	return p
}

func TestProduceShortLinesUnderDefaultPolicy(t *testing.T) {
	p := newTestProducer(t, ProducerConfig{})
	res, err := p.Produce("page-1", []string{"quick brown", "lazy dog"}, fox)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	if len(res.Accepted) != 0 {
		t.Errorf("accepted %+v, want none", res.Accepted)
	}
	want := []Rejection{
		{Pattern: "quick brown", PatternIndex: 0, MatchedText: "quick brown", Score: 0, Reason: ReasonTextTooShort},
		{Pattern: "lazy dog", PatternIndex: 1, MatchedText: "lazy dog", Score: 0, Reason: ReasonTextTooShort},
	}
	if !reflect.DeepEqual(res.Rejected, want) {
		t.Errorf("rejected = %+v\nwant %+v", res.Rejected, want)
	}
}

func TestProduceShortLinesUnderRelaxedPolicy(t *testing.T) {
	policy := DefaultAcceptancePolicy()
	policy.MinTextLength = 0
	policy.ShortSlope = 0
	policy.ShortIntercept = 0.5

	p := newTestProducer(t, ProducerConfig{Policy: &policy})
	res, err := p.Produce("page-1", []string{"quick brown", "lazy dog"}, fox)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	want := []Alignment{
		{Pattern: "quick brown", PatternIndex: 0, MatchedText: "quick brown", Score: 0, Start: 4, End: 15},
		{Pattern: "lazy dog", PatternIndex: 1, MatchedText: "lazy dog", Score: 0, Start: 35, End: 43},
	}
	if !reflect.DeepEqual(res.Accepted, want) {
		t.Errorf("accepted = %+v\nwant %+v", res.Accepted, want)
	}
	if len(res.Rejected) != 0 || len(res.Skipped) != 0 {
		t.Errorf("unexpected rejected %v skipped %v", res.Rejected, res.Skipped)
	}
}

func TestProduceTransposedLetters(t *testing.T) {
	lines := []string{"quikc brown", "lazy dog"}

	t.Run("default policy", func(t *testing.T) {
		res, err := newTestProducer(t, ProducerConfig{}).Produce("page-1", lines, fox)
		if err != nil {
			t.Fatalf("Produce: %v", err)
		}
		if len(res.Accepted) != 0 {
			t.Fatalf("accepted %+v, want none", res.Accepted)
		}
		if len(res.Rejected) != 2 {
			t.Fatalf("rejected %+v, want 2 lines", res.Rejected)
		}
		got := res.Rejected[0]
		if got.Pattern != "quikc brown" || got.MatchedText != "quick brown" || got.Reason != ReasonTextTooShort {
			t.Errorf("rejection = %+v", got)
		}
		if math.Abs(got.Score-2.0/11) > 1e-9 {
			t.Errorf("score = %v, want 2/11", got.Score)
		}
		if res.Rejected[1].MatchedText != "lazy dog" || res.Rejected[1].Reason != ReasonTextTooShort {
			t.Errorf("rejection = %+v", res.Rejected[1])
		}
	})

	t.Run("relaxed policy", func(t *testing.T) {
		policy := DefaultAcceptancePolicy()
		policy.MinTextLength = 0
		policy.ShortSlope = 0
		policy.ShortIntercept = 0.5

		res, err := newTestProducer(t, ProducerConfig{Policy: &policy}).Produce("page-1", lines, fox)
		if err != nil {
			t.Fatalf("Produce: %v", err)
		}
		if len(res.Accepted) != 2 || len(res.Rejected) != 0 {
			t.Fatalf("accepted %+v rejected %+v, want both lines accepted", res.Accepted, res.Rejected)
		}
		got := res.Accepted[0]
		if got.Pattern != "quikc brown" || got.MatchedText != "quick brown" || got.Start != 4 || got.End != 15 {
			t.Errorf("alignment = %+v, want quick brown at [4,15)", got)
		}
		if math.Abs(got.Score-2.0/11) > 1e-9 {
			t.Errorf("score = %v, want 2/11", got.Score)
		}
	})
}

func TestProduceNoisyLine(t *testing.T) {
	p := newTestProducer(t, ProducerConfig{})
	lines := []string{"", "toujours quelque chose de grave pour arreter", "   ", "zzzzzzzzzzzzzzzzzzzzzzzz"}
	res, err := p.Produce("lettre-12", lines, french)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	if res.DocumentID != "lettre-12" {
		t.Errorf("document id = %q", res.DocumentID)
	}
	if len(res.Accepted) != 1 {
		t.Fatalf("accepted %d alignments, want 1: %+v", len(res.Accepted), res.Accepted)
	}
	a := res.Accepted[0]
	if a.PatternIndex != 1 || a.MatchedText != "toujours quelque chose de grave pour arrêter" {
		t.Errorf("alignment = %+v", a)
	}
	if a.Start != 7 || a.End != 51 {
		t.Errorf("offsets = [%d,%d), want [7,51)", a.Start, a.End)
	}
	if a.Score <= 0 || a.Score > 0.05 {
		t.Errorf("score = %v, want one substitution over 44 runes", a.Score)
	}

	if len(res.Rejected) != 1 || res.Rejected[0].PatternIndex != 3 || res.Rejected[0].Reason != ReasonScoreAboveThreshold {
		t.Errorf("rejected = %+v, want pattern 3 above threshold", res.Rejected)
	}
	if !reflect.DeepEqual(res.Skipped, []int{0, 2}) {
		t.Errorf("skipped = %v, want [0 2]", res.Skipped)
	}
	if got := res.Unmatched(); !reflect.DeepEqual(got, []int{0, 2, 3}) {
		t.Errorf("unmatched = %v, want [0 2 3]", got)
	}
}

func TestProduceReferenceTooShort(t *testing.T) {
	p := newTestProducer(t, ProducerConfig{})
	_, err := p.Produce("page", []string{"a line that cannot fit"}, "short")
	if !errors.Is(err, ErrReferenceTooShort) {
		t.Fatalf("err = %v, want ErrReferenceTooShort", err)
	}
}

func TestProduceSkipsLongLineWhenAnotherFits(t *testing.T) {
	p := newTestProducer(t, ProducerConfig{})
	res, err := p.Produce("page", []string{"far too long for this reference", "ref"}, "a ref")
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !reflect.DeepEqual(res.Skipped, []int{0}) {
		t.Errorf("skipped = %v, want [0]", res.Skipped)
	}
}

func TestProduceBlankLinesOnly(t *testing.T) {
	p := newTestProducer(t, ProducerConfig{})
	res, err := p.Produce("page", []string{"", "  "}, "x")
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(res.Accepted) != 0 || len(res.Rejected) != 0 {
		t.Errorf("got %+v, want nothing aligned", res)
	}
	if !reflect.DeepEqual(res.Skipped, []int{0, 1}) {
		t.Errorf("skipped = %v", res.Skipped)
	}
}

func TestProduceIsIdempotent(t *testing.T) {
	p := newTestProducer(t, ProducerConfig{Workers: 3})
	lines := []string{"toujours quelque chose de grave pour arreter", "voila tout ce que je voulais", "", "te dire ce soir."}
	first, err := p.Produce("doc", lines, french)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	second, err := p.Produce("doc", lines, french)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestProduceCurateDropsBackwardJump(t *testing.T) {
	reference := "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu"
	lines := []string{"epsilon zeta eta theta", "alpha beta gamma delta"}

	plain := newTestProducer(t, ProducerConfig{})
	res, err := plain.Produce("doc", lines, reference)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(res.Accepted) != 2 {
		t.Fatalf("without curation accepted %d, want 2", len(res.Accepted))
	}

	curated := newTestProducer(t, ProducerConfig{Curate: true})
	res, err = curated.Produce("doc", lines, reference)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(res.Accepted) != 1 || res.Accepted[0].PatternIndex != 0 {
		t.Errorf("accepted = %+v, want pattern 0 only", res.Accepted)
	}
	if len(res.Rejected) != 1 || res.Rejected[0].PatternIndex != 1 || res.Rejected[0].Reason != ReasonNotMonotonic {
		t.Errorf("rejected = %+v, want pattern 1 not monotonic", res.Rejected)
	}
}

func TestProduceContextCancelled(t *testing.T) {
	p := newTestProducer(t, ProducerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.ProduceContext(ctx, "doc", []string{"brown fox"}, fox); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewProducerRejectsBadPolicy(t *testing.T) {
	policy := DefaultAcceptancePolicy()
	policy.LongLength = 10
	if _, err := NewProducer(ProducerConfig{Policy: &policy}); err == nil {
		t.Error("expected an error for an unordered policy")
	}
}
