package align

import (
	"context"
	"math"
	"sort"
	"time"
)

// ProducerConfig configures a Producer. Zero values select the defaults.
type ProducerConfig struct {
	Scorer Scorer
	// Workers bounds concurrent pattern searches within one page.
	Workers int
	// CompletionThreshold bounds word completion; nil means
	// DefaultCompletionThreshold, a negative value means unbounded.
	CompletionThreshold *int
	Policy              *AcceptancePolicy
	// Curate enables the monotonic start-offset pass over accepted lines.
	Curate bool
	Logger Logger
}

// Producer turns OCR lines and a reference text into alignments.
// A Producer holds no per-document state and may be shared by goroutines.
type Producer struct {
	matcher   *Matcher
	threshold int
	policy    AcceptancePolicy
	curate    bool
	logger    Logger
}

// NewProducer builds a producer from cfg.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	policy := DefaultAcceptancePolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	threshold := DefaultCompletionThreshold
	if cfg.CompletionThreshold != nil {
		threshold = *cfg.CompletionThreshold
	}

	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Producer{
		matcher:   NewMatcher(cfg.Scorer, cfg.Workers),
		threshold: threshold,
		policy:    policy,
		curate:    cfg.Curate,
		logger:    logger,
	}, nil
}

// Policy returns the acceptance policy in use.
func (p *Producer) Policy() AcceptancePolicy { return p.policy }

// Produce aligns every OCR line of one document page against reference.
func (p *Producer) Produce(documentID string, ocrLines []string, reference string) (*Result, error) {
	return p.ProduceContext(context.Background(), documentID, ocrLines, reference)
}

// ProduceContext is Produce with cancellation between patterns.
func (p *Producer) ProduceContext(ctx context.Context, documentID string, ocrLines []string, reference string) (*Result, error) {
	startTime := time.Now()
	ref := []rune(reference)

	if err := checkReference(ocrLines, len(ref)); err != nil {
		return nil, err
	}

	candidates, err := p.matcher.AlignPatternsContext(ctx, ocrLines, reference)
	if err != nil {
		return nil, err
	}

	result := &Result{
		DocumentID: documentID,
		Accepted:   make([]Alignment, 0, len(candidates)),
	}

	next := 0
	for _, c := range candidates {
		for ; next < c.PatternIndex; next++ {
			result.Skipped = append(result.Skipped, next)
		}
		next = c.PatternIndex + 1

		alignment, reason := p.judge(c, ref)
		if reason != "" {
			result.Rejected = append(result.Rejected, Rejection{
				Pattern:      c.Pattern,
				PatternIndex: c.PatternIndex,
				MatchedText:  alignment.MatchedText,
				Score:        alignment.Score,
				Reason:       reason,
			})
			p.logger.Debug("no reliable match",
				"document", documentID, "pattern", c.PatternIndex,
				"score", alignment.Score, "reason", string(reason))
			continue
		}

		result.Accepted = append(result.Accepted, alignment)
		p.logger.Debug("aligned",
			"document", documentID, "pattern", c.PatternIndex,
			"score", alignment.Score, "start", alignment.Start, "text", alignment.MatchedText)
	}
	for ; next < len(ocrLines); next++ {
		result.Skipped = append(result.Skipped, next)
	}

	if p.curate {
		kept, dropped := CurateMonotonic(result.Accepted)
		result.Accepted = kept
		if len(dropped) > 0 {
			for _, a := range dropped {
				result.Rejected = append(result.Rejected, Rejection{
					Pattern:      a.Pattern,
					PatternIndex: a.PatternIndex,
					MatchedText:  a.MatchedText,
					Score:        a.Score,
					Reason:       ReasonNotMonotonic,
				})
			}
			sortRejections(result.Rejected)
			p.logger.Info("dropped non-monotonic alignments", "document", documentID, "count", len(dropped))
		}
	}

	p.logger.Debug("alignment finished",
		"document", documentID,
		"patterns", len(ocrLines),
		"accepted", len(result.Accepted),
		"rejected", len(result.Rejected),
		"skipped", len(result.Skipped),
		"duration", time.Since(startTime).String())

	return result, nil
}

// judge completes the candidate to whole words and scores it. A non-empty
// reason means the candidate is rejected.
func (p *Producer) judge(c MatchCandidate, ref []rune) (Alignment, RejectReason) {
	lo, hi := CompleteSpan(ref, c.Start, c.End, p.threshold)
	completed := ref[lo:hi]
	pattern := []rune(c.Pattern)

	score := float64(c.RawScore) / float64(len(pattern))
	if len(completed) > 0 {
		cer := float64(levenshtein(pattern, completed)) / float64(len(completed))
		score = math.Min(score, cer)
	}

	a := Alignment{
		Pattern:      c.Pattern,
		PatternIndex: c.PatternIndex,
		MatchedText:  string(completed),
		Score:        score,
		Start:        lo,
		End:          hi,
	}

	if !p.policy.AcceptText(len(completed)) {
		return a, ReasonTextTooShort
	}
	if !p.policy.Accept(len(pattern), score) {
		return a, ReasonScoreAboveThreshold
	}
	return a, ""
}

// checkReference fails only when no usable pattern could fit the reference.
func checkReference(patterns []string, refLen int) error {
	shortest := -1
	for _, pat := range patterns {
		if isBlank(pat) {
			continue
		}
		n := len([]rune(pat))
		if shortest < 0 || n < shortest {
			shortest = n
		}
	}
	if shortest > refLen {
		return ErrReferenceTooShort
	}
	return nil
}

func sortRejections(r []Rejection) {
	sort.SliceStable(r, func(i, j int) bool { return r[i].PatternIndex < r[j].PatternIndex })
}
