package search

// Mode selects which retrieval modalities feed the result set.
type Mode string

const (
	// ModeSparseLexical fuses the keyword and sparse-expansion
	// modalities only; no embedding call is made.
	ModeSparseLexical Mode = "sparse_lexical"
	// ModeHybrid fuses all three modalities.
	ModeHybrid Mode = "hybrid"
)

// ParseMode maps a user-supplied mode string to a Mode, defaulting to
// hybrid.
func ParseMode(s string) Mode {
	switch s {
	case string(ModeSparseLexical), "sparse", "elser":
		return ModeSparseLexical
	default:
		return ModeHybrid
	}
}

// Plan carries the per-modality sub-query parameters for one question.
// The kNN depth and candidate pool scale with top_k so the fuser has
// enough depth before truncation.
type Plan struct {
	Question      string
	TopK          int
	KNNK          int
	NumCandidates int
	WindowSize    int
	RankConstant  int
}

// NewPlan sizes the sub-queries for a question. top_k must be positive;
// non-positive values fall back to 5.
func NewPlan(question string, topK int) Plan {
	if topK <= 0 {
		topK = 5
	}
	return Plan{
		Question:      question,
		TopK:          topK,
		KNNK:          max(50, 10*topK),
		NumCandidates: max(100, 10*topK),
		WindowSize:    max(50, 10*topK),
		RankConstant:  60,
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
