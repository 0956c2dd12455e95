package answer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/docquery/internal/ai"
	"github.com/seanblong/docquery/internal/search"
	"github.com/seanblong/docquery/pkg/models"
)

// NoEvidenceRefusal is returned verbatim when retrieval finds nothing
// or the language model fails. The caller distinguishes the two cases
// by status, never by answer text.
const NoEvidenceRefusal = "I don't know."

// citationPattern matches bracketed chunk ids in model output. Ids
// shorter than six characters are too easy to hallucinate, so they are
// ignored.
var citationPattern = regexp.MustCompile(`\[([A-Za-z0-9_-]{6,})\]`)

// Retriever is the slice of the search service the generator needs.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int, mode search.Mode) ([]search.Evidence, error)
}

// Generator runs the full answer path: safety gate, retrieval, prompt
// assembly, generation, citation validation.
type Generator struct {
	Client      ai.Client
	Retriever   Retriever
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// NewGenerator wires a generator over an AI client and a retriever.
func NewGenerator(client ai.Client, retriever Retriever) *Generator {
	return &Generator{
		Client:      client,
		Retriever:   retriever,
		Temperature: 0.1,
		MaxTokens:   256,
		Timeout:     120 * time.Second,
	}
}

// Answer produces a grounded answer for the question, or a refusal.
// Ranked evidence is returned alongside the result so callers can show
// sources even when the model cited nothing.
func (g *Generator) Answer(ctx context.Context, question string, topK int, mode search.Mode) (models.GenerationResult, []search.Evidence, error) {
	if !IsSafe(question) {
		log.Info().Msg("question blocked by safety gate")
		return models.GenerationResult{
			Answer:    SafetyRefusal,
			Citations: []string{},
			Status:    models.StatusRefusedUnsafe,
		}, nil, nil
	}

	evidence, err := g.Retriever.Retrieve(ctx, question, topK, mode)
	if err != nil {
		return models.GenerationResult{}, nil, fmt.Errorf("retrieve evidence: %w", err)
	}
	if len(evidence) == 0 {
		return models.GenerationResult{
			Answer:    NoEvidenceRefusal,
			Citations: []string{},
			Status:    models.StatusNoEvidence,
		}, evidence, nil
	}

	prompt := buildPrompt(question, evidence)

	genCtx := ctx
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	raw, err := g.Client.Generate(genCtx, prompt, g.Temperature, g.MaxTokens)
	if err != nil {
		// Evidence existed, so a model failure is not "no evidence";
		// the answer text is the same refusal but the status differs.
		log.Error().Err(err).Msg("generation failed")
		return models.GenerationResult{
			Answer:    NoEvidenceRefusal,
			Citations: []string{},
			Status:    models.StatusGenerationError,
		}, evidence, nil
	}

	answer := strings.TrimSpace(raw)
	return models.GenerationResult{
		Answer:    answer,
		Citations: extractCitations(answer, evidence),
		Status:    models.StatusAnswered,
	}, evidence, nil
}

// buildPrompt lays the evidence out as bracket-tagged context blocks
// and instructs the model to answer from them alone, citing by tag.
func buildPrompt(question string, evidence []search.Evidence) string {
	blocks := make([]string, 0, len(evidence))
	for _, e := range evidence {
		header := fmt.Sprintf("[%s] %s (p.%d-%d)",
			e.Hit.ChunkID, e.Hit.Filename, e.Hit.PageRange.Start, e.Hit.PageRange.End)
		blocks = append(blocks, header+"\n"+e.Text)
	}

	var b strings.Builder
	b.WriteString("You are a document assistant. Answer the question using ONLY the context below.\n")
	b.WriteString("Cite the chunks you used with their bracketed ids, e.g. [")
	b.WriteString(evidence[0].Hit.ChunkID)
	b.WriteString("].\nIf the context does not contain the answer, reply exactly: ")
	b.WriteString(NoEvidenceRefusal)
	b.WriteString("\n\nContext:\n")
	b.WriteString(strings.Join(blocks, "\n\n---\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

// extractCitations pulls bracketed ids from the answer and keeps only
// those that name a retrieved chunk, deduplicated in first-seen order.
// Anything else the model invented is dropped silently.
func extractCitations(answer string, evidence []search.Evidence) []string {
	valid := make(map[string]bool, len(evidence))
	for _, e := range evidence {
		valid[e.Hit.ChunkID] = true
	}

	citations := []string{}
	seen := make(map[string]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(answer, -1) {
		id := m[1]
		if !valid[id] || seen[id] {
			continue
		}
		seen[id] = true
		citations = append(citations, id)
	}
	return citations
}
