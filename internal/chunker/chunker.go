package chunker

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/seanblong/docquery/pkg/models"
)

// Provenance carries the source-document identity stamped onto every
// chunk built from it.
type Provenance struct {
	FileID    string
	Filename  string
	SourceURL string
}

// Chunker slides a fixed token window across a document's pages,
// tracking which pages each window touches.
type Chunker struct {
	size    int
	overlap int
}

// New builds a Chunker. Size and overlap come from configuration that is
// validated at startup, so out-of-range values are a programming error
// and New panics rather than returning one.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		panic(fmt.Sprintf("chunker: size must be > 0, got %d", size))
	}
	if overlap < 0 || overlap >= size {
		panic(fmt.Sprintf("chunker: overlap must be in [0, size), got overlap=%d size=%d", overlap, size))
	}
	return &Chunker{size: size, overlap: overlap}
}

type taggedToken struct {
	text string
	page int
}

// Chunk flattens the pages into one whitespace-tokenized stream, each
// token tagged with its originating page, and emits windows of size
// tokens with step size-overlap. Consecutive full windows share exactly
// overlap tokens; the final window may be shorter. An empty stream
// yields no chunks. Windows whose joined text trims to empty are
// skipped but still consume an index, so chunk ids stay stable.
func (c *Chunker) Chunk(pages []models.PageText, prov Provenance) []models.Chunk {
	var stream []taggedToken
	for _, p := range pages {
		for _, t := range strings.Fields(p.Text) {
			stream = append(stream, taggedToken{text: t, page: p.PageNumber})
		}
	}
	if len(stream) == 0 {
		return nil
	}

	step := c.size - c.overlap
	now := time.Now().UTC()

	var out []models.Chunk
	index := 0
	for start := 0; start < len(stream); start += step {
		end := start + c.size
		if end > len(stream) {
			end = len(stream)
		}
		window := stream[start:end]

		words := make([]string, len(window))
		pageStart, pageEnd := window[0].page, window[0].page
		for i, tok := range window {
			words[i] = tok.text
			if tok.page < pageStart {
				pageStart = tok.page
			}
			if tok.page > pageEnd {
				pageEnd = tok.page
			}
		}

		if text := strings.TrimSpace(strings.Join(words, " ")); text != "" {
			out = append(out, models.Chunk{
				ChunkID:    ChunkID(prov.FileID, index),
				FileID:     prov.FileID,
				Filename:   prov.Filename,
				SourceURL:  prov.SourceURL,
				PageStart:  pageStart,
				PageEnd:    pageEnd,
				Text:       text,
				IngestedAt: now,
			})
		}
		index++

		if end == len(stream) {
			break
		}
	}
	return out
}

// ChunkID derives a stable identifier from the file id and window
// index. Re-ingesting the same file overwrites its chunks in the store
// instead of duplicating them.
func ChunkID(fileID string, index int) string {
	h := sha1.Sum([]byte(fileID + "#" + fmt.Sprintf("%d", index)))
	return hex.EncodeToString(h[:])
}
