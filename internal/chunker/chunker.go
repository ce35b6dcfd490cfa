// Package chunker splits normalized document text into overlapping
// segments suitable for embedding and retrieval.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Default chunking constants. These values are deliberate: a chunk may
// grow by up to SentenceLookahead characters to end on a sentence
// terminator, and consecutive chunks share Overlap characters so that
// context spanning a chunk boundary remains retrievable.
const (
	DefaultMaxChunkSize      = 1000
	DefaultOverlap           = 200
	DefaultSentenceLookahead = 100
)

// ErrInvalidConfig indicates invalid chunker configuration.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// whitespaceRun matches one or more consecutive whitespace characters.
var whitespaceRun = regexp.MustCompile(`\s+`)

// Chunk is a bounded substring of a source document. It is the unit of
// embedding and retrieval and is immutable once produced.
type Chunk struct {
	// Text is the chunk content, trimmed of surrounding whitespace.
	Text string

	// DocumentID identifies the source document.
	DocumentID string

	// Index is the zero-based emission order of the chunk.
	Index int
}

// Config holds chunking parameters.
type Config struct {
	// MaxChunkSize is the nominal chunk length in characters.
	MaxChunkSize int

	// Overlap is the number of characters consecutive chunks share.
	// Must be strictly less than MaxChunkSize or chunking cannot
	// make progress.
	Overlap int

	// SentenceLookahead is how far past the nominal chunk end the
	// chunker searches for a sentence terminator before falling back
	// to a word boundary.
	SentenceLookahead int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = DefaultMaxChunkSize
	}
	if c.Overlap == 0 {
		c.Overlap = DefaultOverlap
	}
	if c.SentenceLookahead == 0 {
		c.SentenceLookahead = DefaultSentenceLookahead
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: max chunk size must be positive, got %d", ErrInvalidConfig, c.MaxChunkSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidConfig, c.Overlap)
	}
	if c.Overlap >= c.MaxChunkSize {
		return fmt.Errorf("%w: overlap %d must be less than max chunk size %d", ErrInvalidConfig, c.Overlap, c.MaxChunkSize)
	}
	if c.SentenceLookahead < 0 {
		return fmt.Errorf("%w: sentence lookahead cannot be negative, got %d", ErrInvalidConfig, c.SentenceLookahead)
	}
	return nil
}

// Chunker splits normalized text into overlapping chunks.
type Chunker struct {
	config Config
}

// New creates a Chunker with the given configuration.
func New(config Config) (*Chunker, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{config: config}, nil
}

// Normalize collapses whitespace runs to single spaces and trims the
// result. Split expects its input in this form.
func Normalize(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// Split divides text into overlapping chunks.
//
// Each chunk nominally spans MaxChunkSize characters from the cursor.
// When the nominal end falls inside the text, the boundary is adjusted:
// a sentence terminator within SentenceLookahead characters past the
// end extends the chunk to just after it; otherwise the chunk shrinks
// to the last space before the end; otherwise the hard boundary stands
// (a single token longer than the chunk size is split mid-token).
//
// The cursor advances by MaxChunkSize-Overlap each iteration, so
// consecutive chunks share Overlap characters of text.
//
// Empty input yields no chunks. Input shorter than MaxChunkSize yields
// exactly one chunk containing the whole trimmed text.
func (c *Chunker) Split(documentID, text string) []Chunk {
	if text == "" {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + c.config.MaxChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.adjustBoundary(text, start, end)
		}

		chunks = append(chunks, Chunk{
			Text:       strings.TrimSpace(text[start:end]),
			DocumentID: documentID,
			Index:      len(chunks),
		})

		start = min(start+c.config.MaxChunkSize-c.config.Overlap, len(text))
		if start >= len(text)-1 {
			break
		}
	}
	return chunks
}

// adjustBoundary moves a chunk end off a mid-sentence or mid-word
// position. Only called when end < len(text).
//
// The word-boundary search includes the byte at end itself, so a
// nominal boundary landing exactly on a space keeps the full word
// before it. Offsets are byte-based; a single spaceless token longer
// than MaxChunkSize bytes of multi-byte text can hard-split inside a
// rune, which trimming tolerates and embedding treats as opaque bytes.
func (c *Chunker) adjustBoundary(text string, start, end int) int {
	if i := strings.IndexByte(text[end:], '.'); i >= 0 && i < c.config.SentenceLookahead {
		return end + i + 1
	}
	if i := strings.LastIndexByte(text[start:end+1], ' '); i > 0 {
		return start + i
	}
	return end
}
