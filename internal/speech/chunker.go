package speech

import (
	"strings"
	"unicode"
)

// Chunk is one bounded piece of text queued for synthesis. Index is the
// chunk's position in the original text; merge order relies on it alone.
type Chunk struct {
	Index   int
	Content string
}

// SplitText breaks text into chunks of at most maxChunkSize characters,
// preferring sentence boundaries and falling back to word boundaries.
// A single word longer than maxChunkSize is emitted whole as its own
// oversized chunk; content is never truncated. Blank input yields nil.
func SplitText(text string, maxChunkSize int) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if len(text) <= maxChunkSize {
		return []Chunk{{Index: 0, Content: text}}
	}

	var (
		chunks  []Chunk
		current strings.Builder
	)
	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Content: current.String()})
		current.Reset()
	}
	add := func(part string) {
		if current.Len() > 0 && current.Len()+1+len(part) > maxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(part)
	}

	for _, sentence := range splitSentences(text) {
		if len(sentence) <= maxChunkSize {
			add(sentence)
			continue
		}
		// Sentence alone is too long; pack whole words instead.
		for _, word := range strings.Fields(sentence) {
			if len(word) > maxChunkSize {
				// Unsplittable unit; keep it intact in a chunk of its own.
				flush()
				chunks = append(chunks, Chunk{Index: len(chunks), Content: word})
				continue
			}
			add(word)
		}
	}
	flush()
	return chunks
}

// splitSentences cuts text after sentence-ending punctuation, keeping the
// punctuation with its sentence.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)
	runes := []rune(text)
	for i, r := range runes {
		if !isSentenceEnd(r) {
			continue
		}
		// Swallow runs of terminators ("?!", "...") as one boundary.
		if i+1 < len(runes) && isSentenceEnd(runes[i+1]) {
			continue
		}
		s := strings.TrimSpace(string(runes[start : i+1]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return unicode.Is(unicode.Sentence_Terminal, r)
}
