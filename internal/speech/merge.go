package speech

import (
	"sort"
	"strings"
)

// MergeAudio reassembles synthesis results into one buffer: failed chunks
// are dropped, survivors are sorted by original index and concatenated.
// Byte-level concatenation is only valid because workers return headerless
// PCM; container wrapping happens after the merge. Zero successes yield an
// empty buffer.
func MergeAudio(results []Result[[]byte]) []byte {
	ok := succeeded(results)
	if len(ok) == 0 {
		return nil
	}
	total := 0
	for _, r := range ok {
		total += len(r.Value)
	}
	merged := make([]byte, 0, total)
	for _, r := range ok {
		merged = append(merged, r.Value...)
	}
	return merged
}

// MergeTranscripts reassembles transcription results: failed windows are
// dropped, survivors sorted by index and joined with single spaces.
// Immediately repeated tokens are collapsed case-insensitively, a
// heuristic for words duplicated by window overlap, not a semantic merge.
func MergeTranscripts(results []Result[string]) string {
	ok := succeeded(results)
	if len(ok) == 0 {
		return ""
	}
	var tokens []string
	for _, r := range ok {
		tokens = append(tokens, strings.Fields(r.Value)...)
	}

	var b strings.Builder
	prev := ""
	for _, tok := range tokens {
		if prev != "" && strings.EqualFold(trimTokenPunct(tok), trimTokenPunct(prev)) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
		prev = tok
	}
	return b.String()
}

// succeeded filters out failures and orders the remainder by input index.
func succeeded[T any](results []Result[T]) []Result[T] {
	ok := make([]Result[T], 0, len(results))
	for _, r := range results {
		if r.Failed() {
			continue
		}
		ok = append(ok, r)
	}
	sort.Slice(ok, func(i, j int) bool { return ok[i].Index < ok[j].Index })
	return ok
}

// trimTokenPunct strips trailing punctuation so "quick." and "quick"
// still count as the same overlap duplicate.
func trimTokenPunct(tok string) string {
	return strings.TrimRight(tok, ".,!?;:…")
}
