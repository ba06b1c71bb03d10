// Package chunk splits text into bounded-size, sentence-aligned chunks for
// LLM processing. Chunk boundaries are deterministic so an interrupted run
// re-derives the same indices when it resumes.
package chunk

import (
	"strings"
	"unicode"
)

// Split divides text into ordered chunks of at most maxSize bytes, never
// breaking a sentence. Sentences are accumulated greedily; a single sentence
// longer than maxSize becomes its own oversized chunk rather than being
// truncated. Concatenating the returned chunks in order reproduces text
// exactly.
func Split(text string, maxSize int) []string {
	if text == "" {
		return nil
	}
	if maxSize <= 0 {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	for _, sentence := range sentences(text) {
		if current.Len() > 0 && current.Len()+len(sentence) > maxSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// sentences partitions text after each sentence terminator, keeping closing
// quotes or brackets and the following whitespace run attached to the
// sentence they end. Trailing text without a terminator forms the last
// sentence. The partition is lossless: joining the pieces yields text.
func sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	i := 0

	for i < len(runes) {
		if !isTerminator(runes[i]) {
			i++
			continue
		}

		// Consume the terminator run, closing quotes and brackets.
		i++
		for i < len(runes) && (isTerminator(runes[i]) || isCloser(runes[i])) {
			i++
		}

		// A boundary needs whitespace after the punctuation (or end of
		// text); "3.14" must not split.
		if i < len(runes) && !unicode.IsSpace(runes[i]) {
			continue
		}
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}

		out = append(out, string(runes[start:i]))
		start = i
	}

	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '…':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case ')', ']', '}', '"', '\'', '）', '】', '」', '』', '”', '’', '»':
		return true
	}
	return false
}
