package service

import (
	"strings"
)

// DefaultMaxChunkChars bounds the length of one knowledge chunk.
const DefaultMaxChunkChars = 1000

// sentenceTerminators covers Latin, Arabic, Urdu, CJK and Devanagari
// sentence-ending punctuation.
var sentenceTerminators = map[rune]bool{
	'.': true, '!': true, '?': true, '…': true,
	'؟': true, '۔': true,
	'。': true, '！': true, '？': true,
	'।': true,
}

// SplitSentences breaks text into sentences on terminator runes and
// newlines. Terminators stay attached to their sentence.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if sentenceTerminators[r] {
			flush()
		}
	}
	flush()
	return sentences
}

// ChunkText splits text into chunks of at most maxChars runes, packing
// whole sentences greedily. A single sentence longer than maxChars is
// hard-truncated into maxChars pieces. The concatenation of all chunks
// reconstructs the input up to whitespace.
func ChunkText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}

	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, sentence := range sentences {
		runes := []rune(sentence)

		if len(runes) > maxChars {
			flush()
			for start := 0; start < len(runes); start += maxChars {
				end := start + maxChars
				if end > len(runes) {
					end = len(runes)
				}
				chunks = append(chunks, string(runes[start:end]))
			}
			continue
		}

		// +1 for the joining space.
		needed := len(runes)
		if currentLen > 0 {
			needed++
		}
		if currentLen+needed > maxChars {
			flush()
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(sentence)
		currentLen += len(runes)
	}
	flush()

	return chunks
}
