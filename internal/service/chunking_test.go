package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "latin terminators",
			input: "First. Second! Third?",
			want:  []string{"First.", "Second!", "Third?"},
		},
		{
			name:  "newlines split without terminator",
			input: "line one\nline two",
			want:  []string{"line one", "line two"},
		},
		{
			name:  "arabic question mark",
			input: "مرحبا. كيف حالك؟",
			want:  []string{"مرحبا.", "كيف حالك؟"},
		},
		{
			name:  "cjk punctuation",
			input: "你好。再见！",
			want:  []string{"你好。", "再见！"},
		},
		{
			name:  "devanagari danda",
			input: "नमस्ते। आप कैसे हैं।",
			want:  []string{"नमस्ते।", "आप कैसे हैं।"},
		},
		{
			name:  "trailing text without terminator",
			input: "Complete. trailing words",
			want:  []string{"Complete.", "trailing words"},
		},
		{
			name:  "empty",
			input: "   ",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.input))
		})
	}
}

func TestChunkText_PacksWholeSentences(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine."
	chunks := ChunkText(text, 32)

	require.Len(t, chunks, 2)
	assert.Equal(t, "One two three. Four five six.", chunks[0])
	assert.Equal(t, "Seven eight nine.", chunks[1])
}

func TestChunkText_SingleShortInput(t *testing.T) {
	chunks := ChunkText("مرحبا. كيف حالك؟", 1000)
	require.Len(t, chunks, 1)
	assert.Equal(t, "مرحبا. كيف حالك؟", chunks[0])
}

func TestChunkText_OversizedSentenceTruncated(t *testing.T) {
	sentence := strings.Repeat("a", 2500)
	chunks := ChunkText(sentence, 1000)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	assert.Len(t, chunks[2], 500)
}

func TestChunkText_BoundsRespected(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("This is a sentence with several words in it. ")
	}
	for _, chunk := range ChunkText(b.String(), 1000) {
		assert.LessOrEqual(t, len([]rune(chunk)), 1000)
	}
}

// Concatenating all chunks and stripping whitespace reconstructs the
// original input stripped the same way.
func TestChunkText_Reconstruction(t *testing.T) {
	inputs := []string{
		"First sentence. Second sentence! Third?",
		"متعدد الجمل هنا. نعم؟ بالتأكيد۔",
		"No terminators here just words\nacross lines",
		strings.Repeat("long unbroken text without any stops ", 60),
	}

	strip := func(s string) string {
		return strings.Join(strings.Fields(s), "")
	}

	for _, input := range inputs {
		chunks := ChunkText(input, 100)
		assert.Equal(t, strip(input), strip(strings.Join(chunks, " ")), "input: %q", input)
	}
}

func TestChunkText_Empty(t *testing.T) {
	assert.Nil(t, ChunkText("", 1000))
	assert.Nil(t, ChunkText("   \n  ", 1000))
}
