package campaign

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseComplexity(t *testing.T) {
	tests := []struct {
		in      string
		want    Complexity
		wantErr bool
	}{
		{"", ComplexityMedium, false},
		{"simple", ComplexitySimple, false},
		{" Complex ", ComplexityComplex, false},
		{"MEDIUM", ComplexityMedium, false},
		{"legendary", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseComplexity(tt.in)
			if tt.wantErr {
				var apiErr *Error
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, CodeInvalidInput, apiErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalog(t *testing.T) {
	all := Complexities()
	require.Len(t, all, 3)
	assert.Equal(t, "3-4", SessionCount(ComplexityMedium))
	assert.Equal(t, "5+", SessionCount(ComplexityComplex))
	assert.Equal(t, SessionCount(ComplexityMedium), SessionCount("unknown"))

	seen := map[string]bool{}
	for c := range all {
		g := Guidelines(c)
		assert.NotEmpty(t, g, c)
		assert.False(t, seen[g], "guidelines for %s duplicate another complexity", c)
		seen[g] = true
	}

	assert.Equal(t, FallbackFor(ComplexityMedium).Title, FallbackFor(ComplexityComplex).Title)
	assert.NotEqual(t, FallbackFor(ComplexityMedium).Title, FallbackFor(ComplexitySimple).Title)

	assert.True(t, IsSupportedLanguage("pt"))
	assert.True(t, IsSupportedLanguage("ja"))
	assert.False(t, IsSupportedLanguage("tlh"))
	assert.Len(t, SupportedLanguages(), 10)
}

func TestFormatCampaign(t *testing.T) {
	doc := FormatCampaign("\n\n## Act I\nThe gates fall.\n", Envelope{
		Complexity:  ComplexityComplex,
		Title:       "Ashes of Veyra",
		Language:    "en",
		GeneratedAt: time.Date(2024, 12, 31, 23, 5, 0, 0, time.UTC),
	})

	lines := strings.Split(doc, "\n")
	require.GreaterOrEqual(t, len(lines), 8)
	assert.Equal(t, "# 🎲 RPG CAMPAIGN - COMPLEX", lines[1])
	assert.Equal(t, "# Ashes of Veyra", lines[2])
	assert.Contains(t, doc, "**Duration**: 5+ sessions  \n")
	assert.Contains(t, doc, "**Generated at**: 31/12/2024 23:05  \n")
	assert.Contains(t, doc, "**Complexity**: Complex\n")
	assert.Contains(t, doc, "---\n\n## Act I\nThe gates fall.\n\n---")
	assert.True(t, strings.HasSuffix(doc, "specific group.*\n"))
}

func TestFormatCampaignWithoutTitle(t *testing.T) {
	doc := FormatCampaign("body", Envelope{Complexity: ComplexitySimple, Language: "pt"})
	assert.Equal(t, "#", strings.Split(doc, "\n")[2])
}

func TestPreview(t *testing.T) {
	short := "short document"
	assert.Equal(t, short, Preview(short))

	long := strings.Repeat("á", 700)
	p := Preview(long)
	assert.Equal(t, 503, utf8.RuneCountInString(p))
	assert.True(t, strings.HasSuffix(p, "..."))
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "The Drowned Crown", ExtractTitle("intro\n## Not this\n#  The Drowned Crown \nbody"))
	assert.Equal(t, "", ExtractTitle("## Only subheadings"))
}

func TestSplitChunks(t *testing.T) {
	text := strings.Repeat("line of the campaign text\n", 40) + strings.Repeat("word ", 300)

	chunks := splitChunks(text, 200)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 200)
	}
	assert.True(t, strings.HasSuffix(chunks[0], "\n"))

	assert.Equal(t, []string{"tiny"}, splitChunks("tiny", 200))

	unbroken := strings.Repeat("x", 450)
	assert.Equal(t, []string{strings.Repeat("x", 200), strings.Repeat("x", 200), strings.Repeat("x", 50)},
		splitChunks(unbroken, 200))
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("BOOK TEXT", ComplexityComplex, "en")
	assert.Contains(t, prompt, "BOOK TEXT")
	assert.Contains(t, prompt, "**COMPLEX**")
	assert.Contains(t, prompt, Guidelines(ComplexityComplex))
	assert.True(t, strings.HasSuffix(prompt, "Write the complete campaign in en:\n"))
}
