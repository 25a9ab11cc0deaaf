package pdf

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/campaign-forge/internal/pdf/pdftest"
)

func writePDF(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.pdf")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestExtractorReadsPagesInOrder(t *testing.T) {
	path := writePDF(t, pdftest.Build(
		"The Sunken Keep (chapter one)",
		"Roll a d20 for initiative",
		"Treasure: 300 gold pieces",
	))
	e := NewExtractor()

	pages, err := e.PageCount(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, pages)

	text, err := e.ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, "--- Page 1 ---\nThe Sunken Keep (chapter one)\n")
	assert.Contains(t, text, "--- Page 2 ---\nRoll a d20 for initiative\n")
	assert.Contains(t, text, "--- Page 3 ---\nTreasure: 300 gold pieces\n")

	first := strings.Index(text, "--- Page 1 ---")
	second := strings.Index(text, "--- Page 2 ---")
	third := strings.Index(text, "--- Page 3 ---")
	assert.True(t, first < second && second < third, text)
}

func TestExtractorSkipsPagesWithoutText(t *testing.T) {
	path := writePDF(t, pdftest.Build("", "Only the second page has words", ""))
	e := NewExtractor()

	pages, err := e.PageCount(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, pages)

	text, err := e.ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "\n--- Page 2 ---\nOnly the second page has words\n", text)

	blank := writePDF(t, pdftest.Build("", ""))
	text, err = e.ExtractText(context.Background(), blank)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(text))
}

func TestExtractorRejectsBrokenFiles(t *testing.T) {
	e := NewExtractor()
	path := writePDF(t, []byte("%PDF-1.4\nthis is not really a pdf\n%%EOF\n"))

	_, err := e.PageCount(context.Background(), path)
	assert.Error(t, err)

	_, err = e.ExtractText(context.Background(), path)
	assert.Error(t, err)

	_, err = e.PageCount(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestExtractorHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewExtractor()
	path := writePDF(t, pdftest.Build("text"))

	_, err := e.PageCount(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = e.ExtractText(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}
