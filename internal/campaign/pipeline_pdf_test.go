package campaign

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/campaign-forge/internal/jobs"
	"github.com/yourusername/campaign-forge/internal/pdf"
	"github.com/yourusername/campaign-forge/internal/pdf/pdftest"
	"github.com/yourusername/campaign-forge/internal/storage"
)

// submitPDF は data を入力として保存し、queued のジョブ記述子を返します。
func (e *testEnv) submitPDF(t *testing.T, jobID string, data []byte) *jobs.Descriptor {
	t.Helper()
	ctx := context.Background()
	obj, err := e.blobs.Put(ctx, storage.FolderInputs, "book.pdf", data, "application/pdf")
	require.NoError(t, err)

	desc := &jobs.Descriptor{
		JobID:          jobID,
		InputKey:       obj.Key,
		Filename:       "book.pdf",
		TargetLanguage: "en",
		Complexity:     "simple",
	}
	require.NoError(t, e.store.Put(ctx, desc.JobID, jobs.StatusQueued, nil))
	return desc
}

func TestPipelineWithRealExtractor(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(nil, nil)
	p.extractor = pdf.NewExtractor()

	line := strings.Repeat("Bandits hold the old mill above the river ford. ", 3)
	desc := env.submitPDF(t, "job-real", pdftest.Build(line, line, line))

	result := p.Run(context.Background(), desc)
	require.Equal(t, jobs.StatusCompleted, result.Status, result.Data)
	require.Len(t, env.generator.prompts, 1)
	assert.Contains(t, env.generator.prompts[0], "--- Page 3 ---")
	assert.Contains(t, env.generator.prompts[0], "Bandits hold the old mill")
}

func TestPipelineBlankPDFIsExtractionError(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(nil, nil)
	p.extractor = pdf.NewExtractor()

	desc := env.submitPDF(t, "job-blank", pdftest.Build("", "", ""))

	result := p.Run(context.Background(), desc)
	assert.Equal(t, jobs.StatusFailed, result.Status)
	assert.Equal(t, CodeExtractionError, result.Data["code"])
	assert.Empty(t, env.generator.prompts)

	record, err := env.store.Get(context.Background(), desc.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, record.Status)
	assert.Equal(t, CodeExtractionError, record.Data["code"])
}
