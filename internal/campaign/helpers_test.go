package campaign

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/campaign-forge/internal/jobs"
	"github.com/yourusername/campaign-forge/internal/storage"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer << /Root 1 0 R >>\n%%EOF\n")

var bookText = "--- Page 1 ---\n" + strings.Repeat("The party descends into the flooded crypt of the drowned king. ", 8)

type fakeExtractor struct {
	pages    int
	pageErr  error
	text     string
	textErr  error
	panicMsg string
	seenPath string
}

func (f *fakeExtractor) PageCount(ctx context.Context, path string) (int, error) {
	f.seenPath = path
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	return f.pages, f.pageErr
}

func (f *fakeExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.text, f.textErr
}

type fakeGenerator struct {
	mu      sync.Mutex
	content string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.content, f.err
}

// upperTranslator は大文字化で翻訳を模します。failOn 番目の呼び出しは失敗します（1始まり）。
type upperTranslator struct {
	mu     sync.Mutex
	calls  int
	failOn int
}

func (u *upperTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.calls == u.failOn {
		return "", errors.New("translation backend unavailable")
	}
	return strings.ToUpper(text), nil
}

// recordingStore は書き込まれた状態の履歴を残します。
type recordingStore struct {
	jobs.StatusStore
	mu      sync.Mutex
	history map[string][]jobs.Status
}

func (r *recordingStore) Put(ctx context.Context, jobID string, status jobs.Status, data map[string]any) error {
	err := r.StatusStore.Put(ctx, jobID, status, data)
	if err == nil {
		r.mu.Lock()
		r.history[jobID] = append(r.history[jobID], status)
		r.mu.Unlock()
	}
	return err
}

func (r *recordingStore) History(jobID string) []jobs.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]jobs.Status(nil), r.history[jobID]...)
}

// rejectingStore は reject に含まれる状態の書き込みを I/O エラーで失敗させます。
type rejectingStore struct {
	jobs.StatusStore
	reject map[jobs.Status]bool
}

func (r *rejectingStore) Put(ctx context.Context, jobID string, status jobs.Status, data map[string]any) error {
	if r.reject[status] {
		return errors.New("disk I/O error")
	}
	return r.StatusStore.Put(ctx, jobID, status, data)
}

type testEnv struct {
	store     *recordingStore
	blobs     *storage.LocalStore
	extractor *fakeExtractor
	generator *fakeGenerator
	workDir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sqlite, err := jobs.OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	blobs, err := storage.NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)

	return &testEnv{
		store:     &recordingStore{StatusStore: sqlite, history: map[string][]jobs.Status{}},
		blobs:     blobs,
		extractor: &fakeExtractor{pages: 12, text: bookText},
		generator: &fakeGenerator{content: "# The Drowned Crown\n\n## Overview\nA king sleeps beneath the lake."},
		workDir:   t.TempDir(),
	}
}

func (e *testEnv) pipeline(translator Translator, mutate func(*PipelineOptions)) *Pipeline {
	opts := PipelineOptions{
		MaxPages:           500,
		MinTextLength:      100,
		PromptCharLimit:    15000,
		NativeLanguage:     "en",
		TranslateChunkSize: 4000,
		WorkDir:            e.workDir,
	}
	if mutate != nil {
		mutate(&opts)
	}
	deps := PipelineDeps{
		Store:     e.store,
		Blobs:     e.blobs,
		Extractor: e.extractor,
		Generator: e.generator,
	}
	if translator != nil {
		deps.Translator = translator
	}
	p := NewPipeline(deps, opts, nil)
	p.now = func() time.Time { return time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC) }
	return p
}

// submitInput は入力PDFを保存し、queued のジョブ記述子を返します。
func (e *testEnv) submitInput(t *testing.T, language, complexity string) *jobs.Descriptor {
	t.Helper()
	ctx := context.Background()
	obj, err := e.blobs.Put(ctx, storage.FolderInputs, "Drowned Book.pdf", samplePDF, "application/pdf")
	require.NoError(t, err)

	desc := &jobs.Descriptor{
		JobID:          "job-" + strings.ReplaceAll(t.Name(), "/", "-"),
		InputKey:       obj.Key,
		InputURL:       obj.URL,
		Filename:       "Drowned_Book.pdf",
		TargetLanguage: language,
		Complexity:     complexity,
	}
	require.NoError(t, e.store.Put(ctx, desc.JobID, jobs.StatusQueued, nil))
	return desc
}

// countFiles は dir 配下のファイル数を返します。
func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}
