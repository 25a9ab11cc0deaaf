// Package campaign はRPGブックからキャンペーンを生成する受付処理と変換パイプラインを提供します。
package campaign

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yourusername/campaign-forge/internal/jobs"
	"github.com/yourusername/campaign-forge/internal/storage"
)

// 進捗ラベル
const (
	progressAcquire   = "Downloading input file..."
	progressValidate  = "Validating PDF..."
	progressExtract   = "Extracting text from PDF..."
	progressGenerate  = "Generating campaign with AI..."
	progressLocalize  = "Translating campaign..."
	progressFormat    = "Formatting campaign..."
	progressPersist   = "Saving generated campaign..."
	markdownMediaType = "text/markdown; charset=utf-8"
)

// TextExtractor はPDFのページ数とテキストを取得します。
type TextExtractor interface {
	PageCount(ctx context.Context, path string) (int, error)
	ExtractText(ctx context.Context, path string) (string, error)
}

// Generator は外部の生成サービスです。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Translator は外部の翻訳サービスです。
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// PipelineOptions はパイプラインの制限値です。
type PipelineOptions struct {
	MaxPages           int
	MinTextLength      int
	PromptCharLimit    int
	NativeLanguage     string
	TranslateChunkSize int
	TranslateDelay     time.Duration
	GeneratorTimeout   time.Duration
	WorkDir            string
}

// Pipeline は入力PDFからキャンペーン文書を作り、成果物を保存します。
// 同期モードとワーカーの両方から同じものを使います。
type Pipeline struct {
	store      jobs.StatusStore
	blobs      storage.BlobStore
	extractor  TextExtractor
	generator  Generator
	translator Translator
	pacer      *rate.Limiter
	opts       PipelineOptions
	now        func() time.Time
	logger     *zap.Logger
}

// PipelineDeps はパイプラインの協調オブジェクトです。Generator と Translator は nil でも動作します。
type PipelineDeps struct {
	Store      jobs.StatusStore
	Blobs      storage.BlobStore
	Extractor  TextExtractor
	Generator  Generator
	Translator Translator
}

// NewPipeline は Pipeline を作成します。
func NewPipeline(deps PipelineDeps, opts PipelineOptions, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 500
	}
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = 100
	}
	if opts.PromptCharLimit <= 0 {
		opts.PromptCharLimit = 15000
	}
	if opts.NativeLanguage == "" {
		opts.NativeLanguage = "en"
	}
	if opts.TranslateChunkSize <= 0 {
		opts.TranslateChunkSize = 4000
	}
	if opts.GeneratorTimeout <= 0 {
		opts.GeneratorTimeout = 2 * time.Minute
	}

	limit := rate.Inf
	if opts.TranslateDelay > 0 {
		limit = rate.Every(opts.TranslateDelay)
	}

	return &Pipeline{
		store:      deps.Store,
		blobs:      deps.Blobs,
		extractor:  deps.Extractor,
		generator:  deps.Generator,
		translator: deps.Translator,
		pacer:      rate.NewLimiter(limit, 1),
		opts:       opts,
		now:        time.Now,
		logger:     logger,
	}
}

// NativeLanguage は生成サービスの出力言語を返します。
func (p *Pipeline) NativeLanguage() string {
	return p.opts.NativeLanguage
}

// Process は jobs.Processor の実装です。
func (p *Pipeline) Process(ctx context.Context, desc *jobs.Descriptor) *jobs.Result {
	return p.Run(ctx, desc)
}

// errAborted はジョブが既に終端になっていたことを表します（回収済みなど）。
var errAborted = errors.New("job already finalized")

type stage struct {
	name     string
	progress string
	run      func(ctx context.Context, r *runState) Outcome
}

// runState は1ジョブ分の途中結果です。
type runState struct {
	desc       *jobs.Descriptor
	complexity Complexity
	workspace  string
	inputPath  string
	pages      int
	text       string
	title      string
	content    string
	language   string
	document   string
	artifact   *storage.Object
	warnings   []string
	log        *zap.Logger
}

// Run はパイプラインを実行し、終端状態を返します。
// 各段階の panic もここで failed に変換します。
func (p *Pipeline) Run(ctx context.Context, desc *jobs.Descriptor) (result *jobs.Result) {
	start := time.Now()
	log := p.logger.With(zap.String("job_id", desc.JobID))
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("pipeline.panic", zap.Any("panic", rec), zap.Stack("stack"))
			result = p.fail(ctx, desc.JobID,
				newError(CodeInternalError, "an unexpected error occurred while processing the file", fmt.Errorf("panic: %v", rec)), log)
		}
	}()

	complexity, err := ParseComplexity(desc.Complexity)
	if err != nil {
		return p.fail(ctx, desc.JobID, asError(err), log)
	}

	workspace, err := os.MkdirTemp(p.opts.WorkDir, "job-*")
	if err != nil {
		return p.fail(ctx, desc.JobID, newError(CodeInternalError, "could not prepare a workspace", err), log)
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			log.Warn("pipeline.workspace.cleanup", zap.Error(err))
		}
	}()

	r := &runState{
		desc:       desc,
		complexity: complexity,
		workspace:  workspace,
		log:        log,
	}

	for _, st := range p.stages() {
		if err := p.progress(ctx, desc.JobID, st.progress); err != nil {
			if errors.Is(err, errAborted) {
				log.Warn("pipeline.aborted", zap.String("stage", st.name), zap.Error(err))
				return p.current(ctx, desc.JobID)
			}
			return p.fail(ctx, desc.JobID, newError(CodeStorageError, "could not record the job progress", err), log)
		}

		stageStart := time.Now()
		out := st.run(ctx, r)
		log.Info("pipeline.stage",
			zap.String("stage", st.name),
			zap.Stringer("outcome", out.Kind),
			zap.Duration("elapsed", time.Since(stageStart)))

		switch out.Kind {
		case OutcomeDegraded:
			log.Warn("pipeline.degraded", zap.String("stage", st.name), zap.String("warning", out.Warning))
			r.warnings = append(r.warnings, out.Warning)
		case OutcomeFatal:
			return p.fail(ctx, desc.JobID, out.Err, log)
		}
	}

	data := map[string]any{
		"campaign_url": r.artifact.URL,
		"storage_key":  r.artifact.Key,
		"preview":      Preview(r.document),
		"file_size":    r.artifact.Size,
	}
	if len(r.warnings) > 0 {
		data["warnings"] = r.warnings
	}
	if err := p.store.Put(context.WithoutCancel(ctx), desc.JobID, jobs.StatusCompleted, data); err != nil {
		if errors.Is(err, jobs.ErrInvalidTransition) {
			log.Warn("pipeline.aborted", zap.String("stage", "finalize"), zap.Error(err))
			return p.current(ctx, desc.JobID)
		}
		log.Error("pipeline.finalize", zap.Any("unsaved", data), zap.Error(err))
		p.discard(ctx, r.artifact.Key, log)
		return p.fail(ctx, desc.JobID, newError(CodeStorageError, "could not record the completed job", err), log)
	}

	log.Info("pipeline.completed",
		zap.String("storage_key", r.artifact.Key),
		zap.Int("warnings", len(r.warnings)),
		zap.Duration("elapsed", time.Since(start)))
	return &jobs.Result{JobID: desc.JobID, Status: jobs.StatusCompleted, Data: data}
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{"acquire", progressAcquire, p.acquire},
		{"validate", progressValidate, p.validate},
		{"extract", progressExtract, p.extract},
		{"generate", progressGenerate, p.generate},
		{"localize", progressLocalize, p.localize},
		{"format", progressFormat, p.format},
		{"persist", progressPersist, p.persist},
	}
}

func (p *Pipeline) acquire(ctx context.Context, r *runState) Outcome {
	data, err := p.blobs.Get(ctx, r.desc.InputKey)
	if err != nil {
		return fatal(CodeStorageError, "could not download the uploaded file", err)
	}
	r.inputPath = filepath.Join(r.workspace, storage.SanitizeFilename(r.desc.Filename))
	if err := os.WriteFile(r.inputPath, data, 0o600); err != nil {
		return fatal(CodeInternalError, "could not write the uploaded file to the workspace", err)
	}
	return ok()
}

func (p *Pipeline) validate(ctx context.Context, r *runState) Outcome {
	pages, err := p.extractor.PageCount(ctx, r.inputPath)
	if err != nil {
		return fatal(CodeValidationError, "the PDF is corrupted or unreadable", err)
	}
	if pages == 0 {
		return fatal(CodeValidationError, "the PDF has no pages", nil)
	}
	if pages > p.opts.MaxPages {
		return fatal(CodeValidationError, fmt.Sprintf("the PDF is too large (maximum %d pages)", p.opts.MaxPages), nil)
	}
	r.pages = pages
	return ok()
}

func (p *Pipeline) extract(ctx context.Context, r *runState) Outcome {
	text, err := p.extractor.ExtractText(ctx, r.inputPath)
	if err != nil {
		r.log.Warn("pipeline.extract.error", zap.Error(err))
		text = ""
	}
	if len([]rune(strings.TrimSpace(text))) < p.opts.MinTextLength {
		return fatal(CodeExtractionError,
			"not enough text could be extracted from the PDF; it may be a scanned image", err)
	}
	r.text = text
	return ok()
}

func (p *Pipeline) generate(ctx context.Context, r *runState) Outcome {
	if p.generator == nil {
		p.useFallback(r)
		return degraded("generator not configured; used a built-in example campaign")
	}

	language := p.generationLanguage(r.desc.TargetLanguage)
	prompt := BuildPrompt(truncateRunes(r.text, p.opts.PromptCharLimit), r.complexity, language)
	genCtx, cancel := context.WithTimeout(ctx, p.opts.GeneratorTimeout)
	defer cancel()

	content, err := p.generator.Generate(genCtx, prompt)
	if err != nil {
		r.log.Warn("pipeline.generate.error", zap.Error(err))
		p.useFallback(r)
		return degraded("generator unavailable; used a built-in example campaign")
	}
	r.content = content
	r.title = ExtractTitle(content)
	r.language = language
	return ok()
}

// generationLanguage は生成サービスに指定する出力言語です。
// 翻訳サービスが無い場合は目的の言語で直接生成させます。
func (p *Pipeline) generationLanguage(target string) string {
	if target == "" || p.translator != nil {
		return p.opts.NativeLanguage
	}
	return target
}

func (p *Pipeline) useFallback(r *runState) {
	fb := FallbackFor(r.complexity)
	r.content = fb.Content
	r.title = fb.Title
	r.language = p.opts.NativeLanguage
}

func (p *Pipeline) localize(ctx context.Context, r *runState) Outcome {
	target := r.desc.TargetLanguage
	if target == "" || target == r.language {
		return ok()
	}
	if p.translator == nil {
		return degraded(fmt.Sprintf("translation unavailable; campaign left in %s", p.opts.NativeLanguage))
	}

	content, failed, total := p.translate(ctx, r.content, target)
	r.content = content
	if r.title != "" {
		title, titleFailed, titleTotal := p.translate(ctx, r.title, target)
		r.title = title
		failed += titleFailed
		total += titleTotal
	}
	if failed > 0 {
		return degraded(fmt.Sprintf("%d of %d translation chunks failed and were left untranslated", failed, total))
	}
	return ok()
}

// translate はチャンクごとに翻訳します。失敗したチャンクは原文のまま残します。
func (p *Pipeline) translate(ctx context.Context, text, target string) (string, int, int) {
	if len(strings.TrimSpace(text)) < 10 {
		return text, 0, 0
	}

	chunks := splitChunks(text, p.opts.TranslateChunkSize)
	failed := 0
	var b strings.Builder
	for i, chunk := range chunks {
		if err := p.pacer.Wait(ctx); err != nil {
			b.WriteString(chunk)
			failed++
			continue
		}
		translated, err := p.translator.Translate(ctx, chunk, target)
		if err != nil {
			p.logger.Warn("pipeline.translate.chunk",
				zap.Int("chunk", i),
				zap.String("target", target),
				zap.Error(err))
			b.WriteString(chunk)
			failed++
			continue
		}
		b.WriteString(translated)
	}
	return b.String(), failed, len(chunks)
}

func (p *Pipeline) format(ctx context.Context, r *runState) Outcome {
	language := r.desc.TargetLanguage
	if language == "" {
		language = p.opts.NativeLanguage
	}
	r.document = FormatCampaign(r.content, Envelope{
		Complexity:  r.complexity,
		Title:       r.title,
		Language:    language,
		GeneratedAt: p.now(),
	})
	return ok()
}

func (p *Pipeline) persist(ctx context.Context, r *runState) Outcome {
	base := strings.TrimSuffix(storage.SanitizeFilename(r.desc.Filename), filepath.Ext(r.desc.Filename))
	name := fmt.Sprintf("campaign_%s_%s.md", base, p.now().Format("20060102_150405"))

	obj, err := p.blobs.Put(ctx, storage.FolderCampaigns, name, []byte(r.document), markdownMediaType)
	if err != nil {
		return fatal(CodeStorageError, "could not save the generated campaign", err)
	}
	r.artifact = obj
	return ok()
}

// progress は processing と進捗ラベルを書き込みます。
// 終端済みの場合は errAborted を返します。
func (p *Pipeline) progress(ctx context.Context, jobID, label string) error {
	err := p.store.Put(ctx, jobID, jobs.StatusProcessing, map[string]any{"progress": label})
	if errors.Is(err, jobs.ErrInvalidTransition) {
		return fmt.Errorf("%w: %v", errAborted, err)
	}
	return err
}

// discard は記録できなかった成果物を削除します。
func (p *Pipeline) discard(ctx context.Context, key string, log *zap.Logger) {
	if err := p.blobs.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Warn("pipeline.discard", zap.String("key", key), zap.Error(err))
	}
}

func (p *Pipeline) fail(ctx context.Context, jobID string, apiErr *Error, log *zap.Logger) *jobs.Result {
	data := map[string]any{
		"error": apiErr.Message,
		"code":  apiErr.Code,
	}
	log.Warn("pipeline.failed",
		zap.String("code", apiErr.Code),
		zap.String("message", apiErr.Message),
		zap.NamedError("cause", apiErr.Err))

	if err := p.store.Put(context.WithoutCancel(ctx), jobID, jobs.StatusFailed, data); err != nil {
		if errors.Is(err, jobs.ErrInvalidTransition) {
			return p.current(ctx, jobID)
		}
		log.Error("pipeline.record_failure", zap.Error(err))
	}
	return &jobs.Result{JobID: jobID, Status: jobs.StatusFailed, Data: data}
}

// current は記録済みの状態をそのまま結果として返します。
func (p *Pipeline) current(ctx context.Context, jobID string) *jobs.Result {
	record, err := p.store.Get(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return &jobs.Result{JobID: jobID, Status: jobs.StatusFailed, Data: map[string]any{
			"error": errAborted.Error(),
			"code":  CodeInternalError,
		}}
	}
	return &jobs.Result{JobID: jobID, Status: record.Status, Data: record.Data}
}
