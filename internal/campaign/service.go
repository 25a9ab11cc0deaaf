package campaign

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/campaign-forge/internal/jobs"
	"github.com/yourusername/campaign-forge/internal/storage"
)

var allowedExtensions = map[string]struct{}{
	".pdf": {},
}

// RateLimiter は受付数の制限です。
type RateLimiter interface {
	Allow() (bool, time.Duration)
}

// Request は生成リクエストです。
type Request struct {
	Filename       string
	Data           []byte
	TargetLanguage string
	Complexity     string
}

// Submission は受付結果です。同期モードでは Result に終端状態が入ります。
type Submission struct {
	JobID      string
	Status     jobs.Status
	Complexity Complexity
	Language   string
	Result     *jobs.Result
}

// ServiceOptions は受付時の制限値です。
type ServiceOptions struct {
	MaxFileSize    int64
	NativeLanguage string
}

// Service は生成リクエストの検証と受付を行います。
type Service struct {
	blobs      storage.BlobStore
	limiter    RateLimiter
	dispatcher Dispatcher
	opts       ServiceOptions
	logger     *zap.Logger
}

// NewService は Service を作成します。
func NewService(blobs storage.BlobStore, limiter RateLimiter, dispatcher Dispatcher, opts ServiceOptions, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.NativeLanguage == "" {
		opts.NativeLanguage = "en"
	}
	return &Service{
		blobs:      blobs,
		limiter:    limiter,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
	}
}

// Mode は受付モード（async / sync）を返します。
func (s *Service) Mode() string {
	return s.dispatcher.Mode()
}

// Submit はリクエストを検証し、入力を保存してジョブを作成します。
// 検証エラーはレート制限の枠を消費しません。
func (s *Service) Submit(ctx context.Context, req *Request) (*Submission, error) {
	if req == nil || strings.TrimSpace(req.Filename) == "" {
		return nil, newError(CodeInvalidInput, "no file selected", nil)
	}
	if _, ok := allowedExtensions[strings.ToLower(filepath.Ext(req.Filename))]; !ok {
		return nil, newError(CodeInvalidInput, "unsupported file type; only PDF is accepted", nil)
	}

	complexity, err := ParseComplexity(req.Complexity)
	if err != nil {
		return nil, err
	}

	language := strings.ToLower(strings.TrimSpace(req.TargetLanguage))
	if language == "" {
		language = s.opts.NativeLanguage
	}
	if !IsSupportedLanguage(language) {
		return nil, newError(CodeInvalidInput, fmt.Sprintf("unsupported target language: %s", language), nil)
	}

	if len(req.Data) == 0 {
		return nil, newError(CodeInvalidInput, "the uploaded file is empty", nil)
	}
	if s.opts.MaxFileSize > 0 && int64(len(req.Data)) > s.opts.MaxFileSize {
		return nil, newError(CodeLimitExceeded,
			fmt.Sprintf("file is too large (maximum %dMB)", s.opts.MaxFileSize/(1024*1024)), nil)
	}

	if s.limiter != nil {
		if allowed, retryAfter := s.limiter.Allow(); !allowed {
			return nil, &Error{
				Code:       CodeRateLimited,
				Message:    "too many campaign requests; try again later",
				RetryAfter: retryAfter,
			}
		}
	}

	if mt := mimetype.Detect(req.Data); !mt.Is("application/pdf") {
		return nil, newError(CodeInvalidInput,
			fmt.Sprintf("the file content is not a PDF (detected %s)", mt.String()), nil)
	}

	input, err := s.blobs.Put(ctx, storage.FolderInputs, req.Filename, req.Data, "application/pdf")
	if err != nil {
		return nil, newError(CodeStorageError, "could not store the uploaded file", err)
	}

	desc := &jobs.Descriptor{
		JobID:          uuid.NewString(),
		InputKey:       input.Key,
		InputURL:       input.URL,
		Filename:       storage.SanitizeFilename(req.Filename),
		TargetLanguage: language,
		Complexity:     string(complexity),
	}
	s.logger.Info("submit.accepted",
		zap.String("job_id", desc.JobID),
		zap.String("mode", s.dispatcher.Mode()),
		zap.String("complexity", desc.Complexity),
		zap.String("language", language),
		zap.Int("size", len(req.Data)))

	result, err := s.dispatcher.Dispatch(ctx, desc)
	if err != nil {
		// 実行されないジョブの入力は残さない
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), input.Key); delErr != nil {
			s.logger.Warn("submit.cleanup", zap.String("key", input.Key), zap.Error(delErr))
		}
		return nil, asError(err)
	}

	return &Submission{
		JobID:      desc.JobID,
		Status:     result.Status,
		Complexity: complexity,
		Language:   language,
		Result:     result,
	}, nil
}
