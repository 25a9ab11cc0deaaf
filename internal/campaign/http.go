package campaign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/campaign-forge/internal/jobs"
)

// multipart のフィールド分の余裕
const formOverhead = 1 << 20

// Submitter は生成リクエストを受け付けます。
type Submitter interface {
	Submit(ctx context.Context, req *Request) (*Submission, error)
}

// ExampleSource は定型キャンペーンを返します。
type ExampleSource interface {
	ExampleCampaign(ctx context.Context, complexity Complexity, language string) (string, []string)
	NativeLanguage() string
}

// GenerateHandler は POST /generate-campaign のハンドラーを返します。
func GenerateHandler(svc Submitter, maxFileSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxFileSize > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFileSize+formOverhead)
		}

		form, err := c.MultipartForm()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				respondWithError(c, newError(CodeLimitExceeded,
					fmt.Sprintf("file is too large (maximum %dMB)", maxFileSize/(1024*1024)), err))
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "send the PDF as multipart/form-data in the \"file\" field",
			})
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": err.Error(),
			})
			return
		}

		data, err := readUpload(file, maxFileSize)
		if err != nil {
			respondWithError(c, err)
			return
		}

		sub, err := svc.Submit(c.Request.Context(), &Request{
			Filename:       file.Filename,
			Data:           data,
			TargetLanguage: c.PostForm("target_language"),
			Complexity:     c.PostForm("complexity"),
		})
		if err != nil {
			respondWithError(c, err)
			return
		}

		switch sub.Status {
		case jobs.StatusQueued:
			c.JSON(http.StatusAccepted, gin.H{
				"job_id":  sub.JobID,
				"status":  sub.Status,
				"message": fmt.Sprintf("%s campaign queued; poll /job-status/%s", sub.Complexity, sub.JobID),
			})
		case jobs.StatusCompleted:
			c.JSON(http.StatusOK, gin.H{
				"job_id":  sub.JobID,
				"status":  sub.Status,
				"result":  sub.Result.Data,
				"message": fmt.Sprintf("%s campaign generated successfully", sub.Complexity),
			})
		default:
			respondWithFailedJob(c, sub)
		}
	}
}

// ExampleHandler は GET /example-campaign のハンドラーを返します。
func ExampleHandler(src ExampleSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		complexity, err := ParseComplexity(c.Query("complexity"))
		if err != nil {
			// 未知の値は既定の規模で返す
			complexity = builtin.DefaultComplexity
		}
		language := strings.ToLower(c.DefaultQuery("language", src.NativeLanguage()))
		if !IsSupportedLanguage(language) {
			respondWithError(c, newError(CodeInvalidInput, fmt.Sprintf("unsupported language: %s", language), nil))
			return
		}

		content, warnings := src.ExampleCampaign(c.Request.Context(), complexity, language)
		body := gin.H{
			"complexity": complexity,
			"language":   language,
			"content":    content,
			"message":    "example campaign generated",
		}
		if len(warnings) > 0 {
			body["warnings"] = warnings
		}
		c.JSON(http.StatusOK, body)
	}
}

// ComplexitiesHandler は GET /campaign-complexities のハンドラーを返します。
func ComplexitiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, Complexities())
	}
}

// LanguagesHandler は GET /supported-languages のハンドラーを返します。
func LanguagesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		languages := gin.H{}
		for _, l := range SupportedLanguages() {
			languages[l.Code] = l.Name
		}
		c.JSON(http.StatusOK, languages)
	}
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := statusForCode(apiErr.Code)
		if apiErr.Code == CodeRateLimited && apiErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(apiErr.RetryAfter.Seconds()))))
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "the request was canceled",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    CodeInternalError,
			"message": "an internal server error occurred",
		})
	}
}

// respondWithFailedJob は同期モードで failed になったジョブを返します。
func respondWithFailedJob(c *gin.Context, sub *Submission) {
	code, _ := sub.Result.Data["code"].(string)
	message, _ := sub.Result.Data["error"].(string)
	if code == "" {
		code = CodeInternalError
	}
	c.JSON(statusForCode(code), gin.H{
		"job_id":  sub.JobID,
		"status":  sub.Result.Status,
		"code":    code,
		"message": message,
	})
}

func statusForCode(code string) int {
	switch code {
	case CodeInvalidInput, CodeValidationError, CodeExtractionError:
		return http.StatusBadRequest
	case CodeLimitExceeded:
		return http.StatusRequestEntityTooLarge
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func extractSingleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	if form == nil {
		return nil, errors.New("no file uploaded")
	}
	if file := form.File["file"]; len(file) > 0 {
		return file[0], nil
	}
	return nil, errors.New("no file uploaded")
}

func readUpload(file *multipart.FileHeader, maxFileSize int64) ([]byte, error) {
	if maxFileSize > 0 && file.Size > maxFileSize {
		return nil, newError(CodeLimitExceeded,
			fmt.Sprintf("file is too large (maximum %dMB)", maxFileSize/(1024*1024)), nil)
	}
	f, err := file.Open()
	if err != nil {
		return nil, newError(CodeInvalidInput, "could not read the uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, newError(CodeInvalidInput, "could not read the uploaded file", err)
	}
	return data, nil
}
