package main

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/campaign-forge/internal/campaign"
	"github.com/yourusername/campaign-forge/internal/jobs"
	"github.com/yourusername/campaign-forge/internal/storage"
)

// 保存キーの "<uuid>_" 接頭辞の長さ
const keyPrefixLen = 37

func jobStatusHandler(store jobs.StatusStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    campaign.CodeInvalidInput,
				"message": "job id is required",
			})
			return
		}

		record, err := store.Get(c.Request.Context(), jobID)
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "JOB_NOT_FOUND",
					"message": "job not found",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    campaign.CodeInternalError,
				"message": "could not read the job status",
			})
			return
		}

		payload := gin.H{}
		for k, v := range record.Data {
			payload[k] = v
		}
		payload["job_id"] = record.JobID
		payload["status"] = record.Status
		payload["created_at"] = record.CreatedAt
		payload["last_updated"] = record.LastUpdated
		c.JSON(http.StatusOK, payload)
	}
}

func downloadHandler(local *storage.LocalStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")

		file, size, err := local.Open(c.Request.Context(), key)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidKey):
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "FILE_NOT_FOUND",
					"message": "file not found",
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"code":    campaign.CodeStorageError,
					"message": "could not read the file",
				})
			}
			return
		}
		defer file.Close()

		name := downloadName(key)
		contentType := mime.TypeByExtension(path.Ext(name))
		if path.Ext(name) == ".md" {
			contentType = "text/markdown; charset=utf-8"
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", name, url.PathEscape(name)))
		c.Header("Cache-Control", "no-store")
		c.DataFromReader(http.StatusOK, size, contentType, file, nil)
	}
}

// downloadName は保存キーから利用者向けのファイル名を取り出します。
func downloadName(key string) string {
	name := path.Base(key)
	if len(name) > keyPrefixLen && name[keyPrefixLen-1] == '_' {
		return name[keyPrefixLen:]
	}
	return name
}

func statusHandler(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := gin.H{
			"status":                "online",
			"mode":                  s.service.Mode(),
			"generator_configured":  s.cfg.GeneratorConfigured(),
			"translator_configured": s.cfg.TranslateAPIKey != "",
			"blob_backend":          s.cfg.BlobBackend,
			"supported_formats":     []string{".pdf"},
			"max_file_size_mb":      s.cfg.MaxFileSize / (1024 * 1024),
			"rate_limit": gin.H{
				"max_calls":      s.cfg.RateLimitMaxCalls,
				"window_seconds": s.cfg.RateLimitWindowSeconds,
				"remaining":      s.limiter.Remaining(),
			},
		}

		if s.queue != nil {
			stats, err := s.queue.Stats(c.Request.Context())
			if err != nil {
				s.logger.Warn("status.queue_stats", zap.Error(err))
				payload["queue"] = gin.H{"error": "queue statistics unavailable"}
			} else {
				payload["queue"] = stats
			}
		}

		c.JSON(http.StatusOK, payload)
	}
}
