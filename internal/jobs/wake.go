package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WakeSignaler はスケールゼロのワーカーを起こすための通知です。失敗しても投入は成功扱いです。
type WakeSignaler interface {
	Signal(ctx context.Context, jobID string) error
}

// NopSignaler は何もしません。
type NopSignaler struct{}

// Signal は常に nil を返します。
func (NopSignaler) Signal(context.Context, string) error { return nil }

// HTTPWakeSignaler は Webhook に job_id を POST します。
type HTTPWakeSignaler struct {
	url    string
	client *http.Client
}

// NewHTTPWakeSignaler は HTTPWakeSignaler を作成します。
func NewHTTPWakeSignaler(url string, timeout time.Duration) *HTTPWakeSignaler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPWakeSignaler{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Signal は Webhook を呼び出します。2xx 以外はエラーです。
func (s *HTTPWakeSignaler) Signal(ctx context.Context, jobID string) error {
	body, err := json.Marshal(map[string]string{"job_id": jobID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("wake worker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("wake worker: unexpected status %d", resp.StatusCode)
	}
	return nil
}
