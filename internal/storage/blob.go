// Package storage はストレージ抽象化レイヤーを提供します。
//
// 入力PDFと生成結果は BlobStore を通して保存します。
// 開発環境ではローカルファイルシステム、本番環境では S3（署名付きURL）を使用します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// フォルダ名
const (
	FolderInputs    = "campaign-inputs"
	FolderCampaigns = "campaigns"
)

var (
	// ErrNotFound はキーに対応するオブジェクトが無いことを表します。
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey はキーがストレージ外を指していることを表します。
	ErrInvalidKey = errors.New("invalid object key")
	// ErrAccessDenied は認証情報または権限の不足を表します。
	ErrAccessDenied = errors.New("access denied")
	// ErrUnavailable はストレージ側の一時的な障害を表します。
	ErrUnavailable = errors.New("storage unavailable")
)

// Object は保存済みオブジェクトの情報です。
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// BlobStore は入力・成果物の保存先です。
type BlobStore interface {
	// Put は folder 配下に一意なキーで data を保存します。
	Put(ctx context.Context, folder, filename string, data []byte, contentType string) (*Object, error)
	// Get はキーの内容を返します。存在しない場合は ErrNotFound を返します。
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete はキーを削除します。存在しない場合は何もしません。
	Delete(ctx context.Context, key string) error
}

// Error はストレージ操作の失敗を表します。Err には上記の番兵エラーが入ることがあります。
type Error struct {
	Op      string
	Backend string
	Key     string
	Err     error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Backend, e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename はパス要素と危険な文字を取り除いたファイル名を返します。
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	return name
}

// NewKey は folder/<uuid>_<filename> 形式のキーを作成します。
func NewKey(folder, filename string) string {
	return path.Join(folder, uuid.NewString()+"_"+SanitizeFilename(filename))
}

// cleanKey は相対キーを正規化し、ルート外を指すものを拒否します。
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.ReplaceAll(key, "\\", "/"), "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
