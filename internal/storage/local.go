package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const backendLocal = "local"

// DownloadRoute はローカル保存物を配信するAPIのパスです。
const DownloadRoute = "/download-campaign"

// LocalStore はローカルファイルシステムに保存する BlobStore です（開発環境用）。
type LocalStore struct {
	root          string
	publicBaseURL string
}

// NewLocalStore は root 配下に保存する LocalStore を作成します。
// publicBaseURL はダウンロードURLの組み立てに使用します（空なら相対URL）。
func NewLocalStore(root, publicBaseURL string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("local blob root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &LocalStore{
		root:          abs,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Root は保存先ディレクトリを返します。
func (s *LocalStore) Root() string {
	return s.root
}

// Put はファイルを保存します。
func (s *LocalStore) Put(ctx context.Context, folder, filename string, data []byte, contentType string) (*Object, error) {
	key := NewKey(folder, filename)
	full, err := s.resolve(key)
	if err != nil {
		return nil, s.wrapError("Put", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, s.wrapError("Put", key, err)
	}

	// 途中で失敗しても中途半端なファイルを残さない
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return nil, s.wrapError("Put", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, s.wrapError("Put", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, s.wrapError("Put", key, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return nil, s.wrapError("Put", key, err)
	}

	return &Object{
		Key:         key,
		URL:         s.URL(key),
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

// Get はファイルの内容を返します。
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, s.wrapError("Get", key, err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, s.wrapError("Get", key, err)
	}
	return data, nil
}

// Open はダウンロード用にファイルを開きます。
func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, 0, s.wrapError("Open", key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, s.wrapError("Open", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, s.wrapError("Open", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, s.wrapError("Open", key, ErrNotFound)
	}
	return f, info.Size(), nil
}

// Delete はファイルを削除します。
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	full, err := s.resolve(key)
	if err != nil {
		return s.wrapError("Delete", key, err)
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return s.wrapError("Delete", key, err)
	}
	return nil
}

// URL はキーのダウンロードURLを返します。
func (s *LocalStore) URL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	return s.publicBaseURL + DownloadRoute + "/" + escaped
}

func (s *LocalStore) resolve(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(cleaned))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return full, nil
}

func (s *LocalStore) wrapError(op, key string, err error) error {
	wrapped := &Error{Op: op, Backend: backendLocal, Key: key, Err: err}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		wrapped.Err = ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		wrapped.Err = ErrAccessDenied
	}
	return wrapped
}
