package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080/")
	require.NoError(t, err)
	ctx := context.Background()

	obj, err := store.Put(ctx, FolderCampaigns, "campaign_My Book.md", []byte("# Campaign"), "text/markdown")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(obj.Key, FolderCampaigns+"/"))
	assert.True(t, strings.HasSuffix(obj.Key, "_campaign_My_Book.md"))
	assert.Equal(t, "http://localhost:8080/download-campaign/"+obj.Key, obj.URL)
	assert.Equal(t, int64(10), obj.Size)

	data, err := store.Get(ctx, obj.Key)
	require.NoError(t, err)
	assert.Equal(t, "# Campaign", string(data))

	rc, size, err := store.Open(ctx, obj.Key)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, int64(10), size)
	assert.Equal(t, "# Campaign", string(body))

	require.NoError(t, store.Delete(ctx, obj.Key))
	_, err = store.Get(ctx, obj.Key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Delete(ctx, obj.Key), "deleting twice is fine")
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)

	for _, key := range []string{"../secret", "campaigns/../../etc/passwd", "", ".."} {
		_, err := store.Get(context.Background(), key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestLocalStoreUniqueKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)

	a, err := store.Put(context.Background(), FolderInputs, "book.pdf", []byte("a"), "application/pdf")
	require.NoError(t, err)
	b, err := store.Put(context.Background(), FolderInputs, "book.pdf", []byte("b"), "application/pdf")
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, b.Key)
	assert.True(t, strings.HasPrefix(a.URL, "/download-campaign/campaign-inputs/"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "book.pdf", SanitizeFilename("../../book.pdf"))
	assert.Equal(t, "My_RPG_Book_v2_.pdf", SanitizeFilename("My RPG Book (v2).pdf"))
	assert.Equal(t, "evil.pdf", SanitizeFilename(`C:\Users\x\evil.pdf`))
	assert.Equal(t, "file", SanitizeFilename("..."))
}

func TestSweeperRemovesOldFiles(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx := context.Background()

	old, err := store.Put(ctx, FolderCampaigns, "old.md", []byte("old"), "text/markdown")
	require.NoError(t, err)
	fresh, err := store.Put(ctx, FolderCampaigns, "fresh.md", []byte("fresh"), "text/markdown")
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(store.Root(), old.Key), past, past))

	sweeper := NewSweeper(store, 24*time.Hour, time.Hour, nil)
	assert.Equal(t, 1, sweeper.SweepOnce())

	_, err = store.Get(ctx, old.Key)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, fresh.Key)
	assert.NoError(t, err)
}

func TestS3WrapError(t *testing.T) {
	s := &S3Store{bucket: "bucket"}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"typed no such key", &types.NoSuchKey{}, ErrNotFound},
		{"api not found", &smithy.GenericAPIError{Code: "NotFound"}, ErrNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"}, ErrAccessDenied},
		{"throttled", &smithy.GenericAPIError{Code: "SlowDown"}, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.wrapError("GetObject", "campaigns/x.md", tt.err)
			assert.ErrorIs(t, err, tt.want)

			var storeErr *Error
			require.True(t, errors.As(err, &storeErr))
			assert.Equal(t, "campaigns/x.md", storeErr.Key)
		})
	}
}

// fakeS3 はパススタイルの PUT/GET だけを受け付ける最小限のS3互換サーバーです。
func fakeS3(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	objects := map[string][]byte{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			objects[r.URL.Path] = body
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			body, ok := objects[r.URL.Path]
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
				return
			}
			w.Header().Set("Content-Type", "text/markdown")
			_, _ = w.Write(body)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestS3StoreRoundTrip(t *testing.T) {
	srv := fakeS3(t)
	ctx := context.Background()

	store, err := NewS3Store(ctx, S3Config{
		Bucket:          "campaigns-bucket",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		ForcePathStyle:  true,
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
		PresignExpiry:   time.Hour,
	})
	require.NoError(t, err)

	obj, err := store.Put(ctx, FolderCampaigns, "campaign_book.md", []byte("# Campaign"), "text/markdown")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.URL, srv.URL+"/campaigns-bucket/"+FolderCampaigns+"/"))
	assert.Contains(t, obj.URL, "X-Amz-Expires=3600")

	data, err := store.Get(ctx, obj.Key)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Campaign")

	_, err = store.Get(ctx, "campaigns/missing.md")
	assert.ErrorIs(t, err, ErrNotFound)
}
