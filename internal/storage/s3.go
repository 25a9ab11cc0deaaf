package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const backendS3 = "s3"

// S3Config は S3Store の設定です。
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	PresignExpiry   time.Duration
}

// S3Store は S3（互換ストレージ含む）に保存する BlobStore です。
// ダウンロードURLは署名付きURLを返します。
type S3Store struct {
	client        *s3.Client
	presigner     *s3.PresignClient
	bucket        string
	presignExpiry time.Duration
}

// NewS3Store は S3Store を作成します。
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &Error{Op: "New", Backend: backendS3, Err: err}
	}
	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = "us-east-1"
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	return &S3Store{
		client:        client,
		presigner:     s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		presignExpiry: expiry,
	}, nil
}

// Put はオブジェクトをアップロードし、署名付きURLを付けて返します。
func (s *S3Store) Put(ctx context.Context, folder, filename string, data []byte, contentType string) (*Object, error) {
	key := NewKey(folder, filename)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, s.wrapError("PutObject", key, err)
	}

	url, err := s.presign(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Object{
		Key:         key,
		URL:         url,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

// Get はオブジェクトの内容を返します。
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrapError("GetObject", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, s.wrapError("GetObject", key, err)
	}
	return data, nil
}

// Delete はオブジェクトを削除します。
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		wrapped := s.wrapError("DeleteObject", key, err)
		if errors.Is(wrapped, ErrNotFound) {
			return nil
		}
		return wrapped
	}
	return nil
}

func (s *S3Store) presign(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignExpiry))
	if err != nil {
		return "", s.wrapError("PresignGetObject", key, err)
	}
	return req.URL, nil
}

// wrapError は S3 のエラーを番兵エラー付きの Error に変換します。
func (s *S3Store) wrapError(op, key string, err error) error {
	wrapped := &Error{Op: op, Backend: backendS3, Key: key, Err: err}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		wrapped.Err = ErrNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			wrapped.Err = ErrNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = fmt.Errorf("%w: %s", ErrAccessDenied, apiErr.ErrorMessage())
		case "SlowDown", "ServiceUnavailable", "InternalError":
			wrapped.Err = fmt.Errorf("%w: %s", ErrUnavailable, apiErr.ErrorMessage())
		}
		return wrapped
	}

	if strings.Contains(err.Error(), "NoSuchKey") {
		wrapped.Err = ErrNotFound
	}
	return wrapped
}
