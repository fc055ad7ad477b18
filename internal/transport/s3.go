package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/templui/transit/internal/file"
)

// s3API is the subset of the S3 client the transporter calls.
type s3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 pushes files to S3-compatible storage.
// Works with AWS S3, MinIO, DigitalOcean Spaces, Cloudflare R2, etc.
type S3 struct {
	client    s3API
	bucket    string
	publicURL string
	acl       types.ObjectCannedACL

	mu      sync.Mutex
	ensured bool
}

type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string // Optional: for S3-compatible services
	PublicURL string // Optional: base for returned references
	ACL       string // Optional: canned ACL, e.g. public-read
}

// NewS3 builds the client. The bucket is checked (and created) on first use.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if err := requireAll(KindS3, map[string]string{
		"bucket":    cfg.Bucket,
		"accessKey": cfg.AccessKey,
		"secretKey": cfg.SecretKey,
	}); err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO and some S3-compatible services
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	slog.Info("initializing S3 transport",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"endpoint", cfg.Endpoint,
	)
	return newS3(client, cfg), nil
}

func newS3(client s3API, cfg S3Config) *S3 {
	publicURL := cfg.PublicURL
	switch {
	case publicURL != "":
		publicURL = strings.TrimSuffix(publicURL, "/")
	case cfg.Endpoint != "":
		publicURL = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	return &S3{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: publicURL,
		acl:       types.ObjectCannedACL(cfg.ACL),
	}
}

// ensureBucket checks if bucket exists, creates it if not
func (s *S3) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensured {
		return nil
	}

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		s.ensured = true
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %q does not exist and could not be created: %w", s.bucket, err)
	}

	slog.Info("created S3 bucket", "bucket", s.bucket)
	s.ensured = true
	return nil
}

func (s *S3) Transport(ctx context.Context, f *file.File, dest Destination) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	key, err := uniqueKey(ctx, objectKey(dest.Folder, f.Basename()), dest.Overwrite, s.exists)
	if err != nil {
		return "", fmt.Errorf("failed to check S3 key: %w", err)
	}

	mimeType, err := f.MimeType()
	if err != nil {
		return "", fmt.Errorf("failed to read mime type: %w", err)
	}

	body, err := f.Reader()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer body.Close()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(mimeType),
	}
	if s.acl != "" {
		input.ACL = s.acl
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	slog.Debug("uploaded to S3", "bucket", s.bucket, "key", key)
	return s.publicURL + "/" + key, nil
}

// Delete accepts a URL returned by Transport or a bare key.
func (s *S3) Delete(ctx context.Context, ref string) error {
	var key string
	if strings.HasPrefix(ref, s.publicURL+"/") {
		key = strings.TrimPrefix(ref, s.publicURL+"/")
	} else {
		key = KeyFromReference(ref, s.bucket)
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}

func (s *S3) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
