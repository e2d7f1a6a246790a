package s3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tendant/video-intake/pkg/intake"
)

// Upload styles
const (
	StylePut  = "put"
	StylePost = "post"
)

// RejectionTagKey is the object tag set on uploads that were not processed
const RejectionTagKey = "intake-status"

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)
	UploadStyle     string // "put" (presigned URL) or "post" (presigned form policy, default)
}

// Backend authorizes direct uploads and reads back object metadata.
// It implements intake.Authorizer, intake.MetadataSource and intake.Rejector.
type Backend struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	style         string
}

// New creates a backend from config, loading credentials from the default
// chain unless static keys are given.
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket name is required", intake.ErrConfiguration)
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, s3Options...), config)
}

// NewWithClient creates a backend around an existing client.
func NewWithClient(client *s3.Client, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket name is required", intake.ErrConfiguration)
	}

	style := config.UploadStyle
	if style == "" {
		style = StylePost
	}
	if style != StylePut && style != StylePost {
		return nil, fmt.Errorf("%w: unknown upload style %q", intake.ErrConfiguration, style)
	}

	return &Backend{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        config.Bucket,
		style:         style,
	}, nil
}

// Bucket returns the upload bucket
func (b *Backend) Bucket() string {
	return b.bucket
}

// AuthorizeUpload presigns an upload of exactly intent.ObjectKey whose
// metadata must equal the intent's.
func (b *Backend) AuthorizeUpload(ctx context.Context, intent intake.Intent, expiresIn time.Duration) (*intake.Authorization, error) {
	if b.style == StylePut {
		return b.presignPut(ctx, intent, expiresIn)
	}
	return b.presignPost(ctx, intent, expiresIn)
}

func (b *Backend) presignPut(ctx context.Context, intent intake.Intent, expiresIn time.Duration) (*intake.Authorization, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(intent.ObjectKey),
		ContentType: aws.String(intake.VideoContentType),
		Metadata:    intent.Metadata(),
		IfNoneMatch: aws.String("*"),
	}

	result, err := b.presignClient.PresignPutObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expiresIn
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned upload URL: %w", err)
	}

	headers := intent.Headers()
	headers["Content-Type"] = intake.VideoContentType
	headers["If-None-Match"] = "*"

	return &intake.Authorization{
		Method:          "PUT",
		URL:             result.URL,
		RequiredHeaders: headers,
		ExpiresAt:       intent.Expiry(),
	}, nil
}

func (b *Backend) presignPost(ctx context.Context, intent intake.Intent, expiresIn time.Duration) (*intake.Authorization, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(intent.ObjectKey),
	}

	fields := intent.Headers()
	fields["Content-Type"] = intake.VideoContentType

	conditions := []interface{}{
		[]interface{}{"starts-with", "$key", intake.ObjectKeyPrefix(intent.UserID)},
	}
	for name, value := range fields {
		conditions = append(conditions, map[string]string{name: value})
	}

	result, err := b.presignClient.PresignPostObject(ctx, input, func(opts *s3.PresignPostOptions) {
		opts.Expires = expiresIn
		opts.Conditions = conditions
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned upload policy: %w", err)
	}

	for k, v := range result.Values {
		fields[k] = v
	}
	fields["key"] = intent.ObjectKey
	// The bucket travels in the URL; clients must not post it.
	delete(fields, "bucket")

	return &intake.Authorization{
		Method:    "POST",
		URL:       result.URL,
		Fields:    fields,
		ExpiresAt: intent.Expiry(),
	}, nil
}

// ObjectMetadata reads the user metadata of an object. bucket defaults to
// the configured bucket.
func (b *Backend) ObjectMetadata(ctx context.Context, bucket, key string) (intake.ObjectMetadata, error) {
	if bucket == "" {
		bucket = b.bucket
	}

	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, describeError("head object", bucket, key, err)
	}

	return intake.NormalizeMetadata(result.Metadata), nil
}

// MarkRejected tags the object with intake-status=<reason>.
func (b *Backend) MarkRejected(ctx context.Context, bucket, key string, reason intake.Reason) error {
	if bucket == "" {
		bucket = b.bucket
	}

	_, err := b.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Tagging: &types.Tagging{
			TagSet: []types.Tag{
				{Key: aws.String(RejectionTagKey), Value: aws.String(string(reason))},
			},
		},
	})
	if err != nil {
		return describeError("tag object", bucket, key, err)
	}
	return nil
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
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

func describeError(op, bucket, key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("failed to %s s3://%s/%s (%s): %w", op, bucket, key, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("failed to %s s3://%s/%s: %w", op, bucket, key, err)
}
