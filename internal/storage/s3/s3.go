package s3

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// api is the subset of *s3.Client the uploader needs.
type api interface {
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Client struct {
	Client    api
	Presigner *s3.PresignClient
	Bucket    string
	// PublicBaseURL, when set, is the public origin objects are served from
	// (an R2 custom domain or CDN). Without it stored URLs use the s3:// scheme
	// and are presigned at read time.
	PublicBaseURL string
	PartSize      int64
}

// NewR2Client initializes an S3-compatible client for Cloudflare R2
func NewR2Client(ctx context.Context) (*S3Client, error) {
	endpoint := os.Getenv("AWS_ENDPOINT")
	region := os.Getenv("AWS_REGION")
	bucket := os.Getenv("AWS_BUCKET")

	creds := credentials.NewStaticCredentialsProvider(
		os.Getenv("AWS_ACCESS_KEY_ID"),
		os.Getenv("AWS_SECRET_ACCESS_KEY"),
		"",
	)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = false
	})

	return &S3Client{
		Client:        client,
		Presigner:     s3.NewPresignClient(client),
		Bucket:        bucket,
		PublicBaseURL: strings.TrimRight(os.Getenv("AWS_PUBLIC_BASE_URL"), "/"),
		PartSize:      DefaultPartSize,
	}, nil
}

// URLFor is the durable URL recorded for objectKey.
func (s *S3Client) URLFor(objectKey string) string {
	if s.PublicBaseURL != "" {
		return s.PublicBaseURL + "/" + objectKey
	}
	return "s3://" + s.Bucket + "/" + objectKey
}

// ResolveURL turns a stored URL into one a browser can fetch. Public URLs pass
// through; s3:// URLs for this bucket are presigned.
func (s *S3Client) ResolveURL(ctx context.Context, stored string) (string, error) {
	key, ok := strings.CutPrefix(stored, "s3://"+s.Bucket+"/")
	if !ok {
		return stored, nil
	}
	return s.GeneratePresignedDownloadURL(ctx, key)
}

// GeneratePresignedDownloadURL creates a presigned GET URL for downloading
func (s *S3Client) GeneratePresignedDownloadURL(ctx context.Context, objectKey string) (string, error) {
	if s.Presigner == nil {
		return "", fmt.Errorf("s3: presigner not configured")
	}
	req, err := s.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(objectKey),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = 15 * time.Minute // URL valid for 15 minutes
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return req.URL, nil
}
