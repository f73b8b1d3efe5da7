package proofstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

var (
	ErrDisabled        = errors.New("proof uploads are disabled")
	ErrEmptyFile       = errors.New("proof file is empty")
	ErrTooLarge        = errors.New("proof file is too large")
	ErrUnsupportedType = errors.New("proof must be a JPEG, PNG, WebP image or a PDF")
)

// Client uploads transfer receipts to S3
type Client struct {
	s3Client *s3.Client
	config   *Config
	newID    func() string
	now      func() time.Time
}

// NewClient creates a new proof upload client
func NewClient(cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, ErrDisabled
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services (MinIO, Backblaze B2) need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	return &Client{
		s3Client: s3Client,
		config:   cfg,
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}, nil
}

// Ping checks that the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.config.BucketName),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", c.config.BucketName, err)
	}
	return nil
}

// UploadResult contains the result of a successful upload
type UploadResult struct {
	ObjectKey   string `json:"object_key"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Upload stores one proof file for an owner and returns its public URL.
func (c *Client) Upload(ctx context.Context, ownerID uint, filename string, body io.ReadSeeker, size int64) (*UploadResult, error) {
	if size <= 0 {
		return nil, ErrEmptyFile
	}
	if size > c.config.MaxBytes {
		return nil, ErrTooLarge
	}
	ext := strings.ToLower(filepath.Ext(filename))
	contentType := getContentType(ext)
	if contentType == "" {
		return nil, ErrUnsupportedType
	}
	if ext == ".jpeg" {
		ext = ".jpg"
	}

	objectKey := c.config.ObjectKey(ownerID, c.newID(), ext, c.now())
	log.Infof("[ProofStore] Uploading proof for owner %d -> s3://%s/%s (Size: %d bytes)",
		ownerID, c.config.BucketName, objectKey, size)

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.config.BucketName),
		Key:           aws.String(objectKey),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
		Metadata: map[string]string{
			"owner-id":      fmt.Sprintf("%d", ownerID),
			"upload-source": "barberfox-manual-payment",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload proof: %w", err)
	}

	return &UploadResult{
		ObjectKey:   objectKey,
		URL:         c.config.PublicURL(objectKey),
		Size:        size,
		ContentType: contentType,
	}, nil
}

// getContentType returns the MIME type for accepted receipt formats
func getContentType(ext string) string {
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	default:
		return ""
	}
}
