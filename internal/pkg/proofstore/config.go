package proofstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/BarberFox/internal/pkg/env"
)

const defaultMaxBytes = 5 << 20

// Config holds the S3 settings for bank-transfer proof uploads
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	PublicBaseURL   string // Optional CDN or bucket website in front of the objects
	MaxBytes        int64
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     strings.TrimRight(env.GetEnv("S3_ENDPOINT_URL", ""), "/"),
		PublicBaseURL:   strings.TrimRight(env.GetEnv("S3_PUBLIC_URL", ""), "/"),
		MaxBytes:        defaultMaxBytes,
		Enabled:         env.GetEnvBool("S3_PROOF_ENABLED", false),
	}
	if raw := env.GetEnv("PROOF_MAX_BYTES", ""); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("PROOF_MAX_BYTES must be a positive integer, got %q", raw)
		}
		config.MaxBytes = n
	}

	// Validate required fields if proof uploads are enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when proof uploads are enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when proof uploads are enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when proof uploads are enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if proof uploads are enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey generates the object key for an owner's proof.
// Format: proofs/OWNER/YYYY/MM/ID.ext
func (c *Config) ObjectKey(ownerID uint, id, fileExtension string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("proofs/%d/%04d/%02d/%s%s", ownerID, at.Year(), int(at.Month()), id, fileExtension)
}

// PublicURL is the address stored as proof_url for an uploaded object.
func (c *Config) PublicURL(objectKey string) string {
	switch {
	case c.PublicBaseURL != "":
		return c.PublicBaseURL + "/" + objectKey
	case c.EndpointURL != "":
		return fmt.Sprintf("%s/%s/%s", c.EndpointURL, c.BucketName, objectKey)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.BucketName, c.Region, objectKey)
	}
}
