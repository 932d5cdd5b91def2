package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// LocationResolver produces the URL a client is redirected to for a
// package archive.
type LocationResolver interface {
	DownloadURL(ctx context.Context, pkg, version string) (string, error)
}

// ArchivePath is the canonical object key for a version's archive
func ArchivePath(pkg, version string) string {
	return fmt.Sprintf("packages/%s/%s-%s.tar.gz", pkg, pkg, version)
}

// CDNResolver builds download URLs against a static CDN base. Used when
// archives are served through a CDN fronting the object store.
type CDNResolver struct {
	baseURL string
}

// NewCDNResolver creates a resolver for the given CDN base URL
func NewCDNResolver(baseURL string) *CDNResolver {
	return &CDNResolver{baseURL: strings.TrimRight(baseURL, "/")}
}

// DownloadURL returns the CDN URL for a version's archive
func (r *CDNResolver) DownloadURL(_ context.Context, pkg, version string) (string, error) {
	return r.baseURL + "/" + ArchivePath(pkg, version), nil
}

// S3ResolverConfig configures direct object storage access
type S3ResolverConfig struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool

	// URLTTL bounds presigned URL validity
	URLTTL time.Duration
}

// S3Resolver presigns GetObject URLs against the archive bucket. Used for
// deployments without a CDN, including MinIO-backed local setups.
type S3Resolver struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

// NewS3Resolver creates a presigning resolver
func NewS3Resolver(ctx context.Context, cfg S3ResolverConfig) (*S3Resolver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 15 * time.Minute
	}

	var awsCfg aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Resolver{
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		ttl:     cfg.URLTTL,
	}, nil
}

// DownloadURL presigns a GetObject request for the archive
func (r *S3Resolver) DownloadURL(ctx context.Context, pkg, version string) (string, error) {
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(ArchivePath(pkg, version)),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign download URL: %w", err)
	}
	return req.URL, nil
}
