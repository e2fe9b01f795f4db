// Package storage archives raw crawled HTML in S3-compatible object
// storage so a site can be re-chunked later without re-fetching it.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArchiveConfig holds connection settings for the crawl archive bucket.
type ArchiveConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// CrawlArchive stores one raw HTML snapshot per crawled URL. Keys are
// business-scoped so tenants never share objects.
type CrawlArchive struct {
	client *s3.Client
	bucket string
}

func NewCrawlArchive(ctx context.Context, cfg ArchiveConfig) (*CrawlArchive, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if cfg.Endpoint != "" {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		},
	)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		config.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &CrawlArchive{client: client, bucket: cfg.Bucket}, nil
}

// Store writes one page snapshot. Re-crawling the same URL overwrites
// the previous snapshot; only the latest version is kept.
func (a *CrawlArchive) Store(ctx context.Context, businessID, pageURL string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ObjectKey(businessID, pageURL)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/html; charset=utf-8"),
		Metadata: map[string]string{
			"source-url": pageURL,
			"crawled-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to store crawl snapshot: %w", err)
	}
	return nil
}

// Fetch returns the latest snapshot for a URL, if one exists.
func (a *CrawlArchive) Fetch(ctx context.Context, businessID, pageURL string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(ObjectKey(businessID, pageURL)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch crawl snapshot: %w", err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("failed to read crawl snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Delete removes a URL's snapshot.
func (a *CrawlArchive) Delete(ctx context.Context, businessID, pageURL string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(ObjectKey(businessID, pageURL)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete crawl snapshot: %w", err)
	}
	return nil
}

// EnsureBucket creates the archive bucket if it doesn't exist.
func (a *CrawlArchive) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// ObjectKey derives a stable, business-scoped key from a page URL. The
// URL is hashed so arbitrary characters never leak into object paths.
func ObjectKey(businessID, pageURL string) string {
	sum := sha256.Sum256([]byte(pageURL))
	return fmt.Sprintf("crawls/%s/%s.html", businessID, hex.EncodeToString(sum[:]))
}
