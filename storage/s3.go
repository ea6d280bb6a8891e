package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/carloz138/catalogo-magico-mx-sub005/media"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// S3Config locates the bucket and how its objects are addressed publicly.
type S3Config struct {
	Bucket string
	Prefix string
	// PublicBaseURL (a CDN, usually) wins over Endpoint when building URLs.
	PublicBaseURL string
	Endpoint      string
	// RequestsPerSecond throttles uploads; zero means unlimited.
	RequestsPerSecond float64
}

// S3Uploader uploads through the s3 transfer manager.
type S3Uploader struct {
	uploader *manager.Uploader
	cfg      S3Config
	limiter  *rate.Limiter
}

func NewS3Uploader(client manager.UploadAPIClient, cfg S3Config) *S3Uploader {
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "products"
	}
	return &S3Uploader{
		uploader: manager.NewUploader(client),
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

func (u *S3Uploader) UploadImage(ctx context.Context, merchantID string, img media.NormalizedImage) (string, error) {
	if err := u.limiter.Wait(ctx); err != nil {
		return "", err
	}

	key := ObjectKey(u.cfg.Prefix, merchantID, img)
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.cfg.Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(img.Data),
		ContentType:  aws.String(img.ContentType),
		CacheControl: aws.String("public, max-age=31536000"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", img.FileName, err)
	}

	url := u.PublicURL(key)
	zap.L().Debug("Uploaded image", zap.String("key", key), zap.Int("bytes", len(img.Data)))
	return url, nil
}

// PublicURL returns the address clients use to fetch key.
func (u *S3Uploader) PublicURL(key string) string {
	switch {
	case u.cfg.PublicBaseURL != "":
		return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key
	case u.cfg.Endpoint != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(u.cfg.Endpoint, "/"), u.cfg.Bucket, key)
	default:
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", u.cfg.Bucket, key)
	}
}
