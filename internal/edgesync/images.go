package edgesync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// presignTTL is how long a product-image URL handed to a thin client stays
// valid — long enough for a slow kiosk connection to finish the download,
// short enough that a leaked URL doesn't become a standing bucket leak.
const presignTTL = 15 * time.Minute

// ImageResolver turns a product's stored image key into a time-limited
// presigned URL, grounded on the same aws-sdk-go-v2 S3 client the teacher
// uses for its artifact store, pointed at the tenant's product-image
// bucket instead of build artifacts.
type ImageResolver struct {
	presign *s3.PresignClient
	bucket  string
	log     *slog.Logger
}

// NewImageResolver loads the default AWS config (environment, shared
// config file, or an attached IAM role — whichever the SDK finds first)
// and builds a presign client scoped to bucket/region.
func NewImageResolver(ctx context.Context, bucket, region string, log *slog.Logger) (*ImageResolver, error) {
	if log == nil {
		log = slog.Default()
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("edgesync: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &ImageResolver{presign: s3.NewPresignClient(client), bucket: bucket, log: log}, nil
}

// PresignedURL returns a time-limited GET URL for a product image key.
func (r *ImageResolver) PresignedURL(ctx context.Context, imageKey string) (string, error) {
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(imageKey),
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return "", fmt.Errorf("edgesync: presign image %s: %w", imageKey, err)
	}
	return req.URL, nil
}

// EnsureImage is the fire-and-forget op a catalog push can carry alongside
// a product upsert: the cloud asks the edge to warm its local image-URL
// cache for imageKey before the product is ever displayed. Failures are
// logged, not propagated — a missing presigned URL degrades to a blank
// product image, it never blocks the catalog write that requested it.
func (r *ImageResolver) EnsureImage(ctx context.Context, imageKey string) {
	if _, err := r.PresignedURL(ctx, imageKey); err != nil {
		r.log.WarnContext(ctx, "ensure image failed", "image_key", imageKey, "error", err)
	}
}
