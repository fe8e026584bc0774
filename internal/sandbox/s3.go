package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store keeps sandbox archives in an S3 bucket, the way a central grid
// sandbox store does.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	prefix     string
	logger     *slog.Logger
}

// S3Config holds the connection settings for an S3 sandbox store.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO and friends)
	Prefix   string // optional key prefix
}

// NewS3Store creates an S3-backed sandbox store.
func NewS3Store(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("sandbox store bucket is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		logger:     logger.With("component", "sandbox"),
	}, nil
}

// Upload archives the files and stores the archive under its checksum key.
// An object that already exists is not re-uploaded.
func (s *S3Store) Upload(ctx context.Context, paths []string) (string, error) {
	tmp, ref, size, err := archiveToTemp(paths)
	if err != nil {
		return "", fmt.Errorf("build sandbox: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	pfn, err := pfnFromRef(ref)
	if err != nil {
		return "", err
	}
	key := s.prefix + pfn

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		s.logger.Debug("sandbox already stored", "ref", ref)
		return ref, nil
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        tmp,
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("upload sandbox: %w", err)
	}

	s.logger.Info("uploaded sandbox", "ref", ref, "bucket", s.bucket, "size", size)
	return ref, nil
}

// Download fetches the referenced archive and extracts it into destination.
func (s *S3Store) Download(ctx context.Context, ref, destination string) error {
	pfn, err := pfnFromRef(ref)
	if err != nil {
		return err
	}
	key := s.prefix + pfn

	tmp, err := os.CreateTemp("", "sandbox-*.tar.gz")
	if err != nil {
		return err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := s.downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("download sandbox %s: %w", ref, err)
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return err
	}

	if err := os.MkdirAll(destination, 0o755); err != nil {
		return err
	}
	if err := extractArchive(tmp, destination); err != nil {
		return fmt.Errorf("extract sandbox %s: %w", ref, err)
	}
	s.logger.Info("downloaded sandbox", "ref", ref, "destination", destination)
	return nil
}
