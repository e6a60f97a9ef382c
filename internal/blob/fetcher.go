// Package blob downloads print files referenced by job messages. The S3
// fetcher handles real object storage URLs; the stub fetcher materializes
// placeholder files so simulated mode never touches the network.
package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrUnsupportedURL is returned when a file URL does not point at an S3
// object in any of the recognized forms.
var ErrUnsupportedURL = errors.New("unsupported file URL")

// S3Fetcher downloads objects into a local spool directory.
type S3Fetcher struct {
	downloader *manager.Downloader
	dir        string
	log        *slog.Logger
}

// NewS3Fetcher builds a fetcher using the ambient AWS credential chain.
func NewS3Fetcher(ctx context.Context, region, dir string, log *slog.Logger) (*S3Fetcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Fetcher{
		downloader: manager.NewDownloader(client),
		dir:        dir,
		log:        log,
	}, nil
}

// Fetch downloads the object behind rawURL and returns the local path.
func (f *S3Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	bucket, key, err := ParseObjectURL(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	local := filepath.Join(f.dir, localName(key))
	out, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", local, err)
	}
	defer out.Close()

	n, err := f.downloader.Download(ctx, out, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		os.Remove(local)
		return "", fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	f.log.Info("downloaded print file", "bucket", bucket, "key", key, "bytes", n, "path", local)
	return local, nil
}

// ParseObjectURL extracts the bucket and key from an S3 URL. It accepts
// s3://bucket/key, virtual-hosted https://bucket.s3.region.amazonaws.com/key
// and path-style https://s3.region.amazonaws.com/bucket/key forms.
func ParseObjectURL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	p := strings.TrimPrefix(u.Path, "/")

	switch {
	case u.Scheme == "s3":
		bucket, key = u.Host, p
	case (u.Scheme == "https" || u.Scheme == "http") && strings.Contains(u.Host, ".s3"):
		bucket, key = strings.SplitN(u.Host, ".", 2)[0], p
	case (u.Scheme == "https" || u.Scheme == "http") && strings.HasPrefix(u.Host, "s3"):
		parts := strings.SplitN(p, "/", 2)
		if len(parts) == 2 {
			bucket, key = parts[0], parts[1]
		}
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}
	return bucket, key, nil
}

// StubFetcher writes placeholder files instead of downloading. Simulated
// mode uses it so job flows still exercise the local spool directory.
type StubFetcher struct {
	dir string
	log *slog.Logger
}

// NewStubFetcher returns a fetcher that fabricates print files under dir.
func NewStubFetcher(dir string, log *slog.Logger) *StubFetcher {
	return &StubFetcher{dir: dir, log: log}
}

// Fetch materializes an empty placeholder named after the URL.
func (f *StubFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	local := filepath.Join(f.dir, localName(rawURL))
	body := fmt.Sprintf("; simulated print file for %s\n", rawURL)
	if err := os.WriteFile(local, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", local, err)
	}
	f.log.Info("materialized simulated print file", "url", rawURL, "path", local)
	return local, nil
}

// localName derives a collision-free file name from an object key or URL.
func localName(ref string) string {
	base := path.Base(strings.TrimSuffix(ref, "/"))
	if base == "." || base == "/" || base == "" {
		base = "print.gcode"
	}
	return uuid.NewString()[:8] + "-" + base
}
