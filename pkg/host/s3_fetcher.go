package host

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aminofox/hlsplay/pkg/requester"
	"github.com/aminofox/hlsplay/pkg/urlutil"
)

// S3Config configures an S3Fetcher.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3Fetcher is a requester.Fetcher backed by an S3 (or S3-compatible,
// e.g. MinIO) bucket, for HLS content whose origin isn't plain HTTP.
// URLs are resolved to object keys
// by stripping the playlist's own domain prefix, since the Multivariant
// Playlist parser still produces ordinary absolute/relative Url values
// regardless of which Fetcher eventually serves them.
type S3Fetcher struct {
	client *s3.Client
	bucket string
}

// NewS3Fetcher creates an S3Fetcher from cfg.
func NewS3Fetcher(ctx context.Context, cfg S3Config) (*S3Fetcher, error) {
	var awsConfig aws.Config
	var err error

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)),
		)
	} else {
		awsConfig, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) { o.UsePathStyle = cfg.UsePathStyle },
	}
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}

	return &S3Fetcher{
		client: s3.NewFromConfig(awsConfig, opts...),
		bucket: cfg.Bucket,
	}, nil
}

// Fetch downloads the object whose key is the URL's pathname+filename,
// classifying S3 failures through the same smithy.APIError path the
// Requester's retry classifier understands.
func (f *S3Fetcher) Fetch(ctx context.Context, url urlutil.Url) ([]byte, error) {
	key := objectKey(url)

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func objectKey(url urlutil.Url) string {
	raw := url.String()
	if domain := url.DomainName(); domain != "" {
		raw = strings.TrimPrefix(raw, domain)
	}
	return strings.TrimPrefix(raw, "/")
}

var _ requester.Fetcher = (*S3Fetcher)(nil)
