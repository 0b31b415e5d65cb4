// Package resource resolves startup-time references (service-account
// credentials, JSON schemas) into bytes. A reference is one of:
//
//	/path/to/file or file:///path/to/file
//	env:NAME          value of an environment variable
//	s3://bucket/key   object fetched through the AWS SDK
package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeydtaylor/steeze-vault/pkg/manifest"
)

// ObjectGetter is the slice of the S3 API the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Loader struct {
	s3     ObjectGetter
	lookup func(string) (string, bool)
}

// NewLoader builds a loader. The S3 client is only constructed when cfg is
// non-nil; without it s3:// references fail at Load time.
func NewLoader(ctx context.Context, cfg *manifest.AWSClient) (*Loader, error) {
	l := &Loader{lookup: os.LookupEnv}
	if cfg == nil {
		return l, nil
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.StaticAccessKeyID != "" && cfg.StaticSecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.StaticAccessKeyID, cfg.StaticSecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	l.s3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})
	return l, nil
}

// NewLoaderWithS3 is used by tests and callers that already hold an S3 client.
func NewLoaderWithS3(api ObjectGetter) *Loader {
	return &Loader{s3: api, lookup: os.LookupEnv}
}

func (l *Loader) Load(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, errors.New("resource: empty reference")
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		v, ok := l.lookup(name)
		if !ok || v == "" {
			return nil, fmt.Errorf("resource: environment variable %s is not set", name)
		}
		return []byte(v), nil
	case strings.HasPrefix(ref, "s3://"):
		return l.loadS3(ctx, ref)
	default:
		b, err := os.ReadFile(strings.TrimPrefix(ref, "file://"))
		if err != nil {
			return nil, fmt.Errorf("resource: %w", err)
		}
		return b, nil
	}
}

func (l *Loader) loadS3(ctx context.Context, ref string) ([]byte, error) {
	if l.s3 == nil {
		return nil, fmt.Errorf("resource: %s needs an [aws] section", ref)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(ref, "s3://"), "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("resource: malformed s3 reference %q", ref)
	}
	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("resource: get %s: %w", ref, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("resource: read %s: %w", ref, err)
	}
	return b, nil
}
