package s3

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// compatible maps pseudo regions of s3 compatible providers to their
// endpoint and signing region.
var compatible = map[string][2]string{
	"tebi": {"https://s3.tebi.io", "de"},
}

// Store keeps covers as objects of a single bucket.
type Store struct {
	bucket string
	debug  bool
	client *s3.Client
}

// New returns a new S3 cover store. Empty key and secret fall back to the
// default credential chain.
func New(key, secret, region, bucket string, debug bool) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := []func(*config.LoadOptions) error{}
	if key != "" || secret != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")))
	}
	endpoint, signing := "", region
	if c, ok := compatible[region]; ok {
		endpoint, signing = c[0], c[1]
	}
	opts = append(opts, config.WithRegion(signing))
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: couldn't load config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, fmt.Errorf("s3: couldn't access bucket %s: %w", bucket, err)
	}
	return &Store{bucket: bucket, debug: debug, client: client}, nil
}

func contentType(path string) (string, error) {
	switch ext := filepath.Ext(path); ext {
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".png":
		return "image/png", nil
	case ".webp":
		return "image/webp", nil
	default:
		return "", fmt.Errorf("s3: unknown content type for extension %s", ext)
	}
}

// Upload puts the file at path under the given object name.
func (s *Store) Upload(ctx context.Context, path, name string) error {
	typ, err := contentType(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("s3: couldn't open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        f,
		ContentType: aws.String(typ),
	}); err != nil {
		return fmt.Errorf("s3: couldn't put %s: %w", name, err)
	}
	if s.debug {
		log.Printf("s3: uploaded %s (%s)\n", name, typ)
	}
	return nil
}

var backoff = []time.Duration{
	5 * time.Second,
	15 * time.Second,
}

// Download writes the object to path, retrying transient failures.
func (s *Store) Download(ctx context.Context, path, name string) error {
	var data []byte
	var err error
	for attempt := 0; ; attempt++ {
		data, err = s.get(ctx, name)
		if err == nil {
			break
		}
		if attempt >= len(backoff) {
			return err
		}
		if s.debug {
			log.Printf("%v (retrying in %s)\n", err, backoff[attempt])
		}
		t := time.NewTimer(backoff[attempt])
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("s3: couldn't write %s: %w", path, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: couldn't get %s: %w", name, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: couldn't read %s: %w", name, err)
	}
	return data, nil
}
