// Package publish uploads finished artifacts to an S3-compatible bucket.
package publish

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/phantomjs-arm/phantomjs-alarm/internal/utils/logger"
)

const artifactContentType = "application/x-tar"

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
}

// S3Publisher mirrors artifacts into a bucket. S3 has no symlinks, so an alias
// is published as a server-side copy of its target.
type S3Publisher struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Publisher(cfg S3Config) *S3Publisher {
	endpoint := cfg.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	client := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	})
	return &S3Publisher{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}
}

// Key is the object key for an artifact file name.
func (p *S3Publisher) Key(name string) string {
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

// PublishArtifact uploads the file at localPath as Key(name).
func (p *S3Publisher) PublishArtifact(ctx context.Context, localPath, name string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	key := p.Key(name)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &p.bucket,
		Key:           &key,
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(artifactContentType),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	logger.Logger().Infof("published s3://%s/%s", p.bucket, key)
	return nil
}

// PublishAlias copies the object of targetName to the alias key.
func (p *S3Publisher) PublishAlias(ctx context.Context, aliasName, targetName string) error {
	src := p.bucket + "/" + (&url.URL{Path: p.Key(targetName)}).EscapedPath()
	key := p.Key(aliasName)
	_, err := p.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &p.bucket,
		Key:        &key,
		CopySource: &src,
	})
	if err != nil {
		return fmt.Errorf("copying %s to %s: %w", targetName, key, err)
	}
	logger.Logger().Infof("published alias s3://%s/%s", p.bucket, key)
	return nil
}
