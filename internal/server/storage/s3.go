package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/exius/internal/common"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Config carries the connection settings of an S3-compatible backend.
type S3Config struct {
	User              string
	Password          string
	Bucket            string
	Region            string
	BaseEndpoint      string
	ShareLinkValidity time.Duration
}

// S3Storage keeps folders as "/"-terminated marker objects. A folder id is
// its key prefix and a file id is its object key. Share links are presigned
// GET URLs of the folder marker.
type S3Storage struct {
	client    s3API
	presigner presigner
	bucket    string
	linkTTL   time.Duration
}

// NewS3Storage builds an S3 client with static credentials, path-style
// addressing and the configured base endpoint (MinIO in development).
func NewS3Storage(ctx context.Context, c S3Config) (*S3Storage, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.User, c.Password, "")),
	)
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Storage{
		client:    client,
		presigner: newS3PresignClient(client),
		bucket:    c.Bucket,
		linkTTL:   c.ShareLinkValidity,
	}, nil
}

func prefixOf(folderID string) string {
	if folderID == common.RootFolderID || folderID == "" {
		return ""
	}
	return folderID
}

func (s *S3Storage) ListFolderChildren(ctx context.Context, folderID string) ([]Folder, error) {
	prefix := prefixOf(folderID)
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var out []Folder
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			id := aws.ToString(cp.Prefix)
			name := strings.TrimSuffix(strings.TrimPrefix(id, prefix), "/")
			if name == "" {
				continue
			}
			out = append(out, Folder{ID: id, Name: name})
		}
	}
	return out, nil
}

func (s *S3Storage) CreateFolder(ctx context.Context, parentID, name string) (Folder, error) {
	id := prefixOf(parentID) + name + "/"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(id),
		Body:          strings.NewReader(""),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return Folder{}, fmt.Errorf("create folder %q: %w", id, err)
	}
	return Folder{ID: id, Name: name}, nil
}

func (s *S3Storage) CreateShareLink(ctx context.Context, folderID string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(prefixOf(folderID)),
	}, s3.WithPresignExpires(s.linkTTL))
	if err != nil {
		return "", fmt.Errorf("share link %q: %w", folderID, err)
	}
	return req.URL, nil
}

func (s *S3Storage) UploadFile(ctx context.Context, folderID, name string, body io.Reader, size int64) (string, error) {
	key := prefixOf(folderID) + name
	if err := s.put(ctx, key, body, size); err != nil {
		return "", err
	}
	return key, nil
}

// ReplaceFile overwrites the object; the file id stays the same.
func (s *S3Storage) ReplaceFile(ctx context.Context, fileID string, body io.Reader, size int64) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFileNotFound, fileID, err)
	}
	return s.put(ctx, fileID, body, size)
}

func (s *S3Storage) put(ctx context.Context, key string, body io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}
