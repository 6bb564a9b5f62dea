package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/simple-molecule/pkg/simplemolecule"
)

// Config options for the S3 source
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	Prefix          string // Optional key prefix standing in for the input root
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)
}

// Source is an S3-compatible implementation of simplemolecule.FallbackSource.
// Objects live at {Prefix}/{folder}/{filename}.
type Source struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// New creates a new S3-compatible fallback source
func New(config Config) (*Source, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		// Use provided credentials
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}
	if config.Endpoint != "" {
		// S3-compatible services often reject the default request checksums
		loadOptions = append(loadOptions, awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)
	return &Source{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   config.Bucket,
		prefix:   strings.Trim(config.Prefix, "/"),
	}, nil
}

// Name returns "s3"
func (s *Source) Name() string {
	return "s3"
}

func (s *Source) objectKey(folder, name string) (string, error) {
	key, err := simplemolecule.SourceKey(folder, name)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return key, nil
	}
	return s.prefix + "/" + key, nil
}

// Read fetches the first candidate object that exists.
func (s *Source) Read(ctx context.Context, folder, filename, identifier string) (*simplemolecule.SourceObject, error) {
	for _, name := range simplemolecule.CandidateNames(filename, identifier) {
		key, err := s.objectKey(folder, name)
		if err != nil {
			return nil, s.fail("read", name, err)
		}

		result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, s.fail("read", key, fmt.Errorf("failed to download from S3: %w", err))
		}

		data, err := io.ReadAll(result.Body)
		result.Body.Close()
		if err != nil {
			return nil, s.fail("read", key, fmt.Errorf("failed to read object body: %w", err))
		}
		if !utf8.Valid(data) {
			return nil, s.fail("read", key, simplemolecule.ErrDecode)
		}

		obj := &simplemolecule.SourceObject{
			Path:    fmt.Sprintf("s3://%s/%s", s.bucket, key),
			Content: string(data),
			Size:    int64(len(data)),
		}
		if result.LastModified != nil {
			obj.ModTime = *result.LastModified
		}
		return obj, nil
	}

	return nil, s.fail("read", folder+"/"+filename, simplemolecule.ErrSourceNotFound)
}

// Write uploads content under the identifier's disambiguated name.
func (s *Source) Write(ctx context.Context, folder, filename, identifier, content string) (string, error) {
	key, err := s.objectKey(folder, simplemolecule.DisambiguatedName(filename, identifier))
	if err != nil {
		return "", s.fail("write", filename, err)
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return "", s.fail("write", key, fmt.Errorf("failed to upload to S3: %w", err))
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *Source) fail(op, key string, err error) error {
	return &simplemolecule.FallbackError{Source: s.Name(), Key: key, Op: op, Err: err}
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
