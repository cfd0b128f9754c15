package objstore

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tonimelisma/cloudvfs/internal/storage"
)

// API is the subset of the S3 client used by this adapter. *s3.Client
// satisfies it; tests substitute an in-memory bucket.
type API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner signs GET URLs for shareable links. *s3.PresignClient
// satisfies it.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// staticCredentials parses an access token of the form
// "ACCESS_KEY_ID:SECRET_ACCESS_KEY[:SESSION_TOKEN]".
func staticCredentials(token string) (credentials.StaticCredentialsProvider, error) {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return credentials.StaticCredentialsProvider{}, storage.InvalidArgumentf(
			"objstore: access token must be ACCESS_KEY_ID:SECRET_ACCESS_KEY[:SESSION_TOKEN]")
	}

	var session string
	if len(parts) == 3 {
		session = parts[2]
	}

	return credentials.NewStaticCredentialsProvider(parts[0], parts[1], session), nil
}

// newS3Client builds the SDK client. The signing credential is fixed at
// construction, which is why SetAccessToken is unsupported.
func newS3Client(token string, opts Options) (*s3.Client, error) {
	creds, err := staticCredentials(token)
	if err != nil {
		return nil, err
	}

	region := opts.Region
	if region == "" {
		region = DefaultRegion
	}

	cfg := aws.Config{
		Region:      region,
		Credentials: creds,
	}

	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}

		o.UsePathStyle = opts.UsePathStyle
	}), nil
}

// isNotFound reports whether err is a missing key or bucket-level 404.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}

	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusNotFound
	}

	return false
}

// isAccessDenied reports whether err is an authorization failure.
func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "AccessDenied"
	}

	return false
}
