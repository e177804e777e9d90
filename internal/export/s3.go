package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	contentTypeNDJSON = "application/x-ndjson"
	s3MaxAttempts     = 3
)

// putObjectAPI is the part of *s3.Client the destination uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination uploads exports to an S3-compatible bucket, tagging each
// object with the run and process it came from.
type S3Destination struct {
	client putObjectAPI
	bucket string
}

// NewS3Destination loads the default AWS credential chain for region. A
// non-empty endpoint selects path-style addressing for MinIO and similar.
func NewS3Destination(ctx context.Context, bucket, region, endpoint string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(s3MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint == "" {
			return
		}
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &S3Destination{client: client, bucket: bucket}, nil
}

func (d *S3Destination) Name() string {
	return "s3://" + d.bucket
}

func (d *S3Destination) Write(ctx context.Context, obj Object) error {
	in := &s3.PutObjectInput{
		Bucket:            aws.String(d.bucket),
		Key:               aws.String(obj.Key),
		Body:              bytes.NewReader(obj.Data),
		ContentLength:     aws.Int64(int64(len(obj.Data))),
		ContentType:       aws.String(contentTypeNDJSON),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		Metadata: map[string]string{
			"run-id":     obj.RunID,
			"process-id": obj.ProcessID,
		},
	}
	if _, err := d.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", d.bucket, obj.Key, err)
	}
	return nil
}
