package utils

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2Client uploads invariant-monitor reports to a Cloudflare R2 bucket so a
// violation survives log rotation and can be fetched by the on-call runbook.
type R2Client struct {
	client *s3.Client
	bucket string
}

// NewR2Client builds a client against the account's R2 endpoint with static
// credentials. Returns nil when the bucket is unset, which disables report
// uploads without disabling the monitor itself.
func NewR2Client(accountID, accessKeyID, accessKeySecret, bucket string) (*R2Client, error) {
	if bucket == "" {
		return nil, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		awsconfig.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}
	return &R2Client{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// UploadReport stores a JSON report under key and returns the object URL.
func (c *R2Client) UploadReport(ctx context.Context, key string, body []byte) (string, error) {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}
	return fmt.Sprintf("%s/%s", c.bucket, key), nil
}
