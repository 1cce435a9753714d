// Package awsutil loads the AWS SDK config shared by the DynamoDB, S3 and
// SES clients.
package awsutil

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/ignite/adclassify/internal/config"
)

// LoadConfig builds an AWS config for region, or the storage region when
// region is empty. Static keys win over a named profile; with neither the
// default credential chain applies (IAM role on ECS).
func LoadConfig(ctx context.Context, c config.StorageConfig, region string) (aws.Config, error) {
	if region == "" {
		region = c.AWSRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	switch profile := c.GetAWSProfile(); {
	case c.AccessKeyID != "" && c.SecretAccessKey != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	case profile != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}
