// Package awsclient builds AWS SDK v2 clients from static options, with an
// optional endpoint override for LocalStack and DynamoDB Local.
package awsclient

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// fallbackRegion is used when only an endpoint override is given.
const fallbackRegion = "us-east-1"

// Options configures credentials and endpoint resolution.
type Options struct {
	Region string
	// Endpoint overrides the AWS endpoint.
	Endpoint     string
	AccessKey    string
	SecretKey    string
	SessionToken string
}

// LoadConfig resolves an aws.Config. Static keys win over the default chain.
func LoadConfig(ctx context.Context, opts Options) (aws.Config, error) {
	cfgOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(opts.Region))
	} else if opts.Endpoint != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(fallbackRegion))
	}
	if opts.AccessKey != "" || opts.SecretKey != "" {
		cfgOpts = append(cfgOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, opts.SessionToken),
		))
	}

	return config.LoadDefaultConfig(ctx, cfgOpts...)
}

func NewDynamoDB(ctx context.Context, opts Options) (*dynamodb.Client, error) {
	cfg, err := LoadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

func NewSNS(ctx context.Context, opts Options) (*sns.Client, error) {
	cfg, err := LoadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}

	return sns.NewFromConfig(cfg, func(o *sns.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}
