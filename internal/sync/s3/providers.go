package s3

import (
	"fmt"
	"strings"
)

// Regional AWS S3 endpoints.
var awsEndpoints = map[string]string{
	"us-east-1":      "s3.amazonaws.com",
	"us-east-2":      "s3.us-east-2.amazonaws.com",
	"us-west-1":      "s3.us-west-1.amazonaws.com",
	"us-west-2":      "s3.us-west-2.amazonaws.com",
	"eu-west-1":      "s3.eu-west-1.amazonaws.com",
	"eu-west-2":      "s3.eu-west-2.amazonaws.com",
	"eu-central-1":   "s3.eu-central-1.amazonaws.com",
	"eu-north-1":     "s3.eu-north-1.amazonaws.com",
	"ap-northeast-1": "s3.ap-northeast-1.amazonaws.com",
	"ap-southeast-1": "s3.ap-southeast-1.amazonaws.com",
	"ap-southeast-2": "s3.ap-southeast-2.amazonaws.com",
	"ap-south-1":     "s3.ap-south-1.amazonaws.com",
	"ca-central-1":   "s3.ca-central-1.amazonaws.com",
	"sa-east-1":      "s3.sa-east-1.amazonaws.com",
}

// NewAWS creates a client for AWS S3 with virtual-host style URLs.
// Unknown regions fall back to the global endpoint.
func NewAWS(bucket, accessKey, secretKey, region string) *Client {
	if region == "" {
		region = "us-east-1"
	}
	endpoint, ok := awsEndpoints[region]
	if !ok {
		endpoint = "s3.amazonaws.com"
	}
	return New(Config{
		Endpoint:  endpoint,
		Bucket:    bucket,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Region:    region,
	})
}

// NewR2 creates a client for Cloudflare R2. R2 exposes an S3-compatible API
// on account-scoped endpoints and ignores the region.
func NewR2(accountID, bucket, accessKey, secretKey string) (*Client, error) {
	if accountID == "" {
		return nil, fmt.Errorf("r2 account id is required")
	}
	return New(Config{
		Endpoint:  fmt.Sprintf("%s.r2.cloudflarestorage.com", accountID),
		Bucket:    bucket,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Region:    "auto",
	}), nil
}

// NewMinIO creates a client for a MinIO (or other self-hosted S3-compatible)
// server, which requires path-style URLs.
func NewMinIO(endpoint, bucket, accessKey, secretKey string, useSSL bool) *Client {
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	return New(Config{
		Endpoint:       strings.TrimSuffix(endpoint, "/"),
		Bucket:         bucket,
		AccessKey:      accessKey,
		SecretKey:      secretKey,
		ForcePathStyle: true,
	})
}
