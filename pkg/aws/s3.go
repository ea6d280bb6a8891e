package aws

import (
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client creates an S3 client. With an endpoint override it switches to
// path-style addressing, which LocalStack and MinIO require.
func NewS3Client(cfg sdkaws.Config) *s3.Client {
	endpoint := Endpoint()
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.UsePathStyle = true
			o.BaseEndpoint = sdkaws.String(endpoint)
		}
	})
}
