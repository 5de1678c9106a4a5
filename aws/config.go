package s3

import (
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
)

type AWSConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	Region          string
	// Endpoint overrides the S3 endpoint, e.g. for MinIO or localstack.
	Endpoint string
}

func ConfigFromEnv() AWSConfig {
	return AWSConfig{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AccessKeySecret: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Region:          os.Getenv("AWS_REGION"),
		Endpoint:        os.Getenv("AWS_S3_ENDPOINT"),
	}
}

// CreateSession builds a session from static credentials. Without an access
// key the default provider chain is used.
func CreateSession(cfg AWSConfig) (*session.Session, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.AccessKeyID != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.AccessKeySecret, ""))
	}
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	return session.NewSession(awsCfg)
}
