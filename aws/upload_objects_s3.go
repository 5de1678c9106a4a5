package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

func NewUploader(sess *session.Session) s3manageriface.UploaderAPI {
	return s3manager.NewUploader(sess)
}

// UploadObject stores body under bucket/key and returns the object location.
func UploadObject(ctx context.Context, uploader s3manageriface.UploaderAPI, bucket, key, contentType string, body io.Reader) (string, error) {
	out, err := uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return out.Location, nil
}
