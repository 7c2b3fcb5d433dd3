package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func TestUploadFileUsesBucketURL(t *testing.T) {
	client := &fakeS3{}
	u := &Uploader{Client: client, Bucket: "evidence", Region: "ap-southeast-1"}

	url, err := u.UploadFile(context.Background(), strings.NewReader("pdf"), "reports/r1/a.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://evidence.s3.ap-southeast-1.amazonaws.com/reports/r1/a.pdf", url)
	assert.Equal(t, "evidence", aws.ToString(client.input.Bucket))
	assert.Equal(t, "application/pdf", aws.ToString(client.input.ContentType))
	assert.Equal(t, "pdf", client.body)
}

func TestUploadFilePrefersCloudFront(t *testing.T) {
	u := &Uploader{Client: &fakeS3{}, Bucket: "evidence", Region: "us-east-1", CloudFrontDomain: "cdn.example.com"}

	url, err := u.UploadFile(context.Background(), strings.NewReader("x"), "reports/r1/b.png", "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/reports/r1/b.png", url)
}

func TestUploadFileWrapsErrors(t *testing.T) {
	u := &Uploader{Client: &fakeS3{err: errors.New("access denied")}, Bucket: "evidence"}

	_, err := u.UploadFile(context.Background(), strings.NewReader("x"), "k", "text/plain")
	assert.ErrorContains(t, err, "access denied")
}
