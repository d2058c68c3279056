package archive

import (
	"context"
	"io"
	"testing"

	"boohpay/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body []byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archive(t *testing.T) {
	fp := &fakePutter{}
	a := &S3{Client: fp, Bucket: "reports", Prefix: "/recon/", PublicBaseURL: "https://cdn.test"}

	url, err := a.Archive(context.Background(), "m1/recon-m1-1.json", []byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/recon/m1/recon-m1-1.json", url)
	assert.Equal(t, "reports", aws.ToString(fp.in.Bucket))
	assert.Equal(t, "application/json", aws.ToString(fp.in.ContentType))
	assert.JSONEq(t, `{"ok":true}`, string(fp.body))

	a.PublicBaseURL = ""
	url, err = a.Archive(context.Background(), "x.json", nil)
	require.NoError(t, err)
	assert.Equal(t, "s3://reports/recon/x.json", url)
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, config.ArchiveConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, Nop{}, a)

	_, err = New(ctx, config.ArchiveConfig{Backend: "ftp"}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(ctx, config.ArchiveConfig{Backend: "s3"}, zap.NewNop())
	assert.Error(t, err, "bucket is required")
}
