package certificates_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-attendance/internal/certificates"
	"ms-attendance/internal/config"
)

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	store, err := certificates.NewLocalStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "event-1.pdf")
	assert.ErrorIs(t, err, certificates.ErrTemplateNotFound)

	require.NoError(t, store.Put(ctx, "event-1.pdf", []byte("%PDF-1.4")))
	data, err := store.Get(ctx, "event-1.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	require.NoError(t, store.Put(ctx, "../../escape.pdf", []byte("x")))
	_, err = os.Stat(filepath.Join(dir, "escape.pdf"))
	assert.NoError(t, err)
}

func TestNewTemplateStoreBackends(t *testing.T) {
	store, err := certificates.NewTemplateStore(context.Background(), config.StorageConfig{Backend: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &certificates.LocalStore{}, store)

	_, err = certificates.NewTemplateStore(context.Background(), config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}
	store := &certificates.S3Store{Client: client, Bucket: "media", Prefix: "certificate_templates/"}
	ctx := context.Background()

	_, err := store.Get(ctx, "event-1.pdf")
	assert.ErrorIs(t, err, certificates.ErrTemplateNotFound)

	require.NoError(t, store.Put(ctx, "event-1.pdf", []byte("%PDF-1.7")))
	assert.Contains(t, client.objects, "media/certificate_templates/event-1.pdf")

	data, err := store.Get(ctx, "event-1.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), data)
}
