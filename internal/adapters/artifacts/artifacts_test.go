package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Put(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), "jobs/job-1/01-submit.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "file://"))
	assert.True(t, strings.HasSuffix(ref, "/jobs/job-1/01-submit.png"))

	data, err := os.ReadFile(filepath.Join(dir, "jobs", "job-1", "01-submit.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", " ", "/etc/passwd", "../x", "jobs/../../x", "..", "a\\b"} {
		_, err := store.Put(context.Background(), key, []byte("x"), "")
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestLocalStore_CanceledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Put(ctx, "jobs/x", []byte("x"), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLocalStore_RequiresDir(t *testing.T) {
	_, err := NewLocalStore("")
	assert.Error(t, err)
}

func TestNewMinioStore_Validation(t *testing.T) {
	cases := []MinioOptions{
		{AccessKey: "a", SecretKey: "s", Bucket: "b"},
		{Endpoint: "localhost:9000", Bucket: "b"},
		{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"},
	}
	for _, opts := range cases {
		_, err := NewMinioStore(opts)
		assert.Error(t, err)
	}

	s, err := NewMinioStore(MinioOptions{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b"})
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "../x", nil, "")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Equal(t, "s3://b/jobs/1/trace.zip", Ref("b", "jobs/1/trace.zip"))
}

// TestMinioStore_Put runs against a live server when MINIO_ENDPOINT is set.
func TestMinioStore_Put(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewMinioStore(MinioOptions{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    "cashier-test",
	})
	require.NoError(t, err)
	require.NoError(t, s.EnsureBucket(ctx))
	require.NoError(t, s.EnsureBucket(ctx), "existing bucket is not an error")

	ref, err := s.Put(ctx, "jobs/test/01-step.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "s3://cashier-test/jobs/test/01-step.png", ref)
}
