package resource

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	calls   []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	k := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.calls = append(f.calls, k)
	v, ok := f.objects[k]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(v))}, nil
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "sa.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"clientID":"c"}`), 0o600))

	l := NewLoaderWithS3(nil)
	b, err := l.Load(context.Background(), p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"clientID":"c"}`, string(b))

	b, err = l.Load(context.Background(), "file://"+p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"clientID":"c"}`, string(b))
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("STEEZE_VAULT_TEST_SECRET", "shh")
	l := NewLoaderWithS3(nil)

	b, err := l.Load(context.Background(), "env:STEEZE_VAULT_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "shh", string(b))

	_, err = l.Load(context.Background(), "env:STEEZE_VAULT_DEFINITELY_UNSET")
	assert.Error(t, err)
}

func TestLoadS3(t *testing.T) {
	api := &fakeS3{objects: map[string]string{"bucket/schemas/users.json": `{"type":"struct","fields":[]}`}}
	l := NewLoaderWithS3(api)

	b, err := l.Load(context.Background(), "s3://bucket/schemas/users.json")
	require.NoError(t, err)
	assert.Contains(t, string(b), "struct")
	assert.Equal(t, []string{"bucket/schemas/users.json"}, api.calls)

	_, err = l.Load(context.Background(), "s3://bucket/missing.json")
	assert.Error(t, err)

	_, err = l.Load(context.Background(), "s3://bucket-only")
	assert.Error(t, err)
}

func TestLoadS3WithoutClient(t *testing.T) {
	l := NewLoaderWithS3(nil)
	_, err := l.Load(context.Background(), "s3://bucket/key")
	assert.ErrorContains(t, err, "[aws]")
}

func TestLoadEmpty(t *testing.T) {
	_, err := NewLoaderWithS3(nil).Load(context.Background(), "  ")
	assert.Error(t, err)
}
