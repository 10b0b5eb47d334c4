package media

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUploader struct {
	url   string
	err   error
	calls int
}

func (s *stubUploader) Upload(ctx context.Context, dataURI string) (string, error) {
	s.calls++
	return s.url, s.err
}

func TestResolvePassesURLsThrough(t *testing.T) {
	up := &stubUploader{}
	r := NewResolver(up)

	got, err := r.Resolve(context.Background(), " https://cdn.example/cat.png ")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/cat.png", got)
	assert.Zero(t, up.calls)

	got, err = r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveUploadsDataURI(t *testing.T) {
	up := &stubUploader{url: "https://res.cloudinary.com/x/y.png"}
	got, err := NewResolver(up).Resolve(context.Background(), "data:image/png;base64,AAAA")
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/x/y.png", got)
	assert.Equal(t, 1, up.calls)
}

func TestResolveUploadFailure(t *testing.T) {
	up := &stubUploader{err: errors.New("quota exceeded")}
	_, err := NewResolver(up).Resolve(context.Background(), "data:image/png;base64,AAAA")
	assert.ErrorIs(t, err, ErrUploadFailed)

	_, err = NewResolver(nil).Resolve(context.Background(), "data:image/png;base64,AAAA")
	assert.ErrorIs(t, err, ErrUploadFailed)
}

func TestResolveRejectsUnknownReferences(t *testing.T) {
	_, err := NewResolver(&stubUploader{}).Resolve(context.Background(), "ftp://host/file.png")
	assert.ErrorIs(t, err, ErrInvalidImage)
}
