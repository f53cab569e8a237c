package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/sitereel/internal/media"
	"github.com/maauso/sitereel/internal/storage"
)

func newWorkspace(t *testing.T) storage.Workspace {
	t.Helper()
	m, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	ws, err := m.NewWorkspace(context.Background())
	require.NoError(t, err)
	return ws
}

func TestClient_FetchHTTP(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ID3-audio-bytes"))
	}))
	defer srv.Close()

	ws := newWorkspace(t)
	asset, err := NewClient().Fetch(context.Background(), srv.URL+"/track.mp3", ws, "audio.mp3", media.KindAudio)
	require.NoError(t, err)

	assert.Equal(t, ws.Path("audio.mp3"), asset.Path())
	assert.Equal(t, media.KindAudio, asset.Kind())
	assert.Equal(t, DefaultUserAgent, gotUA)

	data, err := os.ReadFile(asset.Path())
	require.NoError(t, err)
	assert.Equal(t, "ID3-audio-bytes", string(data))
}

func TestClient_FetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	ws := newWorkspace(t)
	_, err := NewClient().Fetch(context.Background(), srv.URL+"/missing.mp3?sig=secret", ws, "audio.mp3", media.KindAudio)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.ErrorIs(t, err, ErrBadStatus)
	assert.NotContains(t, err.Error(), "secret")
	assert.Equal(t, srv.URL+"/missing.mp3", fetchErr.URL)
	assert.NoFileExists(t, ws.Path("audio.mp3"))
}

func TestClient_FetchTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	ws := newWorkspace(t)
	_, err := NewClient(WithMaxBytes(16)).Fetch(context.Background(), srv.URL, ws, "logo.png", media.KindImage)

	assert.ErrorIs(t, err, ErrTooLarge)
	assert.NoFileExists(t, ws.Path("logo.png"), "oversized download should be removed")
}

func TestClient_FetchExactlyAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 16)))
	}))
	defer srv.Close()

	ws := newWorkspace(t)
	asset, err := NewClient(WithMaxBytes(16)).Fetch(context.Background(), srv.URL, ws, "logo.png", media.KindImage)
	require.NoError(t, err)

	size, err := asset.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(16), size)
}

func TestCapReader(t *testing.T) {
	r := &capReader{r: strings.NewReader(strings.Repeat("x", 10)), limit: 4}

	data, err := io.ReadAll(r)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Len(t, data, 5)
}

func TestClient_FetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(WithTimeout(50*time.Millisecond)).Fetch(context.Background(), srv.URL, newWorkspace(t), "audio.mp3", media.KindAudio)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_FetchInvalidURLs(t *testing.T) {
	c := NewClient()
	ws := newWorkspace(t)
	ctx := context.Background()

	_, err := c.Fetch(ctx, "  ", ws, "x", media.KindAudio)
	assert.ErrorIs(t, err, ErrEmptyURL)

	_, err = c.Fetch(ctx, "ftp://example.com/a.mp3", ws, "x", media.KindAudio)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = c.Fetch(ctx, "s3://bucket/a.mp3", ws, "x", media.KindAudio)
	assert.ErrorIs(t, err, ErrS3NotConfigured)
}

type fakeGetter struct {
	bucket string
	key    string
	body   string
	err    error
}

func (f *fakeGetter) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket = aws.ToString(params.Bucket)
	f.key = aws.ToString(params.Key)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestClient_FetchS3(t *testing.T) {
	getter := &fakeGetter{body: "png-bytes"}
	c := NewClient(WithS3(&S3Source{client: getter}))

	asset, err := c.Fetch(context.Background(), "s3://brand-assets/acme/logo.png", newWorkspace(t), "logo.png", media.KindImage)
	require.NoError(t, err)

	assert.Equal(t, "brand-assets", getter.bucket)
	assert.Equal(t, "acme/logo.png", getter.key)
	assert.Equal(t, media.KindImage, asset.Kind())

	data, err := os.ReadFile(asset.Path())
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestClient_FetchS3Errors(t *testing.T) {
	getter := &fakeGetter{err: errors.New("NoSuchKey")}
	c := NewClient(WithS3(&S3Source{client: getter}))
	ws := newWorkspace(t)

	_, err := c.Fetch(context.Background(), "s3://bucket/missing.png", ws, "logo.png", media.KindImage)
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "NoSuchKey")

	_, err = c.Fetch(context.Background(), "s3://bucket", ws, "logo.png", media.KindImage)
	assert.ErrorIs(t, err, ErrInvalidS3URL)
}

func TestNewS3Source(t *testing.T) {
	src, err := NewS3Source(context.Background(), S3Config{
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566", // LocalStack-like endpoint
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	})
	require.NoError(t, err)
	assert.NotNil(t, src.client)
}

func TestError_Message(t *testing.T) {
	err := &Error{URL: "https://example.com/a.mp3", StatusCode: 403, Err: ErrBadStatus}
	assert.Equal(t, "fetch https://example.com/a.mp3: status 403: fetch: unexpected status", err.Error())

	err = &Error{URL: "https://example.com/a.mp3", Err: io.ErrUnexpectedEOF}
	assert.Equal(t, "fetch https://example.com/a.mp3: unexpected EOF", err.Error())
}
