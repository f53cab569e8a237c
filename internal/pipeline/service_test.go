package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/sitereel/internal/capture"
	"github.com/maauso/sitereel/internal/engine"
	"github.com/maauso/sitereel/internal/fetch"
	"github.com/maauso/sitereel/internal/graph"
	"github.com/maauso/sitereel/internal/media"
	"github.com/maauso/sitereel/internal/storage"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, rawURL string, dst storage.Sink, name string, kind media.Kind) (media.Asset, error) {
	args := m.Called(ctx, rawURL, name, kind)
	if err := args.Error(0); err != nil {
		return media.Asset{}, err
	}
	path, _, err := dst.Store(ctx, name, strings.NewReader("fetched"))
	if err != nil {
		return media.Asset{}, err
	}
	return media.NewAsset(path, kind), nil
}

type mockCapturer struct {
	mock.Mock
}

func (m *mockCapturer) Capture(ctx context.Context, rawURL string, vp capture.Viewport, dst storage.Sink, name string) (media.Asset, error) {
	args := m.Called(ctx, rawURL, vp, name)
	if err := args.Error(0); err != nil {
		return media.Asset{}, err
	}
	path, _, err := dst.Store(ctx, name, strings.NewReader("png"))
	if err != nil {
		return media.Asset{}, err
	}
	return media.NewAsset(path, media.KindImage), nil
}

type mockComposer struct {
	mock.Mock
}

func (m *mockComposer) ComposeVideo(ctx context.Context, req engine.RenderRequest, output string) (media.Asset, error) {
	args := m.Called(ctx, req, output)
	if err := args.Error(0); err != nil {
		return media.Asset{}, err
	}
	if err := os.WriteFile(output, []byte("mp4-bytes"), 0600); err != nil {
		return media.Asset{}, err
	}
	return media.NewAsset(output, media.KindVideo), nil
}

var defaultDims = graph.Dimensions{Width: 1920, Height: 1080}

type fixture struct {
	manager  *storage.Manager
	fetcher  *mockFetcher
	capturer *mockCapturer
	composer *mockComposer
	svc      *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	m, err := storage.NewManager(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)

	f := &fixture{
		manager:  m,
		fetcher:  &mockFetcher{},
		capturer: &mockCapturer{},
		composer: &mockComposer{},
	}
	f.svc = NewService(m, f.fetcher, f.capturer, f.composer, defaultDims, nil, opts...)
	return f
}

// workspaces lists the workspace directories left under the manager root.
func (f *fixture) workspaces(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.manager.Root())
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		dirs = append(dirs, e.Name())
	}
	return dirs
}

func testInput() Input {
	return Input{
		WebsiteURL: "acme.example",
		AudioURL:   "https://cdn.example/voice.wav?sig=abc",
		Copy:       graph.Copy{BrandLine1: "Acme"},
		RequestID:  "req-1",
	}
}

func TestService_Render(t *testing.T) {
	f := newFixture(t)

	f.fetcher.On("Fetch", mock.Anything, "https://cdn.example/voice.wav?sig=abc", "audio.wav", media.KindAudio).Return(nil)
	f.capturer.On("Capture", mock.Anything, "acme.example", capture.Viewport{Width: 1920, Height: 1080}, "screenshot.png").Return(nil)

	var req engine.RenderRequest
	f.composer.On("ComposeVideo", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { req = args.Get(1).(engine.RenderRequest) }).
		Return(nil)

	res, err := f.svc.Render(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, int64(len("mp4-bytes")), res.Size)
	assert.Equal(t, media.KindVideo, res.Video.Kind())
	assert.True(t, req.Logo.IsZero())
	assert.Equal(t, defaultDims, req.Dims)
	assert.Equal(t, "Acme", req.Copy.BrandLine1)
	assert.Equal(t, "audio.wav", filepath.Base(req.Audio.Path()))
	assert.Equal(t, "screenshot.png", filepath.Base(req.Still.Path()))

	rc, err := res.Open(context.Background())
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "mp4-bytes", string(body))

	require.Len(t, f.workspaces(t), 1)
	require.NoError(t, res.Close())
	assert.Empty(t, f.workspaces(t))

	f.fetcher.AssertExpectations(t)
	f.capturer.AssertExpectations(t)
	f.composer.AssertExpectations(t)
}

func TestService_RenderWithLogoAndDims(t *testing.T) {
	f := newFixture(t)
	dims := graph.Dimensions{Width: 1280, Height: 720}

	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, media.KindAudio).Return(nil)
	f.fetcher.On("Fetch", mock.Anything, "https://cdn.example/logo.svg", "logo.svg", media.KindImage).Return(nil)
	f.capturer.On("Capture", mock.Anything, mock.Anything, capture.Viewport{Width: 1280, Height: 720}, mock.Anything).Return(nil)

	var req engine.RenderRequest
	f.composer.On("ComposeVideo", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { req = args.Get(1).(engine.RenderRequest) }).
		Return(nil)

	in := testInput()
	in.LogoURL = "https://cdn.example/logo.svg"
	in.Dims = dims

	res, err := f.svc.Render(context.Background(), in)
	require.NoError(t, err)
	defer func() { _ = res.Close() }()

	assert.False(t, req.Logo.IsZero())
	assert.Equal(t, dims, req.Dims)
}

func TestService_RenderCaptureFailure(t *testing.T) {
	f := newFixture(t)

	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, media.KindAudio).Return(nil)
	capErr := &capture.Error{URL: "https://acme.example", Err: capture.ErrNavigation}
	f.capturer.On("Capture", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(capErr)

	res, err := f.svc.Render(context.Background(), testInput())

	assert.Nil(t, res)
	assert.Equal(t, engine.StageCapture, engine.StageOf(err))
	var target *capture.Error
	assert.ErrorAs(t, err, &target)

	// No output was produced and the downloaded audio is gone with the workspace.
	f.composer.AssertNotCalled(t, "ComposeVideo", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.workspaces(t))
}

func TestService_RenderFetchFailure(t *testing.T) {
	f := newFixture(t)

	fetchErr := &fetch.Error{URL: "https://cdn.example/voice.wav", StatusCode: 404, Err: fetch.ErrBadStatus}
	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, media.KindAudio).Return(fetchErr)

	_, err := f.svc.Render(context.Background(), testInput())

	assert.Equal(t, engine.StageFetch, engine.StageOf(err))
	assert.ErrorIs(t, err, fetch.ErrBadStatus)
	f.capturer.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.workspaces(t))
}

func TestService_RenderEngineFailure(t *testing.T) {
	f := newFixture(t)

	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.capturer.On("Capture", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.composer.On("ComposeVideo", mock.Anything, mock.Anything, mock.Anything).
		Return(&engine.StageError{Stage: engine.StageProbe, Err: errors.New("no duration")})

	_, err := f.svc.Render(context.Background(), testInput())

	assert.Equal(t, engine.StageProbe, engine.StageOf(err))
	assert.Empty(t, f.workspaces(t))
}

func TestService_RenderUntaggedComposerError(t *testing.T) {
	f := newFixture(t)

	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.capturer.On("Capture", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.composer.On("ComposeVideo", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))

	_, err := f.svc.Render(context.Background(), testInput())
	assert.Equal(t, engine.StageCompose, engine.StageOf(err))
}

func TestService_RenderTimeout(t *testing.T) {
	f := newFixture(t, WithTimeout(50*time.Millisecond))

	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.capturer.On("Capture", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	var hadDeadline bool
	f.composer.On("ComposeVideo", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, hadDeadline = ctx.Deadline()
			<-ctx.Done()
		}).
		Return(context.DeadlineExceeded)

	start := time.Now()
	_, err := f.svc.Render(context.Background(), testInput())

	assert.True(t, hadDeadline)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, engine.StageCompose, engine.StageOf(err))
	assert.Empty(t, f.workspaces(t))
}

func TestNewResult(t *testing.T) {
	m, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	ws, err := m.NewWorkspace(context.Background())
	require.NoError(t, err)

	_, err = NewResult(ws, "output.mp4")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = ws.Store(context.Background(), "output.mp4", strings.NewReader("mp4"))
	require.NoError(t, err)

	res, err := NewResult(ws, "output.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Size)
	assert.Equal(t, ws.Path("output.mp4"), res.Video.Path())

	require.NoError(t, res.Close())
	assert.NoDirExists(t, filepath.Dir(res.Video.Path()))
}

func TestExtension(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://cdn.example/a/voice.wav?x=1", want: ".wav"},
		{url: "https://cdn.example/voice", want: ".mp3"},
		{url: "https://cdn.example/voice.not-an-ext", want: ".mp3"},
		{url: "s3://bucket/key/track.m4a", want: ".m4a"},
		{url: "%%", want: ".mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, extension(tt.url, ".mp3"))
		})
	}
}
