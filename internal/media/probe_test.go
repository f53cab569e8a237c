package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
}

func stubProbe(out string, err error) probeFunc {
	return func(string, time.Duration, ffmpeg.KwArgs) (string, error) {
		return out, err
	}
}

func newTestProbe(run probeFunc) *FFprobe {
	p := NewFFprobe(time.Second, nil)
	p.run = run
	return p
}

func TestFFprobe_Probe(t *testing.T) {
	audio := NewAsset("/tmp/audio.mp3", KindAudio)

	t.Run("returns reported duration", func(t *testing.T) {
		p := newTestProbe(stubProbe(`{"format":{"duration":"28.400000"}}`, nil))

		seconds, err := p.Probe(context.Background(), audio)
		require.NoError(t, err)
		assert.InDelta(t, 28.4, seconds, 1e-9)
	})

	t.Run("short clip is clamped to one second", func(t *testing.T) {
		p := newTestProbe(stubProbe(`{"format":{"duration":"0.200000"}}`, nil))

		seconds, err := p.Probe(context.Background(), audio)
		require.NoError(t, err)
		assert.Equal(t, 1.0, seconds)
	})

	t.Run("zero duration is clamped", func(t *testing.T) {
		p := newTestProbe(stubProbe(`{"format":{"duration":"0"}}`, nil))

		seconds, err := p.Probe(context.Background(), audio)
		require.NoError(t, err)
		assert.Equal(t, MinDurationSeconds, seconds)
	})

	t.Run("ffprobe failure", func(t *testing.T) {
		p := newTestProbe(stubProbe("", errors.New("exit status 1")))

		_, err := p.Probe(context.Background(), audio)
		var probeErr *ProbeError
		require.ErrorAs(t, err, &probeErr)
		assert.Equal(t, audio.Path(), probeErr.Path)
	})

	t.Run("non audio asset", func(t *testing.T) {
		p := newTestProbe(stubProbe(`{"format":{"duration":"3"}}`, nil))

		_, err := p.Probe(context.Background(), NewAsset("/tmp/shot.png", KindImage))
		assert.ErrorIs(t, err, ErrNotAudio)
	})

	t.Run("cancelled context", func(t *testing.T) {
		block := make(chan struct{})
		defer close(block)
		p := newTestProbe(func(string, time.Duration, ffmpeg.KwArgs) (string, error) {
			<-block
			return "", nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := p.Probe(ctx, audio)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("deadline shortens timeout", func(t *testing.T) {
		var got time.Duration
		p := NewFFprobe(time.Hour, nil)
		p.run = func(_ string, timeout time.Duration, _ ffmpeg.KwArgs) (string, error) {
			got = timeout
			return `{"format":{"duration":"2"}}`, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := p.Probe(ctx, audio)
		require.NoError(t, err)
		assert.LessOrEqual(t, got, 5*time.Second)
		assert.Greater(t, got, time.Duration(0))
	})
}

func TestFFprobe_TimeoutFor(t *testing.T) {
	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	soon, cancelSoon := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelSoon()

	t.Run("no deadline keeps the configured timeout", func(t *testing.T) {
		assert.Equal(t, 30*time.Second, NewFFprobe(30*time.Second, nil).timeoutFor(context.Background()))
		assert.Equal(t, time.Duration(0), NewFFprobe(0, nil).timeoutFor(context.Background()))
	})

	t.Run("nearer deadline wins", func(t *testing.T) {
		got := NewFFprobe(time.Minute, nil).timeoutFor(soon)
		assert.LessOrEqual(t, got, 5*time.Second)
		assert.Greater(t, got, 4*time.Second)
	})

	t.Run("later deadline keeps the configured timeout", func(t *testing.T) {
		assert.Equal(t, time.Second, NewFFprobe(time.Second, nil).timeoutFor(soon))
	})

	t.Run("deadline applies without a configured timeout", func(t *testing.T) {
		got := NewFFprobe(0, nil).timeoutFor(soon)
		assert.Greater(t, got, 4*time.Second)
	})

	t.Run("expired deadline is floored", func(t *testing.T) {
		assert.Equal(t, minProbeTimeout, NewFFprobe(time.Minute, nil).timeoutFor(expired))
		assert.Equal(t, minProbeTimeout, NewFFprobe(0, nil).timeoutFor(expired))
	})
}

func TestFFprobe_ExpiredDeadline(t *testing.T) {
	called := false
	p := newTestProbe(func(string, time.Duration, ffmpeg.KwArgs) (string, error) {
		called = true
		return `{"format":{"duration":"2"}}`, nil
	})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := p.Probe(ctx, NewAsset("/tmp/audio.mp3", KindAudio))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called, "ffprobe must not start without a usable deadline")
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		wantErr error
	}{
		{name: "plain", raw: `{"format":{"duration":"12.5"}}`, want: 12.5},
		{name: "zero", raw: `{"format":{"duration":"0.000000"}}`, want: 0},
		{name: "missing", raw: `{"format":{}}`, wantErr: ErrNoDuration},
		{name: "not available", raw: `{"format":{"duration":"N/A"}}`, wantErr: ErrNoDuration},
		{name: "non numeric", raw: `{"format":{"duration":"abc"}}`, wantErr: ErrInvalidDuration},
		{name: "negative", raw: `{"format":{"duration":"-3"}}`, wantErr: ErrInvalidDuration},
		{name: "infinite", raw: `{"format":{"duration":"inf"}}`, wantErr: ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDuration(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		_, err := parseDuration("not json")
		assert.Error(t, err)
	})
}

func TestFFprobe_RealFile(t *testing.T) {
	skipIfNoFFmpeg(t)

	path := filepath.Join(t.TempDir(), "tone.wav")
	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("sine=frequency=440:duration=%.1f", 2.5),
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test audio: %v\noutput: %s", err, output)
	}

	p := NewFFprobe(10*time.Second, nil)
	seconds, err := p.Probe(context.Background(), NewAsset(path, KindAudio))
	require.NoError(t, err)
	assert.InDelta(t, 2.5, seconds, 0.05)
}
