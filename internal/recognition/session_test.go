package recognition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/jarvis/internal/lease"
	"github.com/MrWong99/jarvis/pkg/audio"
	audiomock "github.com/MrWong99/jarvis/pkg/audio/mock"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	sttmock "github.com/MrWong99/jarvis/pkg/provider/stt/mock"
	"github.com/MrWong99/jarvis/pkg/provider/vad/rms"
)

type fixture struct {
	dev *audiomock.Device
	arb *lease.Arbiter
	stt *sttmock.Provider
}

func newFixture(dev *audiomock.Device, sess func() *sttmock.Session) *fixture {
	if dev.FrameDelay == 0 {
		dev.FrameDelay = time.Millisecond
	}
	return &fixture{
		dev: dev,
		arb: lease.NewArbiter(dev, audio.StreamConfig{SampleRate: 16000}),
		stt: &sttmock.Provider{NewSession: sess},
	}
}

func (f *fixture) session(cfg Config, opts ...Option) *Session {
	return New(f.arb, f.stt, rms.New(), cfg, opts...)
}

func (f *fixture) assertReleased(t *testing.T) {
	t.Helper()
	if st := f.arb.Stats(); st.Live != 0 {
		t.Errorf("live leases = %d, want 0", st.Live)
	}
	if got := f.dev.Live(); got != 0 {
		t.Errorf("open streams = %d, want 0", got)
	}
}

func TestRun_NoSpeechTimesOut(t *testing.T) {
	t.Parallel()
	f := newFixture(&audiomock.Device{}, nil)
	s := f.session(Config{MaxWindow: 50 * time.Millisecond})

	start := time.Now()
	tr, err := s.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !tr.Empty() || !tr.IsFinal {
		t.Errorf("transcript = %+v, want empty final", tr)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
	f.assertReleased(t)
}

func TestRun_FirstFinalEndsSession(t *testing.T) {
	t.Parallel()
	f := newFixture(&audiomock.Device{FrameFunc: audiomock.Tone(6000)}, func() *sttmock.Session {
		return &sttmock.Session{FinalAfter: 5, Final: stt.Transcript{Text: "Открой  Браузер!", Confidence: 0.9}}
	})
	s := f.session(Config{MaxWindow: 5 * time.Second})

	tr, err := s.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.Text != "открой браузер" {
		t.Errorf("text = %q, want %q", tr.Text, "открой браузер")
	}
	if tr.Confidence != 0.9 || !tr.IsFinal {
		t.Errorf("transcript = %+v", tr)
	}
	f.assertReleased(t)

	sessions := f.stt.Sessions()
	if len(sessions) != 1 || sessions[0].Closes() == 0 {
		t.Error("stt stream not closed")
	}
	if got := f.stt.Calls()[0].Cfg; got.SampleRate != 16000 || got.Language != "ru" {
		t.Errorf("stream config = %+v", got)
	}
}

func TestRun_FinalizeAfterSpeech(t *testing.T) {
	t.Parallel()
	f := newFixture(&audiomock.Device{FrameFunc: audiomock.Tone(6000)}, func() *sttmock.Session {
		return &sttmock.Session{OnClose: &stt.Transcript{Text: "статистика"}}
	})
	s := f.session(Config{MaxWindow: 80 * time.Millisecond, FinalizeTimeout: time.Second})

	tr, err := s.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.Text != "статистика" {
		t.Errorf("text = %q, want статистика", tr.Text)
	}
	f.assertReleased(t)
}

func TestRun_LateFinalAfterWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		revoke bool
	}{
		{name: "cancelled read"},
		{name: "revoked while flushing", revoke: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// The window's cancelled read races the late flush; repeat so
			// both branches of that race are taken.
			for i := range 10 {
				f := newFixture(&audiomock.Device{FrameFunc: audiomock.Tone(6000), FrameDelay: 10 * time.Millisecond}, func() *sttmock.Session {
					return &sttmock.Session{
						OnClose:    &stt.Transcript{Text: "статистика"},
						CloseDelay: 40 * time.Millisecond,
					}
				})
				if tt.revoke {
					go func() {
						for {
							if ss := f.stt.Sessions(); len(ss) == 1 && ss[0].Closes() > 0 {
								f.arb.Revoke()
								return
							}
							time.Sleep(time.Millisecond)
						}
					}()
				}
				s := f.session(Config{MaxWindow: 120 * time.Millisecond, FinalizeTimeout: time.Second})

				tr, err := s.Run(t.Context())
				if err != nil {
					t.Fatalf("run %d: Run: %v", i, err)
				}
				if tr.Text != "статистика" || !tr.IsFinal {
					t.Fatalf("run %d: transcript = %+v, want final статистика", i, tr)
				}
				f.assertReleased(t)
			}
		})
	}
}

func TestRun_SpeechWithoutFinal(t *testing.T) {
	t.Parallel()
	f := newFixture(&audiomock.Device{FrameFunc: audiomock.Tone(6000)}, nil)
	s := f.session(Config{MaxWindow: 50 * time.Millisecond, FinalizeTimeout: 50 * time.Millisecond})

	tr, err := s.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !tr.Empty() || !tr.IsFinal {
		t.Errorf("transcript = %+v, want empty final", tr)
	}
	f.assertReleased(t)
}

func TestRun_ContextCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(&audiomock.Device{}, nil)
	s := f.session(Config{MaxWindow: 10 * time.Second})

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()
	tr, err := s.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if !tr.Empty() {
		t.Errorf("transcript = %+v, want empty", tr)
	}
	f.assertReleased(t)
}

func TestRun_Busy(t *testing.T) {
	t.Parallel()
	f := newFixture(&audiomock.Device{}, nil)
	held, err := f.arb.Acquire("wake", 512)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()

	_, err = f.session(Config{}).Run(t.Context())
	if !errors.Is(err, lease.ErrDeviceBusy) {
		t.Errorf("err = %v, want ErrDeviceBusy", err)
	}
	if len(f.stt.Calls()) != 0 {
		t.Error("stt stream started without a lease")
	}
}

func TestRun_ErrorsReleaseLease(t *testing.T) {
	t.Parallel()

	t.Run("stt start", func(t *testing.T) {
		t.Parallel()
		f := newFixture(&audiomock.Device{}, nil)
		f.stt.StartStreamErr = errors.New("no model")
		if _, err := f.session(Config{}).Run(t.Context()); err == nil {
			t.Fatal("expected error")
		}
		f.assertReleased(t)
	})

	t.Run("device fault", func(t *testing.T) {
		t.Parallel()
		f := newFixture(&audiomock.Device{FailAfter: 3}, nil)
		_, err := f.session(Config{}).Run(t.Context())
		if !errors.Is(err, lease.ErrDeviceFault) {
			t.Fatalf("err = %v, want ErrDeviceFault", err)
		}
		f.assertReleased(t)
	})

	t.Run("send audio", func(t *testing.T) {
		t.Parallel()
		f := newFixture(&audiomock.Device{}, func() *sttmock.Session {
			return &sttmock.Session{SendAudioErr: errors.New("socket closed")}
		})
		if _, err := f.session(Config{}).Run(t.Context()); err == nil {
			t.Fatal("expected error")
		}
		f.assertReleased(t)
	})
}

func TestRun_FrameSize(t *testing.T) {
	f := newFixture(&audiomock.Device{}, nil)
	_, _ = f.session(Config{MaxWindow: 10 * time.Millisecond, FrameSize: 480}).Run(t.Context())
	if sizes := f.dev.FrameSizes(); len(sizes) != 1 || sizes[0] != 480 {
		t.Errorf("frame sizes = %v, want [480]", sizes)
	}
}

func TestRun_Recorder(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(&audiomock.Device{FrameFunc: audiomock.Tone(3000)}, func() *sttmock.Session {
		return &sttmock.Session{FinalAfter: 10, Final: stt.Transcript{Text: "да"}}
	})
	s := f.session(Config{}, WithRecorder(NewRecorder(fs, "/rec")))
	if _, err := s.Run(t.Context()); err != nil {
		t.Fatal(err)
	}

	entries, err := afero.ReadDir(fs, "/rec")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d recordings, want 1", len(entries))
	}
	// 44 byte header plus at least nine 320-sample frames.
	if size := entries[0].Size(); size < 44+9*320*2 {
		t.Errorf("recording size = %d", size)
	}
}

func TestAssemble(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		preprocess bool
		in         stt.Transcript
		want       string
	}{
		{
			name:       "words win over text",
			preprocess: true,
			in: stt.Transcript{Text: "открой 0.93 блокнот 0.87", Words: []stt.WordDetail{
				{Word: "открой", Confidence: 0.93}, {Word: "блокнот", Confidence: 0.87},
			}},
			want: "открой блокнот",
		},
		{name: "text fallback", preprocess: true, in: stt.Transcript{Text: " Заблокируй экран. "}, want: "заблокируй экран"},
		{name: "raw", in: stt.Transcript{Text: "Привет, мир"}, want: "Привет, мир"},
		{name: "blank", preprocess: true, in: stt.Transcript{Text: " ... "}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &Session{preprocess: tt.preprocess}
			if got := s.assemble(tt.in); got != tt.want {
				t.Errorf("assemble = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	c := Config{}.WithDefaults()
	if c.MaxWindow != 8*time.Second || c.FinalizeTimeout != 2*time.Second || c.FrameSize != 320 || c.Language != "ru" {
		t.Errorf("defaults = %+v", c)
	}
}
