// Package mock provides scripted test doubles for the stt interfaces.
//
// A Session emits transcripts in response to audio: set FinalAfter to
// commit Final once that many chunks arrived, and OnClose to emit a last
// final when the session is closed. Channels are created lazily and closed
// exactly once by Close.
//
// Example:
//
//	p := &mock.Provider{NewSession: func() *mock.Session {
//	    return &mock.Session{FinalAfter: 10, Final: stt.Transcript{Text: "открой браузер", IsFinal: true}}
//	}}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/pkg/provider/stt"
)

// StartStreamCall records one invocation of Provider.StartStream.
type StartStreamCall struct {
	Cfg stt.StreamConfig
}

// Provider is a mock [stt.Provider].
type Provider struct {
	// NewSession builds the session for each StartStream call. Nil returns a
	// Session that never produces results.
	NewSession func() *Session

	// StartStreamErr is returned by every StartStream call when set.
	StartStreamErr error

	mu       sync.Mutex
	calls    []StartStreamCall
	sessions []*Session
}

var _ stt.Provider = (*Provider)(nil)

// StartStream implements [stt.Provider].
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, StartStreamCall{Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	var s *Session
	if p.NewSession != nil {
		s = p.NewSession()
	} else {
		s = &Session{}
	}
	s.init()
	p.sessions = append(p.sessions, s)
	return s, nil
}

// Calls returns a copy of the recorded StartStream calls.
func (p *Provider) Calls() []StartStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StartStreamCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Sessions returns every session handed out so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Session is a scripted [stt.SessionHandle].
type Session struct {
	// FinalAfter emits Final after this many SendAudio calls. Zero never does.
	FinalAfter int

	// Final is the transcript committed after FinalAfter chunks.
	Final stt.Transcript

	// PartialEvery emits a partial with PartialText every n chunks. Zero
	// disables partials.
	PartialEvery int
	PartialText  string

	// OnClose, when set, is emitted as a final during Close.
	OnClose *stt.Transcript

	// CloseDelay blocks Close for this long before OnClose is emitted,
	// like a provider running inference on the buffered audio.
	CloseDelay time.Duration

	// SendAudioErr is returned by every SendAudio call when set.
	SendAudioErr error

	// SetKeywordsErr is returned by every SetKeywords call when set.
	SetKeywordsErr error

	once     sync.Once
	mu       sync.Mutex
	partials chan stt.Transcript
	finals   chan stt.Transcript
	chunks   int
	bytes    int
	keywords [][]stt.KeywordBoost
	closed   bool
	closes   int
}

var _ stt.SessionHandle = (*Session)(nil)

func (s *Session) init() {
	s.once.Do(func() {
		s.partials = make(chan stt.Transcript, 64)
		s.finals = make(chan stt.Transcript, 4)
	})
}

// SendAudio implements [stt.SessionHandle].
func (s *Session) SendAudio(chunk []byte) error {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	s.chunks++
	s.bytes += len(chunk)
	if s.PartialEvery > 0 && s.chunks%s.PartialEvery == 0 {
		select {
		case s.partials <- stt.Transcript{Text: s.PartialText}:
		default:
		}
	}
	if s.FinalAfter > 0 && s.chunks == s.FinalAfter {
		final := s.Final
		final.IsFinal = true
		select {
		case s.finals <- final:
		default:
		}
	}
	return nil
}

// Partials implements [stt.SessionHandle].
func (s *Session) Partials() <-chan stt.Transcript {
	s.init()
	return s.partials
}

// Finals implements [stt.SessionHandle].
func (s *Session) Finals() <-chan stt.Transcript {
	s.init()
	return s.finals
}

// SetKeywords implements [stt.SessionHandle].
func (s *Session) SetKeywords(keywords []stt.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]stt.KeywordBoost, len(keywords))
	copy(cp, keywords)
	s.keywords = append(s.keywords, cp)
	return s.SetKeywordsErr
}

// Close implements [stt.SessionHandle].
func (s *Session) Close() error {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closed {
		return nil
	}
	s.closed = true
	if s.CloseDelay > 0 {
		time.Sleep(s.CloseDelay)
	}
	if s.OnClose != nil {
		final := *s.OnClose
		final.IsFinal = true
		select {
		case s.finals <- final:
		default:
		}
	}
	close(s.partials)
	close(s.finals)
	return nil
}

// Chunks returns the number of accepted SendAudio calls.
func (s *Session) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// Closes returns how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
