package recognition

import (
	"fmt"
	"path"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// Recorder writes the audio of every session to a WAV file in Dir. It is
// meant for tuning thresholds and reproducing misrecognitions.
type Recorder struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// NewRecorder returns a Recorder writing into dir on fs. Use
// afero.NewOsFs() for the real filesystem and afero.NewMemMapFs() in tests.
func NewRecorder(fs afero.Fs, dir string) *Recorder {
	return &Recorder{fs: fs, dir: dir, now: time.Now}
}

type recording struct {
	file afero.File
	enc  *wav.Encoder
	rate int
	name string
}

func (r *Recorder) start(sessionID string, sampleRate int) (*recording, error) {
	if err := r.fs.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("recognition: create record dir: %w", err)
	}
	name := path.Join(r.dir, fmt.Sprintf("%s-%s.wav", r.now().Format("20060102-150405"), sessionID))
	f, err := r.fs.Create(name)
	if err != nil {
		return nil, fmt.Errorf("recognition: create recording: %w", err)
	}
	return &recording{
		file: f,
		enc:  wav.NewEncoder(f, sampleRate, 16, 1, 1),
		rate: sampleRate,
		name: name,
	}, nil
}

func (rec *recording) write(samples []int16) error {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	return rec.enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rec.rate},
		Data:           data,
		SourceBitDepth: 16,
	})
}

func (rec *recording) close() error {
	encErr := rec.enc.Close()
	fileErr := rec.file.Close()
	if encErr != nil {
		return fmt.Errorf("recognition: finish recording: %w", encErr)
	}
	return fileErr
}
