package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSource struct {
	cpu, freq, temp, ram float64
	uptime               time.Duration
	err                  error
}

func (f fakeSource) CPUPercent(context.Context) (float64, error) { return f.cpu, nil }
func (f fakeSource) CPUFreq(context.Context) (float64, error) { return f.freq, nil }
func (f fakeSource) CPUTemp(context.Context) (float64, error) { return f.temp, f.err }
func (f fakeSource) RAMPercent(context.Context) (float64, error) { return f.ram, nil }
func (f fakeSource) Uptime(context.Context) (time.Duration, error) { return f.uptime, nil }

type fakeGPU struct {
	gpu *GPU
	err error
}

func (f fakeGPU) GPU(context.Context) (*GPU, error) { return f.gpu, f.err }

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		snap Snapshot
		want string
	}{
		{
			name: "cpu and ram only",
			snap: Snapshot{CPUPercent: 12.34, CPUFreqMHz: 2400.4, RAMPercent: 45.6},
			want: "ПП: 12.3% (2400 МГц) | ОЗУ: 45.6%",
		},
		{
			name: "with temperature",
			snap: Snapshot{CPUPercent: 12.3, CPUFreqMHz: 2400, RAMPercent: 45.6, CPUTemp: 55},
			want: "ПП: 12.3% (2400 МГц) | ОЗУ: 45.6% | Темп. ПП: 55.0°C",
		},
		{
			name: "with gpu",
			snap: Snapshot{CPUPercent: 1, CPUFreqMHz: 3000, RAMPercent: 2, GPU: &GPU{Percent: 30, MemoryPercent: 25, Temp: 61}},
			want: "ПП: 1.0% (3000 МГц) | ОЗУ: 2.0% | GPU: 30.0% (25.0% памяти) | Темп. GPU: 61.0°C",
		},
		{
			name: "gpu without temperature",
			snap: Snapshot{GPU: &GPU{Percent: 5}},
			want: "ПП: 0.0% (0 МГц) | ОЗУ: 0.0% | GPU: 5.0% (0.0% памяти)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Format(tt.snap); got != tt.want {
				t.Errorf("Format = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSampler_Sample(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	src := fakeSource{cpu: 10, freq: 2000, temp: 90, ram: 50, uptime: time.Hour}
	s := NewSampler(WithSource(src), WithGPU(fakeGPU{gpu: &GPU{Percent: 7}}), WithMaxTempWarning(80))
	s.now = func() time.Time { return at }

	snap := s.Sample(t.Context())
	if snap.At != at || snap.CPUPercent != 10 || snap.CPUFreqMHz != 2000 || snap.CPUTemp != 90 || snap.RAMPercent != 50 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Uptime != time.Hour {
		t.Errorf("uptime = %v", snap.Uptime)
	}
	if snap.GPU == nil || snap.GPU.Percent != 7 {
		t.Errorf("gpu = %+v", snap.GPU)
	}
}

func TestSampler_SourceErrors(t *testing.T) {
	t.Parallel()

	src := fakeSource{cpu: 3, err: errors.New("no sensors")}
	s := NewSampler(WithSource(src), WithGPU(fakeGPU{gpu: &GPU{}, err: errors.New("no driver")}))

	snap := s.Sample(t.Context())
	if snap.CPUTemp != 0 {
		t.Errorf("cpu temp = %v, want 0", snap.CPUTemp)
	}
	if snap.GPU != nil {
		t.Errorf("gpu = %+v, want nil", snap.GPU)
	}
	if snap.CPUPercent != 3 {
		t.Errorf("cpu = %v, want 3", snap.CPUPercent)
	}
}

func TestPickCPUTemp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		keys []string
		vals map[string]float64
		want float64
	}{
		{
			name: "prefers coretemp",
			keys: []string{"acpitz", "coretemp_package_id_0"},
			vals: map[string]float64{"acpitz": 40, "coretemp_package_id_0": 62},
			want: 62,
		},
		{
			name: "first positive",
			keys: []string{"nvme", "k10temp_tctl"},
			vals: map[string]float64{"nvme": 0, "k10temp_tctl": 48},
			want: 48,
		},
		{name: "none", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := pickCPUTemp(tt.keys, tt.vals); got != tt.want {
				t.Errorf("pickCPUTemp = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNvidiaSMI(t *testing.T) {
	t.Parallel()

	n := &NvidiaSMI{run: func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != "nvidia-smi" || len(args) != 2 {
			t.Errorf("ran %s %v", name, args)
		}
		return []byte("45, 67, 2048, 8192\n12, 50, 0, 4096\n"), nil
	}}
	g, err := n.GPU(t.Context())
	if err != nil {
		t.Fatalf("GPU: %v", err)
	}
	if g.Percent != 45 || g.Temp != 67 || g.MemoryPercent != 25 {
		t.Errorf("gpu = %+v", g)
	}

	for _, bad := range []string{"", "1, 2, 3", "a, b, c, d"} {
		if _, err := parseNvidiaSMI(bad); err == nil {
			t.Errorf("parseNvidiaSMI(%q): expected error", bad)
		}
	}
}
