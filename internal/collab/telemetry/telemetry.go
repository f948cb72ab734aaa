// Package telemetry samples host load and temperatures for the spoken
// statistics report and the periodic stats log.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

// Defaults for [Sampler].
const (
	DefaultMaxTempWarning = 85.0
	DefaultCPUInterval    = 100 * time.Millisecond
)

// GPU holds the load of the first graphics adapter.
type GPU struct {
	Percent       float64
	Temp          float64
	MemoryPercent float64
}

// Snapshot is one sample. Zero temperatures mean no sensor was readable.
type Snapshot struct {
	At         time.Time
	CPUPercent float64
	CPUFreqMHz float64
	CPUTemp    float64
	RAMPercent float64
	Uptime     time.Duration

	// GPU is nil when no adapter could be queried.
	GPU *GPU
}

// Source reports one metric family. Source errors leave the field zero.
type Source interface {
	CPUPercent(ctx context.Context) (float64, error)
	CPUFreq(ctx context.Context) (float64, error)
	CPUTemp(ctx context.Context) (float64, error)
	RAMPercent(ctx context.Context) (float64, error)
	Uptime(ctx context.Context) (time.Duration, error)
}

// GPUSource queries a graphics adapter.
type GPUSource interface {
	GPU(ctx context.Context) (*GPU, error)
}

// Option configures a [Sampler].
type Option func(*Sampler)

// WithSource replaces the host source.
func WithSource(s Source) Option {
	return func(sm *Sampler) { sm.src = s }
}

// WithGPU enables GPU sampling through g.
func WithGPU(g GPUSource) Option {
	return func(sm *Sampler) { sm.gpu = g }
}

// WithMaxTempWarning sets the CPU temperature that triggers a warning log.
func WithMaxTempWarning(t float64) Option {
	return func(sm *Sampler) {
		if t > 0 {
			sm.maxTemp = t
		}
	}
}

// Sampler collects snapshots. Safe for concurrent use.
type Sampler struct {
	src     Source
	gpu     GPUSource
	maxTemp float64
	now     func() time.Time
}

// NewSampler returns a Sampler reading the local host through gopsutil.
func NewSampler(opts ...Option) *Sampler {
	s := &Sampler{
		src:     Host{Interval: DefaultCPUInterval},
		maxTemp: DefaultMaxTempWarning,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sample takes a snapshot. It never fails; unreadable metrics are zero and
// logged at debug level.
func (s *Sampler) Sample(ctx context.Context) Snapshot {
	snap := Snapshot{At: s.now()}
	var err error
	if snap.CPUPercent, err = s.src.CPUPercent(ctx); err != nil {
		slog.Debug("telemetry: cpu percent", "err", err)
	}
	if snap.CPUFreqMHz, err = s.src.CPUFreq(ctx); err != nil {
		slog.Debug("telemetry: cpu frequency", "err", err)
	}
	if snap.CPUTemp, err = s.src.CPUTemp(ctx); err != nil {
		slog.Debug("telemetry: cpu temperature", "err", err)
	}
	if snap.RAMPercent, err = s.src.RAMPercent(ctx); err != nil {
		slog.Debug("telemetry: memory", "err", err)
	}
	if snap.Uptime, err = s.src.Uptime(ctx); err != nil {
		slog.Debug("telemetry: uptime", "err", err)
	}
	if s.gpu != nil {
		if snap.GPU, err = s.gpu.GPU(ctx); err != nil {
			slog.Debug("telemetry: gpu", "err", err)
			snap.GPU = nil
		}
	}
	if snap.CPUTemp >= s.maxTemp {
		slog.Warn("telemetry: cpu temperature high", "temp_c", snap.CPUTemp, "limit_c", s.maxTemp)
	}
	return snap
}

// Format renders a snapshot as one line, e.g.
// "ПП: 12.3% (2400 МГц) | ОЗУ: 45.6% | Темп. ПП: 55.0°C".
func Format(s Snapshot) string {
	parts := []string{
		fmt.Sprintf("ПП: %.1f%% (%.0f МГц)", s.CPUPercent, s.CPUFreqMHz),
		fmt.Sprintf("ОЗУ: %.1f%%", s.RAMPercent),
	}
	if s.CPUTemp > 0 {
		parts = append(parts, fmt.Sprintf("Темп. ПП: %.1f°C", s.CPUTemp))
	}
	if s.GPU != nil {
		parts = append(parts, fmt.Sprintf("GPU: %.1f%% (%.1f%% памяти)", s.GPU.Percent, s.GPU.MemoryPercent))
		if s.GPU.Temp > 0 {
			parts = append(parts, fmt.Sprintf("Темп. GPU: %.1f°C", s.GPU.Temp))
		}
	}
	return strings.Join(parts, " | ")
}

// LogValue implements [slog.LogValuer].
func (s Snapshot) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Float64("cpu_percent", s.CPUPercent),
		slog.Float64("cpu_mhz", s.CPUFreqMHz),
		slog.Float64("ram_percent", s.RAMPercent),
	}
	if s.CPUTemp > 0 {
		attrs = append(attrs, slog.Float64("cpu_temp_c", s.CPUTemp))
	}
	if s.GPU != nil {
		attrs = append(attrs, slog.Float64("gpu_percent", s.GPU.Percent), slog.Float64("gpu_temp_c", s.GPU.Temp))
	}
	return slog.GroupValue(attrs...)
}

// Host reads the local machine through gopsutil.
type Host struct {
	// Interval is the CPU load measurement window.
	Interval time.Duration
}

var _ Source = Host{}

// CPUPercent implements [Source].
func (h Host) CPUPercent(ctx context.Context) (float64, error) {
	p, err := cpu.PercentWithContext(ctx, h.Interval, false)
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, fmt.Errorf("telemetry: no cpu samples")
	}
	return p[0], nil
}

// CPUFreq implements [Source].
func (Host) CPUFreq(ctx context.Context) (float64, error) {
	info, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	if len(info) == 0 {
		return 0, fmt.Errorf("telemetry: no cpu info")
	}
	return info[0].Mhz, nil
}

// CPUTemp implements [Source].
func (Host) CPUTemp(ctx context.Context) (float64, error) {
	temps, err := sensors.TemperaturesWithContext(ctx)
	if len(temps) == 0 {
		if err == nil {
			err = fmt.Errorf("telemetry: no temperature sensors")
		}
		return 0, err
	}
	vals := make(map[string]float64, len(temps))
	keys := make([]string, 0, len(temps))
	for _, t := range temps {
		vals[t.SensorKey] = t.Temperature
		keys = append(keys, t.SensorKey)
	}
	return pickCPUTemp(keys, vals), nil
}

// pickCPUTemp prefers the coretemp driver and otherwise returns the first
// positive reading.
func pickCPUTemp(keys []string, vals map[string]float64) float64 {
	for _, k := range keys {
		if strings.HasPrefix(k, "coretemp") && vals[k] > 0 {
			return vals[k]
		}
	}
	for _, k := range keys {
		if vals[k] > 0 {
			return vals[k]
		}
	}
	return 0
}

// RAMPercent implements [Source].
func (Host) RAMPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// Uptime implements [Source].
func (Host) Uptime(ctx context.Context) (time.Duration, error) {
	secs, err := host.UptimeWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}
