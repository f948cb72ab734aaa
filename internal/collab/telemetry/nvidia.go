package telemetry

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// NvidiaSMI queries the first NVIDIA adapter with nvidia-smi.
type NvidiaSMI struct {
	// Path is the nvidia-smi binary. Empty means "nvidia-smi".
	Path string

	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

var _ GPUSource = (*NvidiaSMI)(nil)

// GPU implements [GPUSource].
func (n *NvidiaSMI) GPU(ctx context.Context) (*GPU, error) {
	path := n.Path
	if path == "" {
		path = "nvidia-smi"
	}
	run := n.run
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		}
	}
	out, err := run(ctx, path,
		"--query-gpu=utilization.gpu,temperature.gpu,memory.used,memory.total",
		"--format=csv,noheader,nounits")
	if err != nil {
		return nil, fmt.Errorf("telemetry: nvidia-smi: %w", err)
	}
	return parseNvidiaSMI(string(out))
}

func parseNvidiaSMI(out string) (*GPU, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return nil, fmt.Errorf("telemetry: nvidia-smi: unexpected output %q", line)
	}
	vals := make([]float64, 4)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("telemetry: nvidia-smi: field %d: %w", i, err)
		}
		vals[i] = v
	}
	g := &GPU{Percent: vals[0], Temp: vals[1]}
	if vals[3] > 0 {
		g.MemoryPercent = vals[2] / vals[3] * 100
	}
	return g, nil
}
