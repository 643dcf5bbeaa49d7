package diskspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
)

// Probe reports free space on the filesystem holding a local directory.
type Probe struct {
	// usage is swapped in tests
	usage func(ctx context.Context, path string) (*disk.UsageStat, error)
}

func NewProbe() *Probe {
	return &Probe{usage: disk.UsageWithContext}
}

// FreeBytes returns the bytes available to unprivileged users on the
// filesystem of path. The cache directory may not exist yet, so the nearest
// existing parent is measured instead.
func (p *Probe) FreeBytes(ctx context.Context, path string) (int64, error) {
	dir, err := nearestExisting(path)
	if err != nil {
		return -1, err
	}

	stat, err := p.usage(ctx, dir)
	if err != nil {
		return -1, fmt.Errorf("disk usage %s: %w", dir, err)
	}

	slog.Debug("disk usage", "path", dir, "fstype", stat.Fstype, "free", stat.Free, "total", stat.Total)
	if stat.Free > math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return int64(stat.Free), nil
}

func nearestExisting(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing parent for %s", path)
		}
		dir = parent
	}
}
