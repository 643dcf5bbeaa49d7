package bulkpin

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	ErrNoFreeSpace    = errors.New("cannot get free disk space")
	ErrNotEnoughSpace = errors.New("not enough free disk space")
)

// SpaceError carries the numbers behind a failed budget check.
type SpaceError struct {
	Required  int64
	Available int64
	Margin    int64
}

func (e *SpaceError) Error() string {
	return fmt.Sprintf("%s: required %s, available %s, margin %s", ErrNotEnoughSpace,
		humanize.IBytes(uint64(max(e.Required, 0))),
		humanize.IBytes(uint64(max(e.Available, 0))),
		humanize.IBytes(uint64(max(e.Margin, 0))))
}

func (e *SpaceError) Unwrap() error {
	return ErrNotEnoughSpace
}

// RoundUpToBlock returns size rounded up to a multiple of blockSize.
func RoundUpToBlock(size, blockSize int64) int64 {
	if size <= 0 || blockSize <= 0 {
		return max(size, 0)
	}
	return (size + blockSize - 1) / blockSize * blockSize
}

// CheckSpace fails when pinning required bytes would leave less than margin
// bytes free.
func CheckSpace(required, available, margin int64) error {
	if required > available-margin {
		return &SpaceError{Required: required, Available: available, Margin: margin}
	}
	return nil
}
