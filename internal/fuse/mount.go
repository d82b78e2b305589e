//go:build !linux
// +build !linux

package fuse

import (
	"fmt"

	"github.com/cryptfat/cryptfat/internal/volume"
)

func Mount(mountpoint string, vol *volume.MountedVolume) error {
	return fmt.Errorf("FUSE mount is only supported on Linux")
}
