//go:build openbsd || linux || darwin

package extract

import (
	"archive/tar"

	"golang.org/x/sys/unix"
)

func makeNode(target string, header *tar.Header) error {
	mode := uint32(header.Mode & 0o7777) //nolint:gosec // Permission bits only.

	switch header.Typeflag {
	case tar.TypeChar:
		mode |= unix.S_IFCHR
	case tar.TypeBlock:
		mode |= unix.S_IFBLK
	default:
		return unix.Mkfifo(target, mode)
	}

	dev := unix.Mkdev(uint32(header.Devmajor), uint32(header.Devminor)) //nolint:gosec // Device numbers fit in 32 bits.

	return unix.Mknod(target, mode, int(dev)) //nolint:gosec // Device numbers fit in int.
}
