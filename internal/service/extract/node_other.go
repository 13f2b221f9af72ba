//go:build !openbsd && !linux && !darwin

package extract

import (
	"archive/tar"
	"errors"
)

var errNodeUnsupported = errors.New("device nodes are not supported on this platform")

func makeNode(string, *tar.Header) error {
	return errNodeUnsupported
}
