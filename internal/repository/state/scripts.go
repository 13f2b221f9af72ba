package state

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Boot script locations relative to the filesystem root.
const (
	// FirstTimePath runs once at the next boot and then removes itself.
	FirstTimePath = "etc/rc.firsttime"
	// AfterScriptPath wraps the operator's AFTER program.
	AfterScriptPath = "etc/rc.snapup"
	// ScriptMode marks boot scripts executable.
	ScriptMode os.FileMode = 0o755
)

const (
	mergeReminderLine = "/usr/sbin/sysmerge -b"
	scriptHeader      = "#!/bin/sh\n"
)

var errRelativeAfter = errors.New("after program must be an absolute path")

// ScriptWriter arranges work for the first boot after an upgrade.
type ScriptWriter struct {
	root string
}

// NewScriptWriter writes scripts below root.
func NewScriptWriter(root string) *ScriptWriter {
	return &ScriptWriter{root: root}
}

// ScheduleMerge appends a batch-mode sysmerge run to rc.firsttime.
// Calling it twice leaves a single entry.
func (w *ScriptWriter) ScheduleMerge() (string, error) {
	path := filepath.Join(w.root, FirstTimePath)

	return path, w.appendLine(path, mergeReminderLine)
}

// ScheduleAfter writes rc.snapup to exec program and hooks it into rc.firsttime.
func (w *ScriptWriter) ScheduleAfter(program string) (string, error) {
	if !filepath.IsAbs(program) {
		return "", fmt.Errorf("%q: %w", program, errRelativeAfter)
	}

	path := filepath.Join(w.root, AfterScriptPath)
	body := scriptHeader + "exec " + shellQuote(program) + "\n"

	if err := writeAtomic(path, []byte(body), ScriptMode); err != nil {
		return "", err
	}

	firstTime := filepath.Join(w.root, FirstTimePath)
	if err := w.appendLine(firstTime, "/bin/sh /"+filepath.ToSlash(AfterScriptPath)); err != nil {
		return "", err
	}

	return path, nil
}

func (w *ScriptWriter) appendLine(path, line string) error {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if len(contents) == 0 {
		contents = []byte(scriptHeader)
	}

	for _, existing := range strings.Split(string(contents), "\n") {
		if strings.TrimSpace(existing) == line {
			return os.Chmod(path, ScriptMode)
		}
	}

	if !bytes.HasSuffix(contents, []byte("\n")) {
		contents = append(contents, '\n')
	}

	contents = append(contents, line+"\n"...)

	return writeAtomic(path, contents, ScriptMode)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
