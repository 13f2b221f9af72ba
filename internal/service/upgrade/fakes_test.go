package upgrade

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/snapup/internal/config"
	"github.com/oshokin/snapup/internal/domain/release"
	"github.com/oshokin/snapup/internal/repository/state"
)

const testBuild = "Tue Nov 14 22:13:20 UTC 2023"

// journal records the calls of every fake in order.
type journal struct {
	events []string
}

func (j *journal) add(event string) {
	j.events = append(j.events, event)
}

func (j *journal) index(event string) int {
	return slices.Index(j.events, event)
}

func (j *journal) withPrefix(prefix string) []string {
	var matched []string

	for _, event := range j.events {
		if strings.HasPrefix(event, prefix) {
			matched = append(matched, strings.TrimPrefix(event, prefix))
		}
	}

	return matched
}

type fakeFetcher struct {
	j           *journal
	buildInfo   string
	fail        map[string]error
	transferred []string
}

func (f *fakeFetcher) Fetch(_ context.Context, remoteURL, destDir string) (string, error) {
	name := path.Base(remoteURL)
	f.j.add("fetch:" + name)

	if err := f.fail[name]; err != nil {
		return "", err
	}

	dst := filepath.Join(destDir, name)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}

	contents := "contents of " + name
	if name == release.BuildInfoFile {
		contents = f.buildInfo
	}

	if err := os.WriteFile(dst, []byte(contents), 0o600); err != nil {
		return "", err
	}

	f.transferred = append(f.transferred, name)

	return dst, nil
}

func (f *fakeFetcher) Refresh(ctx context.Context, remoteURL, destDir string) (string, error) {
	_ = os.Remove(filepath.Join(destDir, path.Base(remoteURL)))

	return f.Fetch(ctx, remoteURL, destDir)
}

type fakeVerifier struct {
	j   *journal
	err error
}

func (f *fakeVerifier) Verify(_ context.Context, files []string, version string) error {
	names := make([]string, 0, len(files))
	for _, file := range files {
		names = append(names, filepath.Base(file))
	}

	f.j.add("verify:" + version + ":" + strings.Join(names, ","))

	return f.err
}

type fakeKernel struct {
	j           *journal
	backupErr   error
	installErr  error
	rollbackErr error
	backedUp    bool
}

func (f *fakeKernel) Backup(context.Context) error {
	f.j.add("backup")

	if f.backupErr != nil {
		return f.backupErr
	}

	f.backedUp = true

	return nil
}

func (f *fakeKernel) InstallKernel(_ context.Context, _ string, _ release.KernelBundle, backupFirst bool) error {
	if backupFirst {
		f.j.add("install+backup")
	} else {
		f.j.add("install")
	}

	return f.installErr
}

func (f *fakeKernel) Rollback(context.Context) error {
	f.j.add("rollback")

	return f.rollbackErr
}

func (f *fakeKernel) HasBackup() bool {
	return f.backedUp
}

func (f *fakeKernel) InstallBoot(_ context.Context, device string) error {
	f.j.add("installboot:" + device)

	return nil
}

type fakeArchiver struct {
	j    *journal
	fail map[string]error
}

func (f *fakeArchiver) Extract(_ context.Context, archivePath string) error {
	name := filepath.Base(archivePath)
	f.j.add("extract:" + name)

	if _, err := os.Stat(archivePath); err != nil {
		return err
	}

	return f.fail[name]
}

type fakeMerger struct{ j *journal }

func (f *fakeMerger) Merge(context.Context) error {
	f.j.add("merge")

	return nil
}

type fakeRebooter struct{ j *journal }

func (f *fakeRebooter) Reboot(context.Context) error {
	f.j.add("reboot")

	return nil
}

type fakeScheduler struct{ j *journal }

func (f *fakeScheduler) ScheduleMerge() (string, error) {
	f.j.add("schedule-merge")

	return "/etc/rc.firsttime", nil
}

func (f *fakeScheduler) ScheduleAfter(program string) (string, error) {
	f.j.add("schedule-after:" + program)

	return "/etc/rc.snapup", nil
}

type fakeConfirmer struct {
	j       *journal
	answers []bool
}

func (f *fakeConfirmer) Confirm(question string) bool {
	f.j.add("confirm:" + question)

	if len(f.answers) == 0 {
		return false
	}

	answer := f.answers[0]
	f.answers = f.answers[1:]

	return answer
}

// fixture bundles a configuration with recording fakes.
type fixture struct {
	cfg      config.Config
	j        *journal
	fetcher  *fakeFetcher
	verifier *fakeVerifier
	kernel   *fakeKernel
	archiver *fakeArchiver
	marker   *state.FileRepository
	confirm  *fakeConfirmer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	j := new(journal)

	return &fixture{
		cfg: config.Config{
			Root: "/",
			Home: t.TempDir(),
			Dest: t.TempDir(),
			Target: release.Target{
				Scheme:  "https",
				Mirror:  "example.org",
				Channel: release.ChannelSnapshots,
				Machine: "amd64",
				Version: "10.5",
			},
			Sets:             release.DefaultArtifactSet(),
			Kernel:           release.KernelBundleFor("amd64"),
			CPUs:             2,
			VerifySignatures: true,
			BackupKernel:     true,
		},
		j:        j,
		fetcher:  &fakeFetcher{j: j, buildInfo: "Build date: 1700000000 - " + testBuild},
		verifier: &fakeVerifier{j: j},
		kernel:   &fakeKernel{j: j},
		archiver: &fakeArchiver{j: j},
		confirm:  &fakeConfirmer{j: j},
	}
}

func (f *fixture) run(t *testing.T) (*Orchestrator, error) {
	t.Helper()

	f.marker = state.NewFileRepository(f.cfg.MarkerPath())

	o := New(f.cfg, Components{
		Fetcher:   f.fetcher,
		Verifier:  f.verifier,
		Kernel:    f.kernel,
		Archiver:  f.archiver,
		Merger:    &fakeMerger{j: f.j},
		Rebooter:  &fakeRebooter{j: f.j},
		Marker:    f.marker,
		Scheduler: &fakeScheduler{j: f.j},
		Confirmer: f.confirm,
	})

	return o, o.Run(context.Background())
}

func (f *fixture) seedDest(t *testing.T, names ...string) {
	t.Helper()

	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(f.cfg.Dest, name), []byte("present "+name), 0o600))
	}
}

var errBoom = errors.New("boom")
