package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/joblog"
	"github.com/carv-ics-forth/batchq/compute/paths"
	"github.com/carv-ics-forth/batchq/compute/queue"
	queue_mock "github.com/carv-ics-forth/batchq/compute/queue/mock"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	home   string
	output paths.OutputPath
	log    *joblog.Log
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	home := t.TempDir()

	f := fixture{
		home:   home,
		output: paths.Output(filepath.Join(home, "pbs-output")),
		log:    joblog.New(filepath.Join(home, ".pbs_log")),
	}

	f.log.Logger = logr.Discard()

	require.NoError(t, f.output.EnsureExists())

	return f
}

func (f fixture) writeOutput(t *testing.T, name string, command string, exit string) string {
	t.Helper()

	content := "==> Run command    : " + command + "\n"
	if exit != "" {
		content += "==> Exit status    : " + exit + "\n"
	}

	path := filepath.Join(f.output.String(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func (f fixture) archiver(client queue.Client, now time.Time) *Archiver {
	return New(Options{
		Log:    f.log,
		Output: f.output,
		Client: client,
		User:   "alice",
		Home:   f.home,
		Logger: logr.Discard(),
		Now:    func() time.Time { return now },
	})
}

func tarballNames(t *testing.T, path string) []string {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)

	defer file.Close()

	gz, err := gzip.NewReader(file)
	require.NoError(t, err)

	tr := tar.NewReader(gz)

	var names []string

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		require.NoError(t, err)

		names = append(names, hdr.Name)
	}

	sort.Strings(names)

	return names
}

func TestArchive(t *testing.T) {
	f := newFixture(t)

	// output change times cannot be set, so the cut-off lies in the future
	now := time.Now()
	cutoff := now.Add(time.Hour)

	require.NoError(t, f.log.Append(now.Add(-48*time.Hour), "101.server", "echo a"))
	require.NoError(t, f.log.Append(now.Add(-47*time.Hour), "102.server", "sleep 1000"))
	require.NoError(t, f.log.Append(now.Add(-46*time.Hour), "103.server", "false"))
	require.NoError(t, f.log.Append(now.Add(2*time.Hour), "104.server", "clock skew"))

	f.writeOutput(t, "echo.o101", "echo a", "0")
	running := f.writeOutput(t, "sleep.o102", "sleep 1000", "")
	f.writeOutput(t, "false.o103", "false", "1")

	client := queue_mock.NewMockClient(gomock.NewController(t))
	client.EXPECT().Jobs(gomock.Any()).Return(queue.Listing{
		Records: []queue.Record{
			{JobID: "102.server", User: "alice", State: queue.StateRunning, RawState: "R"},
		},
	}, nil)

	report, err := f.archiver(client, now).Archive(context.Background(), cutoff)
	require.NoError(t, err)

	assert.Equal(t, []string{"101", "103"}, report.Archived)
	assert.Equal(t, 2, report.LogRemoved)
	require.NotEmpty(t, report.Tarball)

	assert.Equal(t, f.output.ArchiveDir(), filepath.Dir(report.Tarball))
	assert.Equal(t, []string{"pbs-output/echo.o101", "pbs-output/false.o103"}, tarballNames(t, report.Tarball))

	info, err := os.Stat(report.Tarball)
	require.NoError(t, err)
	assert.Equal(t, paths.ArchiveFilePermissions, info.Mode().Perm())

	/*-- archived outputs are gone, the running job is untouched --*/
	assert.NoFileExists(t, filepath.Join(f.output.String(), "echo.o101"))
	assert.NoFileExists(t, filepath.Join(f.output.String(), "false.o103"))
	assert.FileExists(t, running)

	entries, _, err := f.log.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "102.server", entries[0].JobID)
	assert.Equal(t, "104.server", entries[1].JobID)
}

func TestArchive_Idempotent(t *testing.T) {
	f := newFixture(t)

	now := time.Now()
	cutoff := now.Add(time.Hour)

	require.NoError(t, f.log.Append(now.Add(-48*time.Hour), "101", "echo a"))
	f.writeOutput(t, "echo.o101", "echo a", "0")

	client := queue_mock.NewMockClient(gomock.NewController(t))
	client.EXPECT().Jobs(gomock.Any()).Return(queue.Listing{}, nil).Times(2)

	archiver := f.archiver(client, now)

	first, err := archiver.Archive(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, first.Archived)

	second, err := archiver.Archive(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Empty(t, second.Archived)
	assert.Empty(t, second.Tarball)
	assert.Zero(t, second.LogRemoved)

	tarballs, err := os.ReadDir(f.output.ArchiveDir())
	require.NoError(t, err)
	assert.Len(t, tarballs, 1)
}

func TestArchive_NothingOldEnough(t *testing.T) {
	f := newFixture(t)

	now := time.Now()

	require.NoError(t, f.log.Append(now, "101", "echo a"))
	output := f.writeOutput(t, "echo.o101", "echo a", "0")

	client := queue_mock.NewMockClient(gomock.NewController(t))
	client.EXPECT().Jobs(gomock.Any()).Return(queue.Listing{}, nil)

	report, err := f.archiver(client, now).Archive(context.Background(), now.Add(-7*24*time.Hour))
	require.NoError(t, err)

	assert.Empty(t, report.Tarball)
	assert.Empty(t, report.Archived)
	assert.FileExists(t, output)
	assert.NoDirExists(t, f.output.ArchiveDir())

	entries, _, err := f.log.ReadAll()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestArchive_QueueUnavailable(t *testing.T) {
	f := newFixture(t)

	now := time.Now()

	require.NoError(t, f.log.Append(now.Add(-48*time.Hour), "101", "echo a"))
	output := f.writeOutput(t, "echo.o101", "echo a", "0")

	client := queue_mock.NewMockClient(gomock.NewController(t))
	client.EXPECT().Jobs(gomock.Any()).Return(queue.Listing{}, errors.New("qstat: cannot connect to server"))

	_, err := f.archiver(client, now).Archive(context.Background(), now.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, compute.ErrExternalCommand))

	assert.FileExists(t, output)

	entries, _, err := f.log.ReadAll()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestArchive_OutputOutsideHome(t *testing.T) {
	f := newFixture(t)

	now := time.Now()
	outside := paths.Output(filepath.Join(t.TempDir(), "scratch-output"))
	require.NoError(t, outside.EnsureExists())

	require.NoError(t, os.WriteFile(filepath.Join(outside.String(), "echo.o7"), []byte("==> Exit status    : 0\n"), 0o644))

	client := queue_mock.NewMockClient(gomock.NewController(t))
	client.EXPECT().Jobs(gomock.Any()).Return(queue.Listing{}, nil)

	archiver := New(Options{
		Output: outside,
		Client: client,
		User:   "alice",
		Home:   f.home,
		Logger: logr.Discard(),
		Now:    func() time.Time { return now },
	})

	report, err := archiver.Archive(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []string{"7"}, report.Archived)
	assert.Equal(t, []string{"scratch-output/echo.o7"}, tarballNames(t, report.Tarball))
}

func TestWriteTarball_UnreadableFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.o1")
	require.NoError(t, os.WriteFile(good, []byte("ok\n"), 0o644))

	missing := filepath.Join(dir, "missing.o2")
	tarball := filepath.Join(dir, "out.tar.gz")

	packed, failed, err := writeTarball(tarball, []string{good, missing}, filepath.Base)
	require.NoError(t, err)

	assert.Equal(t, []string{good}, packed)
	require.Len(t, failed, 1)
	assert.True(t, errors.Is(failed[0], compute.ErrArchiveIO))
	assert.Equal(t, missing, compute.ItemOf(failed[0]))

	assert.Equal(t, []string{"good.o1"}, tarballNames(t, tarball))
}

func TestWriteTarball_Exists(t *testing.T) {
	dir := t.TempDir()

	tarball := filepath.Join(dir, "out.tar.gz")
	require.NoError(t, os.WriteFile(tarball, []byte("previous"), 0o600))

	_, _, err := writeTarball(tarball, nil, filepath.Base)
	require.Error(t, err)

	content, err := os.ReadFile(tarball)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(content))
}
