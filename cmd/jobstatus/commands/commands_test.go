package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/archive"
	"github.com/carv-ics-forth/batchq/compute/joblog"
	"github.com/carv-ics-forth/batchq/compute/paths"
	"github.com/carv-ics-forth/batchq/compute/queue"
	queue_mock "github.com/carv-ics-forth/batchq/compute/queue/mock"
	"github.com/carv-ics-forth/batchq/compute/status"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	output paths.OutputPath
	log    *joblog.Log
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	home := t.TempDir()

	f := fixture{
		output: paths.Output(filepath.Join(home, "pbs-output")),
		log:    joblog.New(filepath.Join(home, ".pbs_log")),
	}

	f.log.Logger = logr.Discard()

	require.NoError(t, f.output.EnsureExists())

	return f
}

func (f fixture) writeOutput(t *testing.T, name string, command string, exit string) {
	t.Helper()

	content := "==> Run command    : " + command + "\n==> Exit status    : " + exit + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(f.output.String(), name), []byte(content), 0o644))
}

func (f fixture) collector(client queue.Client) *status.Collector {
	return status.NewCollector(status.Options{
		Log:    f.log,
		Output: f.output,
		Client: client,
		User:   "alice",
		Logger: logr.Discard(),
	})
}

func TestRunDetails(t *testing.T) {
	f := newFixture(t)

	t0 := time.Now().Add(-time.Hour)

	require.NoError(t, f.log.Append(t0, "101.server", "echo a"))
	require.NoError(t, f.log.Append(t0.Add(time.Minute), "102.server", "false"))
	require.NoError(t, f.log.Append(t0.Add(2*time.Minute), "103.server", "sleep 100"))

	f.writeOutput(t, "echo.o101", "echo a", "0")
	f.writeOutput(t, "false.o102", "false", "1")

	client := queue_mock.NewMockClient(gomock.NewController(t))
	client.EXPECT().Jobs(gomock.Any()).Return(queue.Listing{
		Records: []queue.Record{
			{JobID: "103.server", User: "alice", Queue: "batch", State: queue.StateQueued, RawState: "Q"},
		},
	}, nil).AnyTimes()

	tests := []struct {
		name   string
		opts   DetailsOpts
		format status.Format
		limit  string
		expect string
	}{
		{name: "all ids", format: status.FormatJobID, limit: "50", expect: "101 102 103\n"},
		{name: "all lines", format: status.FormatJobID, limit: "0", expect: "101 102 103\n"},
		{name: "last line", format: status.FormatJobID, limit: "1", expect: "103\n"},
		{name: "queued", opts: DetailsOpts{Queued: true}, format: status.FormatJobID, limit: "50", expect: "103\n"},
		{name: "failed commands", opts: DetailsOpts{Failed: true}, format: status.FormatCmd, limit: "50", expect: "false\n"},
		{name: "completed or failed", opts: DetailsOpts{Completed: true, Failed: true}, format: status.FormatJobID, limit: "50", expect: "101 102\n"},
		{name: "id range", format: status.FormatJobID, limit: "102-103", expect: "102 103\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, err := status.ParseLimit(tt.limit, time.Now())
			require.NoError(t, err)

			var out bytes.Buffer

			err = runDetails(context.Background(), &out, f.collector(client), tt.opts, tt.format, limit)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, out.String())
		})
	}
}

func TestRunDetails_QueueFailure(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.log.Append(time.Now(), "101", "echo a"))

	client := queue_mock.NewMockClient(gomock.NewController(t))
	client.EXPECT().Jobs(gomock.Any()).Return(queue.Listing{}, errors.New("qstat: cannot connect to server"))

	var out bytes.Buffer

	err := runDetails(context.Background(), &out, f.collector(client), DetailsOpts{}, status.FormatJobID, status.Limit{})
	assert.True(t, errors.Is(err, compute.ErrExternalCommand))
	assert.Equal(t, "101\n", out.String())
}

func TestRunSummary(t *testing.T) {
	client := queue_mock.NewMockClient(gomock.NewController(t))
	client.EXPECT().Jobs(gomock.Any()).Return(queue.Listing{
		Records: []queue.Record{
			{JobID: "1", User: "alice", Queue: "batch", State: queue.StateRunning, RawState: "R"},
			{JobID: "2", User: "bob", Queue: "batch", State: queue.StateQueued, RawState: "Q"},
		},
	}, nil)

	var out bytes.Buffer

	require.NoError(t, RunSummary(context.Background(), &out, client, "alice"))
	assert.Contains(t, out.String(), "*alice")
	assert.Contains(t, out.String(), "bob")
	assert.Contains(t, out.String(), "totals")
}

func TestRunSummary_QueueFailure(t *testing.T) {
	client := queue_mock.NewMockClient(gomock.NewController(t))
	client.EXPECT().Jobs(gomock.Any()).Return(queue.Listing{}, errors.New("timeout"))

	err := RunSummary(context.Background(), &bytes.Buffer{}, client, "alice")
	assert.True(t, errors.Is(err, compute.ErrExternalCommand))
}

func TestRunNodes(t *testing.T) {
	client := queue_mock.NewMockClient(gomock.NewController(t))
	client.EXPECT().Nodes(gomock.Any()).Return([]queue.Node{
		{Name: "dc01", States: []string{"free"}, CPUs: 4, UsedCPUs: 1, MemoryMB: 8192},
		{Name: "dc02", States: []string{"offline"}, CPUs: 4, MemoryMB: 8192},
	}, nil)
	client.EXPECT().Jobs(gomock.Any()).Return(queue.Listing{
		Records: []queue.Record{
			{JobID: "7.server", User: "alice", State: queue.StateRunning, Node: "dc01", MemoryLimitMB: 2048},
		},
	}, nil)

	var out bytes.Buffer

	require.NoError(t, runNodes(context.Background(), &out, client, NodesOpts{States: []string{"free"}, Owners: true}))

	assert.Contains(t, out.String(), "dc01")
	assert.Contains(t, out.String(), "alice: 7")
	assert.NotContains(t, out.String(), "dc02")
}

func TestPrintArchiveReport(t *testing.T) {
	var out bytes.Buffer

	require.NoError(t, printArchiveReport(&out, archive.Report{
		Tarball:    "/home/alice/pbs-output/archive/2023-11-01_abc.tar.gz",
		Archived:   []string{"101", "102"},
		LogRemoved: 3,
	}))

	assert.Equal(t, strings.Join([]string{
		"Archived job 101",
		"Archived job 102",
		"Outputs saved in /home/alice/pbs-output/archive/2023-11-01_abc.tar.gz",
		"Removed 3 entries from the submission log",
		"",
	}, "\n"), out.String())

	out.Reset()
	require.NoError(t, printArchiveReport(&out, archive.Report{}))
	assert.Empty(t, out.String())
}

func TestReportWaited(t *testing.T) {
	result := status.Result{
		Jobs: []*status.Job{
			{ID: "101", Name: "echo", State: queue.StateCompleted, ExitStatus: "0", Command: "echo a"},
			{ID: "102", Name: "false", State: queue.StateFailed, ExitStatus: "1", Command: "false"},
		},
	}

	var out bytes.Buffer

	require.NoError(t, reportWaited(&out, result, []string{"101.server"}))
	assert.Contains(t, out.String(), "echo a")

	out.Reset()

	err := reportWaited(&out, result, []string{"101", "102", "999"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3 jobs did not complete")
	assert.Contains(t, out.String(), "false")
}
