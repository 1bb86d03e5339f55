package status

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/joblog"
	"github.com/carv-ics-forth/batchq/compute/paths"
	"github.com/carv-ics-forth/batchq/compute/queue"
	queue_mock "github.com/carv-ics-forth/batchq/compute/queue/mock"
	"github.com/carv-ics-forth/batchq/pkg/filenotify"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var t0 = time.Date(2023, 11, 1, 9, 0, 0, 0, time.Local)

func outputText(command string, exit string, config string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "==> Run command    : %s\n", command)
	fmt.Fprintf(&b, "==> Execution host : dc01\n")

	if config != "" {
		fmt.Fprintf(&b, "==> Job config     : %s\n", config)
	}

	b.WriteString("some job output\n==> not a detail line\n")

	if exit != "" {
		fmt.Fprintf(&b, "==> Exit status    : %s\n", exit)
	}

	return b.String()
}

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

func (f fixture) writeOutput(t *testing.T, name string, content string) string {
	t.Helper()

	path := filepath.Join(f.output.String(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

/************************************************************

			Output Files

************************************************************/

func TestParseOutput(t *testing.T) {
	text := outputText("python run.py --in 'a b'", "1",
		"rwalltime=24.5,rmem=2.5,rcpu=2,name='run',wd=/home/alice") +
		"==> Resources used : cput=00:01:00,mem=524288kb,vmem=1gb,walltime=01:02:03\n"

	out, err := ParseOutput(strings.NewReader(text))
	require.NoError(t, err)

	assert.Equal(t, "python run.py --in 'a b'", out.Command)
	assert.Equal(t, "dc01", out.Host)
	assert.Equal(t, "1", out.ExitStatus)
	assert.True(t, out.Finished())
	assert.Equal(t, "run", out.Name)
	assert.Equal(t, "/home/alice", out.Fields["wd"])
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second, out.Walltime)
	assert.Equal(t, 24*time.Hour+30*time.Minute, out.WalltimeLimit)
	assert.Equal(t, int64(512), out.MemoryUsedMB)
	assert.Equal(t, int64(2560), out.MemoryLimitMB)
}

func TestParseOutput_Running(t *testing.T) {
	out, err := ParseOutput(strings.NewReader(outputText("sleep 100", "", "")))
	require.NoError(t, err)
	assert.False(t, out.Finished())

	// a very long line of job output before the details
	long := strings.Repeat("x", 64*1024) + "==> Exit status : 3\n" + "==> Exit status : 0\n"

	out, err = ParseOutput(strings.NewReader(long))
	require.NoError(t, err)
	assert.Equal(t, "0", out.ExitStatus)
}

func TestReadOutput(t *testing.T) {
	f := newFixture(t)

	path := f.writeOutput(t, "python.o70", outputText("python x.py", "0", ""))

	file, invalid := f.output.ParseAbsPath(path)
	require.False(t, invalid)

	out, err := ReadOutput(file)
	require.NoError(t, err)

	assert.Equal(t, "70", out.JobID)
	assert.Equal(t, "python", out.Name)
	assert.Equal(t, path, out.Path)
	assert.False(t, out.ModTime.IsZero())
}

/************************************************************

			Collection

************************************************************/

func TestCollect(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.log.Append(t0, "101.server", "echo a"))
	require.NoError(t, f.log.Append(t0.Add(time.Hour), "102.server", "sleep 100"))
	require.NoError(t, f.log.Append(t0.Add(2*time.Hour), "103.server", "false"))
	require.NoError(t, f.log.Append(t0.Add(3*time.Hour), "104.server", "lost"))

	f.writeOutput(t, "echo.o101", outputText("echo a", "0", "rwalltime=1,rmem=2,rcpu=1,name=echo,wd=/tmp"))
	f.writeOutput(t, "false.o103", outputText("false", "1", ""))
	f.writeOutput(t, "orphan.o99", outputText("orphan", "0", ""))
	f.writeOutput(t, "notes.txt", "not a job output")

	client := queue_mock.NewMockClient(gomock.NewController(t))
	client.EXPECT().Jobs(gomock.Any()).Return(queue.Listing{
		Records: []queue.Record{
			{JobID: "102.server", User: "alice", Queue: "batch", State: queue.StateRunning, RawState: "R", Node: "dc02", MemoryLimitMB: 4096},
			{JobID: "200.server", User: "alice", Queue: "batch", State: queue.StateQueued, RawState: "Q", Name: "later"},
			{JobID: "300.server", User: "bob", Queue: "batch", State: queue.StateRunning, RawState: "R"},
		},
		Skipped: 1,
	}, nil)

	c := NewCollector(Options{
		Log:    f.log,
		Output: f.output,
		Client: client,
		User:   "alice",
		Logger: logr.Discard(),
	})

	result, err := c.Collect(context.Background())
	require.NoError(t, err)

	var ids []string
	states := map[string]queue.State{}

	for _, j := range result.Jobs {
		ids = append(ids, j.ID)
		states[j.ID] = j.State
	}

	assert.Equal(t, []string{"101", "102", "103", "104", "99", "200"}, ids)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 3, result.OutputFiles)

	assert.Equal(t, queue.StateCompleted, states["101"])
	assert.Equal(t, queue.StateRunning, states["102"])
	assert.Equal(t, queue.StateFailed, states["103"])
	assert.Equal(t, queue.StateUnknown, states["104"])
	assert.Equal(t, queue.StateCompleted, states["99"])
	assert.Equal(t, queue.StateQueued, states["200"])

	echo, ok := result.Find("101.server")
	require.True(t, ok)
	assert.Equal(t, "echo a", echo.Command)
	assert.Equal(t, "echo", echo.Name)
	assert.Equal(t, "0", echo.ExitStatus)
	assert.True(t, t0.Equal(echo.Submitted))
	assert.False(t, echo.Finished.IsZero())
	assert.Equal(t, time.Hour, echo.WalltimeLimit)
	assert.False(t, echo.Live())

	sleep, _ := result.Find("102")
	assert.True(t, sleep.Live())
	assert.Equal(t, "dc02", sleep.Node)
	assert.Equal(t, int64(4096), sleep.MemoryLimitMB)

	orphan, _ := result.Find("99")
	assert.Equal(t, "orphan", orphan.Command)
	assert.Nil(t, orphan.LogEntry)
}

func TestCollect_QueueFailure(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.log.Append(t0, "101", "echo a"))

	client := queue_mock.NewMockClient(gomock.NewController(t))
	client.EXPECT().Jobs(gomock.Any()).Return(queue.Listing{}, errors.New("qstat: cannot connect to server"))

	c := NewCollector(Options{Log: f.log, Output: f.output, Client: client, User: "alice", Logger: logr.Discard()})

	result, err := c.Collect(context.Background())
	assert.True(t, errors.Is(err, compute.ErrExternalCommand))
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, "101", result.Jobs[0].ID)
}

func TestCollect_History(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.log.Append(t0, "5001", "step1"))
	require.NoError(t, f.log.Append(t0.Add(time.Minute), "5002", "step2"))

	client := queue_mock.NewMockClient(gomock.NewController(t))
	client.EXPECT().Jobs(gomock.Any()).Return(queue.Listing{}, nil)
	client.EXPECT().History(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, since time.Time) (queue.Listing, error) {
		assert.True(t, t0.Equal(since), "history since %v", since)

		return queue.Listing{
			Records: []queue.Record{
				{JobID: "5001", User: "alice", State: queue.StateAborted, RawState: "TIMEOUT", ExitStatus: "0:15", Finished: t0.Add(time.Hour)},
			},
		}, nil
	})

	c := NewCollector(Options{Log: f.log, Output: f.output, Client: client, User: "alice", History: true, Logger: logr.Discard()})

	result, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Jobs, 2)

	assert.Equal(t, queue.StateAborted, result.Jobs[0].State)
	assert.True(t, t0.Add(time.Hour).Equal(result.Jobs[0].Finished))
	assert.False(t, result.Jobs[0].InQueue)
	assert.Equal(t, queue.StateUnknown, result.Jobs[1].State)
}

/************************************************************

			Filters and Limits

************************************************************/

func sampleJobs() []*Job {
	return []*Job{
		{ID: "101", Name: "echo", State: queue.StateCompleted, Submitted: t0, Finished: t0.Add(time.Hour)},
		{ID: "102", Name: "sleep", State: queue.StateRunning, Submitted: t0.Add(24 * time.Hour), InQueue: true},
		{ID: "103", Name: "false", State: queue.StateFailed, Submitted: t0.Add(48 * time.Hour), Finished: t0.Add(49 * time.Hour)},
		{ID: "104", Name: "lost", State: queue.StateUnknown, Submitted: t0.Add(72 * time.Hour)},
		{ID: "105[]", Name: "array", State: queue.StateQueued, InQueue: true},
	}
}

func idsOf(jobs []*Job) []string {
	ids := []string{}
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}

	return ids
}

func TestStateFilter(t *testing.T) {
	tests := []struct {
		name   string
		given  []queue.State
		expect []string
	}{
		{name: "all", given: nil, expect: []string{"101", "102", "103", "104", "105[]"}},
		{name: "running", given: []queue.State{queue.StateRunning}, expect: []string{"102"}},
		{name: "queued and completed", given: []queue.State{queue.StateQueued, queue.StateCompleted}, expect: []string{"101", "105[]"}},
		{name: "failed includes unknown", given: []queue.State{queue.StateFailed}, expect: []string{"103", "104"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, idsOf(NewStateFilter(tt.given...).Apply(sampleJobs())))
		})
	}
}

func TestParseLimit(t *testing.T) {
	now := t0.Add(100 * time.Hour)

	tests := []struct {
		name   string
		given  string
		kind   LimitKind
		expect []string
	}{
		{name: "none", given: "", kind: LimitNone, expect: []string{"101", "102", "103", "104", "105[]"}},
		{name: "lines", given: "2", kind: LimitLines, expect: []string{"104", "105[]"}},
		{name: "more lines than jobs", given: "50", kind: LimitLines, expect: []string{"101", "102", "103", "104", "105[]"}},
		{name: "job id from", given: "10003", kind: LimitIDFrom, expect: []string{}},
		{name: "job id with server", given: "103.server", kind: LimitIDFrom, expect: []string{"103", "104", "105[]"}},
		{name: "range", given: "102-104", kind: LimitIDRange, expect: []string{"102", "103", "104"}},
		{name: "reversed range", given: "104-102", kind: LimitIDRange, expect: []string{"102", "103", "104"}},
		{name: "range with server", given: "101.server-102.server", kind: LimitIDRange, expect: []string{"101", "102"}},
		{name: "list", given: "101,105", kind: LimitIDList, expect: []string{"101", "105[]"}},
		{name: "date", given: t0.Add(48 * time.Hour).Format("2006-01-02"), kind: LimitSince, expect: []string{"103", "104"}},
		{name: "age", given: "3d", kind: LimitSince, expect: []string{"103", "104"}},
		{name: "hours", given: "30h", kind: LimitSince, expect: []string{"104"}},
		{name: "name", given: "sleep", kind: LimitName, expect: []string{"102"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, err := ParseLimit(tt.given, now)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, limit.Kind)
			assert.Equal(t, tt.expect, idsOf(limit.Apply(sampleJobs())))
		})
	}
}

func TestParseLimit_Invalid(t *testing.T) {
	_, err := ParseLimit("101,abc", t0)
	assert.True(t, errors.Is(err, compute.ErrMalformedRequest))
}

func TestParseCutoff(t *testing.T) {
	now := time.Date(2023, 11, 15, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name    string
		given   string
		expect  time.Time
		wantErr bool
	}{
		{name: "week", given: "1w", expect: now.Add(-7 * 24 * time.Hour)},
		{name: "days", given: "3d", expect: now.Add(-3 * 24 * time.Hour)},
		{name: "hours", given: "12h", expect: now.Add(-12 * time.Hour)},
		{name: "date", given: "2023-11-01", expect: time.Date(2023, 11, 1, 0, 0, 0, 0, time.Local)},
		{name: "unit missing", given: "7", wantErr: true},
		{name: "unknown unit", given: "2y", wantErr: true},
		{name: "century", given: "5200w", expect: now.Add(-5200 * 7 * 24 * time.Hour)},
		{name: "beyond a century", given: "3000000h", wantErr: true},
		{name: "duration overflow", given: "99999999w", wantErr: true},
		{name: "int64 overflow", given: "99999999999999999999d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCutoff(tt.given, now)
			if tt.wantErr {
				assert.True(t, errors.Is(err, compute.ErrMalformedRequest))
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.expect.Equal(got), "got %v", got)
		})
	}
}

/************************************************************

			Output Formats

************************************************************/

func TestWrite(t *testing.T) {
	jobs := []*Job{
		{ID: "101", Name: "echo", State: queue.StateCompleted, ExitStatus: "0", Command: "echo a"},
		{ID: "102", Name: "sleep", State: queue.StateRunning, Queue: "batch", InQueue: true, Command: "sleep 100",
			Walltime: 90 * time.Minute, WalltimeLimit: 25 * time.Hour, MemoryUsedMB: 1024, MemoryLimitMB: 4096},
	}

	var buf bytes.Buffer

	require.NoError(t, Write(&buf, FormatJobID, jobs))
	assert.Equal(t, "101 102\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, FormatCmd, jobs))
	assert.Equal(t, "echo a\nsleep 100\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, FormatTable, jobs))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Job ID"))
	assert.Contains(t, lines[2], "Running (batch)")
	assert.Contains(t, lines[2], "01:30:00/25:00:00")
	assert.Contains(t, lines[2], "1.0/4.0G ( 25%)")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JobID")
	require.NoError(t, err)
	assert.Equal(t, FormatJobID, f)

	_, err = ParseFormat("json")
	assert.True(t, errors.Is(err, compute.ErrMalformedRequest))
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatClock(0))
	assert.Equal(t, "25:03:04", FormatClock(25*time.Hour+3*time.Minute+4*time.Second))
}

/************************************************************

			Summary and Nodes

************************************************************/

func TestSummarize(t *testing.T) {
	listing := queue.Listing{Records: []queue.Record{
		{User: "bob", Queue: "batch", State: queue.StateRunning, RawState: "R"},
		{User: "bob", Queue: "batch", State: queue.StateQueued, RawState: "Q"},
		{User: "alice", Queue: "batch", State: queue.StateRunning, RawState: "E"},
		{User: "alice", Queue: "long", State: queue.StateQueued, RawState: "H"},
		{User: "alice", Queue: "long", State: queue.StateCompleted, RawState: "C"},
	}}

	s := Summarize(listing, "alice")

	assert.Equal(t, []SummaryRow{
		{User: "*alice", Queue: "batch", Exiting: 1},
		{User: "*alice", Queue: "long", Queued: 1},
		{User: "bob", Queue: "batch", Running: 1, Queued: 1},
	}, s.Users)

	assert.Equal(t, []SummaryRow{
		{Queue: "batch", Running: 1, Queued: 1, Exiting: 1},
		{Queue: "long", Queued: 1},
	}, s.Queues)

	assert.Equal(t, SummaryRow{Queue: "totals", Running: 1, Queued: 2, Exiting: 1}, s.Total)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, s))

	out := buf.String()
	assert.Contains(t, out, "User            Queue      Running    Queued     Exiting")
	assert.Contains(t, out, "bob             batch      1          1          0")
	assert.Contains(t, out, "                totals     1          2          1")
}

func TestBuildNodes(t *testing.T) {
	nodes := []queue.Node{
		{Name: "dc03", States: []string{"offline", "free"}, CPUs: 4},
		{Name: "dc02", States: []string{"job-exclusive"}, CPUs: 2, UsedCPUs: 2, MemoryMB: 8192, Jobs: []string{"7", "7"}},
		{Name: "dc01", States: []string{"free"}, CPUs: 4, UsedCPUs: 3, MemoryMB: 16384, Load: "2.50", Jobs: []string{"1", "2", "3"}},
	}

	listing := queue.Listing{Records: []queue.Record{
		{JobID: "1.server", User: "alice", Node: "dc01", State: queue.StateRunning, MemoryLimitMB: 2048},
		{JobID: "2.server", User: "bob", Node: "dc01", State: queue.StateRunning, MemoryLimitMB: 4096},
		{JobID: "3.server", User: "alice", Node: "dc01", State: queue.StateRunning, MemoryLimitMB: 2048},
		{JobID: "8.server", User: "carol", State: queue.StateQueued},
	}}

	views := BuildNodes(nodes, listing, nil)
	require.Len(t, views, 3)

	assert.Equal(t, "dc01", views[0].Name)
	assert.Equal(t, "dc02", views[1].Name)
	assert.Equal(t, "dc03", views[2].Name)

	assert.Equal(t, int64(8192), views[0].UsedMemoryMB)
	assert.Equal(t, []Owner{
		{User: "alice", Jobs: []string{"1", "3"}},
		{User: "bob", Jobs: []string{"2"}},
	}, views[0].Owners)

	assert.Equal(t, []Owner{{User: OrphansLabel, Jobs: []string{"7"}}}, views[1].Owners)

	filtered := BuildNodes(nodes, listing, []string{"FREE"})
	assert.Equal(t, []string{"dc01", "dc03"}, []string{filtered[0].Name, filtered[1].Name})

	var buf bytes.Buffer
	require.NoError(t, WriteNodes(&buf, views, false))
	assert.Contains(t, buf.String(), "***-")
	assert.Contains(t, buf.String(), "  3/  4 ( 75%)")
	assert.Contains(t, buf.String(), "  8.0/ 16.0G ( 50%)")
	assert.Contains(t, buf.String(), "N/A")

	buf.Reset()
	require.NoError(t, WriteNodes(&buf, views, true))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasSuffix(lines[1], "alice: 1 3"))
	assert.True(t, strings.HasSuffix(lines[2], "bob: 2"))
	assert.True(t, strings.HasSuffix(lines[3], "ORPHANS: 7"))
}

/************************************************************

			Waiting for Outputs

************************************************************/

func TestWaitForOutputs(t *testing.T) {
	f := newFixture(t)

	f.writeOutput(t, "early.o1", outputText("early", "0", ""))
	f.writeOutput(t, "late.o2", outputText("late", "", ""))

	watcher := filenotify.NewPollingWatcher(20 * time.Millisecond)
	defer watcher.Close()

	go func() {
		time.Sleep(100 * time.Millisecond)

		dir := f.output.String()

		_ = os.WriteFile(filepath.Join(dir, "late.o2"), []byte(outputText("late", "0", "")+"\n"), 0o644)
		_ = os.WriteFile(filepath.Join(dir, "new.o3"), []byte(outputText("new", "1", "")), 0o644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, WaitForOutputs(ctx, watcher, f.output, []string{"1.server", "2", "3"}))
}

func TestWaitForOutputs_Timeout(t *testing.T) {
	f := newFixture(t)

	watcher := filenotify.NewPollingWatcher(20 * time.Millisecond)
	defer watcher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := WaitForOutputs(ctx, watcher, f.output, []string{"42"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "42")
}
