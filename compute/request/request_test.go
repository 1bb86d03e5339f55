package request

import (
	"strings"
	"testing"
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResources(t *testing.T) {
	tests := []struct {
		name     string
		walltime string
		memory   string
		cpu      string
		want     Resources
		wantErr  bool
	}{
		{
			name:     "example",
			walltime: "24.5", memory: "2.5", cpu: "2",
			want: Resources{Walltime: 24*time.Hour + 30*time.Minute, MemoryMB: 2560, CPU: 2},
		},
		{
			name:     "defaults",
			walltime: "24", memory: "2", cpu: "1",
			want: Resources{Walltime: 24 * time.Hour, MemoryMB: 2048, CPU: 1},
		},
		{
			name:     "rounding",
			walltime: "0.0001", memory: "0.0004", cpu: "1.2",
			want: Resources{Walltime: time.Second, MemoryMB: 0, CPU: 2},
			wantErr:  true, // memory rounds to zero megabytes
		},
		{
			name:     "nearest second",
			walltime: "1.00013888", memory: "1", cpu: "1",
			want: Resources{Walltime: time.Hour + 0*time.Second, MemoryMB: 1024, CPU: 1},
		},
		{
			name:     "quantity",
			walltime: "01:30:00", memory: "512Mi", cpu: "4",
			want: Resources{Walltime: 90 * time.Minute, MemoryMB: 512, CPU: 4},
		},
		{
			name:     "negative",
			walltime: "-1", memory: "2", cpu: "1",
			wantErr: true,
		},
		{
			name:     "not a number",
			walltime: "24", memory: "lots", cpu: "1",
			wantErr: true,
		},
		{
			name:     "zero cpu",
			walltime: "24", memory: "2", cpu: "0",
			wantErr: true,
		},
		{
			name:     "nan",
			walltime: "NaN", memory: "2", cpu: "1",
			wantErr: true,
		},
		{
			name:     "bad clock",
			walltime: "1:99:00", memory: "2", cpu: "1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResources(tt.walltime, tt.memory, tt.cpu)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, compute.ErrMalformedRequest), "got %v", err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResources_Format(t *testing.T) {
	r := Resources{Walltime: 24*time.Hour + 30*time.Minute + 5*time.Second, MemoryMB: 2560, CPU: 2}

	assert.Equal(t, "24:30:05", r.Clock())
	assert.Equal(t, 2.5, r.MemoryGB())
	assert.Equal(t, "2.5", FormatFloat(r.MemoryGB()))
	assert.Equal(t, "100:00:00", Resources{Walltime: 100 * time.Hour}.Clock())
}

func TestJobNameFor(t *testing.T) {
	cases := []struct {
		Name   string
		Given  string
		Expect string
	}{
		{Name: "plain", Given: "echo hi", Expect: "echo"},
		{Name: "path", Given: "/usr/local/bin/python script.py", Expect: "python"},
		{Name: "ampersand", Given: "sleep& 10", Expect: "sleep"},
		{Name: "digits", Given: "./2pass.sh in.txt", Expect: "pass.sh"},
		{Name: "only digits", Given: "123", Expect: DefaultJobName},
		{Name: "empty", Given: "   ", Expect: DefaultJobName},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			assert.Equal(t, c.Expect, JobNameFor(c.Given))
		})
	}
}

func TestJoinCommand(t *testing.T) {
	cases := []struct {
		Name   string
		Given  []string
		Expect string
	}{
		{Name: "plain", Given: []string{"echo", "hi"}, Expect: "echo hi"},
		{Name: "space", Given: []string{"grep", "a b", "file"}, Expect: "grep 'a b' file"},
		{Name: "dollar", Given: []string{"awk", "{print $1}"}, Expect: "awk '{print $1}'"},
		{Name: "single quote", Given: []string{"echo", "it's"}, Expect: `echo "it's"`},
		{Name: "already quoted", Given: []string{"echo", "'x y'"}, Expect: "echo 'x y'"},
		{Name: "awkt", Given: []string{"awkt", "{print $2}"}, Expect: `awk -F '\t' -v OFS='\t' '{print $2}'`},
		{Name: "sortt", Given: []string{"sortt", "-k2"}, Expect: `sort -t $'\t' -k2`},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			assert.Equal(t, c.Expect, JoinCommand(c.Given))
		})
	}
}

func TestReadCommands(t *testing.T) {
	lines, err := ReadCommands(strings.NewReader("echo a\n\n   \n  echo b  \necho c"))
	require.NoError(t, err)

	assert.Equal(t, []Line{
		{Number: 1, Text: "echo a"},
		{Number: 4, Text: "echo b"},
		{Number: 5, Text: "echo c"},
	}, lines)
}

func TestExpandArgs(t *testing.T) {
	args := []string{"a.txt", "b c.txt", "d.txt"}

	got, err := ExpandArgs([]string{"gzip", "-9"}, args, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"gzip -9 a.txt 'b c.txt'", "gzip -9 d.txt"}, got)

	got, err = ExpandArgs([]string{"cp", "{}", "/backup"}, args, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"cp a.txt /backup", "cp 'b c.txt' /backup", "cp d.txt /backup"}, got)

	_, err = ExpandArgs([]string{"cp"}, args, 0)
	assert.True(t, errors.Is(err, compute.ErrMalformedRequest))
}

func TestRequest_Validate(t *testing.T) {
	res := Resources{Walltime: time.Hour, MemoryMB: 1024, CPU: 1}

	assert.NoError(t, Request{Command: "echo hi", Resources: res}.Validate())

	err := Request{Command: " ", Resources: res}.Validate()
	assert.True(t, errors.Is(err, compute.ErrMalformedRequest))

	err = Request{Command: "echo hi"}.Validate()
	assert.True(t, errors.Is(err, compute.ErrMalformedRequest))

	err = Request{Command: "echo hi", Resources: res, CondaEnv: "bio"}.Validate()
	assert.True(t, errors.Is(err, compute.ErrMalformedRequest))
}

func TestRequest_Name(t *testing.T) {
	assert.Equal(t, "align", Request{Command: "bwa mem", JobName: "align"}.Name())
	assert.Equal(t, "bwa", Request{Command: "bwa mem"}.Name())
}
