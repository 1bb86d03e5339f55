package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortID(t *testing.T) {
	cases := []struct {
		Name   string
		Given  string
		Expect string
	}{
		{Name: "torque", Given: "12345.bc.ccbr.utoronto.ca", Expect: "12345"},
		{Name: "plain", Given: "12345", Expect: "12345"},
		{Name: "array", Given: "12345[].server", Expect: "12345[]"},
		{Name: "spaces", Given: " 77.srv\n", Expect: "77"},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			assert.Equal(t, c.Expect, ShortID(c.Given))
		})
	}
}

func TestParseState(t *testing.T) {
	cases := []struct {
		Name    string
		Given   string
		Expect  State
		WantErr bool
	}{
		{Name: "name", Given: "queued", Expect: StateQueued},
		{Name: "case", Given: "Running", Expect: StateRunning},
		{Name: "letter", Given: "f", Expect: StateFailed},
		{Name: "aborted", Given: "ABORTED", Expect: StateAborted},
		{Name: "bad", Given: "zombie", Expect: StateUnknown, WantErr: true},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			got, err := ParseState(c.Given)
			assert.Equal(t, c.Expect, got)
			assert.Equal(t, c.WantErr, err != nil)
		})
	}
}

func TestStateFromExit(t *testing.T) {
	assert.Equal(t, StateCompleted, StateFromExit("-"))
	assert.Equal(t, StateCompleted, StateFromExit("0"))
	assert.Equal(t, StateFailed, StateFromExit("271"))
	assert.True(t, StateFailed.Final())
	assert.False(t, StateQueued.Final())
}

func TestNode_States(t *testing.T) {
	n := Node{Name: "dc01", States: []string{"job-exclusive", "offline"}}

	assert.True(t, n.Up())
	assert.True(t, n.HasStates([]string{"offline"}))
	assert.False(t, n.HasStates([]string{"offline", "down"}))
	assert.False(t, Node{States: []string{"down"}}.Up())
}
