package ui

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer

	err := Table(&buf, []string{"Job ID", "Name", "Command"}, [][]string{
		{"101", "echo", "echo hi"},
		{"12", "awk", "awk -F '\t' x"},
		{"7"},
	})
	require.NoError(t, err)

	expected := "" +
		"Job ID  Name  Command\n" +
		"101     echo  echo hi\n" +
		"12      awk   awk -F ' ' x\n" +
		"7             \n"

	assert.Equal(t, expected, buf.String())
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		given  string
		length int
		expect string
	}{
		{name: "short", given: "echo", length: 20, expect: "echo"},
		{name: "exact", given: "abcde", length: 5, expect: "abcde"},
		{name: "long", given: "a_very_long_job_name_indeed", length: 10, expect: "a_very_..."},
		{name: "unicode", given: "ααααααα", length: 5, expect: "αα..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Truncate(tt.given, tt.length))
		})
	}
}

func TestLogo(t *testing.T) {
	assert.NotEmpty(t, Logo("batchq", false))
}

func TestSetLogLevel(t *testing.T) {
	previous := logrus.GetLevel()
	defer logrus.SetLevel(previous)

	logger, err := SetLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.True(t, logger.V(1).Enabled())

	_, err = SetLogLevel("chatty")
	assert.Error(t, err)
}

func TestZapLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ZapLevel(logrus.TraceLevel))
	assert.Equal(t, zapcore.WarnLevel, ZapLevel(logrus.WarnLevel))
	assert.Equal(t, zapcore.ErrorLevel, ZapLevel(logrus.FatalLevel))
}
