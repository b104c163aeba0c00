package status_test

import (
	"bytes"
	"testing"

	"github.com/relabs-tech/sastoken/iot/status"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	s, err := status.New(status.KindConsole, &buf)
	require.NoError(t, err)

	s.SetStatus("connected")
	s.ShowTelemetry(`{"t":1}`)
	s.LogInfo("token renewed")
	s.LogError("renewal failed")
	assert.Equal(t, "[STATUS] connected\n[TELEMETRY] {\"t\":1}\n[INFO] token renewed\n[ERROR] renewal failed\n", buf.String())
}

func TestConsolePrefix(t *testing.T) {
	var buf bytes.Buffer
	status.NewConsole(&buf, "PANEL").SetStatus("ok")
	assert.Equal(t, "[PANEL STATUS] ok\n", buf.String())
}

func TestLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	s := status.NewLogger(logrus.NewEntry(log))

	s.SetStatus("connected")
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "connected", hook.LastEntry().Data["status"])

	s.LogError("boom")
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "boom", hook.LastEntry().Message)
}

func TestUnknownKind(t *testing.T) {
	_, err := status.New("lcd", nil)
	assert.Error(t, err)
}
