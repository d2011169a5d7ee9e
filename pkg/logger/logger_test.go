package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithWritersCapturesOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriters(false, &buf)

	log.Info("engine ready", zap.Int("clusters", 3))
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.Contains(t, out, "engine ready")
	assert.Contains(t, out, "clusters")
}

func TestDebugLevelGating(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriters(false, &buf)
	log.Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	var dbuf bytes.Buffer
	dlog := NewWithWriters(true, &dbuf)
	dlog.Debug("visible")
	assert.Contains(t, dbuf.String(), "visible")
}

func TestMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	log := NewWithWriters(false, &a, &b)
	log.Warn("fan out")

	assert.Contains(t, a.String(), "fan out")
	assert.Contains(t, b.String(), "fan out")
}

func TestNopIsSilent(t *testing.T) {
	log := Nop()
	// Must not panic or emit; Nop loggers have no sink to inspect.
	log.Error("nothing happens")
}

func TestBadgerAdapterLevels(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewBadgerAdapter(NewWithWriters(true, &buf))

	adapter.Errorf("compaction failed: %s", "disk full")
	adapter.Warningf("value log %d behind", 2)
	adapter.Infof("table loaded")
	adapter.Debugf("iterator stats")

	out := buf.String()
	assert.Contains(t, out, "compaction failed: disk full")
	assert.Contains(t, out, "value log 2 behind")
	assert.Contains(t, out, "table loaded")
	assert.Contains(t, out, "iterator stats")
}

func TestBadgerAdapterDemotesInfo(t *testing.T) {
	var buf bytes.Buffer
	// Info-level logger: badger's info chatter must be invisible.
	adapter := NewBadgerAdapter(NewWithWriters(false, &buf))

	adapter.Infof("chatty table report")
	assert.NotContains(t, buf.String(), "chatty table report")

	adapter.Warningf("still visible")
	assert.Contains(t, buf.String(), "still visible")
}

func TestBadgerAdapterNilLogger(t *testing.T) {
	adapter := NewBadgerAdapter(nil)
	adapter.Errorf("must not panic")
}
