package log

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter() (*BadgerLogrusAdapter, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)
	return NewBadgerLogrusAdapter(logrus.NewEntry(logger)), hook
}

func TestBadgerLogrusAdapter_Levels(t *testing.T) {
	adapter, hook := newTestAdapter()

	adapter.Errorf("error %s\n", "test")
	adapter.Warningf("warning %d\n", 42)
	adapter.Infof("info %v\n", true)
	adapter.Debugf("debug\n")

	entries := hook.AllEntries()
	require.Len(t, entries, 4)
	assert.Equal(t, logrus.ErrorLevel, entries[0].Level)
	assert.Equal(t, "error test", entries[0].Message)
	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Equal(t, "warning 42", entries[1].Message)
	assert.Equal(t, logrus.DebugLevel, entries[2].Level, "badger info is demoted")
	assert.Equal(t, "info true", entries[2].Message)
	assert.Equal(t, logrus.TraceLevel, entries[3].Level)
	assert.Equal(t, "debug", entries[3].Message)
}

func TestBadgerLogrusAdapter_KeepsEntryFields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	adapter := NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))

	adapter.Errorf("boom")

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "badgerdb", hook.LastEntry().Data["component"])
}
