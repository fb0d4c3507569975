package notifier

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier_WritesNotification(t *testing.T) {
	logger, hook := test.NewNullLogger()

	n := NewLogNotifier(logger, 100)
	n.Notify(context.Background(), "security", "rule fired")

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "rule fired", entry.Message)
	assert.Equal(t, "security", entry.Data["channel"])
}

func TestLogNotifier_ThrottlesFloods(t *testing.T) {
	logger, hook := test.NewNullLogger()

	n := NewLogNotifier(logger, 1)
	for i := 0; i < 50; i++ {
		n.Notify(context.Background(), "security", "rule fired")
	}

	warns := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warns++
		}
	}
	assert.Less(t, warns, 50)
	assert.GreaterOrEqual(t, warns, 1)
}
