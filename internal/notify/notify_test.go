package notify

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifierLevels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	n := &LogNotifier{Logger: logger}

	tests := []struct {
		level Level
		want  logrus.Level
	}{
		{Success, logrus.InfoLevel},
		{Info, logrus.InfoLevel},
		{Warning, logrus.WarnLevel},
		{Error, logrus.ErrorLevel},
	}
	for _, tt := range tests {
		n.Notify(tt.level, "msg "+string(tt.level))
		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, tt.want, entry.Level)
		assert.Equal(t, string(tt.level), entry.Data["toast"])
		assert.Equal(t, "msg "+string(tt.level), entry.Message)
	}
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	assert.Equal(t, Toast{}, a.Last())

	Multi{a, b}.Notify(Warning, "careful")
	Multi{a, b}.Notify(Success, "done")

	for _, r := range []*Recorder{a, b} {
		assert.Len(t, r.Toasts(), 2)
		assert.Equal(t, Toast{Level: Success, Message: "done"}, r.Last())
	}
}
