package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The package must be usable before Init runs, since library code and
// tests log without going through the server boot sequence.
func TestLogSafeBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Info("plain message")
		Infof("formatted %d", 1)
		Infow("structured", "key", "value")
		Warnf("warning %s", "text")
		Error("failure", assert.AnError)
		Errorf("failure %v", assert.AnError)
		Sync()
	})
}

func TestInitReplacesDefaultLogger(t *testing.T) {
	before := sugar
	Init("debug", "console", "")
	assert.NotSame(t, before, sugar)
	assert.NotPanics(t, func() { Infof("post-init %s", "message") })
}
