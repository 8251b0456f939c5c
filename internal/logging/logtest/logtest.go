// Package logtest builds loggers for tests.
package logtest

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/mgpai22/chitra/internal/logging"
)

// New routes output through t.Log.
func New(t testing.TB) *logging.Logger {
	return &logging.Logger{SugaredLogger: zaptest.NewLogger(t).Sugar()}
}
