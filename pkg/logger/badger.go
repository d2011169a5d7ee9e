package logger

import (
	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerAdapter routes Badger's internal logging through zap. Badger is
// chatty at INFO, so its info and debug output both land at zap's debug
// level; only warnings and errors surface at their own levels.
type BadgerAdapter struct {
	log *zap.SugaredLogger
}

// NewBadgerAdapter wraps a zap logger for use as a badger.Logger. A nil
// logger yields a silent adapter.
func NewBadgerAdapter(log *zap.Logger) *BadgerAdapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &BadgerAdapter{log: log.Named("badger").Sugar()}
}

func (a *BadgerAdapter) Errorf(format string, args ...interface{}) {
	a.log.Errorf(format, args...)
}

func (a *BadgerAdapter) Warningf(format string, args ...interface{}) {
	a.log.Warnf(format, args...)
}

func (a *BadgerAdapter) Infof(format string, args ...interface{}) {
	a.log.Debugf(format, args...)
}

func (a *BadgerAdapter) Debugf(format string, args ...interface{}) {
	a.log.Debugf(format, args...)
}

var _ badger.Logger = (*BadgerAdapter)(nil)
