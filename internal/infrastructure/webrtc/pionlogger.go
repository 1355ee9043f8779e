package webrtc

import (
	"github.com/pion/logging"
	"go.uber.org/zap"
)

// PionLog routes pion's internal logging into zap. pion's trace level maps
// to debug.
type PionLog struct {
	log *zap.SugaredLogger
}

func NewPionLogger(root *zap.SugaredLogger) *PionLog {
	return &PionLog{log: root.Named("pion")}
}

func (p PionLog) NewLogger(scope string) logging.LeveledLogger {
	return PionLog{log: p.log.With("mod", scope)}
}

func (p PionLog) Trace(msg string)                  { p.log.Debug(msg) }
func (p PionLog) Tracef(format string, args ...any) { p.log.Debugf(format, args...) }
func (p PionLog) Debug(msg string)                  { p.log.Debug(msg) }
func (p PionLog) Debugf(format string, args ...any) { p.log.Debugf(format, args...) }
func (p PionLog) Info(msg string)                   { p.log.Info(msg) }
func (p PionLog) Infof(format string, args ...any)  { p.log.Infof(format, args...) }
func (p PionLog) Warn(msg string)                   { p.log.Warn(msg) }
func (p PionLog) Warnf(format string, args ...any)  { p.log.Warnf(format, args...) }
func (p PionLog) Error(msg string)                  { p.log.Error(msg) }
func (p PionLog) Errorf(format string, args ...any) { p.log.Errorf(format, args...) }

var _ logging.LoggerFactory = (*PionLog)(nil)
