// Package logger holds the module-wide logger used by the trait store and
// the outbound driver. It defaults to a production zap configuration and
// can be replaced by the embedding application to route avatar logging into
// its own sink.
package logger

import "go.uber.org/zap"

// Log is the module-wide sugared logger. Replace it via SetLogger before
// starting any driver.
var Log *zap.SugaredLogger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	Log = l.Sugar()
}

// SetLogger replaces the module-wide logger. Passing nil installs a no-op
// logger.
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		Log = zap.NewNop().Sugar()
		return
	}
	Log = l
}
