package telemetry

import (
	"runtime"
	"sync/atomic"
	"time"

	gosentry "github.com/getsentry/sentry-go"
)

// enabled tracks whether sentry was successfully initialized.
var enabled atomic.Bool

// Init initializes the Sentry SDK. An empty dsn leaves every function in this
// package a no-op.
func Init(dsn, release string) error {
	if dsn == "" {
		enabled.Store(false)
		return nil
	}

	err := gosentry.Init(gosentry.ClientOptions{
		Dsn:              dsn,
		Release:          "smartlight@" + release,
		AttachStacktrace: true,
		SampleRate:       1.0,
	})
	if err != nil {
		return err
	}

	gosentry.ConfigureScope(func(scope *gosentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("go_version", runtime.Version())
	})

	enabled.Store(true)
	return nil
}

func IsEnabled() bool {
	return enabled.Load()
}

// CaptureError reports err with tags describing where it happened.
func CaptureError(err error, tags map[string]string) {
	if err == nil || !enabled.Load() {
		return
	}
	gosentry.WithScope(func(scope *gosentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		gosentry.CaptureException(err)
	})
}

// Flush waits up to 2 seconds for buffered events to be sent.
func Flush() {
	if !enabled.Load() {
		return
	}
	gosentry.Flush(2 * time.Second)
}

// RecoverPanic captures a panic to Sentry, flushes, then re-panics.
// Usage: defer telemetry.RecoverPanic()
func RecoverPanic() {
	if !enabled.Load() {
		return
	}
	if err := recover(); err != nil {
		gosentry.CurrentHub().Recover(err)
		gosentry.Flush(2 * time.Second)
		panic(err)
	}
}
