// Package goroutine runs background work so that a panic is logged instead of
// taking the process down.
package goroutine

import (
	"fmt"
	"runtime/debug"

	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// SafeGo runs fn on a new goroutine under Protect.
func SafeGo(log logger.Interface, name string, fn func()) {
	go func() {
		_ = Protect(log, name, func() error {
			fn()
			return nil
		})
	}()
}

// Protect runs fn on the calling goroutine. A panic is logged with its stack
// and returned as an error.
func Protect(log logger.Interface, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("goroutine panicked",
				"goroutine", name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	return fn()
}
