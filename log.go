// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"log/slog"
	"sync/atomic"
)

var pkgLogger atomic.Pointer[slog.Logger]

// SetLogger sets the logger used for warnings and debug events. A nil
// logger restores [slog.Default].
func SetLogger(l *slog.Logger) { pkgLogger.Store(l) }

func logger() *slog.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	return slog.Default()
}
