// Package guard pins the test-mode flag before any package init that
// consults it. Test binaries blank-import it so a stray environment never
// lets a test spin up the real runtime.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("MERIDIAN_TEST_MODE") == "" {
			_ = os.Setenv("MERIDIAN_TEST_MODE", "1")
		}
	})
}
