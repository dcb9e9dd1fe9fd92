// Package guard keeps package tests away from a real ERP. Import it for side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("REPLENISH_TEST_MODE") == "" {
			_ = os.Setenv("REPLENISH_TEST_MODE", "1")
		}
		_ = os.Unsetenv("ERP_BASE_URL")
		_ = os.Unsetenv("ERP_TOKEN")
	})
}
