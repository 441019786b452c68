// Package testing forces test mode for packages that import it for side
// effects: no scheduler, no outbound HTTP, no real mail.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("SOLKANT_TEST_MODE", "1")
		if os.Getenv("GOTENBERG_URL") == "" {
			_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
		}
		_ = os.Setenv("MAIL_PROVIDER", "log")
		_ = os.Unsetenv("STRIPE_SECRET_KEY")
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
