package pool

import (
	"time"

	"github.com/kcenon/dbcore/driver"
)

// ConnectionWrapper owns exactly one driver instance. It is exclusively held
// by the Pool while idle and lent out (with a return obligation via Release)
// while in use; only the pool's maintenance loop or the current borrower may
// touch its fields, never both at once.
type ConnectionWrapper struct {
	Driver   driver.Driver
	Healthy  bool
	LastUsed time.Time
}
