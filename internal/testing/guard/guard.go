package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("BOXFLOW_TEST_MODE") == "" {
			_ = os.Setenv("BOXFLOW_TEST_MODE", "1")
		}
	})
}
