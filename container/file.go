package container

import (
	"os"
	"time"

	"github.com/kjk/losds/log"
)

// openFileRetry opens a file, waiting and retrying if another process
// has it open in a conflicting way. This is not locking: it only helps
// when another process briefly holds the file.
func openFileRetry(path string, flag int, retries int, delay time.Duration) (*os.File, error) {
	for i := 0; ; i++ {
		f, err := os.OpenFile(path, flag, 0644)
		if err == nil || i >= retries || !isSharingViolation(err) {
			return f, err
		}
		log.Verbosef("container: '%s' is in use, retrying in %s (%d of %d)\n", path, delay, i+1, retries)
		time.Sleep(delay)
	}
}
