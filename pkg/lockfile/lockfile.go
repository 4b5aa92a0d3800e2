// Package lockfile implements the cooperative dotlock protocol used by mbox
// tools: an exclusive <path>.lock file holding the owner's PID.  Held locks
// are tracked process-wide so a fatal signal handler can release them all.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/inbucket/mfck/pkg/diag"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const suffix = ".lock"

// ErrTimeout is reported when the lock could not be acquired before the
// deadline.
var ErrTimeout = fmt.Errorf("lock timeout: %w", diag.ErrResource)

var held struct {
	sync.Mutex
	paths []string
}

// Lock acquires <source>.lock, spinning once a second until timeout.  A lock
// owned by a dead process is broken and retried.  Dry runs never lock.
func Lock(source string, timeout time.Duration, con *diag.Console, dryRun bool) error {
	if dryRun {
		return nil
	}
	lockPath := source + suffix
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0444)
		if err == nil {
			if _, err := fmt.Fprintf(f, "%d", os.Getpid()); err != nil {
				_ = f.Close()
				return fmt.Errorf("writing %s: %v: %w", lockPath, err, diag.ErrResource)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing %s: %v: %w", lockPath, err, diag.ErrResource)
			}
			remember(source)
			log.Debug().Str("module", "lockfile").Str("path", lockPath).Msg("Acquired lock")
			return nil
		}
		if time.Now().After(deadline) {
			if errors.Is(err, os.ErrExist) {
				return fmt.Errorf("could not lock %s: %w", source, ErrTimeout)
			}
			return fmt.Errorf("could not lock %s: %v: %w", source, err, diag.ErrResource)
		}
		if errors.Is(err, os.ErrExist) {
			if pid := readPID(lockPath); pid > 0 && processGone(pid) {
				con.Notef("Removing lock %s from defunct process %d", lockPath, pid)
				if err := os.Remove(lockPath); err != nil {
					return fmt.Errorf("removing stale %s: %v: %w",
						lockPath, err, diag.ErrResource)
				}
				continue
			}
		}
		time.Sleep(time.Second)
	}
}

// Unlock releases <source>.lock, but only if it still holds our PID.
func Unlock(source string, con *diag.Console, dryRun bool) {
	if dryRun {
		return
	}
	lockPath := source + suffix
	pid := readPID(lockPath)
	switch {
	case pid < 0:
		con.Warnf("Could not read lock file %s", lockPath)
		return
	case pid == 0:
		con.Warnf("Someone stole lock file %s", lockPath)
		return
	case pid != os.Getpid():
		con.Warnf("Someone with pid %d stole lock file %s", pid, lockPath)
		return
	}
	if err := os.Remove(lockPath); err != nil {
		con.Errorf("Could not remove lock file %s: %v", lockPath, err)
		return
	}
	forget(source)
}

// UnlockAll releases every lock this process holds, newest first.  Called
// from the fatal signal path and on exit.
func UnlockAll(con *diag.Console) {
	held.Lock()
	paths := append([]string(nil), held.paths...)
	held.Unlock()
	for i := len(paths) - 1; i >= 0; i-- {
		Unlock(paths[i], con, false)
	}
}

func remember(source string) {
	held.Lock()
	defer held.Unlock()
	held.paths = append(held.paths, source)
}

func forget(source string) {
	held.Lock()
	defer held.Unlock()
	for i, p := range held.paths {
		if p == source {
			held.paths = append(held.paths[:i], held.paths[i+1:]...)
			break
		}
	}
}

// readPID returns the decimal PID inside the lock file, 0 when the contents
// are not a PID, or -1 when the file is unreadable.
func readPID(lockPath string) int {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return -1
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// processGone probes pid with a null signal.
func processGone(pid int) bool {
	err := unix.Kill(pid, 0)
	return errors.Is(err, unix.ESRCH)
}
