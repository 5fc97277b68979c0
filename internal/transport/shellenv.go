package transport

import (
	"os"
	"os/exec"
	"strings"
	"sync"
)

var (
	shellPathOnce sync.Once
	shellPath     string
	shellPathOK   bool
)

// shellResolvedPath runs the user's login shell to print its resolved
// PATH, so stdio servers spawned from a GUI-launched gateway process see
// the same PATH the user's terminal would. The shell runs once per
// process; later calls return the cached result. Returns ok=false on any
// failure, in which case the caller falls back to the inherited PATH.
func shellResolvedPath() (string, bool) {
	shellPathOnce.Do(func() {
		shell := os.Getenv("SHELL")
		if shell == "" {
			return
		}
		out, err := exec.Command(shell, "-l", "-i", "-c", "echo -n $PATH").Output()
		if err != nil {
			return
		}
		shellPath = strings.TrimSpace(string(out))
		shellPathOK = shellPath != ""
	})
	return shellPath, shellPathOK
}
