//go:build unix

package supervisor

import (
	"os"
	"syscall"
)

func syscallTerm() os.Signal { return syscall.SIGTERM }
