//go:build !unix

package supervisor

import "os"

func syscallTerm() os.Signal { return os.Kill }
