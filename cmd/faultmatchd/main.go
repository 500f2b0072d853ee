// Command faultmatchd is a thin CLI front end for the fault-case
// retrieval core. The HTTP surface described alongside it is reference
// only; this binary exercises the same pipeline directly for local use,
// offline evaluation, and building the persisted keyword/semantic
// indexes.
package main

import (
	"fmt"
	"os"

	"github.com/faultmatch/core/cmd/faultmatchd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
