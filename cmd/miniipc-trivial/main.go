// Command miniipc-trivial is a demo server/client pair exercising the
// "sum", "gettimeofday", and "strcat" procedures of the trivial example
// (examples/trivial-server.c, examples/trivial-client.c): enough to
// drive a channel end to end without wiring in a real application.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mini-ipc/diag"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "miniipc-trivial",
		Short: "Trivial mini-ipc server and client demo",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newCallCmd())
	return root
}

// newDiag builds a sink that stamps every line with a fresh correlation
// ID, so concurrently run demo processes don't interleave unreadably.
func newDiag() diag.Sink {
	id := uuid.NewString()[:8]
	return diag.NewSink(os.Stderr, fmt.Sprintf("[%s] ", id))
}
