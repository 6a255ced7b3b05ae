// Command lvfit runs curve-fitting scripts.
//
//	lvfit run peaks.lvf --dump state.lvf
//	lvfit eval --script peaks.lvf '%p.center'
//	lvfit methods
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "lvfit:", err)
		stop()
		os.Exit(1)
	}
}
