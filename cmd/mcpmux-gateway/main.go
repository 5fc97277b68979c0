// Command mcpmux-gateway runs the multi-tenant MCP gateway: one inbound
// streamable-HTTP endpoint, an embedded OAuth 2.1 authorization server,
// and a pool of outbound connections to installed MCP servers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcpmux/gateway/cmd/mcpmux-gateway/internal/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
