package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/parkd/internal/feed"
	"github.com/steveyegge/parkd/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon and UI feed (foreground)",
	Long: `Run parkd in the foreground until interrupted.

The daemon:
  1. Watches network interfaces for connectivity changes
  2. Reconciles favorites and reservations on reconnect and sign-in
  3. Keeps the lot cache fresh
  4. Serves the local HTTP and WebSocket feed for UIs`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := openApp(ctx, true)
		defer a.Close()
		if addr != "" {
			a.Config.Feed.Addr = addr
		}

		err := a.Run(ctx, func(s *feed.Server) {
			fmt.Printf("%s parkd daemon started\n", ui.RenderAccent("🚀"))
			fmt.Printf("   Feed: http://%s\n", s.Addr())
			fmt.Printf("   WebSocket: ws://%s/ws\n", s.Addr())
			fmt.Printf("   Cache: %s\n", a.Config.Cache.Path)
			fmt.Printf("\nPress Ctrl+C to stop\n\n")
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	daemonCmd.Flags().String("addr", "", "feed listen address (default from config)")
	rootCmd.AddCommand(daemonCmd)
}
