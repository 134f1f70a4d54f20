package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Reconcile favorites and reservations with the backend",
	Long: `Reconcile the signed-in user's data with the backend:

  1. Favorites: the union of local and remote is kept and pushed back
  2. Reservations: remote wins per id, local-only reservations are kept

Both steps run even if one fails.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx, false)
		defer a.Close()
		userID := requireUser(a)
		requireOnline(a, "sync")

		favErr := a.Reconciler.SyncFavorites(ctx, userID)
		resErr := a.Reconciler.SyncReservations(ctx, userID)

		out := map[string]interface{}{
			"favorites_synced":    favErr == nil,
			"reservations_synced": resErr == nil,
		}
		emit(out, func() {
			report("Favorites", favErr)
			report("Reservations", resErr)
		})
		if favErr != nil || resErr != nil {
			os.Exit(1)
		}
	},
}

func report(what string, err error) {
	if err != nil {
		fmt.Printf("%s %s: %s\n", ui.RenderFail("✗"), what, errs.UserMessage(err))
		return
	}
	fmt.Printf("%s %s synced\n", ui.RenderPass("✓"), what)
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show connectivity, cache and session status",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx, false)
		defer a.Close()

		st, err := a.Status(ctx)
		if err != nil {
			fatalf("Error: %s", errs.UserMessage(err))
		}

		emit(st, func() {
			fmt.Printf("\n%s parkd status\n\n", ui.RenderAccent("📊"))

			if st.Network.Connected {
				fmt.Printf("Network: %s (%s", ui.RenderPass("online"), st.Network.Transport)
				if st.Network.Interface != "" {
					fmt.Printf(" via %s", st.Network.Interface)
				}
				fmt.Println(")")
			} else {
				fmt.Printf("Network: %s\n", ui.RenderWarn("offline"))
			}

			if st.Degraded {
				fmt.Printf("Cache: %s\n", ui.RenderFail("unavailable"))
			} else {
				size := "-"
				if info, err := os.Stat(st.CachePath); err == nil {
					size = humanize.Bytes(uint64(info.Size()))
				}
				fmt.Printf("Cache: %s (%s)\n", st.CachePath, size)
				fmt.Printf("Lots: %d\n", st.Lots)
				if st.CachedAt != nil {
					fresh := ui.RenderPass("fresh")
					if st.Stale {
						fresh = ui.RenderWarn("stale")
					}
					fmt.Printf("Refreshed: %s (%s)\n", humanize.Time(*st.CachedAt), fresh)
				}
				fmt.Printf("Favorites: %d\n", st.Favorites)
				fmt.Printf("Reservations: %d\n", st.Reservations)
			}

			if st.UserID != "" {
				fmt.Printf("Signed in: %s\n", st.UserID)
			} else {
				fmt.Printf("Signed in: %s\n", ui.RenderMuted("no"))
			}
			fmt.Println()
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
