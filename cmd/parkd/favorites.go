package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/parkd/internal/app"
	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/ui"
)

var favCmd = &cobra.Command{
	Use:     "fav",
	GroupID: "browse",
	Short:   "Manage favorite car parks",
	Long: `Manage favorite car parks.

Toggles are written to the local cache first and pushed to the backend when
online. A failed push reverts the toggle unless it was toggled again since.`,
}

var favToggleCmd = &cobra.Command{
	Use:   "toggle <lot-id>",
	Short: "Add or remove a favorite",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx, false)
		defer a.Close()
		userID := requireUser(a)

		on, err := a.Reconciler.ToggleFavorite(ctx, userID, args[0])
		if err != nil {
			fatalf("Error: %s", errs.UserMessage(err))
		}
		out := map[string]interface{}{"lot_id": args[0], "favorite": on, "synced": a.Network.Current().Connected}
		emit(out, func() {
			state := "removed from"
			if on {
				state = "added to"
			}
			fmt.Printf("%s Car park %s %s favorites\n", ui.RenderPass("✓"), args[0], state)
			if !a.Network.Current().Connected {
				fmt.Println(ui.RenderMuted("   offline: will sync when the network returns"))
			}
		})
	},
}

var favListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorite car parks",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx, false)
		defer a.Close()
		userID := requireUser(a)

		ids, err := a.Store.ListFavoritesContext(ctx, userID)
		if err != nil {
			fatalf("Error: %s", errs.UserMessage(err))
		}
		if ids == nil {
			ids = []string{}
		}
		emit(map[string]interface{}{"favorites": ids}, func() {
			if len(ids) == 0 {
				fmt.Println("No favorites yet. Add one with 'parkd fav toggle <lot-id>'.")
				return
			}
			names := lotNames(ctx, a)
			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, []string{id, names[id]})
			}
			fmt.Println(ui.Table([]string{"ID", "NAME"}, rows))
		})
	},
}

var favSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge favorites with the backend",
	Long: `Fetch favorites from the backend, add any missing locally, and push the
union back. Nothing is ever removed by a sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx, false)
		defer a.Close()
		userID := requireUser(a)
		requireOnline(a, "sync favorites")

		if err := a.Reconciler.SyncFavorites(ctx, userID); err != nil {
			fatalf("Error: %s", errs.UserMessage(err))
		}
		ids, _ := a.Store.ListFavoritesContext(ctx, userID)
		emit(map[string]interface{}{"favorites": len(ids)}, func() {
			fmt.Printf("%s Favorites synced (%d)\n", ui.RenderPass("✓"), len(ids))
		})
	},
}

// requireUser returns the signed-in user id or exits.
func requireUser(a *app.App) string {
	userID, err := a.Sessions.RequireUserID()
	if err != nil {
		fatalf("Error: not logged in. Run 'parkd login' first.")
	}
	return userID
}

func requireOnline(a *app.App, action string) {
	if !a.Network.Current().Connected {
		fatalf("Error: cannot %s while offline", action)
	}
}

// lotNames maps cached lot ids to names for display.
func lotNames(ctx context.Context, a *app.App) map[string]string {
	names := make(map[string]string)
	lots, err := a.Store.LoadLotsContext(ctx)
	if err != nil {
		return names
	}
	for _, l := range lots {
		names[l.ID] = l.Name
	}
	return names
}

func init() {
	favCmd.AddCommand(favToggleCmd)
	favCmd.AddCommand(favListCmd)
	favCmd.AddCommand(favSyncCmd)
	rootCmd.AddCommand(favCmd)
}
