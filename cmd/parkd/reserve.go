package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/reconcile"
	"github.com/steveyegge/parkd/internal/schema"
	"github.com/steveyegge/parkd/internal/ui"
)

var reserveCmd = &cobra.Command{
	Use:     "reserve",
	GroupID: "browse",
	Short:   "Reserve parking spots",
	Long: `Create, finish and list spot reservations.

Reservations are stored locally first. When online the full list is pushed
to the backend; during a sync the backend copy wins for every id it knows.`,
}

var reserveCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Reserve a spot",
	Long: `Reserve a spot for a duration.

--start accepts RFC 3339 timestamps or natural language such as
"tomorrow at 9am" or "in 2 hours". It defaults to now.

Examples:
  parkd reserve create --spot A-101 --duration 2h
  parkd reserve create --spot C-302 --start "tomorrow 8:30am" --duration 90m`,
	Run: func(cmd *cobra.Command, args []string) {
		spotID, _ := cmd.Flags().GetString("spot")
		startText, _ := cmd.Flags().GetString("start")
		duration, _ := cmd.Flags().GetDuration("duration")

		start, err := parseStart(startText, time.Now())
		if err != nil {
			fatalf("Error: %v", err)
		}

		ctx := context.Background()
		a := openApp(ctx, false)
		defer a.Close()
		userID := requireUser(a)

		r, err := a.Reconciler.CreateReservation(ctx, userID, spotID, start, duration)
		if err != nil {
			if errs.Is(err, errs.ErrSpotTaken) {
				fatalf("Error: spot %s already has an active reservation", spotID)
			}
			fatalf("Error: %s", errs.UserMessage(err))
		}
		emit(r, func() {
			fmt.Printf("%s Reserved %s\n", ui.RenderPass("✓"), r.SpotID)
			printReservation(r)
		})
	},
}

var reserveCancelCmd = &cobra.Command{
	Use:   "cancel <reservation-id>",
	Short: "Cancel an active reservation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		finishReservation(args[0], "Cancelled", reconcile.Reconciler.CancelReservation)
	},
}

var reserveCompleteCmd = &cobra.Command{
	Use:   "complete <reservation-id>",
	Short: "Complete an active reservation now",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		finishReservation(args[0], "Completed", reconcile.Reconciler.CompleteReservation)
	},
}

type finishFunc func(r reconcile.Reconciler, ctx context.Context, userID, id string) (*schema.Reservation, error)

func finishReservation(id, verb string, fn finishFunc) {
	ctx := context.Background()
	a := openApp(ctx, false)
	defer a.Close()
	userID := requireUser(a)

	r, err := fn(a.Reconciler, ctx, userID, id)
	if err != nil {
		fatalf("Error: %s", errs.UserMessage(err))
	}
	emit(r, func() {
		fmt.Printf("%s %s reservation %s\n", ui.RenderPass("✓"), verb, r.ID)
		printReservation(r)
	})
}

var reserveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reservations",
	Run: func(cmd *cobra.Command, args []string) {
		activeOnly, _ := cmd.Flags().GetBool("active")

		ctx := context.Background()
		a := openApp(ctx, false)
		defer a.Close()
		userID := requireUser(a)

		rs, err := a.Store.ListReservationsContext(ctx, userID)
		if err != nil {
			fatalf("Error: %s", errs.UserMessage(err))
		}
		if activeOnly {
			kept := rs[:0]
			for _, r := range rs {
				if r.IsActive() {
					kept = append(kept, r)
				}
			}
			rs = kept
		}
		if rs == nil {
			rs = []*schema.Reservation{}
		}

		emit(map[string]interface{}{"reservations": rs}, func() {
			if len(rs) == 0 {
				fmt.Println("No reservations.")
				return
			}
			rows := make([][]string, 0, len(rs))
			for _, r := range rs {
				rows = append(rows, []string{
					r.ID[:min(8, len(r.ID))],
					r.SpotID,
					r.StartTime.Local().Format("2006-01-02 15:04"),
					endText(r),
					statusText(r.Status),
					cost(r.TotalCost),
				})
			}
			fmt.Println(ui.Table([]string{"ID", "SPOT", "START", "END", "STATUS", "COST"}, rows))
		})
	},
}

var reserveSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge reservations with the backend",
	Long: `Fetch reservations from the backend and merge them into the cache. The
backend copy wins for every id it knows; local-only reservations are kept.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx, false)
		defer a.Close()
		userID := requireUser(a)
		requireOnline(a, "sync reservations")

		if err := a.Reconciler.SyncReservations(ctx, userID); err != nil {
			fatalf("Error: %s", errs.UserMessage(err))
		}
		rs, _ := a.Store.ListReservationsContext(ctx, userID)
		emit(map[string]interface{}{"reservations": len(rs)}, func() {
			fmt.Printf("%s Reservations synced (%d)\n", ui.RenderPass("✓"), len(rs))
		})
	},
}

// parseStart reads a reservation start time. Empty means now.
func parseStart(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "now") {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse start time %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot parse start time %q", text)
	}
	return r.Time, nil
}

func printReservation(r *schema.Reservation) {
	fmt.Printf("   ID: %s\n", r.ID)
	fmt.Printf("   Spot: %s\n", r.SpotID)
	fmt.Printf("   Start: %s (%s)\n", r.StartTime.Local().Format("Mon Jan 2 15:04"), humanize.Time(r.StartTime))
	fmt.Printf("   End: %s\n", endText(r))
	fmt.Printf("   Status: %s\n", statusText(r.Status))
	fmt.Printf("   Cost: %s (%s)\n", cost(r.TotalCost), r.PaymentStatus)
}

func endText(r *schema.Reservation) string {
	if r.EndTime == nil {
		return "-"
	}
	return r.EndTime.Local().Format("2006-01-02 15:04")
}

func statusText(s schema.ReservationStatus) string {
	switch s {
	case schema.StatusActive:
		return ui.RenderPass(string(s))
	case schema.StatusCancelled:
		return ui.RenderMuted(string(s))
	default:
		return string(s)
	}
}

func cost(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 2)
}

func init() {
	reserveCreateCmd.Flags().String("spot", "", "spot id, e.g. A-101")
	reserveCreateCmd.Flags().String("start", "", "start time (RFC 3339 or natural language)")
	reserveCreateCmd.Flags().Duration("duration", time.Hour, "reservation length")
	_ = reserveCreateCmd.MarkFlagRequired("spot")

	reserveListCmd.Flags().Bool("active", false, "only active reservations")

	reserveCmd.AddCommand(reserveCreateCmd)
	reserveCmd.AddCommand(reserveCancelCmd)
	reserveCmd.AddCommand(reserveCompleteCmd)
	reserveCmd.AddCommand(reserveListCmd)
	reserveCmd.AddCommand(reserveSyncCmd)
	rootCmd.AddCommand(reserveCmd)
}
