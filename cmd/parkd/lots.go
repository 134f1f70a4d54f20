package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/geocode"
	"github.com/steveyegge/parkd/internal/orchestrator"
	"github.com/steveyegge/parkd/internal/query"
	"github.com/steveyegge/parkd/internal/schema"
	"github.com/steveyegge/parkd/internal/ui"
)

var lotsCmd = &cobra.Command{
	Use:     "lots",
	GroupID: "browse",
	Short:   "List car parks",
	Long: `List car parks from the local cache, refreshing it when it is older
than the configured expiry and the network is available.

Search matches names and addresses. When nothing matches, the text is
geocoded and every car park is ranked by distance from the first place
found.

Examples:
  parkd lots --available --sort vacancy
  parkd lots --search "Central" --ev
  parkd lots --near 22.2819,114.1581 --sort distance`,
	Run: func(cmd *cobra.Command, args []string) {
		search, _ := cmd.Flags().GetString("search")
		sortFlag, _ := cmd.Flags().GetString("sort")
		near, _ := cmd.Flags().GetString("near")
		refresh, _ := cmd.Flags().GetBool("refresh")
		limit, _ := cmd.Flags().GetInt("limit")

		sortKey, err := query.ParseSortKey(sortFlag)
		if err != nil {
			fatalf("Error: %v", err)
		}
		params := query.Params{Sort: sortKey}
		params.Filters.EV, _ = cmd.Flags().GetBool("ev")
		params.Filters.Covered, _ = cmd.Flags().GetBool("covered")
		params.Filters.CCTV, _ = cmd.Flags().GetBool("cctv")
		params.Filters.Available, _ = cmd.Flags().GetBool("available")
		params.Filters.Favorites, _ = cmd.Flags().GetBool("favorites")
		if near != "" {
			loc, err := geocode.ParseCoordinate(near)
			if err != nil {
				fatalf("Error: %v", err)
			}
			params.Location = &loc
		}

		ctx := context.Background()
		a := openApp(ctx, false)
		defer a.Close()

		load := a.Lots.LoadLots
		if refresh {
			load = a.Lots.Refresh
		}
		res, err := load(ctx)
		if err != nil {
			fatalf("Error: %s", errs.UserMessage(err))
		}

		if params.Filters.Favorites {
			userID, err := a.Sessions.RequireUserID()
			if err != nil {
				fatalf("Error: %s", errs.UserMessage(err))
			}
			ids, err := a.Store.ListFavoritesContext(ctx, userID)
			if err != nil {
				fatalf("Error: %s", errs.UserMessage(err))
			}
			params.FavoriteIDs = query.FavoriteSet(ids)
		}

		var warnings []string
		if res.RefreshErr != nil {
			warnings = append(warnings, "refresh failed, showing cached data: "+errs.UserMessage(res.RefreshErr))
		}
		var suggestions []geocode.Candidate
		if search = strings.TrimSpace(search); search != "" {
			if err := a.Searcher.Update(ctx, search, res.Lots); err != nil {
				warnings = append(warnings, "place search failed: "+errs.UserMessage(err))
			}
			suggestions = a.Searcher.Suggestions()
		}
		lots := a.Searcher.Apply(res.Lots, params)
		if limit > 0 && len(lots) > limit {
			lots = lots[:limit]
		}

		reference := a.Searcher.Resolved()
		if reference == nil {
			reference = params.Location
		}

		out := lotsOutput{
			Lots:        lots,
			Reference:   reference,
			Source:      res.Source,
			Offline:     res.Offline,
			CachedAt:    res.CachedAt,
			Warnings:    warnings,
			Suggestions: suggestions,
		}
		emit(out, func() { printLots(out) })
	},
}

type lotsOutput struct {
	Lots        []*schema.Lot       `json:"lots"`
	Source      orchestrator.Source `json:"source"`
	Offline     bool                `json:"offline"`
	CachedAt    *time.Time          `json:"cached_at,omitempty"`
	Reference   *geocode.Coordinate `json:"reference,omitempty"`
	Warnings    []string            `json:"warnings,omitempty"`
	Suggestions []geocode.Candidate `json:"suggestions,omitempty"`
}

func printLots(out lotsOutput) {
	for _, w := range out.Warnings {
		fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), w)
	}
	if len(out.Suggestions) > 0 {
		fmt.Printf("%s Near %s\n", ui.RenderAccent("📍"), out.Suggestions[0].Title)
	}
	if len(out.Lots) == 0 {
		fmt.Println("No car parks match.")
		return
	}

	reference := out.Reference
	headers := []string{"ID", "NAME", "AVAILABLE", "PRICE", "FEATURES"}
	if reference != nil {
		headers = append(headers, "DISTANCE")
	}
	rows := make([][]string, 0, len(out.Lots))
	for _, lot := range out.Lots {
		row := []string{lot.ID, lot.Name, availability(lot), price(lot), features(lot)}
		if reference != nil {
			d := geocode.Distance(*reference, geocode.Coordinate{Latitude: lot.Latitude, Longitude: lot.Longitude})
			row = append(row, humanize.SIWithDigits(d, 1, "m"))
		}
		rows = append(rows, row)
	}
	fmt.Println(ui.Table(headers, rows))

	fmt.Println()
	fmt.Println(ui.RenderMuted(footer(out)))
}

func availability(lot *schema.Lot) string {
	text := lot.AvailabilityText()
	switch {
	case lot.AvailableSpaces == nil:
		return ui.RenderMuted(text)
	case lot.HasAvailableSpaces():
		return ui.RenderPass(text)
	default:
		return ui.RenderFail(text)
	}
}

func price(lot *schema.Lot) string {
	if lot.HourlyPrice == nil {
		return "-"
	}
	return "$" + humanize.FormatFloat("#,###.##", *lot.HourlyPrice) + "/h"
}

func features(lot *schema.Lot) string {
	var f []string
	if lot.HasEV() {
		f = append(f, fmt.Sprintf("EV×%d", lot.EVCount()))
	}
	if lot.IsCovered() {
		f = append(f, "covered")
	}
	if lot.HasCCTV() {
		f = append(f, "cctv")
	}
	return strings.Join(f, ", ")
}

func footer(out lotsOutput) string {
	parts := []string{fmt.Sprintf("%d car parks from %s", len(out.Lots), out.Source)}
	if out.CachedAt != nil {
		parts = append(parts, "cached "+humanize.Time(*out.CachedAt))
	}
	if out.Offline {
		parts = append(parts, "offline")
	}
	return strings.Join(parts, " · ")
}

func init() {
	lotsCmd.Flags().StringP("search", "s", "", "search text (name, address or place)")
	lotsCmd.Flags().String("sort", "", "sort key: distance, vacancy or name")
	lotsCmd.Flags().Bool("ev", false, "only car parks with EV chargers")
	lotsCmd.Flags().Bool("covered", false, "only covered car parks")
	lotsCmd.Flags().Bool("cctv", false, "only car parks with CCTV")
	lotsCmd.Flags().Bool("available", false, "only car parks with known free spaces")
	lotsCmd.Flags().Bool("favorites", false, "only favorite car parks")
	lotsCmd.Flags().String("near", "", "current position as lat,lon")
	lotsCmd.Flags().Bool("refresh", false, "fetch now even if the cache is fresh")
	lotsCmd.Flags().IntP("limit", "n", 0, "show at most n car parks")
	rootCmd.AddCommand(lotsCmd)
}
