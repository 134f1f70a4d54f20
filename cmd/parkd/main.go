// Command parkd is the offline-first parking client: it browses car parks,
// keeps favorites and reservations, and syncs them with the backend when
// the network allows.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/parkd/internal/app"
	"github.com/steveyegge/parkd/internal/config"
)

var (
	configPath   string
	forceOffline bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "parkd",
	Short: "Offline-first car park finder and reservation client",
	Long: `parkd finds car parks, tracks favorites and manages spot reservations.

Everything is served from a local cache first. Changes made while offline
are kept locally and reconciled with the backend once the network returns.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "text", "json", "yaml":
			return nil
		}
		return fmt.Errorf("--format must be text, json or yaml (got %q)", outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $HOME/.parkd/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&forceOffline, "offline", false, "never touch the network")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "output format: text, json or yaml")

	rootCmd.AddGroup(
		&cobra.Group{ID: "browse", Title: "Browsing:"},
		&cobra.Group{ID: "account", Title: "Account:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openApp loads config and wires the App, exiting on failure. Logs go to
// stderr only when verbose; the log file is always written.
func openApp(ctx context.Context, verbose bool) *app.App {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("Error loading config: %v", err)
	}
	if !verbose {
		cfg.Log.Quiet = true
	}
	a, err := app.New(ctx, cfg, app.Options{Offline: forceOffline})
	if err != nil {
		fatalf("Error: %v", err)
	}
	return a
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// emit prints v as JSON or YAML, or calls text for the text format.
func emit(v interface{}, text func()) {
	switch outputFormat {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			fatalf("Error encoding output: %v", err)
		}
		fmt.Println(string(data))
	case "yaml":
		// Round-trip through JSON so keys match the JSON field names.
		data, err := json.Marshal(v)
		if err != nil {
			fatalf("Error encoding output: %v", err)
		}
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			fatalf("Error encoding output: %v", err)
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			fatalf("Error encoding output: %v", err)
		}
		fmt.Print(string(out))
	default:
		text()
	}
}
