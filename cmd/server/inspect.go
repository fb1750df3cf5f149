package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/database"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/ports"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/server"
)

var outputJSON bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations for the sqlite job store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logging.Close()

		db, err := database.NewDB(cfg.Database.Path, cfg.Database.MaxConnections)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		ran, err := db.Migrate()
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		version, err := db.SchemaVersion()
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		logging.Component("main").Info("migrations completed", "path", db.Path(), "applied", ran, "schema", version)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Probe configured servers and print their state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logging.Close()

		a, err := buildApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		var statuses []server.ServerStatus
		if len(args) == 1 {
			status, err := a.lifecycle.GetStatus(args[0])
			if err != nil {
				return err
			}
			statuses = []server.ServerStatus{status}
		} else if statuses, err = a.lifecycle.GetAllStatuses(cmd.Context()); err != nil {
			return err
		}

		if outputJSON {
			return printJSON(statuses)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATE\tPID\tPORT\tUPTIME\tSESSION")
		for _, s := range statuses {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.Name, s.State, optional(s.PID), optional(s.ActualPort), dash(s.Uptime), s.TmuxSession)
		}
		return w.Flush()
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Print the port triplet each configured server would be launched with",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logging.Close()

		a, err := buildApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		names := a.servers.ListConfiguredServers()
		type row struct {
			Name string `json:"name"`
			ports.Triplet
		}
		rows := make([]row, 0, len(names))
		for _, name := range names {
			rows = append(rows, row{Name: name, Triplet: a.allocator.Allocate(name, names)})
		}

		if outputJSON {
			return printJSON(rows)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tGAME\tUDP\tRCON")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", r.Name, r.DefaultPort, r.UDPPort, r.RCONPort)
		}
		return w.Flush()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&outputJSON, "json", false, "print JSON instead of a table")
	portsCmd.Flags().BoolVar(&outputJSON, "json", false, "print JSON instead of a table")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optional(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
