package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/modelfoxdotdev/sunfish/internal/config"
	"github.com/modelfoxdotdev/sunfish/internal/cycle"
	"github.com/modelfoxdotdev/sunfish/internal/driver"
)

// resolveAdminAddr finds the admin API from --admin-addr, SUNFISH_ADMIN_ADDR
// or the config file, in that order.
func resolveAdminAddr(cmd *cobra.Command) (string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return "", err
	}
	cfg.Overlay(v)
	if cfg.AdminAddr == "" {
		return "", errors.New("admin API address unknown: set admin_addr in the config, SUNFISH_ADMIN_ADDR or --admin-addr")
	}
	return cfg.AdminAddr, nil
}

func apiClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func apiDo(cmd *cobra.Command, method, path string, v any) error {
	addr, err := resolveAdminAddr(cmd)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), method, "http://"+addr+path, nil)
	if err != nil {
		return err
	}
	resp, err := apiClient().Do(req)
	if err != nil {
		return fmt.Errorf("connecting to sunfish: %w (is sunfish watch running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("API error %d: %s", resp.StatusCode, body)
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current build cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st cycle.Status
		if err := apiDo(cmd, http.MethodGet, "/v1/status", &st); err != nil {
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return printJSON(st)
		}
		return printStatus(os.Stdout, st)
	},
}

func printStatus(w io.Writer, st cycle.Status) error {
	dash := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	pid := "-"
	if st.PID > 0 {
		pid = strconv.Itoa(st.PID)
	}
	build := "-"
	if st.BuildDuration > 0 {
		build = time.Duration(st.BuildDuration * float64(time.Second)).Round(time.Millisecond).String()
	}
	child := dash(string(st.ChildState))
	if st.ChildState == driver.StateExited {
		child = fmt.Sprintf("exited (%d)", st.ExitCode)
	}

	table := tablewriter.NewWriter(w)
	table.Header("State", "Cycle", "PID", "Child", "Ready", "Build", "Uptime", "Address")
	table.Append(
		string(st.State),
		strconv.FormatUint(st.Cycle, 10),
		pid,
		child,
		dash(string(st.ReadyReason)),
		build,
		dash(st.Uptime),
		st.ChildAddr,
	)
	return table.Render()
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Trigger a rebuild as if a watched file changed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiDo(cmd, http.MethodPost, "/v1/rebuild", nil); err != nil {
			return err
		}
		fmt.Println("Rebuild queued")
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent child output",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("lines")
		var result struct {
			Lines []string `json:"lines"`
		}
		if err := apiDo(cmd, http.MethodGet, "/v1/logs?n="+strconv.Itoa(n), &result); err != nil {
			return err
		}
		for _, line := range result.Lines {
			fmt.Println(line)
		}
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	statusCmd.Flags().Bool("json", false, "output as JSON")
	logsCmd.Flags().IntP("lines", "n", 100, "number of lines")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(logsCmd)
}
