package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/tether/internal/engine"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracker status from a running server",
	RunE:  runStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe the registry of a running server",
	RunE:  runReset,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "127.0.0.1:37800", "Server address")
	resetCmd.Flags().StringVar(&statusAddr, "addr", "127.0.0.1:37800", "Server address")
}

func apiClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func runStatus(cmd *cobra.Command, args []string) error {
	resp, err := apiClient().Get("http://" + statusAddr + "/api/status")
	if err != nil {
		return fmt.Errorf("reach server: %w", err)
	}
	defer resp.Body.Close()

	var summary engine.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	fmt.Printf("receivers: %s (%d active)\n", humanize.Comma(int64(summary.Receivers)), summary.ReceiversActive)
	fmt.Printf("beacons:   %s (%d active)\n", humanize.Comma(int64(summary.Beacons)), summary.BeaconsActive)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	resp, err := apiClient().Post("http://"+statusAddr+"/api/reset", "application/json", nil)
	if err != nil {
		return fmt.Errorf("reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reset failed: %s", resp.Status)
	}
	fmt.Println("registry reset")
	return nil
}
