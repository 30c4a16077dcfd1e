package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sufield/fan/internal/adapters/logging"
	"github.com/sufield/fan/internal/adapters/secondary/health"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check a running engine's health",
	Long: `Check the liveness and readiness of a running engine through its built-in
HTTP health endpoints.

Examples:
  # One-shot check
  fan health --address localhost:8080

  # Continuous monitoring
  fan health --address localhost:8080 --monitor --interval 30s

  # Output as JSON
  fan health --address localhost:8080 --format json`,
	RunE: runHealthCheck,
}

func init() {
	healthCmd.Flags().String("address", "localhost:8080", "Engine health endpoint address")
	healthCmd.Flags().String("live-path", health.DefaultLivePath, "Liveness endpoint path")
	healthCmd.Flags().String("ready-path", health.DefaultReadyPath, "Readiness endpoint path")
	healthCmd.Flags().Bool("https", false, "Use HTTPS for health check requests")
	healthCmd.Flags().Duration("check-timeout", health.DefaultTimeout, "Timeout for individual health checks")
	healthCmd.Flags().Bool("monitor", false, "Continuously monitor health")
	healthCmd.Flags().Duration("interval", 30*time.Second, "Monitoring interval")
	healthCmd.Flags().String("format", "text", "Output format: text or json")
	rootCmd.AddCommand(healthCmd)
}

func runHealthCheck(cmd *cobra.Command, args []string) error {
	address, _ := cmd.Flags().GetString("address")
	livePath, _ := cmd.Flags().GetString("live-path")
	readyPath, _ := cmd.Flags().GetString("ready-path")
	useHTTPS, _ := cmd.Flags().GetBool("https")
	timeout, _ := cmd.Flags().GetDuration("check-timeout")
	monitor, _ := cmd.Flags().GetBool("monitor")
	interval, _ := cmd.Flags().GetDuration("interval")
	format, _ := cmd.Flags().GetString("format")

	if format != "text" && format != "json" {
		return fmt.Errorf("%w: unsupported format %q, use 'text' or 'json'", ErrUsage, format)
	}

	client, err := health.NewClient(health.Config{
		Address:   address,
		LivePath:  livePath,
		ReadyPath: readyPath,
		UseHTTPS:  useHTTPS,
		Timeout:   timeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	if monitor {
		return monitorHealth(cmd.Context(), client, interval)
	}

	results := client.Check(cmd.Context())
	if err := printHealthResults(results, format); err != nil {
		return err
	}
	for _, result := range results {
		if !result.Healthy() {
			return fmt.Errorf("%w: engine at %s is not healthy", ErrRuntime, address)
		}
	}
	return nil
}

func monitorHealth(parent context.Context, client *health.Client, interval time.Duration) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporter := health.NewLogReporter(logging.New("info", "text", os.Stderr))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fmt.Printf("Monitoring engine health every %s, Ctrl+C to stop\n", interval)
	reporter.ReportAll(client.Check(ctx))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			reporter.ReportAll(client.Check(ctx))
		}
	}
}

// healthView is the JSON shape of one check result.
type healthView struct {
	Check        string    `json:"check"`
	Status       string    `json:"status"`
	Message      string    `json:"message,omitempty"`
	ResponseTime string    `json:"response_time"`
	CheckedAt    time.Time `json:"checked_at"`
}

func printHealthResults(results []*health.Result, format string) error {
	if format == "json" {
		views := make([]healthView, 0, len(results))
		for _, result := range results {
			views = append(views, healthView{
				Check:        result.Check,
				Status:       string(result.Status),
				Message:      result.Message,
				ResponseTime: result.ResponseTime.String(),
				CheckedAt:    result.CheckedAt,
			})
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(views); err != nil {
			return fmt.Errorf("%w: failed to encode health results: %v", ErrInternal, err)
		}
		return nil
	}

	for _, result := range results {
		icon := "✅"
		if !result.Healthy() {
			icon = "❌"
		}
		line := fmt.Sprintf("%s %s: %s (%s)", icon, result.Check, result.Status, result.ResponseTime)
		if result.Message != "" {
			line += " - " + result.Message
		}
		fmt.Println(line)
	}
	return nil
}
