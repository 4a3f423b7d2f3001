package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/healthpilot/internal/observability"
)

func newPerfCmd() *cobra.Command {
	var baseURL string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "perf",
		Short: "Print the stage latency window of a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: timeout}
			snap, err := fetchLatency(cmd, client, baseURL)
			if err != nil {
				return err
			}
			return printLatency(cmd, snap)
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "http://127.0.0.1:8080", "server base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func fetchLatency(cmd *cobra.Command, client *http.Client, baseURL string) (observability.LatencySnapshot, error) {
	url := strings.TrimRight(baseURL, "/") + "/v1/perf/latency"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return observability.LatencySnapshot{}, err
	}
	res, err := client.Do(req)
	if err != nil {
		return observability.LatencySnapshot{}, fmt.Errorf("GET %s: %w", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return observability.LatencySnapshot{}, fmt.Errorf("GET %s: status %d", url, res.StatusCode)
	}
	var snap observability.LatencySnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		return observability.LatencySnapshot{}, fmt.Errorf("decode latency snapshot: %w", err)
	}
	return snap, nil
}

func printLatency(cmd *cobra.Command, snap observability.LatencySnapshot) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tSAMPLES\tLAST\tP50\tP95\tTARGET P95")
	for _, s := range snap.Stages {
		target := "-"
		if s.TargetP95MS > 0 {
			target = fmt.Sprintf("%.0fms", s.TargetP95MS)
		}
		fmt.Fprintf(w, "%s\t%d\t%.1fms\t%.1fms\t%.1fms\t%s\n", s.Stage, s.Samples, s.LastMS, s.P50MS, s.P95MS, target)
	}
	return w.Flush()
}
