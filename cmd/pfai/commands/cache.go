package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// NewCacheCmd constructs the `pfai cache` command group for administering
// the result cache of a running server.
func NewCacheCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the result cache of a running pfai server",
	}

	cmd.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "Base URL of the running pfai server")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show per-section cache entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := apiCall(cmd, http.MethodGet, addr+"/api/cache/stats")
			if err != nil {
				return err
			}
			var st struct {
				Responses int `json:"responses"`
				Contexts  int `json:"contexts"`
				ToolCalls int `json:"toolCalls"`
				Recent    int `json:"recentQueries"`
			}
			if err := json.Unmarshal(body, &st); err != nil {
				return fmt.Errorf("cache stats: decode response: %w", err)
			}
			fmt.Printf("responses: %d\ncontexts: %d\ntool calls: %d\nrecent queries: %d\n",
				st.Responses, st.Contexts, st.ToolCalls, st.Recent)
			return nil
		},
	}

	var section string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cache, or one section of it",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch section {
			case "all", "responses", "contexts", "toolcalls":
			default:
				return fmt.Errorf("cache clear: unknown section %q (valid: all, responses, contexts, toolcalls)", section)
			}
			url := addr + "/api/cache/clear?section=" + section
			if _, err := apiCall(cmd, http.MethodPost, url); err != nil {
				return err
			}
			if section == "all" {
				fmt.Println("cache cleared")
			} else {
				fmt.Printf("cache section %s cleared\n", section)
			}
			return nil
		},
	}
	clearCmd.Flags().StringVar(&section, "section", "all", "Cache section to clear: all, responses, contexts, or toolcalls")

	cmd.AddCommand(stats, clearCmd)
	return cmd
}

// apiCall issues an authenticated request against the running server,
// attaching PFAI_API_KEY as a Bearer token when set.
func apiCall(cmd *cobra.Command, method, url string) ([]byte, error) {
	ctx := cmd.Context()
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: build request: %w", err)
	}
	if key := os.Getenv("PFAI_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cache: is the server running? %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cache: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cache: server returned %s: %s", resp.Status, body)
	}
	return body, nil
}
