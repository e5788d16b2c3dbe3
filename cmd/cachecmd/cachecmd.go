// Package cachecmd contains the operator commands that drive a running
// fgacache agent over its HTTP API.
package cachecmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"
)

type apiClient struct {
	baseURL    string
	apiToken   string
	connection string
	client     *http.Client
}

func newAPIClient(cmd *cobra.Command) (*apiClient, error) {
	apiURL, _ := cmd.Flags().GetString("api-url")
	apiToken, _ := cmd.Flags().GetString("api-token")
	connection, _ := cmd.Flags().GetString("connection")

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = 30 * time.Second

	return &apiClient{
		baseURL:    strings.TrimSuffix(apiURL, "/"),
		apiToken:   apiToken,
		connection: connection,
		client:     rc.StandardClient(),
	}, nil
}

func (c *apiClient) call(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	u := c.baseURL + path
	if c.connection != "" {
		u += "?connection=" + c.connection
	}

	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("is the agent running at %s? %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("agent returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewCacheCommand returns the command group that inspects and drives a
// running agent's cache.
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage a running fgacache agent",
	}

	cmd.PersistentFlags().String("api-url", "http://localhost:8080", "the base URL of the running agent's HTTP API")
	cmd.PersistentFlags().String("api-token", "", "the bearer token to authenticate with, when the agent requires one")
	cmd.PersistentFlags().String("connection", "", "the named connection to address, empty for the default")

	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newFlushCommand())
	cmd.AddCommand(newClearCommand())
	cmd.AddCommand(newStatsCommand())
	cmd.AddCommand(newWarmCommand())

	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the write buffer's pending operations and flush settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := newAPIClient(cmd)
			if err != nil {
				return err
			}

			var status map[string]any
			if err := api.call(http.MethodGet, "/status", nil, &status); err != nil {
				return err
			}
			return printJSON(status)
		},
	}
}

func newFlushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Synchronously flush every pending operation to the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := newAPIClient(cmd)
			if err != nil {
				return err
			}

			var res struct {
				Writes  int `json:"writes"`
				Deletes int `json:"deletes"`
			}
			if err := api.call(http.MethodPost, "/flush", nil, &res); err != nil {
				return err
			}

			fmt.Printf("flushed %d writes and %d deletes\n", res.Writes, res.Deletes)
			return nil
		},
	}
}

func newClearCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard every pending operation without flushing",
		Long:  "Discard every pending operation without flushing. Discarded grants and revokes never reach the remote store and must be re-issued if still wanted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			force, _ := cmd.Flags().GetBool("force")
			if !force && !confirm(cmd.InOrStdin(), "This discards all unflushed operations. Continue? [y/N] ") {
				fmt.Println("aborted")
				return nil
			}

			api, err := newAPIClient(cmd)
			if err != nil {
				return err
			}

			var res struct {
				Discarded int `json:"discarded"`
			}
			if err := api.call(http.MethodPost, "/clear", map[string]bool{"confirm": true}, &res); err != nil {
				return err
			}

			fmt.Printf("discarded %d pending operations\n", res.Discarded)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "skip the confirmation prompt")

	return cmd
}

func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache hit/miss counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := newAPIClient(cmd)
			if err != nil {
				return err
			}

			reset, _ := cmd.Flags().GetBool("reset")
			if reset {
				if err := api.call(http.MethodPost, "/stats/reset", nil, nil); err != nil {
					return err
				}
				fmt.Println("stats reset")
				return nil
			}

			var stats map[string]any
			if err := api.call(http.MethodGet, "/stats", nil, &stats); err != nil {
				return err
			}
			return printJSON(stats)
		},
	}

	cmd.Flags().Bool("reset", false, "zero the counters instead of printing them")

	return cmd
}

func newWarmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Pre-populate the cache",
		Long: "Pre-populate the cache. With --users/--relations/--objects the full cross product is " +
			"checked; with --object-type the objects a user can reach are discovered and checked; with " +
			"neither, the most-checked tuples on record are re-primed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := newAPIClient(cmd)
			if err != nil {
				return err
			}

			users, _ := cmd.Flags().GetStringSlice("users")
			relations, _ := cmd.Flags().GetStringSlice("relations")
			objects, _ := cmd.Flags().GetStringSlice("objects")
			user, _ := cmd.Flags().GetString("user")
			relation, _ := cmd.Flags().GetString("relation")
			objectType, _ := cmd.Flags().GetString("object-type")
			limit, _ := cmd.Flags().GetInt("limit")

			body := map[string]any{}
			switch {
			case len(users) > 0:
				body["users"] = users
				body["relations"] = relations
				body["objects"] = objects
			case objectType != "":
				body["user"] = user
				body["relation"] = relation
				body["object_type"] = objectType
			default:
				body["limit"] = limit
			}

			var res struct {
				Warmed int `json:"warmed"`
			}
			if err := api.call(http.MethodPost, "/warm", body, &res); err != nil {
				return err
			}

			fmt.Printf("warmed %d entries\n", res.Warmed)
			return nil
		},
	}

	cmd.Flags().StringSlice("users", nil, "users for cross-product warming")
	cmd.Flags().StringSlice("relations", nil, "relations for cross-product warming")
	cmd.Flags().StringSlice("objects", nil, "objects for cross-product warming")
	cmd.Flags().String("user", "", "user for object-discovery warming")
	cmd.Flags().String("relation", "", "relation for object-discovery warming")
	cmd.Flags().String("object-type", "", "object type for object-discovery warming")
	cmd.Flags().Int("limit", 0, "how many tuples an activity warm primes, 0 for the agent's default")

	return cmd
}

func confirm(in io.Reader, prompt string) bool {
	fmt.Print(prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return false
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
