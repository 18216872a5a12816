package nlsqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// requestError marks failures that happened after the command line was
// accepted; they exit with status 1 instead of the usage status 2.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

type client struct {
	baseURL string
	apiKey  string
	token   string
	http    *http.Client
	stdout  io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := newRootCommand(defaults, stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return 1
		}
		return 2
	}
	return 0
}

func newRootCommand(defaults Options, stdout io.Writer) *cobra.Command {
	c := &client{stdout: stdout}
	var timeout time.Duration

	root := &cobra.Command{
		Use:           "nlsqlctl",
		Short:         "Command-line client for the nlsql API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			c.http = defaults.HTTPClient
			if c.http == nil {
				c.http = &http.Client{Timeout: timeout}
			}
		},
	}
	root.PersistentFlags().StringVar(&c.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:3000"), "nlsql API base URL")
	root.PersistentFlags().StringVar(&c.apiKey, "api-key", defaults.APIKey, "static API key sent as X-API-Key")
	root.PersistentFlags().StringVar(&c.token, "token", defaults.Token, "session token sent as a bearer token")
	root.PersistentFlags().DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 75*time.Second), "HTTP timeout (e.g. 10s)")

	root.AddCommand(
		c.getCommand("health", "Check service liveness", "/v1/health"),
		c.getCommand("ready", "Check service readiness", "/v1/ready"),
		c.getCommand("history", "List query history entries", "/v1/history"),
		c.getCommand("schema", "Describe the tables known to the model", "/v1/schema"),
		c.queryCommand("query <text>", "Convert a natural-language query to SQL", "/v1/query"),
		c.queryCommand("explain <sql>", "Explain a SQL query", "/v1/explain"),
		c.queryCommand("validate <text>", "Check whether a query converts to SQL", "/v1/validate"),
		c.checkCommand(),
		c.exportCommand(),
		c.credentialsCommand("register <username> <password>", "Register a user account", "/v1/register"),
		c.credentialsCommand("login <username> <password>", "Log in and print a session token", "/v1/login"),
	)
	return root
}

func (c *client) getCommand(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.do(cmd.Context(), http.MethodGet, path, nil)
		},
	}
}

func (c *client) queryCommand(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(cmd.Context(), http.MethodPost, path, map[string]any{"query": strings.Join(args, " ")})
		},
	}
}

func (c *client) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <sql>",
		Short: "Dry-run a SQL statement in the sandbox",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(cmd.Context(), http.MethodPost, "/v1/sql/check", map[string]any{"sql": strings.Join(args, " ")})
		},
	}
}

func (c *client) exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Upload a history snapshot to object storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.do(cmd.Context(), http.MethodPost, "/v1/history/export", nil)
		},
	}
}

func (c *client) credentialsCommand(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(cmd.Context(), http.MethodPost, path, map[string]any{"username": args[0], "password": args[1]})
		},
	}
}

func (c *client) do(ctx context.Context, method, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return &requestError{err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, body)
	if err != nil {
		return &requestError{err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(c.apiKey); key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if token := strings.TrimSpace(c.token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &requestError{err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= 400 {
		return &requestError{err: fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(responseBody)))}
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(c.stdout, pretty)
		return nil
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(c.stdout, string(responseBody))
	}
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
