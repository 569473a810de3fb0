// Package arrowscanctl implements the command line client of the arrowscan API.
package arrowscanctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

const defaultBaseURL = "http://localhost:8080"

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

type globalFlags struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

// Run executes one command line and returns the process exit code: 0 on
// success, 1 when the request failed or the API answered non-2xx, 2 on usage
// errors.
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

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		_, _ = fmt.Fprintln(stderr, exitErr.err)
		return exitErr.code
	}
	_, _ = fmt.Fprintf(stderr, "%v\n\n%s", err, root.UsageString())
	return 2
}

func newRootCommand(defaults Options, stdout io.Writer) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "arrowscanctl",
		Short:         "Inspect and scan arrowscan datasets over the HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return errors.New("a command is required")
		},
	}
	root.PersistentFlags().StringVar(&flags.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, defaultBaseURL), "arrowscan API base URL")
	root.PersistentFlags().StringVar(&flags.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")

	client := func() *http.Client {
		if defaults.HTTPClient != nil {
			return defaults.HTTPClient
		}
		return &http.Client{Timeout: flags.timeout}
	}
	call := func(cmd *cobra.Command, path string, query url.Values, pretty bool) error {
		endpoint := strings.TrimRight(flags.baseURL, "/") + path
		if len(query) > 0 {
			endpoint += "?" + query.Encode()
		}
		code, body, err := doRequest(cmd.Context(), client(), endpoint, flags.apiKey)
		if err != nil {
			return &exitError{code: 1, err: fmt.Errorf("request failed: %w", err)}
		}
		if code < 200 || code > 299 {
			return &exitError{code: 1, err: fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))}
		}
		writeBody(stdout, body, pretty)
		return nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "health",
			Short: "GET /v1/health",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return call(cmd, "/v1/health", nil, true)
			},
		},
		&cobra.Command{
			Use:   "ready",
			Short: "GET /v1/ready",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return call(cmd, "/v1/ready", nil, true)
			},
		},
		&cobra.Command{
			Use:   "info <path>",
			Short: "Show the relational columns of a dataset",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, "/v1/tables/info", url.Values{"path": {args[0]}}, true)
			},
		},
		&cobra.Command{
			Use:   "stats <path>",
			Short: "Show dataset version, row count and column count",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, "/v1/tables/stats", url.Values{"path": {args[0]}}, true)
			},
		},
		newScanCommand(call),
	)
	return root
}

func newScanCommand(call func(*cobra.Command, string, url.Values, bool) error) *cobra.Command {
	var (
		limit   int64
		filter  string
		columns []string
		ndjson  bool
	)
	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "Scan rows of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{"path": {args[0]}}
			if cmd.Flags().Changed("limit") {
				query.Set("limit", strconv.FormatInt(limit, 10))
			}
			if strings.TrimSpace(filter) != "" {
				query.Set("filter", filter)
			}
			if len(columns) > 0 {
				query.Set("columns", strings.Join(columns, ","))
			}
			if ndjson {
				return call(cmd, "/v1/tables/scan.ndjson", query, false)
			}
			return call(cmd, "/v1/tables/scan", query, true)
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 0, "maximum number of rows; unset scans every row")
	cmd.Flags().StringVar(&filter, "filter", "", "SQL boolean expression over the dataset columns")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to project, in output order")
	cmd.Flags().BoolVar(&ndjson, "ndjson", false, "stream rows as newline-delimited JSON")
	return cmd
}

func doRequest(ctx context.Context, client *http.Client, endpoint, apiKey string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func writeBody(w io.Writer, body []byte, pretty bool) {
	if pretty {
		if formatted, ok := prettyJSON(body); ok {
			_, _ = fmt.Fprintln(w, formatted)
			return
		}
	}
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

// prettyJSON indents raw without decoding it, so member order and number
// literals are printed exactly as served.
func prettyJSON(raw []byte) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return "", false
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return "", false
	}
	return out.String(), true
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
