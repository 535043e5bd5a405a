package invoiceqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// usageError marks failures that exit with code 2.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }

type settings struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	table   bool
	client  *http.Client
}

// Run executes one CLI invocation and returns the process exit code: 0 on
// success, 1 when the request fails, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := NewRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(stderr, err)
	var usage usageError
	if errors.As(err, &usage) || isFlagError(err) {
		return 2
	}
	return 1
}

func NewRootCommand(defaults Options) *cobra.Command {
	s := &settings{client: defaults.HTTPClient}

	root := &cobra.Command{
		Use:           "invoiceqlctl",
		Short:         "Operator CLI for the invoiceql API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return usageError{err: errors.New("a command is required")}
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&s.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "invoiceql API base URL")
	flags.StringVar(&s.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	flags.DurationVar(&s.timeout, "timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	flags.BoolVar(&s.table, "table", false, "render results as a table instead of JSON")

	root.AddCommand(
		simpleCommand(s, "health", "Check API liveness", http.MethodGet, "/v1/health", ""),
		simpleCommand(s, "ready", "Check API readiness", http.MethodGet, "/v1/ready", ""),
		simpleCommand(s, "stats", "Show dashboard totals", http.MethodGet, "/v1/stats", ""),
		simpleCommand(s, "trends", "Show monthly invoice trends", http.MethodGet, "/v1/invoice-trends", "trends"),
		simpleCommand(s, "top-vendors", "Show vendors by spend", http.MethodGet, "/v1/vendors/top", "vendors"),
		simpleCommand(s, "top-customers", "Show customers by spend", http.MethodGet, "/v1/customers/top", "customers"),
		simpleCommand(s, "currency-spend", "Show spend per currency", http.MethodGet, "/v1/currency-spend", "currencies"),
		askCommand(s),
		invoicesCommand(s),
		exportCommand(s),
	)
	return root
}

func simpleCommand(s *settings, use, short, method, path, listKey string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.call(cmd, method, path, nil, listKey)
		},
	}
}

func askCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a natural-language question about the invoices",
		Args: func(_ *cobra.Command, args []string) error {
			if strings.TrimSpace(strings.Join(args, " ")) == "" {
				return usageError{err: errors.New("ask requires a question")}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(map[string]string{"question": strings.Join(args, " ")})
			if err != nil {
				return err
			}
			return s.call(cmd, http.MethodPost, "/v1/ask", payload, "result")
		},
	}
}

type filterFlags struct {
	vendor   string
	currency string
	dateFrom string
	dateTo   string
	minTotal string
	maxTotal string
	search   string
	limit    int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.vendor, "vendor", "", "vendor name substring")
	flags.StringVar(&f.currency, "currency", "", "currency symbol")
	flags.StringVar(&f.dateFrom, "date-from", "", "earliest invoice date (YYYY-MM-DD)")
	flags.StringVar(&f.dateTo, "date-to", "", "latest invoice date (YYYY-MM-DD)")
	flags.StringVar(&f.minTotal, "min-total", "", "minimum invoice total")
	flags.StringVar(&f.maxTotal, "max-total", "", "maximum invoice total")
	flags.StringVar(&f.search, "search", "", "invoice id or customer substring")
	flags.IntVar(&f.limit, "limit", 0, "maximum number of rows")
}

func (f *filterFlags) query() string {
	values := url.Values{}
	set := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			values.Set(key, strings.TrimSpace(value))
		}
	}
	set("vendor", f.vendor)
	set("currency", f.currency)
	set("date_from", f.dateFrom)
	set("date_to", f.dateTo)
	set("min_total", f.minTotal)
	set("max_total", f.maxTotal)
	set("search", f.search)
	if f.limit > 0 {
		values.Set("limit", fmt.Sprint(f.limit))
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

func invoicesCommand(s *settings) *cobra.Command {
	f := &filterFlags{}
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "List invoices matching the filters",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.call(cmd, http.MethodGet, "/v1/invoices"+f.query(), nil, "invoices")
		},
	}
	f.register(cmd)
	return cmd
}

func exportCommand(s *settings) *cobra.Command {
	f := &filterFlags{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching invoices to a parquet object",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.call(cmd, http.MethodPost, "/v1/invoices/export"+f.query(), nil, "")
		},
	}
	f.register(cmd)
	return cmd
}

func (s *settings) call(cmd *cobra.Command, method, path string, body []byte, listKey string) error {
	client := s.client
	if client == nil {
		client = &http.Client{Timeout: s.timeout}
	}
	endpoint := strings.TrimRight(s.baseURL, "/") + path

	code, responseBody, err := doRequest(cmd.Context(), client, method, endpoint, s.apiKey, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if code >= 400 {
		return fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(responseBody)))
	}

	out := cmd.OutOrStdout()
	if s.table {
		rendered, err := renderTable(responseBody, listKey)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, rendered)
		return nil
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(out, pretty)
		return nil
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(out, string(responseBody))
	}
	return nil
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
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

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}

func isFlagError(err error) bool {
	message := err.Error()
	return strings.HasPrefix(message, "unknown command") ||
		strings.HasPrefix(message, "unknown flag") ||
		strings.HasPrefix(message, "unknown shorthand flag")
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
