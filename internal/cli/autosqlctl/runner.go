package autosqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// requestError marks failures that happened after the command line was
// accepted, so Run can tell them apart from usage errors.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

type httpStatusError struct {
	Status int
	Body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// Run executes one autosqlctl invocation and returns the process exit code:
// 0 on success, 1 when the request failed and 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := NewRootCmd(defaults)
	root.SetArgs(args)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return 1
		}
		return 2
	}
	return 0
}

type globalFlags struct {
	baseURL string
	token   string
	timeout time.Duration
}

func NewRootCmd(defaults Options) *cobra.Command {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "autosqlctl",
		Short:         "Command-line client for the AutoSQL API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.PersistentFlags().StringVar(&flags.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "AutoSQL API base URL")
	root.PersistentFlags().StringVar(&flags.token, "token", defaults.Token, "session token from `autosqlctl login`")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout")

	newClient := func() *resty.Client {
		var client *resty.Client
		if defaults.HTTPClient != nil {
			client = resty.NewWithClient(defaults.HTTPClient)
		} else {
			client = resty.New()
		}
		client.SetBaseURL(strings.TrimRight(flags.baseURL, "/"))
		client.SetTimeout(flags.timeout)
		client.SetHeader("Accept", "application/json")
		if token := strings.TrimSpace(flags.token); token != "" {
			client.SetAuthToken(token)
		}
		return client
	}

	root.AddCommand(
		simpleGetCmd("health", "Check service liveness", "/v1/health", newClient),
		simpleGetCmd("ready", "Check service readiness", "/v1/ready", newClient),
		simpleGetCmd("me", "Show the logged-in user", "/v1/auth/me", newClient),
		simpleGetCmd("dataset", "Show the loaded dataset and preview", "/v1/dataset", newClient),
		credentialsCmd("register", "Create a user account", "/v1/auth/register", newClient),
		credentialsCmd("login", "Log in and print a session token", "/v1/auth/login", newClient),
		logoutCmd(newClient),
		uploadCmd(newClient),
		uploadsCmd(newClient),
		askCmd(newClient),
		queryCmd(newClient),
		exportCmd(newClient),
	)
	return root
}

func simpleGetCmd(use, short, path string, newClient func() *resty.Client) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := newClient().R().SetContext(cmd.Context()).Get(path)
			return printJSON(cmd, resp, err)
		},
	}
}

func credentialsCmd(use, short, path string, newClient func() *resty.Client) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   use + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("AUTOSQL_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("--password or AUTOSQL_PASSWORD is required")
			}
			resp, err := newClient().R().
				SetContext(cmd.Context()).
				SetBody(map[string]string{"username": args[0], "password": password}).
				Post(path)
			if err := checkResponse(resp, err); err != nil {
				return err
			}
			if use == "login" {
				var body struct {
					Token string `json:"token"`
				}
				if err := json.Unmarshal(resp.Body(), &body); err != nil {
					return &requestError{err: fmt.Errorf("decode login response: %w", err)}
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), body.Token)
				return nil
			}
			return printJSON(cmd, resp, nil)
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password (defaults to $AUTOSQL_PASSWORD)")
	return cmd
}

func logoutCmd(newClient func() *resty.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := newClient().R().SetContext(cmd.Context()).Post("/v1/auth/logout")
			if err := checkResponse(resp, err); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func uploadCmd(newClient func() *resty.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a .csv, .xlsx or .parquet file as the session table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().R().
				SetContext(cmd.Context()).
				SetFile("file", args[0]).
				Post("/v1/dataset")
			return printJSON(cmd, resp, err)
		},
	}
}

func uploadsCmd(newClient func() *resty.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "Manage archived uploads",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List archived uploads, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				resp, err := newClient().R().SetContext(cmd.Context()).Get("/v1/uploads")
				return printJSON(cmd, resp, err)
			},
		},
		&cobra.Command{
			Use:   "load <key>",
			Short: "Reload an archived upload as the session table",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := newClient().R().
					SetContext(cmd.Context()).
					SetBody(map[string]string{"key": args[0]}).
					Post("/v1/uploads/load")
				return printJSON(cmd, resp, err)
			},
		},
		&cobra.Command{
			Use:   "delete <key>",
			Short: "Delete an archived upload",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := newClient().R().
					SetContext(cmd.Context()).
					SetQueryParam("key", args[0]).
					Delete("/v1/uploads")
				if err := checkResponse(resp, err); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
				return nil
			},
		},
	)
	return cmd
}

func askCmd(newClient func() *resty.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question...]",
		Short: "Translate a question to SQL and run it",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().R().
				SetContext(cmd.Context()).
				SetBody(map[string]string{"question": strings.Join(args, " ")}).
				Post("/v1/ask")
			return printJSON(cmd, resp, err)
		},
	}
}

func queryCmd(newClient func() *resty.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a SQL statement against the session table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().R().
				SetContext(cmd.Context()).
				SetBody(map[string]string{"sql": strings.Join(args, " ")}).
				Post("/v1/query")
			return printJSON(cmd, resp, err)
		},
	}
}

func exportCmd(newClient func() *resty.Client) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the last result as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := newClient().R().
				SetContext(cmd.Context()).
				SetHeader("Accept", "text/csv").
				Get("/v1/result.csv")
			if err := checkResponse(resp, err); err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, _ = cmd.OutOrStdout().Write(resp.Body())
				return nil
			}
			if err := os.WriteFile(output, resp.Body(), 0o644); err != nil {
				return &requestError{err: fmt.Errorf("write %s: %w", output, err)}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(resp.Body()), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")
	return cmd
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return &requestError{err: &httpStatusError{Status: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body()))}}
	}
	return nil
}

func printJSON(cmd *cobra.Command, resp *resty.Response, err error) error {
	if err := checkResponse(resp, err); err != nil {
		return err
	}
	body := resp.Body()
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), pretty)
		return nil
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(body))
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
