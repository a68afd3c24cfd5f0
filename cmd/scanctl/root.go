package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/pkg/client"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli carries the settings shared by every command
type cli struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:   "scanctl",
		Short: "Command line client for the Cobytes scan orchestrator",
		Long: `scanctl creates security scans, follows their progress and manages
recurrence policies through the scan orchestrator API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if c.v.GetBool("no_color") {
				color.NoColor = true
			}
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringP("server", "s", "http://localhost:8080", "Orchestrator base URL")
	flags.StringP("token", "t", "", "Bearer token (see 'scanctl token')")
	flags.Duration("timeout", 30*time.Second, "Request timeout")
	flags.Bool("insecure", false, "Skip TLS certificate verification")
	flags.Bool("json", false, "Print raw JSON instead of tables")
	flags.Bool("no-color", false, "Disable colored output")

	_ = c.v.BindPFlag("server", flags.Lookup("server"))
	_ = c.v.BindPFlag("token", flags.Lookup("token"))
	_ = c.v.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = c.v.BindPFlag("insecure", flags.Lookup("insecure"))
	_ = c.v.BindPFlag("json", flags.Lookup("json"))
	_ = c.v.BindPFlag("no_color", flags.Lookup("no-color"))

	// SCANCTL_SERVER, SCANCTL_TOKEN, ...
	c.v.SetEnvPrefix("SCANCTL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()

	rootCmd.AddCommand(c.newScanCmd())
	rootCmd.AddCommand(c.newPolicyCmd())
	rootCmd.AddCommand(c.newTokenCmd())
	rootCmd.AddCommand(c.newEncryptCmd())
	rootCmd.AddCommand(c.newHealthCmd())
	rootCmd.AddCommand(c.newRuntimeCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\nRun '%s --help' for usage", err, cmd.CommandPath())
	})
	return rootCmd
}

// client builds an API client from the global flags
func (c *cli) client() (*client.APIClient, error) {
	return client.NewClient(
		client.WithBaseURL(c.v.GetString("server")),
		client.WithAccessToken(c.v.GetString("token")),
		client.WithTimeout(c.v.GetDuration("timeout")),
		client.WithTLSInsecureSkipVerify(c.v.GetBool("insecure")),
		client.WithUserAgent("scanctl/"+Version),
	)
}

// context returns the command context bounded by the request timeout
func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.v.GetDuration("timeout"))
}

func (c *cli) jsonOutput() bool {
	return c.v.GetBool("json")
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *cli) newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the orchestrator is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			health, err := api.Health(ctx)
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(health)
			}
			c.printf("%s  version=%s database=%s scheduler=%t\n",
				colorStatus(models.ScanStatusCompleted, health.Status), health.Version, health.Database, health.Scheduler)
			return nil
		},
	}
}

func (c *cli) newRuntimeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runtime",
		Short: "Show scans and policies in flight (admin only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			runtime, err := api.Runtime(ctx)
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(runtime)
			}
			c.printf("Active scans:       %d\n", runtime.ActiveScans)
			c.printf("Scheduled policies: %d\n", runtime.ScheduledPolicies)
			c.printf("Dropped events:     %d\n", runtime.DroppedEvents)
			return nil
		},
	}
}

func (c *cli) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the scanctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			c.printf("scanctl %s (built %s)\n", Version, BuildDate)
		},
	}
}

// parseParams turns key=value pairs into scan parameters.
// Values that parse as JSON (numbers, booleans, arrays) keep their type.
func parseParams(pairs []string) (models.JSONMap, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := models.JSONMap{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			params[key] = decoded
		} else {
			params[key] = value
		}
	}
	return params, nil
}
