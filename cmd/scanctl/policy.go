package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/pkg/client"
	"github.com/spf13/cobra"
)

func (c *cli) newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "policy",
		Aliases: []string{"policies"},
		Short:   "Manage recurring scan policies",
	}
	cmd.AddCommand(
		c.newPolicyCreateCmd(),
		c.newPolicyGetCmd(),
		c.newPolicyListCmd(),
		c.newPolicyUpdateCmd(),
		c.newPolicyDeleteCmd(),
	)
	return cmd
}

// parseStartAt accepts RFC 3339 timestamps and "now"
func parseStartAt(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "now") {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid start time %q, expected RFC 3339 such as 2024-01-01T02:00:00Z", raw)
	}
	return &t, nil
}

func (c *cli) newPolicyCreateCmd() *cobra.Command {
	var (
		name      string
		kind      string
		frequency string
		startAt   string
		maxRuns   int
		params    []string
	)
	cmd := &cobra.Command{
		Use:     "create <target>",
		Short:   "Create a policy that re-runs a scan on a schedule",
		Example: `  scanctl policy create example.com --name nightly --kind subdomain_finder --frequency daily --start-at 2024-01-01T02:00:00Z`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			freq, ok := models.ParseFrequency(frequency)
			if !ok {
				return fmt.Errorf("unknown frequency %q, expected once, daily, weekly or monthly", frequency)
			}
			start, err := parseStartAt(startAt)
			if err != nil {
				return err
			}
			parameters, err := parseParams(params)
			if err != nil {
				return err
			}
			if name == "" {
				name = fmt.Sprintf("%s %s", kind, args[0])
			}

			req := &models.CreatePolicyRequest{
				Name:       name,
				Target:     args[0],
				Kind:       models.ScanKind(strings.ToLower(kind)),
				Parameters: parameters,
				Frequency:  freq,
				StartAt:    start,
			}
			if maxRuns > 0 {
				req.MaxRuns = &maxRuns
			}

			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			policy, err := api.CreatePolicy(ctx, req)
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(policy)
			}
			printPolicy(c.out, policy)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Policy name (defaults to kind and target)")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Scan kind")
	cmd.Flags().StringVarP(&frequency, "frequency", "f", "daily", "once, daily, weekly or monthly")
	cmd.Flags().StringVar(&startAt, "start-at", "", "First fire time in RFC 3339 (default now)")
	cmd.Flags().IntVar(&maxRuns, "max-runs", 0, "Stop after this many fires (0 for no limit)")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Scan parameter as key=value, repeatable")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func (c *cli) newPolicyGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			policy, err := api.GetPolicy(ctx, args[0])
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(policy)
			}
			printPolicy(c.out, policy)
			return nil
		},
	}
}

func (c *cli) newPolicyListCmd() *cobra.Command {
	var (
		opts       client.ListOptions
		activeOnly bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List policies",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			policies, page, err := api.ListPolicies(ctx, opts, activeOnly)
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(policies)
			}
			printPolicies(c.out, policies)
			if page != nil {
				c.printf("\nPage %d of %d (%d policies)\n", page.Page, page.TotalPages, page.Total)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only active policies")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 20, "Policies per page")
	return cmd
}

func (c *cli) newPolicyUpdateCmd() *cobra.Command {
	var (
		name      string
		target    string
		frequency string
		nextFire  string
		maxRuns   int
		active    bool
		params    []string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a policy; only the given flags are applied",
		Example: `  scanctl policy update 6d1f... --active=false
  scanctl policy update 6d1f... --frequency weekly --next-fire 2024-02-01T02:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &models.UpdatePolicyRequest{}
			flags := cmd.Flags()
			changed := false
			for _, flag := range []string{"name", "target", "frequency", "next-fire", "max-runs", "active", "param"} {
				changed = changed || flags.Changed(flag)
			}
			if !changed {
				return fmt.Errorf("nothing to update, pass at least one flag")
			}
			if flags.Changed("name") {
				req.Name = &name
			}
			if flags.Changed("target") {
				req.Target = &target
			}
			if flags.Changed("frequency") {
				freq, ok := models.ParseFrequency(frequency)
				if !ok {
					return fmt.Errorf("unknown frequency %q", frequency)
				}
				req.Frequency = &freq
			}
			if flags.Changed("next-fire") {
				next, err := parseStartAt(nextFire)
				if err != nil {
					return err
				}
				if next == nil {
					now := time.Now().UTC()
					next = &now
				}
				req.NextFireAt = next
			}
			if flags.Changed("max-runs") {
				req.MaxRuns = &maxRuns
			}
			if flags.Changed("active") {
				req.Active = &active
			}
			if flags.Changed("param") {
				parameters, err := parseParams(params)
				if err != nil {
					return err
				}
				req.Parameters = parameters
			}

			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			policy, err := api.UpdatePolicy(ctx, args[0], req)
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(policy)
			}
			printPolicy(c.out, policy)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&target, "target", "", "New target")
	cmd.Flags().StringVar(&frequency, "frequency", "", "New frequency")
	cmd.Flags().StringVar(&nextFire, "next-fire", "", "Next fire time in RFC 3339, or now")
	cmd.Flags().IntVar(&maxRuns, "max-runs", 0, "New run cap")
	cmd.Flags().BoolVar(&active, "active", true, "Activate or pause the policy")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Replace the scan parameters, repeatable key=value")
	return cmd
}

func (c *cli) newPolicyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a policy; scans it created are kept",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			if err := api.DeletePolicy(ctx, args[0]); err != nil {
				return err
			}
			if !c.jsonOutput() {
				c.printf("Policy %s deleted\n", args[0])
			}
			return nil
		},
	}
}
