package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/pkg/client"
	"github.com/spf13/cobra"
)

func (c *cli) newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "scan",
		Aliases: []string{"scans"},
		Short:   "Create, inspect and cancel scans",
	}
	cmd.AddCommand(
		c.newScanKindsCmd(),
		c.newScanCreateCmd(),
		c.newScanGetCmd(),
		c.newScanListCmd(),
		c.newScanFindingsCmd(),
		c.newScanCancelCmd(),
		c.newScanDeleteCmd(),
		c.newScanWatchCmd(),
	)
	return cmd
}

func (c *cli) newScanKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the supported scan kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			kinds, err := api.ListScanKinds(ctx)
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(kinds)
			}
			table := newTable(c.out, "Kind", "Tool ID", "Tool")
			for _, k := range kinds {
				table.Append([]string{string(k.Kind), fmt.Sprint(k.ToolID), k.ToolName})
			}
			table.Render()
			return nil
		},
	}
}

func (c *cli) newScanCreateCmd() *cobra.Command {
	var (
		kind   string
		params []string
		watch  bool
	)
	cmd := &cobra.Command{
		Use:   "create <target>",
		Short: "Start a scan against a target",
		Example: `  scanctl scan create example.com --kind subdomain_finder
  scanctl scan create 10.0.0.1 --kind port_scan --param ports=top_100 --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := parseParams(params)
			if err != nil {
				return err
			}
			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			scan, err := api.CreateScan(ctx, &models.CreateScanRequest{
				Target:     args[0],
				Kind:       models.ScanKind(strings.ToLower(kind)),
				Parameters: parameters,
			})
			if err != nil {
				return err
			}
			if c.jsonOutput() && !watch {
				return c.printJSON(scan)
			}
			if !c.jsonOutput() {
				c.printf("Scan %s created (%s on %s)\n", scan.ID, scan.Kind, scan.Target)
			}
			if !watch {
				return nil
			}
			return c.watch(cmd.Context(), api, scan.ID)
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Scan kind (see 'scanctl scan kinds')")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Scan parameter as key=value, repeatable")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the scan until it finishes")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func (c *cli) newScanGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			scan, err := api.GetScan(ctx, args[0])
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(scan)
			}
			printScan(c.out, scan)
			return nil
		},
	}
}

func (c *cli) newScanListCmd() *cobra.Command {
	var (
		opts   client.ScanListOptions
		status string
		kind   string
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List scans",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				opts.Status = models.ScanStatus(strings.ToUpper(status))
				if !opts.Status.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
			}
			if kind != "" {
				opts.Kind = models.ScanKind(strings.ToLower(kind))
			}

			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			scans, page, err := api.ListScans(ctx, opts)
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(scans)
			}
			printScans(c.out, scans)
			if page != nil {
				c.printf("\nPage %d of %d (%d scans)\n", page.Page, page.TotalPages, page.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only scans with this status")
	cmd.Flags().StringVar(&kind, "kind", "", "Only scans of this kind")
	cmd.Flags().StringVar(&opts.PolicyID, "policy", "", "Only scans created by this policy")
	cmd.Flags().StringVar(&opts.OwnerID, "owner", "", "Only scans of this owner (admin tokens)")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 20, "Scans per page")
	return cmd
}

func (c *cli) newScanFindingsCmd() *cobra.Command {
	var minSeverity string
	cmd := &cobra.Command{
		Use:   "findings <id>",
		Short: "Show the findings of a completed scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var floor models.Severity
			if minSeverity != "" {
				floor = models.ParseSeverity(minSeverity)
			}

			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			findings, err := api.ListFindings(ctx, args[0], floor)
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(findings)
			}
			printFindings(c.out, findings)
			return nil
		},
	}
	cmd.Flags().StringVar(&minSeverity, "min-severity", "", "Hide findings below this severity")
	return cmd
}

func (c *cli) newScanCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or running scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			scan, err := api.CancelScan(ctx, args[0])
			if err != nil {
				if errors.Is(err, client.ErrConflict) {
					return fmt.Errorf("scan %s can no longer be cancelled: %w", args[0], err)
				}
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(scan)
			}
			c.printf("Scan %s %s\n", scan.ID, colorStatus(scan.Status, strings.ToLower(string(scan.Status))))
			return nil
		},
	}
}

func (c *cli) newScanDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a scan and its findings",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			if err := api.DeleteScan(ctx, args[0]); err != nil {
				return err
			}
			if !c.jsonOutput() {
				c.printf("Scan %s deleted\n", args[0])
			}
			return nil
		},
	}
}

func (c *cli) newScanWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow the progress of a scan until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := c.client()
			if err != nil {
				return err
			}
			return c.watch(cmd.Context(), api, args[0])
		},
	}
}

// watch streams events until the scan finishes. It is not bound by --timeout.
func (c *cli) watch(ctx context.Context, api *client.APIClient, id string) error {
	var last models.ScanEvent
	err := api.WatchScan(ctx, id, func(event models.ScanEvent) error {
		last = event
		if c.jsonOutput() {
			return c.printJSON(event)
		}
		printEvent(c.out, event)
		return nil
	})
	if err != nil {
		return err
	}
	if last.Status == models.ScanStatusFailed {
		return fmt.Errorf("scan %s failed: %s", id, last.Message)
	}
	return nil
}
