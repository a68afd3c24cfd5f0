package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

var (
	colorRed     = color.New(color.FgRed, color.Bold).SprintFunc()
	colorMagenta = color.New(color.FgMagenta).SprintFunc()
	colorYellow  = color.New(color.FgYellow).SprintFunc()
	colorGreen   = color.New(color.FgGreen).SprintFunc()
	colorBlue    = color.New(color.FgBlue).SprintFunc()
	colorCyan    = color.New(color.FgCyan).SprintFunc()
	colorFaint   = color.New(color.Faint).SprintFunc()
)

func colorSeverity(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return colorRed(string(s))
	case models.SeverityHigh:
		return colorMagenta(string(s))
	case models.SeverityMedium:
		return colorYellow(string(s))
	case models.SeverityLow:
		return colorBlue(string(s))
	}
	return colorFaint(string(s))
}

// colorStatus colors text by the scan status it describes
func colorStatus(status models.ScanStatus, text string) string {
	switch status {
	case models.ScanStatusCompleted:
		return colorGreen(text)
	case models.ScanStatusFailed:
		return colorRed(text)
	case models.ScanStatusCancelled:
		return colorYellow(text)
	case models.ScanStatusRunning:
		return colorCyan(text)
	}
	return colorFaint(text)
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func printScans(out io.Writer, scans []models.ScanResponse) {
	table := newTable(out, "ID", "Kind", "Target", "Status", "Progress", "Created")
	for _, s := range scans {
		created := s.CreatedAt
		table.Append([]string{
			s.ID,
			string(s.Kind),
			s.Target,
			colorStatus(s.Status, string(s.Status)),
			fmt.Sprintf("%d%%", s.Progress),
			formatTime(&created),
		})
	}
	table.Render()
}

func printScan(out io.Writer, s *models.ScanResponse) {
	fmt.Fprintf(out, "ID:         %s\n", s.ID)
	fmt.Fprintf(out, "Kind:       %s\n", s.Kind)
	fmt.Fprintf(out, "Target:     %s\n", s.Target)
	fmt.Fprintf(out, "Status:     %s\n", colorStatus(s.Status, string(s.Status)))
	fmt.Fprintf(out, "Progress:   %d%%\n", s.Progress)
	if s.PolicyID != "" {
		fmt.Fprintf(out, "Policy:     %s\n", s.PolicyID)
	}
	if s.ProviderScanID != "" {
		fmt.Fprintf(out, "Provider:   scan %s, target %s\n", s.ProviderScanID, s.ProviderTargetID)
	}
	created := s.CreatedAt
	fmt.Fprintf(out, "Created:    %s\n", formatTime(&created))
	fmt.Fprintf(out, "Started:    %s\n", formatTime(s.StartedAt))
	fmt.Fprintf(out, "Completed:  %s\n", formatTime(s.CompletedAt))
	if s.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:      %s (%s)\n", colorRed(s.ErrorMessage), s.ErrorCode)
	}
}

func printFindings(out io.Writer, resp *models.FindingListResponse) {
	sum := resp.Summary
	fmt.Fprintf(out, "%d findings: %s critical, %s high, %s medium, %s low, %s info\n",
		sum.Total,
		colorRed(sum.Critical), colorMagenta(sum.High), colorYellow(sum.Medium),
		colorBlue(sum.Low), colorFaint(sum.Info))
	if len(resp.Findings) == 0 {
		return
	}

	table := newTable(out, "Severity", "Title", "Component", "CVE")
	for _, f := range resp.Findings {
		cve := f.CVEID
		if cve == "" {
			cve = "-"
		}
		table.Append([]string{colorSeverity(f.Severity), f.Title, f.AffectedComponent, cve})
	}
	table.Render()
}

func printPolicies(out io.Writer, policies []models.RecurrencePolicy) {
	table := newTable(out, "ID", "Name", "Kind", "Target", "Frequency", "Next Fire", "Runs", "Active")
	for _, p := range policies {
		runs := fmt.Sprint(p.RunCount)
		if p.MaxRuns != nil {
			runs += "/" + fmt.Sprint(*p.MaxRuns)
		}
		active := colorGreen("yes")
		if !p.Active {
			active = colorFaint("no")
		}
		table.Append([]string{
			p.ID, p.Name, string(p.Kind), p.Target, string(p.Frequency),
			formatTime(p.NextFireAt), runs, active,
		})
	}
	table.Render()
}

func printPolicy(out io.Writer, p *models.RecurrencePolicy) {
	fmt.Fprintf(out, "ID:         %s\n", p.ID)
	fmt.Fprintf(out, "Name:       %s\n", p.Name)
	fmt.Fprintf(out, "Kind:       %s\n", p.Kind)
	fmt.Fprintf(out, "Target:     %s\n", p.Target)
	fmt.Fprintf(out, "Frequency:  %s\n", p.Frequency)
	fmt.Fprintf(out, "Active:     %t\n", p.Active)
	fmt.Fprintf(out, "Next fire:  %s\n", formatTime(p.NextFireAt))
	fmt.Fprintf(out, "Last fire:  %s\n", formatTime(p.LastFireAt))
	runs := fmt.Sprint(p.RunCount)
	if p.MaxRuns != nil {
		runs += " of " + fmt.Sprint(*p.MaxRuns)
	}
	fmt.Fprintf(out, "Runs:       %s\n", runs)
	if p.LastScanID != "" {
		fmt.Fprintf(out, "Last scan:  %s\n", p.LastScanID)
	}
}

// printEvent renders one progress event as a single line
func printEvent(out io.Writer, e models.ScanEvent) {
	line := fmt.Sprintf("%s  %-15s %3d%%  %s",
		e.Timestamp.Local().Format("15:04:05"),
		colorStatus(e.Status, string(e.Status)),
		e.Progress,
		strings.TrimSpace(e.Message))
	if e.Summary != nil {
		line += fmt.Sprintf("  (%d findings: %d critical, %d high)", e.Summary.Total, e.Summary.Critical, e.Summary.High)
	}
	fmt.Fprintln(out, strings.TrimRight(line, " "))
}
