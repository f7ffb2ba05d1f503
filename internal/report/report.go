// Package report renders pass summaries for people: a go-pretty table for
// terminals and the text trigger response.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/recap/devmon/internal/types"
)

// OfflineDevices lists offline devices as "<key> (<age>s)" in summary order
func OfflineDevices(summary types.Summary) []string {
	out := make([]string, 0, summary.Offline)
	for _, d := range summary.Devices {
		if d.IsOffline {
			out = append(out, fmt.Sprintf("%s (%ds)", d.DeviceKey, d.AgeSeconds))
		}
	}
	return out
}

// Render formats a summary as a header block followed by a device table
func Render(summary types.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Pass %s at %s\n", summary.PassID, summary.CheckedAt.UTC().Format(time.RFC3339))
	if summary.Filter != "" {
		fmt.Fprintf(&b, "Device filter: %s\n", summary.Filter)
	}
	fmt.Fprintf(&b, "Total: %d  Online: %d  Offline: %d  With issues: %d  Alerts: %d\n",
		summary.Total, summary.Online, summary.Offline, summary.Issues, len(summary.Alerts))

	if len(summary.Devices) > 0 {
		b.WriteString("\n")
		b.WriteString(deviceTable(summary))
		b.WriteString("\n")
	}

	if len(summary.Alerts) > 0 {
		b.WriteString("\nAlerts:\n")
		for _, a := range summary.Alerts {
			fmt.Fprintf(&b, "- %s %s (%s -> %s)\n", a.DeviceKey, a.Kind, a.Previous, a.Current)
		}
	}

	if len(summary.Failures) > 0 {
		b.WriteString("\nFailures:\n")
		for _, f := range summary.Failures {
			fmt.Fprintf(&b, "- %s [%s]: %s\n", f.DeviceKey, f.Stage, f.Error)
		}
	}

	return b.String()
}

func deviceTable(summary types.Summary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Device", "State", "Age", "Last Seen", "Issues"})

	for _, d := range summary.Devices {
		lastSeen := "-"
		if !d.LastSeen.IsZero() {
			lastSeen = d.LastSeen.UTC().Format(time.RFC3339)
		}
		issues := "-"
		if len(d.Issues) > 0 {
			issues = strings.Join(d.Issues, "; ")
		}
		tw.AppendRow(table.Row{d.DeviceKey, d.State(), strconv.FormatInt(d.AgeSeconds, 10) + "s", lastSeen, issues})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
