package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-unitgate/coverage"
	"github.com/ethereum-optimism/infra/op-unitgate/runner"
	"github.com/ethereum-optimism/infra/op-unitgate/types"
)

const maxDetailRunes = 80

// AggregationSummary describes the aggregate coverage artifact
type AggregationSummary struct {
	Destination string       `json:"destination"`
	Sources     []string     `json:"sources"`
	Bytes       int64        `json:"bytes"`
	Status      types.Status `json:"status"`
}

// Summary is the complete record of a gate run
type Summary struct {
	RunID       string               `json:"run_id"`
	PackageName string               `json:"package_name"`
	Phases      []types.Phase        `json:"phases"`
	Run         *runner.RunResult    `json:"run,omitempty"`
	Coverage    *coverage.GateResult `json:"coverage,omitempty"`
	Aggregation *AggregationSummary  `json:"aggregation,omitempty"`
	ExitCode    int                  `json:"exit_code"`
	Duration    time.Duration        `json:"duration"`
	Error       string               `json:"error,omitempty"`
}

// RenderTable prints the summary as a table
func RenderTable(w io.Writer, s Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Unit Test Gate: %s (%s)", displayName(s.PackageName), formatDuration(s.Duration)))

	t.AppendHeader(table.Row{"Phase", "Step", "Duration", "Exit Code", "Status", "Details"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Phase", AutoMerge: true},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Exit Code", Align: text.AlignRight},
		{Name: "Details", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	if s.Run != nil {
		for i, a := range s.Run.Attempts {
			prefix := "├──"
			if i == len(s.Run.Attempts)-1 {
				prefix = "└──"
			}
			status := types.StatusFail
			if a.Succeeded() {
				status = types.StatusPass
			}
			t.AppendRow(table.Row{
				"Tests",
				fmt.Sprintf("%s attempt %d", prefix, a.Number),
				formatDuration(a.Duration),
				a.ExitCode,
				getResultString(status),
				firstLine(a.Error),
			})
		}
		t.AppendSeparator()
	}

	if s.Coverage != nil {
		t.AppendRow(table.Row{
			"Coverage",
			"check-coverage",
			formatDuration(s.Coverage.Duration),
			s.Coverage.ExitCode,
			getResultString(s.Coverage.Status),
			fmt.Sprintf("%d data file(s), thresholds b%d/f%d/l%d/s%d",
				len(s.Coverage.DataFiles),
				s.Coverage.Thresholds.Branches,
				s.Coverage.Thresholds.Functions,
				s.Coverage.Thresholds.Lines,
				s.Coverage.Thresholds.Statements),
		})
		t.AppendSeparator()
	}

	if s.Aggregation != nil {
		t.AppendRow(table.Row{
			"Aggregate",
			s.Aggregation.Destination,
			"-",
			"-",
			getResultString(s.Aggregation.Status),
			fmt.Sprintf("%d report(s), %d bytes", len(s.Aggregation.Sources), s.Aggregation.Bytes),
		})
		t.AppendSeparator()
	}

	if s.ExitCode == 0 {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"EXIT",
		"",
		formatDuration(s.Duration),
		s.ExitCode,
		getResultString(exitStatus(s.ExitCode)),
		firstLine(s.Error),
	})

	t.Render()
}

func exitStatus(code int) types.Status {
	if code == 0 {
		return types.StatusPass
	}
	return types.StatusFail
}

// getResultString returns a string representing the result
func getResultString(status types.Status) string {
	switch status {
	case types.StatusPass:
		return "✓ pass"
	case types.StatusSkipped:
		return "- skip"
	default:
		return "✗ fail"
	}
}

func displayName(pkg string) string {
	if pkg == "" {
		return "<no package>"
	}
	return pkg
}

// firstLine returns the first line of s, cut to maxDetailRunes runes
func firstLine(s string) string {
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[:idx]
	}
	if utf8.RuneCountInString(s) > maxDetailRunes {
		return string([]rune(s)[:maxDetailRunes-3]) + "..."
	}
	return s
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
