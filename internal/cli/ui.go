package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/depscanner/pkg/depsdev"
	"github.com/matzehuels/depscanner/pkg/resolve"
	"github.com/matzehuels/depscanner/pkg/scan"
	"github.com/matzehuels/depscanner/pkg/store"
)

// stdout receives all command output. Tests replace it.
var stdout io.Writer = os.Stdout

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors, vulnerable
	colorBlue   = lipgloss.Color("75")  // Light blue - links
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Styles
// =============================================================================

var (
	StyleTitle      = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	StyleLink       = lipgloss.NewStyle().Foreground(colorBlue).Underline(true)
	StyleDim        = lipgloss.NewStyle().Foreground(colorDim)
	StyleValue      = lipgloss.NewStyle().Foreground(colorWhite)
	StyleSuccess    = lipgloss.NewStyle().Foreground(colorGreen)
	StyleWarning    = lipgloss.NewStyle().Foreground(colorYellow)
	StyleVulnerable = lipgloss.NewStyle().Foreground(colorRed).Bold(true)

	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleHeader  = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	styleBorder  = lipgloss.NewStyle().Foreground(colorDim)
	styleCommand = lipgloss.NewStyle().Foreground(colorBlue)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(format string, args ...any) {
	fmt.Fprintln(stdout, styleIconSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	fmt.Fprintln(stdout, styleIconError.Render(iconError)+" "+fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(stdout, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(format string, args ...any) {
	fmt.Fprintln(stdout, styleIconInfo.Render(iconInfo)+" "+fmt.Sprintf(format, args...))
}

// printDetail prints an indented, dimmed line.
func printDetail(format string, args ...any) {
	fmt.Fprintln(stdout, "  "+StyleDim.Render(fmt.Sprintf(format, args...)))
}

func printFile(path string) {
	fmt.Fprintln(stdout, "  "+StyleDim.Render(iconArrow)+" "+StyleValue.Render(path))
}

func printKeyValue(key, value string) {
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(12)
	fmt.Fprintln(stdout, keyStyle.Render(key)+" "+StyleValue.Render(value))
}

func printNextStep(description, cmd string) {
	fmt.Fprintln(stdout, StyleDim.Render(description+":")+" "+styleCommand.Render(cmd))
}

// printStats prints dim "a · b · c" facts on one line.
func printStats(parts ...string) {
	var b strings.Builder
	b.WriteString("  ")
	for i, part := range parts {
		if i > 0 {
			b.WriteString(StyleDim.Render(" · "))
		}
		b.WriteString(StyleDim.Render(part))
	}
	fmt.Fprintln(stdout, b.String())
}

// newTable returns a rounded table in the CLI palette.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleBorder).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

// coordinate renders a key the way the commands accept it.
func coordinate(k store.VersionKey) string {
	return k.System + ":" + k.Name + "@" + k.Version
}

// =============================================================================
// Domain Output
// =============================================================================

func printReport(r *scan.Report) {
	stats := []string{
		fmt.Sprintf("%d versions", r.Visited),
		r.Duration.Round(time.Millisecond).String(),
	}
	if r.Failed > 0 {
		stats = append(stats, fmt.Sprintf("%d unresolved", r.Failed))
	}
	if r.Truncated {
		stats = append(stats, "truncated")
	}

	if r.Clean() {
		printSuccess("No advisories found")
		printStats(stats...)
		return
	}

	printWarning("%d vulnerable versions", len(r.Vulnerable))
	t := newTable("Dependency", "Advisories")
	for _, v := range r.Vulnerable {
		t.Row(coordinate(v.Dependency), strings.Join(v.AdvisoryKeys, ", "))
	}
	fmt.Fprintln(stdout, t.Render())
	printStats(stats...)
	printDetail("scan %s", r.ScanID)
}

// printCheck lists every requested key with its vulnerability status.
// Keys absent from results are known and clean.
func printCheck(keys []store.VersionKey, results []resolve.VulnCheckResult) {
	status := make(map[store.VersionKey]bool, len(results))
	for _, r := range results {
		status[store.VersionKey{System: r.System, Name: r.Name, Version: r.Version}] = r.IsDataAvailable
	}

	t := newTable("Dependency", "Status")
	for _, k := range keys {
		label := StyleSuccess.Render("clean")
		if vulnerable, listed := status[k]; listed {
			if vulnerable {
				label = StyleVulnerable.Render("vulnerable")
			} else {
				label = StyleDim.Render("not cached")
			}
		}
		t.Row(coordinate(k), label)
	}
	fmt.Fprintln(stdout, t.Render())
}

func printPackage(p *depsdev.Package) {
	printKeyValue("Package", p.PackageKey.String())
	printKeyValue("Versions", strconv.Itoa(len(p.Versions)))
	t := newTable("Version", "Published", "Default")
	for _, v := range p.Versions {
		def := ""
		if v.IsDefault {
			def = iconSuccess
		}
		t.Row(v.VersionKey.Version, formatDate(v.PublishedAt), def)
	}
	fmt.Fprintln(stdout, t.Render())
}

func printVersion(v *depsdev.Version) {
	printKeyValue("Version", coordinate(v.VersionKey))
	printKeyValue("Published", formatDate(v.PublishedAt))
	printKeyValue("Default", strconv.FormatBool(v.IsDefault))
	printKeyValue("Licenses", joinOr(v.Licenses, "-"))
	if ids := v.AdvisoryIDs(); len(ids) > 0 {
		printKeyValue("Advisories", StyleVulnerable.Render(strings.Join(ids, ", ")))
	} else {
		printKeyValue("Advisories", "-")
	}
	for _, l := range v.Links {
		printKeyValue(strings.ToLower(l.Label), StyleLink.Render(l.URL))
	}
}

func printGraph(g *resolve.GraphView) {
	vulnerable := 0
	for _, d := range g.Dependencies {
		if d.Vulnerable() {
			vulnerable++
		}
	}
	printKeyValue("Root", coordinate(g.Root))
	printKeyValue("Captured", formatDate(g.CapturedAt))
	printStats(
		fmt.Sprintf("%d nodes", len(g.Dependencies)),
		fmt.Sprintf("%d edges", len(g.Edges)),
		fmt.Sprintf("%d vulnerable", vulnerable),
	)

	t := newTable("Dependency", "Relation", "Licenses", "Advisories")
	for _, d := range g.Dependencies {
		ids := make([]string, len(d.Advisories))
		for i, a := range d.Advisories {
			ids[i] = a.ID
		}
		t.Row(coordinate(d.VersionKey), strings.ToLower(d.Relation), joinOr(d.Licenses, ""), strings.Join(ids, ", "))
	}
	fmt.Fprintln(stdout, t.Render())
}

func printAdvisory(a *depsdev.Advisory) {
	printKeyValue("Advisory", a.AdvisoryKey.ID)
	printKeyValue("Title", a.Title)
	if a.CVSS3Score > 0 {
		printKeyValue("CVSS3", fmt.Sprintf("%.1f %s", a.CVSS3Score, a.CVSS3Vector))
	}
	printKeyValue("Aliases", joinOr(a.Aliases, "-"))
	printKeyValue("URL", StyleLink.Render(a.URL))
}

// =============================================================================
// Utilities
// =============================================================================

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func joinOr(values []string, empty string) string {
	if len(values) == 0 {
		return empty
	}
	return strings.Join(values, ", ")
}
