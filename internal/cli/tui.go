package cli

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/depscanner/pkg/depsdev"
	"github.com/matzehuels/depscanner/pkg/scan"
)

var (
	listDimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	detailTitle    = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	detailBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDim).Padding(0, 1)
)

// =============================================================================
// ReportModel - Interactive browser for scan findings
// =============================================================================

// ReportModel is the bubbletea model listing the vulnerable versions of a
// report, with the advisories of the selected row shown below the table.
type ReportModel struct {
	Report     *scan.Report
	Advisories map[string]*depsdev.Advisory // nil entries: detail unavailable
	Cursor     int
	Offset     int
	Height     int
}

// NewReportModel creates a browser over report. advisories may be partial.
func NewReportModel(report *scan.Report, advisories map[string]*depsdev.Advisory) ReportModel {
	return ReportModel{
		Report:     report,
		Advisories: advisories,
		Height:     10,
	}
}

func (m ReportModel) Init() tea.Cmd {
	return nil
}

func (m ReportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	rows := len(m.Report.Vulnerable)
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < rows-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "home", "g":
			m.Cursor, m.Offset = 0, 0
		case "end", "G":
			m.Cursor = max(rows-1, 0)
			m.Offset = max(rows-m.Height, 0)
		}
	case tea.WindowSizeMsg:
		// Leave room for the header and the detail box.
		m.Height = max(msg.Height/2-4, 3)
		if m.Cursor >= m.Offset+m.Height {
			m.Offset = m.Cursor - m.Height + 1
		}
	}
	return m, nil
}

func (m ReportModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(fmt.Sprintf("Scan %s", m.Report.ScanID)))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  g/G first/last  q quit"))
	b.WriteString("\n\n")

	vulnerable := m.Report.Vulnerable
	end := min(m.Offset+m.Height, len(vulnerable))

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		v := vulnerable[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{
			cursor,
			v.Dependency.Name,
			v.Dependency.Version,
			v.Dependency.System,
			strconv.Itoa(len(v.AdvisoryKeys)),
			m.maxScore(v.AdvisoryKeys),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleBorder).
		Headers("", "Dependency", "Version", "System", "Advisories", "CVSS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			if m.Offset+row == m.Cursor {
				return lipgloss.NewStyle().Foreground(colorRed).Bold(true)
			}
			return lipgloss.NewStyle().Foreground(colorGray)
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	if len(vulnerable) > 0 {
		b.WriteString(m.detail())
		b.WriteString("\n")
	}
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]  %d versions visited", m.Cursor+1, len(vulnerable), m.Report.Visited)))

	return b.String()
}

// detail renders the advisories of the selected row.
func (m ReportModel) detail() string {
	v := m.Report.Vulnerable[m.Cursor]
	var lines []string
	lines = append(lines, detailTitle.Render(coordinate(v.Dependency)))
	for _, id := range v.AdvisoryKeys {
		adv := m.Advisories[id]
		if adv == nil {
			lines = append(lines, "  "+StyleVulnerable.Render(id)+" "+listDimStyle.Render("(no detail)"))
			continue
		}
		line := "  " + StyleVulnerable.Render(id)
		if adv.CVSS3Score > 0 {
			line += " " + StyleWarning.Render(fmt.Sprintf("%.1f", adv.CVSS3Score))
		}
		line += " " + adv.Title
		lines = append(lines, line)
		if adv.URL != "" {
			lines = append(lines, "    "+StyleLink.Render(adv.URL))
		}
	}
	return detailBoxStyle.Render(strings.Join(lines, "\n"))
}

// maxScore returns the highest known CVSS3 score among ids, or "-".
func (m ReportModel) maxScore(ids []string) string {
	best := 0.0
	for _, id := range ids {
		if adv := m.Advisories[id]; adv != nil && adv.CVSS3Score > best {
			best = adv.CVSS3Score
		}
	}
	if best == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", best)
}
