package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/depscanner/pkg/depsdev"
	"github.com/matzehuels/depscanner/pkg/scan"
	"github.com/matzehuels/depscanner/pkg/store"
)

func testReportModel(rows int) ReportModel {
	r := &scan.Report{ScanID: "scan-1", Visited: 40}
	for i := range rows {
		r.Vulnerable = append(r.Vulnerable, scan.VulnerableDependency{
			Dependency:   store.VersionKey{System: "NPM", Name: "lib-" + string(rune('a'+i)), Version: "1.0.0"},
			AdvisoryKeys: []string{"GHSA-" + string(rune('a'+i))},
		})
	}
	advisories := map[string]*depsdev.Advisory{
		"GHSA-a": {AdvisoryKey: depsdev.AdvisoryKey{ID: "GHSA-a"}, Title: "Prototype pollution", CVSS3Score: 7.5, URL: "https://osv.dev/vulnerability/GHSA-a"},
		"GHSA-b": nil,
	}
	return NewReportModel(r, advisories)
}

func press(m tea.Model, key string) tea.Model {
	var msg tea.KeyMsg
	switch key {
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	m, _ = m.Update(msg)
	return m
}

func TestReportModelNavigation(t *testing.T) {
	var m tea.Model = testReportModel(15)

	rm := m.(ReportModel)
	rm.Height = 5
	m = rm

	m = press(m, "up")
	if got := m.(ReportModel).Cursor; got != 0 {
		t.Errorf("cursor after up at top = %d, want 0", got)
	}
	for range 6 {
		m = press(m, "down")
	}
	rm = m.(ReportModel)
	if rm.Cursor != 6 || rm.Offset != 2 {
		t.Errorf("cursor, offset = %d, %d; want 6, 2", rm.Cursor, rm.Offset)
	}

	m = press(m, "G")
	rm = m.(ReportModel)
	if rm.Cursor != 14 || rm.Offset != 10 {
		t.Errorf("after G cursor, offset = %d, %d; want 14, 10", rm.Cursor, rm.Offset)
	}
	m = press(m, "down")
	if got := m.(ReportModel).Cursor; got != 14 {
		t.Errorf("cursor moved past the last row: %d", got)
	}

	m = press(m, "g")
	rm = m.(ReportModel)
	if rm.Cursor != 0 || rm.Offset != 0 {
		t.Errorf("after g cursor, offset = %d, %d; want 0, 0", rm.Cursor, rm.Offset)
	}
}

func TestReportModelQuit(t *testing.T) {
	m := testReportModel(1)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestReportModelView(t *testing.T) {
	m := testReportModel(2)
	view := m.View()
	for _, want := range []string{"Scan scan-1", "lib-a", "lib-b", "7.5", "Prototype pollution", "https://osv.dev/vulnerability/GHSA-a", "[1/2]"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	m = press(m, "down").(ReportModel)
	view = m.View()
	if !strings.Contains(view, "GHSA-b") || !strings.Contains(view, "(no detail)") {
		t.Errorf("detail of second row:\n%s", view)
	}
}
