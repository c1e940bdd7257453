package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/depscanner/pkg/resolve"
)

// Options configures diagram generation.
type Options struct {
	// Detailed adds relation, licenses and advisory ids to node labels and
	// requirements to edges. When false, nodes show name@version only.
	Detailed bool
}

const (
	vulnerableFill = "#f8d7da"
	vulnerableLine = "#c0392b"
)

// ToDOT converts a graph view to Graphviz DOT format.
func ToDOT(g *resolve.GraphView, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontname=\"Helvetica\", fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=10, color=\"#555555\"];\n")
	buf.WriteString("  ranksep=0.6;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for i, d := range g.Dependencies {
		attrs := fmtAttrs(d, i == 0, fmtLabel(d, opts.Detailed))
		fmt.Fprintf(&buf, "  n%d [%s];\n", i, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges {
		if opts.Detailed && e.Requirement != "" {
			fmt.Fprintf(&buf, "  n%d -> n%d [label=%q];\n", e.FromNode, e.ToNode, e.Requirement)
			continue
		}
		fmt.Fprintf(&buf, "  n%d -> n%d;\n", e.FromNode, e.ToNode)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(d resolve.RelatedDependency, detailed bool) string {
	id := d.Name + "@" + d.Version
	if !detailed {
		return id
	}

	parts := []string{id}
	if d.Relation != "" {
		parts = append(parts, strings.ToLower(d.Relation))
	}
	if len(d.Licenses) > 0 {
		parts = append(parts, strings.Join(d.Licenses, ", "))
	}
	for _, a := range d.Advisories {
		parts = append(parts, a.ID)
	}
	return strings.Join(parts, "\n")
}

func fmtAttrs(d resolve.RelatedDependency, root bool, label string) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if d.Vulnerable() {
		attrs = append(attrs, fmt.Sprintf("fillcolor=%q", vulnerableFill), fmt.Sprintf("color=%q", vulnerableLine))
	}
	if root {
		attrs = append(attrs, "penwidth=2", "fontname=\"Helvetica-Bold\"")
	}
	if d.Bundled {
		attrs = append(attrs, "style=\"rounded,filled,dashed\"")
	}
	return attrs
}

// RenderSVG renders DOT source to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's pt-sized root element with a plain
// viewBox so the SVG scales in browsers.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
