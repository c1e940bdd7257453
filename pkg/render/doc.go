// Package render draws a version's dependency graph as a node-link diagram.
//
// [ToDOT] produces Graphviz DOT source from a [resolve.GraphView]; [RenderSVG]
// lays it out with Graphviz (compiled to WebAssembly, no system install
// needed). Vulnerable nodes are filled red, and the root is drawn bold.
//
//	dot := render.ToDOT(view, render.Options{Detailed: true})
//	svg, err := render.RenderSVG(ctx, dot)
//
// [resolve.GraphView]: github.com/matzehuels/depscanner/pkg/resolve.GraphView
package render
