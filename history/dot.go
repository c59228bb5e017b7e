package history

import (
	"bufio"
	"fmt"
	"io"
)

// WriteDOT writes the graph in Graphviz form. Nodes are clustered by feature
// and edges point from child to parent. Dead nodes are dashed and edges of
// superseded evaluations dotted.
func (g *Graph) WriteDOT(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph history {")
	fmt.Fprintln(bw, "  rankdir=BT;")
	fmt.Fprintln(bw, "  node [shape=box, fontname=monospace];")

	nodes := make([]Node, 0, len(g.nodes))
	for n := range g.nodes {
		nodes = append(nodes, n)
	}
	g.sortNodes(nodes)

	for i := 0; i < len(nodes); {
		f := nodes[i].Feature
		label := f.Short()
		if st, ok := g.features[f]; ok {
			label = fmt.Sprintf("%s epoch %d", f.Short(), st.epoch)
			if st.removed {
				label += " (removed)"
			}
		}
		fmt.Fprintf(bw, "  subgraph \"cluster_%s\" {\n", f)
		fmt.Fprintf(bw, "    label=%q;\n", label)
		for ; i < len(nodes) && nodes[i].Feature == f; i++ {
			n := nodes[i]
			style := ""
			if !g.isLive(n) {
				style = ", style=dashed"
			}
			fmt.Fprintf(bw, "    %q [label=%q%s];\n", dotID(n), n.ID.Short(), style)
		}
		fmt.Fprintln(bw, "  }")
	}

	for _, e := range g.edges {
		var attrs string
		switch {
		case e.link:
			attrs = " [color=blue]"
		case g.features[e.feature] != nil && g.features[e.feature].epoch != e.epoch:
			attrs = " [style=dotted]"
		}
		fmt.Fprintf(bw, "  %q -> %q%s;\n", dotID(e.to), dotID(e.from), attrs)
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func dotID(n Node) string {
	return n.Feature.String() + "/" + n.ID.String()
}
