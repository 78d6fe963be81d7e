package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/msalah0e/canopy/internal/graph"
	"github.com/msalah0e/canopy/internal/ingest"
	"github.com/msalah0e/canopy/internal/ui"
	"github.com/spf13/cobra"
)

func treeCmd() *cobra.Command {
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "tree <file|sample:NAME>",
		Short: "Print the initially visible tree",
		Long: `Ingest a hierarchy and print what a viewer first sees. Collapsed nodes
(●) show how many children they hide; expanded nodes (○) list theirs.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeInputs,
		Run: func(cmd *cobra.Command, args []string) {
			root, err := loadInput(args[0])
			if err != nil {
				fatal("%v", err)
			}
			g, err := ingest.Ingest(root, cfg.Engine.ClusterThreshold)
			if err != nil {
				fatal("%v", err)
			}

			ui.Banner(fmt.Sprintf("tree · threshold %d", cfg.Engine.ClusterThreshold))
			printTree(ui.Out, g, maxDepth)
			s := g.Stats()
			fmt.Fprintf(ui.Out, "\n  %d visible of %d total · %d collapsed\n\n", s.Nodes, root.Len(), s.Collapsed)
		},
	}
	cmd.Flags().IntVar(&maxDepth, "depth", 0, "Stop at this depth (0 = no limit)")
	return cmd
}

// printTree writes the visible graph as an indented tree.
func printTree(w io.Writer, g *graph.Graph, maxDepth int) {
	root := g.Root()
	if root == nil {
		return
	}
	fmt.Fprintf(w, "  %s\n", treeLabel(root))
	printChildren(w, g, root, "  ", maxDepth)
}

func printChildren(w io.Writer, g *graph.Graph, n *graph.Node, prefix string, maxDepth int) {
	if maxDepth > 0 && n.Depth >= maxDepth {
		if len(n.VisibleChildren) > 0 {
			fmt.Fprintf(w, "%s└── %s\n", prefix, ui.Subtle.Sprintf("… %d more", len(n.VisibleChildren)))
		}
		return
	}
	for i, id := range n.VisibleChildren {
		child := g.Node(id)
		if child == nil {
			continue
		}
		branch, next := "├── ", "│   "
		if i == len(n.VisibleChildren)-1 {
			branch, next = "└── ", "    "
		}
		fmt.Fprintf(w, "%s%s%s\n", prefix, branch, treeLabel(child))
		printChildren(w, g, child, prefix+next, maxDepth)
	}
}

func treeLabel(n *graph.Node) string {
	var b strings.Builder
	b.WriteString(ui.StateIcon(n.State == graph.Collapsed))
	b.WriteString(" ")
	b.WriteString(n.ID)
	if title := nodeTitle(n); title != "" && title != n.ID {
		b.WriteString(ui.Subtle.Sprintf(" %q", title))
	}
	if n.State == graph.Collapsed {
		b.WriteString(" ")
		b.WriteString(ui.Collapsed.Sprintf("[+%d]", n.ChildCount))
	}
	return b.String()
}

// nodeTitle returns the optional "title" payload field.
func nodeTitle(n *graph.Node) string {
	if n.Source == nil {
		return ""
	}
	title, _ := n.Source.Payload["title"].(string)
	return title
}
