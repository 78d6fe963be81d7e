package cmd

import (
	"fmt"
	"io/fs"
	"path"

	"github.com/msalah0e/canopy/internal/hierarchy"
	"github.com/msalah0e/canopy/internal/ingest"
	"github.com/msalah0e/canopy/internal/ui"
	"github.com/spf13/cobra"
)

func samplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "samples",
		Short: "List the built-in sample hierarchies",
		Long: `List the hierarchies bundled with canopy. Pass them to any command as
sample:NAME, for example "canopy serve sample:org".`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			names, err := hierarchy.Samples(samplesFS, "samples")
			if err != nil {
				fatal("list samples: %v", err)
			}

			ui.Banner("samples")
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				root, err := loadInput(samplePrefix + name)
				if err != nil {
					rows = append(rows, []string{name, "-", "-", ui.Bad.Sprint(err.Error())})
					continue
				}
				visible := "-"
				if g, err := ingest.Ingest(root, cfg.Engine.ClusterThreshold); err == nil {
					visible = fmt.Sprint(g.Len())
				}
				rows = append(rows, []string{samplePrefix + name, fmt.Sprint(root.Len()), visible, sampleFile(name)})
			}
			ui.Table([]string{"SAMPLE", "NODES", "VISIBLE", "FILE"}, rows)
			fmt.Fprintln(ui.Out)
		},
	}
}

// sampleFile names the embedded file backing a sample.
func sampleFile(name string) string {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		p := path.Join("samples", name+ext)
		if _, err := fs.Stat(samplesFS, p); err == nil {
			return p
		}
	}
	return ""
}
