package main

import (
	"fmt"
	"io"
	"os"

	"github.com/BjoernBoss/wasmlator-sub001/mapping"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/spf13/cobra"
)

func newGraphCmd(o *options) *cobra.Command {
	var (
		out   string
		units int
	)
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the translated blocks and their references as HTML",
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, blob, err := readProgram(o.program)
			if err != nil {
				return err
			}
			store, err := mapping.Open("", blob)
			if err != nil {
				return err
			}
			defer store.Close()

			s := &session{prog: prog, store: store, cfg: o.cfg.Translate, maxUnits: units}
			results, err := s.run(cmd.Context(), o.entry)
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			defer f.Close()
			return renderGraph(f, results)
		},
	}
	cmd.Flags().StringVar(&out, "out", "graph.html", "output file")
	cmd.Flags().IntVar(&units, "units", 1, "maximum number of units to translate")
	return cmd
}

func nodeName(address uint64) string {
	return fmt.Sprintf("0x%x", address)
}

// graphData has one node per exported block, colored by unit, plus the
// link targets no rendered unit exports.
func graphData(results []*result) ([]opts.GraphNode, []opts.GraphLink, []*opts.GraphCategory) {
	var nodes []opts.GraphNode
	var links []opts.GraphLink
	var categories []*opts.GraphCategory
	seen := make(map[uint64]bool)

	for i, r := range results {
		categories = append(categories, &opts.GraphCategory{Name: r.Name})
		for _, e := range r.Unit.Exports {
			seen[e.Address] = true
			nodes = append(nodes, opts.GraphNode{
				Name:     nodeName(e.Address),
				Category: i,
				Tooltip: &opts.Tooltip{
					Show:      opts.Bool(true),
					Formatter: types.FuncStr(fmt.Sprintf("%s in %s", e.Name, r.Name)),
				},
			})
		}
	}
	categories = append(categories, &opts.GraphCategory{Name: "linked"})
	for _, r := range results {
		for _, l := range r.Unit.Links {
			if seen[l.Address] {
				continue
			}
			seen[l.Address] = true
			nodes = append(nodes, opts.GraphNode{Name: nodeName(l.Address), Category: len(categories) - 1})
		}
		for _, e := range r.Unit.Edges {
			links = append(links, opts.GraphLink{Source: nodeName(e.From), Target: nodeName(e.To)})
		}
	}
	return nodes, links, categories
}

func renderGraph(w io.Writer, results []*result) error {
	nodes, links, categories := graphData(results)
	graph := charts.NewGraph()
	graph.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Translation units",
			Subtitle: "Blocks and their direct references",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	graph.AddSeries("blocks", nodes, links).SetSeriesOptions(
		charts.WithGraphChartOpts(opts.GraphChart{
			Force:      &opts.GraphForce{Repulsion: 800, Gravity: 0.2},
			Layout:     "force",
			Roam:       opts.Bool(true),
			Categories: categories,
		}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "right", Formatter: "{b}"}),
	)
	page := components.NewPage()
	page.AddCharts(graph)
	return page.Render(w)
}
