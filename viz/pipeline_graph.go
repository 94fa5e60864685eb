// ABOUTME: Phase pipeline graph generation
// ABOUTME: Renders the registry's phases with deal counts through graphviz
package viz

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/harperreed/dealboard/models"
)

// PipelineGraph draws one node per phase in registry order, labelled with
// its deal count. format is "svg" or "dot".
func PipelineGraph(ctx context.Context, stats *BoardStatistics, reg *models.Registry, format string) ([]byte, error) {
	var out graphviz.Format
	switch format {
	case "svg", "":
		out = graphviz.SVG
	case "dot":
		out = graphviz.XDOT
	default:
		return nil, fmt.Errorf("unsupported graph format %q", format)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create graphviz: %w", err)
	}
	defer gv.Close()

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("failed to create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)
	graph.SetLabel(fmt.Sprintf("%d deals", stats.Total))

	counts := make(map[models.Phase]int, len(stats.ByPhase))
	for _, pc := range stats.ByPhase {
		counts[pc.Phase] = pc.Count
	}

	var prev *cgraph.Node
	for _, p := range reg.All() {
		node, err := graph.CreateNodeByName("phase_" + string(p.Key))
		if err != nil {
			return nil, fmt.Errorf("failed to create phase node: %w", err)
		}
		node.SetLabel(fmt.Sprintf("%s\n%d件", p.Label, counts[p.Key]))
		node.SetShape("box")
		node.SetStyle("filled")
		node.SetFillColor(phaseColor(p.Role, counts[p.Key]))

		if prev != nil {
			if _, err := graph.CreateEdgeByName("next_"+string(p.Key), prev, node); err != nil {
				return nil, fmt.Errorf("failed to create edge: %w", err)
			}
		}
		prev = node
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, out, &buf); err != nil {
		return nil, fmt.Errorf("failed to render graph: %w", err)
	}
	return buf.Bytes(), nil
}

func phaseColor(role models.PhaseRole, count int) string {
	switch {
	case role == models.RoleTerminal:
		return "lightgreen"
	case role != models.RoleNone:
		return "lightyellow"
	case count > 0:
		return "lightblue"
	default:
		return "white"
	}
}
