package graph

import (
	"fmt"
	"io"
	"text/template"

	"github.com/Masterminds/sprig"
)

type (
	dotGraph struct {
		Name    string
		State   State
		Pending State
		Top     []dotNode
		Bins    []dotBin
		Edges   []dotEdge
	}

	dotBin struct {
		Name  string
		State State
		Nodes []dotNode
	}

	dotNode struct {
		ID    string
		Name  string
		Kind  Kind
		State State
	}

	dotEdge struct {
		From, To string
		Pad      int
	}
)

var dotTemplate = template.Must(template.New("dot").Funcs(sprig.TxtFuncMap()).Parse(`digraph {{ .Name | quote }} {
  label={{ printf "%s [%v pending %v]" .Name .State .Pending | quote }};
  rankdir=LR;
  node [shape=box, fontsize=10];
{{- range .Top }}
  {{ .ID }} [label={{ printf "%s\n%v %v" .Name .Kind .State | quote }}];
{{- end }}
{{- range $i, $b := .Bins }}
  subgraph cluster_{{ $i }} {
    label={{ printf "%s [%v]" $b.Name $b.State | quote }};
{{- range $b.Nodes }}
    {{ .ID }} [label={{ printf "%s\n%v %v" .Name .Kind .State | quote }}];
{{- end }}
  }
{{- end }}
{{- range .Edges }}
  {{ .From }} -> {{ .To }}{{ if ge .Pad 0 }} [label={{ printf "ch%d" .Pad | quote }}]{{ end }};
{{- end }}
}
`))

// DumpDot writes a snapshot of the pipeline in graphviz DOT format, for
// debugging graph wiring.
func (p *Pipeline) DumpDot(w io.Writer) error {
	p.mu.Lock()
	g := dotGraph{Name: p.name, State: p.state, Pending: p.pending}
	ids := map[*Element]string{}
	node := func(e *Element) dotNode {
		id := fmt.Sprintf("e%d", len(ids))
		ids[e] = id
		return dotNode{ID: id, Name: e.name, Kind: e.Kind(), State: e.state}
	}
	for _, e := range p.elements {
		g.Top = append(g.Top, node(e))
	}
	for _, b := range p.bins {
		db := dotBin{Name: b.name, State: b.state}
		for _, e := range b.elements {
			db.Nodes = append(db.Nodes, node(e))
		}
		g.Bins = append(g.Bins, db)
	}
	for _, e := range p.allElementsLocked() {
		for _, l := range e.outputs {
			if to, ok := ids[l.dst]; ok {
				g.Edges = append(g.Edges, dotEdge{From: ids[e], To: to, Pad: l.pad})
			}
		}
	}
	p.mu.Unlock()
	return dotTemplate.Execute(w, g)
}
