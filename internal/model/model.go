package model

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownModel = errors.New("unknown model")

type Family int

const (
	Normal Family = iota
	LogNormal
)

func (f Family) String() string {
	switch f {
	case Normal:
		return "normal"
	case LogNormal:
		return "lognormal"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// Term is either a constant or a reference to another node.
type Term struct {
	Value float64
	Ref   string
}

func Const(v float64) Term {
	return Term{Value: v}
}

func Ref(node string) Term {
	return Term{Ref: node}
}

func (t Term) IsRef() bool {
	return t.Ref != ""
}

func (t Term) String() string {
	if t.IsRef() {
		return t.Ref
	}
	return fmt.Sprintf("%g", t.Value)
}

// Dist is a prior. Scale is a standard deviation, or the log-scale standard
// deviation for LogNormal.
type Dist struct {
	Family Family
	Loc    Term
	Scale  Term
}

func (d Dist) String() string {
	return fmt.Sprintf("%s(%s, %s)", d.Family, d.Loc, d.Scale)
}

// Node is a stochastic parameter. A PerGenre node has one value per genre.
type Node struct {
	Name     string
	PerGenre bool
	Prior    Dist
}

// Likelihood names the nodes that make up
//
//	Popularity[i] ~ Normal(Intercept + Dance*Danceability[i] + Length*Length_standardized[i], Sigma^2)
type Likelihood struct {
	Intercept string
	Dance     string
	Length    string
	Sigma     string
}

// Model is a declarative description of priors and likelihood. Nodes are in
// dependency order: a node only references nodes that come before it.
type Model struct {
	Name       string
	Title      string
	Nodes      []Node
	Likelihood Likelihood
}

// Node returns the node with the given name.
func (m Model) Node(name string) (Node, bool) {
	for _, n := range m.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// Validate checks that references resolve to earlier nodes and that the
// likelihood names existing nodes.
func (m Model) Validate() error {
	if m.Name == "" {
		return errors.New("model has no name")
	}
	defined := make(map[string]bool)
	for _, n := range m.Nodes {
		if n.Name == "" {
			return fmt.Errorf("model %s: node with no name", m.Name)
		}
		if defined[n.Name] {
			return fmt.Errorf("model %s: duplicate node %q", m.Name, n.Name)
		}
		for _, t := range []Term{n.Prior.Loc, n.Prior.Scale} {
			if t.IsRef() && !defined[t.Ref] {
				return fmt.Errorf("model %s: node %q references %q before it is defined", m.Name, n.Name, t.Ref)
			}
		}
		if !n.Prior.Scale.IsRef() && n.Prior.Scale.Value <= 0 {
			return fmt.Errorf("model %s: node %q has non-positive scale %g", m.Name, n.Name, n.Prior.Scale.Value)
		}
		defined[n.Name] = true
	}

	l := m.Likelihood
	for role, name := range map[string]string{
		"intercept": l.Intercept,
		"dance":     l.Dance,
		"length":    l.Length,
		"sigma":     l.Sigma,
	} {
		if !defined[name] {
			return fmt.Errorf("model %s: likelihood %s node %q is not defined", m.Name, role, name)
		}
	}
	if sigma, _ := m.Node(l.Sigma); sigma.Prior.Family != LogNormal {
		return fmt.Errorf("model %s: noise scale %q must have a lognormal prior", m.Name, l.Sigma)
	}
	return nil
}

// HasGenreStructure reports whether any parameter is indexed by genre.
func (m Model) HasGenreStructure() bool {
	for _, n := range m.Nodes {
		if n.PerGenre {
			return true
		}
	}
	return false
}

// ParamName is the monitored name of a node value. Genre indices are 0-based
// here and 1-based in the name, matching the genre index of the dataset.
func ParamName(node string, j int) string {
	return fmt.Sprintf("%s[%d]", node, j+1)
}

func (n Node) ParamNames(genres int) []string {
	if !n.PerGenre {
		return []string{n.Name}
	}
	names := make([]string, genres)
	for j := range names {
		names[j] = ParamName(n.Name, j)
	}
	return names
}

// Parameters returns every monitored parameter name for a dataset with the
// given number of genres, in node order.
func (m Model) Parameters(genres int) []string {
	var names []string
	for _, n := range m.Nodes {
		names = append(names, n.ParamNames(genres)...)
	}
	return names
}

// GenreParameters returns the names of per-genre parameters.
func (m Model) GenreParameters(genres int) []string {
	var names []string
	for _, n := range m.Nodes {
		if n.PerGenre {
			names = append(names, n.ParamNames(genres)...)
		}
	}
	return names
}

// HyperParameters returns the nodes that only feed other priors, never the
// likelihood directly.
func (m Model) HyperParameters() []string {
	used := map[string]bool{
		m.Likelihood.Intercept: true,
		m.Likelihood.Dance:     true,
		m.Likelihood.Length:    true,
		m.Likelihood.Sigma:     true,
	}
	var names []string
	for _, n := range m.Nodes {
		if !used[n.Name] {
			names = append(names, n.Name)
		}
	}
	return names
}

// Children returns the nodes whose prior references name.
func (m Model) Children(name string) []Node {
	var out []Node
	for _, n := range m.Nodes {
		if n.Prior.Loc.Ref == name || n.Prior.Scale.Ref == name {
			out = append(out, n)
		}
	}
	return out
}

var registry = map[string]func() Model{
	"pooled":       Pooled,
	"unpooled":     Unpooled,
	"hierarchical": Hierarchical,
}

// All returns the three competing models.
func All() []Model {
	return []Model{Pooled(), Unpooled(), Hierarchical()}
}

func Names() []string {
	var names []string
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ByName(name string) (Model, error) {
	build, ok := registry[name]
	if !ok {
		return Model{}, fmt.Errorf("%w %q (expected one of %v)", ErrUnknownModel, name, Names())
	}
	return build(), nil
}
