package model

import (
	"fmt"
	"strings"
)

// Names of the observed variables in generated JAGS code.
const (
	DataN            = "N"
	DataJ            = "J"
	DataPopularity   = "popularity"
	DataDanceability = "danceability"
	DataLength       = "length_std"
	DataGenre        = "genre"
)

// JAGS renders the model in the BUGS dialect understood by JAGS. JAGS
// parameterizes normals by precision, so every scale is converted with
// 1/sd^2.
func (m Model) JAGS() string {
	var b strings.Builder
	b.WriteString("model {\n")

	inLoop := false
	for _, n := range m.Nodes {
		if n.PerGenre && !inLoop {
			fmt.Fprintf(&b, "  for (j in 1:%s) {\n", DataJ)
			inLoop = true
		}
		if !n.PerGenre && inLoop {
			b.WriteString("  }\n")
			inLoop = false
		}
		indent, target := "  ", n.Name
		if n.PerGenre {
			indent, target = "    ", n.Name+"[j]"
		}
		fmt.Fprintf(&b, "%s%s ~ %s\n", indent, target, jagsDist(n.Prior))
	}
	if inLoop {
		b.WriteString("  }\n")
	}

	l := m.Likelihood
	fmt.Fprintf(&b, "  for (i in 1:%s) {\n", DataN)
	fmt.Fprintf(&b, "    %s[i] ~ dnorm(%s + %s * %s[i] + %s * %s[i], pow(%s, -2))\n",
		DataPopularity,
		m.jagsRef(l.Intercept), m.jagsRef(l.Dance), DataDanceability,
		m.jagsRef(l.Length), DataLength, m.jagsRef(l.Sigma))
	b.WriteString("  }\n")
	b.WriteString("}\n")
	return b.String()
}

func (m Model) jagsRef(name string) string {
	if n, ok := m.Node(name); ok && n.PerGenre {
		return fmt.Sprintf("%s[%s[i]]", name, DataGenre)
	}
	return name
}

func jagsDist(d Dist) string {
	fn := "dnorm"
	if d.Family == LogNormal {
		fn = "dlnorm"
	}
	return fmt.Sprintf("%s(%s, %s)", fn, d.Loc, precision(d.Scale))
}

func precision(scale Term) string {
	if scale.IsRef() {
		return fmt.Sprintf("pow(%s, -2)", scale.Ref)
	}
	return fmt.Sprintf("%g", 1/(scale.Value*scale.Value))
}
