package pipeline

import (
	"fmt"
	"strings"
)

// Describe renders the executor's graph as a mermaid flowchart.
func (e *Executor) Describe() string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	b.WriteString("    ingest[Ingest] --> gate{Gate}\n")
	b.WriteString("    gate -->|halt| terminal([Terminal])\n")
	for i, a := range e.analyzers {
		id := e.writers[i].Name
		fmt.Fprintf(&b, "    gate -->|proceed| %s[%s Analysis]\n", id, a.Name())
		fmt.Fprintf(&b, "    %s --> barrier((Barrier))\n", id)
	}
	b.WriteString("    barrier --> aggregate[Aggregate]\n")
	b.WriteString("    aggregate --> terminal\n")
	return b.String()
}
