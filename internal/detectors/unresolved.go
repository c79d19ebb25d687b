package detectors

import (
	"fmt"

	"avmdis/internal/analysis"
)

// TagUnresolved marks references whose index the name pool does not cover.
const TagUnresolved = "unresolved"

// Unresolved tags unresolved cross-references, or drops them when Drop is set.
type Unresolved struct {
	Drop bool
}

func (d Unresolved) Detect(xrefs []analysis.Xref) []analysis.Xref {
	result := make([]analysis.Xref, 0, len(xrefs))
	for _, x := range xrefs {
		if !x.Resolved {
			if d.Drop {
				continue
			}
			if !x.HasTag(TagUnresolved) {
				x.Tags = append(append([]string(nil), x.Tags...), TagUnresolved)
			}
			x.Comment = joinComment(x.Comment, fmt.Sprintf("pool index %d has no name", x.Index))
		}
		result = append(result, x)
	}
	return result
}
