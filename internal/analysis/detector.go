package analysis

// Detector enriches cross-references with pattern-specific information.
// It may tag, comment on or drop entries.
type Detector interface {
	Detect(xrefs []Xref) []Xref
}

// DetectorFunc adapts a plain function to Detector.
type DetectorFunc func([]Xref) []Xref

func (f DetectorFunc) Detect(xrefs []Xref) []Xref { return f(xrefs) }

// DetectorChain applies detectors in order, each seeing the previous output.
type DetectorChain struct {
	detectors []Detector
}

func NewDetectorChain(detectors ...Detector) *DetectorChain {
	dc := &DetectorChain{}
	for _, d := range detectors {
		dc.Add(d)
	}
	return dc
}

// Add appends d to the chain. Nil detectors are ignored.
func (dc *DetectorChain) Add(d Detector) {
	if d != nil {
		dc.detectors = append(dc.detectors, d)
	}
}

// Len reports how many detectors the chain holds.
func (dc *DetectorChain) Len() int { return len(dc.detectors) }

func (dc *DetectorChain) Detect(xrefs []Xref) []Xref {
	for _, d := range dc.detectors {
		if len(xrefs) == 0 {
			break
		}
		xrefs = d.Detect(xrefs)
	}
	return xrefs
}
