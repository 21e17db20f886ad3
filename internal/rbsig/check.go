package rbsig

// Check compares every signature with its annotation. Findings keep the
// order of files and, within a file, source order.
func Check(files []*File) []Finding {
	var findings []Finding
	for _, f := range files {
		for _, sig := range f.Signatures {
			findings = append(findings, checkOne(f.Path, sig))
		}
	}
	return findings
}

func checkOne(path string, sig Signature) Finding {
	fd := Finding{Path: path, Signature: sig}
	switch {
	case sig.AnnotationError != "":
		fd.Status = StatusMalformed
	case sig.Annotation == nil:
		fd.Status = StatusUnannotated
	default:
		if sig.Arity.Equal(*sig.Annotation) {
			fd.Status = StatusOK
		} else {
			fd.Status = StatusMismatch
			fd.Diff = sig.Arity.Diff(*sig.Annotation)
		}
	}
	return fd
}

// Counts tallies findings by status.
type Counts struct {
	OK          int `json:"ok" yaml:"ok"`
	Mismatch    int `json:"mismatch" yaml:"mismatch"`
	Unannotated int `json:"unannotated" yaml:"unannotated"`
	Malformed   int `json:"malformed" yaml:"malformed"`
}

// Tally counts findings per status.
func Tally(findings []Finding) Counts {
	var c Counts
	for _, f := range findings {
		switch f.Status {
		case StatusOK:
			c.OK++
		case StatusMismatch:
			c.Mismatch++
		case StatusUnannotated:
			c.Unannotated++
		case StatusMalformed:
			c.Malformed++
		}
	}
	return c
}

// Failed reports whether any annotation disagrees with its signature or
// could not be read.
func (c Counts) Failed() bool {
	return c.Mismatch > 0 || c.Malformed > 0
}
