package matching

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// renderEdit shows how to turn from into to: "margau{+x}", "chianti[-classico]".
func renderEdit(from, to string) string {
	if from == to {
		return to
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(from, to, false)
	diffs = dmp.DiffCleanupSemanticLossless(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "}")
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "]")
		}
	}
	return b.String()
}
