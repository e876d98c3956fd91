package scoring

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/fitscore-cli/internal/model"
)

// amountPrinter renders deal values with thousands separators so the oracle
// reads "$1,250,000" rather than a bare float.
var amountPrinter = message.NewPrinter(language.English)

// systemPrompt is the ruleset sent on every scoring call. It is identical
// across a run so the provider can serve it from prompt cache.
const systemPrompt = `You are a sales-fit analyst. You receive one CRM record and a set of
reference records from the same portal, each labeled with its historical
classification and a reference score on a 0-100 scale.

Score how well the record fits this portal's ideal customer profile:
- 100 means an exemplary fit, 0 means no fit at all.
- Weigh reference records by their stated similarity; a highly similar
  ideal reference is strong evidence of fit, a highly similar non-ideal
  reference is strong evidence against.
- When no reference data is provided, judge the record on its own merits
  and be conservative with extreme scores.

Respond with a single JSON object and nothing else:
{"score": <number 0-100>, "positives": [<strings>], "negatives": [<strings>], "summary": "<2-3 sentences>"}`

// Neighbor is one reference record pulled from the index as scoring evidence.
type Neighbor struct {
	ID             string
	Similarity     float64
	Classification string
	DealValue      *float64

	// ReferenceScore is the stored LLM score when the neighbor has one,
	// otherwise a derived score computed from the portal's stats.
	ReferenceScore float64
	Scored         bool
}

// BuildPrompt assembles the user message for one scoring call: the record's
// document text followed by the neighbor evidence block. An empty neighbor
// set produces an explicit no-reference notice instead of a silent omission.
func BuildPrompt(doc *model.Document, neighbors []Neighbor) string {
	var b strings.Builder

	b.WriteString("Evaluate the fit of the following record.\n\n")
	b.WriteString("[Record]\n")
	b.WriteString(doc.Content)
	b.WriteString("\n\n[Reference records]\n")

	if len(neighbors) == 0 {
		b.WriteString("No reference data was available for this evaluation. " +
			"Judge the record on its own merits.\n")
		return strings.TrimRight(b.String(), "\n")
	}

	for i, n := range neighbors {
		fmt.Fprintf(&b, "%d. %s (%.0f%% similar)", i+1, neighborLabel(n.Classification), n.Similarity*100)
		if n.DealValue != nil {
			b.WriteString(", deal value ")
			b.WriteString(amountPrinter.Sprintf("$%.0f", *n.DealValue))
		}
		source := "derived"
		if n.Scored {
			source = "scored"
		}
		fmt.Fprintf(&b, ", reference score %.0f (%s)\n", n.ReferenceScore, source)
	}
	return strings.TrimRight(b.String(), "\n")
}

func neighborLabel(class string) string {
	switch model.Classification(class) {
	case model.ClassIdeal:
		return "ideal reference"
	case model.ClassNonIdeal:
		return "non-ideal reference"
	}
	return "unlabeled reference"
}

// compositeSummary folds the verdict's positives and negatives into the
// summary stored on the CRM record.
func compositeSummary(v *model.Verdict) string {
	parts := []string{strings.TrimSpace(v.Summary)}
	if len(v.Positives) > 0 {
		parts = append(parts, "Strengths: "+strings.Join(v.Positives, "; ")+".")
	}
	if len(v.Negatives) > 0 {
		parts = append(parts, "Concerns: "+strings.Join(v.Negatives, "; ")+".")
	}
	return strings.Join(parts, " ")
}
