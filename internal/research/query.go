package research

import (
	"fmt"
	"strings"
)

// sanitizeText strips NUL bytes, which Postgres rejects inside text columns
// and which occasionally show up in pasted claim text.
func sanitizeText(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// BuildInfringementQuery renders the deep-research instruction for a patent
// infringement check. The claim text is embedded verbatim; the instruction
// requires every claim element to be satisfied, evidence to be cited from web
// search, and results in a fixed per-company compliance table.
func BuildInfringementQuery(patentNumber, claimText string) string {
	patentNumber = sanitizeText(patentNumber)
	claimText = sanitizeText(claimText)

	return fmt.Sprintf(`Thoroughly investigate products that satisfy every element of claim 1 of patent %[1]s.

Instructions:
- Match the patent number and the full text of claim 1 exactly; never confuse this patent with any other.
- Quote each claim element verbatim from claim 1; do not paraphrase or restructure it.
- For each claim element, compare it against the product's published specification and judge compliance (YES/NO).
- Claims 2 onward and the detailed description may be consulted for reference, but claim 1 alone is the basis for judgment.
- Use web search to verify public product specifications, company pages, and sales information, and cite the evidence.
- Only products satisfying ALL claim elements qualify; exclude a product if even one element is not met.
- Make an effort to find at least one product with high infringement potential, and judge compliance for at least three companies.

Output format (one table per company):

## Company 1 (product name)
| Claim element | Product implementation | Compliance | Evidence |
|---------------|------------------------|------------|----------|
| Element A (quoted from claim 1) | How the product implements it | YES/NO | URL or public source |
| Element B (quoted from claim 1) | How the product implements it | YES/NO | URL or public source |

**Overall judgment**: YES/NO (YES only if every element is satisfied)

List companies in descending order of infringement likelihood.

Patent %[1]s, claim 1 (full text):
%[2]s`, patentNumber, claimText)
}
