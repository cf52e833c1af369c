package llm

import (
	"fmt"
	"strings"
)

// AddressLineLabels names the four lines of a structured address reply, in order.
var AddressLineLabels = []string{
	"Building / street / subdivision",
	"Barangay / zone",
	"City / province",
	"Postal code",
}

// BuildDiagnosisPrompt creates the prompt for a one-sentence technician suggestion.
// deviceType and deviceModel are optional.
func BuildDiagnosisPrompt(description, deviceType, deviceModel string) string {
	var device string
	switch {
	case deviceType != "" && deviceModel != "":
		device = fmt.Sprintf("%s (%s)", deviceType, deviceModel)
	case deviceType != "":
		device = deviceType
	case deviceModel != "":
		device = deviceModel
	default:
		device = "unspecified"
	}

	return fmt.Sprintf(`A customer is requesting a repair technician.

DEVICE: %s

PROBLEM DESCRIPTION:
"""
%s
"""

Analyze the problem and provide a short 1-sentence diagnostic suggestion for a technician.

RULES:
- Exactly one sentence, no more than 30 words
- Plain text only: no markdown headings, no lists, no code
- Do not ask the customer questions
- If the description is not about a device problem, say what information is missing`,
		device, strings.TrimSpace(description))
}

// BuildAddressPrompt creates the prompt for reverse-geocoding coordinates into
// a words-only postal address in a fixed four-line shape.
func BuildAddressPrompt(lat, lng float64) string {
	var lines strings.Builder
	for i, label := range AddressLineLabels {
		fmt.Fprintf(&lines, "%d. %s\n", i+1, label)
	}

	return fmt.Sprintf(`What is the postal address at latitude %.6f, longitude %.6f?

Answer with the address ONLY, in exactly four lines:
%s
RULES:
- Use words only: no coordinates, no plus codes, no URLs
- One line per item above, without the numbering or labels
- Leave a line empty if the item does not exist at this location`,
		lat, lng, lines.String())
}
