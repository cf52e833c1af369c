package tasks

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"fixit/internal/llm"
)

const addressLines = 4

// lineNumber captures an explicit "N." or "N)" list position.
var lineNumber = regexp.MustCompile(`^\s*(\d+)[.)]\s`)

// lineLabel matches a leading list marker or "Label:" prefix the model may echo back.
var lineLabel = regexp.MustCompile(`(?i)^(?:\d+[.)]\s*|[-*•]\s*)?(?:(?:building|street|subdivision|barangay|zone|city|province|postal code|zip)[\w\s/]*:\s*)?`)

// ExecuteAddressTask reverse-geocodes coordinates into a words-only address.
func ExecuteAddressTask(
	ctx context.Context,
	gen llm.Generator,
	input *AddressInput,
) (*AddressOutput, error) {
	prompt := llm.BuildAddressPrompt(input.Latitude, input.Longitude)

	resp, err := gen.Generate(ctx, &llm.Request{
		Prompt: prompt,
		Grounding: &llm.Grounding{
			Maps:     true,
			Location: &llm.LatLng{Latitude: input.Latitude, Longitude: input.Longitude},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("address task failed: %w", err)
	}

	lines := addressLinesFrom(resp.Text)
	present := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" {
			present = append(present, line)
		}
	}
	if len(present) == 0 {
		return nil, fmt.Errorf("address task failed: %w",
			llm.NewValidationError("reply contained no address lines", nil))
	}

	out := &AddressOutput{
		Lines: lines,
		Text:  strings.Join(present, "\n"),
		Model: resp.Model,
	}
	for _, s := range resp.Sources {
		if s.URI != "" {
			out.SourceURI = s.URI
			break
		}
	}
	return out, nil
}

// addressLinesFrom maps a reply onto the four prompt positions. A numbered
// line goes to its own position; other lines take the next one, so an empty
// line leaves its position blank. Positions past the fourth are dropped.
func addressLinesFrom(text string) []string {
	text = llm.CleanMarkdownCodeBlocks(text)
	lines := make([]string, addressLines)
	pos := 0
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.ReplaceAll(raw, "**", ""))
		if m := lineNumber.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 {
				pos = n - 1
			}
		}
		line = strings.TrimSpace(lineLabel.ReplaceAllString(line, ""))
		if pos < addressLines && lines[pos] == "" {
			lines[pos] = line
		}
		pos++
	}
	return lines
}
