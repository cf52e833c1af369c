package tasks

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"fixit/internal/llm"
	"fixit/pkg/schema"
)

// ExecuteDiagnosisTask asks the model for a one-sentence technician suggestion.
func ExecuteDiagnosisTask(
	ctx context.Context,
	gen llm.Generator,
	input *DiagnosisInput,
) (*DiagnosisOutput, error) {
	description := strings.TrimSpace(input.Description)
	if utf8.RuneCountInString(description) < schema.DiagnosisMinChars {
		return nil, llm.NewValidationError(
			fmt.Sprintf("description must be at least %d characters", schema.DiagnosisMinChars), nil)
	}

	prompt := llm.BuildDiagnosisPrompt(description, input.DeviceType, input.DeviceModel)

	resp, err := gen.Generate(ctx, &llm.Request{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("diagnosis task failed: %w", err)
	}

	suggestion := firstSentence(cleanReply(resp.Text))
	if suggestion == "" {
		return nil, fmt.Errorf("diagnosis task failed: %w", llm.NewEmptyError())
	}

	return &DiagnosisOutput{Suggestion: suggestion, Model: resp.Model}, nil
}

// cleanReply strips code fences, emphasis markers and wrapping quotes.
func cleanReply(text string) string {
	text = llm.CleanMarkdownCodeBlocks(text)
	text = strings.ReplaceAll(text, "**", "")
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "\"'“”")
	return strings.TrimSpace(text)
}

// abbreviations end in a period without ending the sentence.
var abbreviations = map[string]bool{
	"e.g.": true, "i.e.": true, "approx.": true, "vs.": true, "incl.": true,
	"esp.": true, "dr.": true, "mr.": true, "mrs.": true, "ms.": true,
	"st.": true, "no.": true, "fig.": true, "min.": true, "max.": true,
}

// firstSentence keeps text up to and including the first sentence terminator
// that is followed by whitespace. A period only ends the sentence when the
// word before it is not an abbreviation and the next word starts with an
// uppercase letter or digit. Newlines are folded into spaces.
func firstSentence(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	for i := 0; i < len(text)-1; i++ {
		if text[i+1] != ' ' {
			continue
		}
		switch text[i] {
		case '!', '?':
			return text[:i+1]
		case '.':
			if endsSentence(text[:i+1], text[i+2:]) {
				return text[:i+1]
			}
		}
	}
	return text
}

func endsSentence(before, after string) bool {
	word := before[strings.LastIndexByte(before, ' ')+1:]
	word = strings.TrimLeft(word, "(\"'")
	if abbreviations[strings.ToLower(word)] {
		return false
	}
	next, _ := utf8.DecodeRuneInString(strings.TrimLeft(after, "(\"'“"))
	return unicode.IsUpper(next) || unicode.IsDigit(next)
}
