package correct

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/loquax/pkg/provider/llm"
)

// errUnparseable marks an LLM response that could not be decoded into the
// expected JSON contract. The engine treats it as a per-batch skip, not as a
// capability outage.
var errUnparseable = errors.New("correct: unparseable correction response")

// Correction captures a single substitution declared by the LLM.
type Correction struct {
	// Original is the surface form as it appeared in the batch.
	Original string

	// Corrected is the replacement the model applied.
	Corrected string

	// Confidence is the model's reported confidence (0.0–1.0).
	Confidence float64
}

// correctionResponse is the expected JSON structure returned by the LLM.
type correctionResponse struct {
	CorrectedText string `json:"corrected_text"`
	Corrections   []struct {
		Original   string  `json:"original"`
		Corrected  string  `json:"corrected"`
		Confidence float64 `json:"confidence"`
	} `json:"corrections"`
}

// systemPromptTemplate is the base system prompt. The already-resolved term
// glossary is appended at call time so each request carries the document's
// accumulated terminology decisions.
const systemPromptTemplate = `You are a transcript correction assistant for technical speech recordings.

Your task: fix misrecognized technical terms, product names, and proper nouns in the provided transcript lines.

Rules:
- ONLY correct words that appear to be misrecognitions of technical terms or names (e.g., "pie torch" for "PyTorch").
- Do NOT change ordinary words, grammar, punctuation, or sentence structure.
- Do NOT merge, split, reorder, or drop lines. The output must have exactly one line per input line, in the same order.
- Be conservative: if you are not confident a word is a misrecognized term, leave it unchanged.
- Terms listed in the glossary below are already resolved; spell them exactly as given there.

Resolved terms:
%s

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "corrected_text": "<all lines, corrected, joined with \n>",
  "corrections": [
    {"original": "<original phrase>", "corrected": "<corrected phrase>", "confidence": <0.0-1.0>}
  ]
}

If no corrections are needed, return an empty corrections array and corrected_text equal to the input.`

// corrector sends one batch to the LLM and decodes the structured response.
type corrector struct {
	llm         llm.Provider
	temperature float64
}

// correct asks the model to fix terminology in text. contextTail is the end
// of the previously corrected text, supplied read-only so the model sees how
// the document resolved terms so far. known is the glossary of ledgered
// terms.
//
// A transport or context error is returned as-is; a response that does not
// honour the JSON contract is returned wrapping [errUnparseable].
func (c *corrector) correct(ctx context.Context, text, contextTail string, known []Term) (string, []Correction, error) {
	userMsg := text
	if contextTail != "" {
		userMsg = fmt.Sprintf(
			"Preceding transcript (context only, do not correct or include in output):\n%s\n\nLines to correct:\n%s",
			contextTail, text,
		)
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(known),
		Temperature:  c.temperature,
		Messages: []llm.Message{
			{Role: "user", Content: userMsg},
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("correct: complete: %w", err)
	}

	return parseResponse(resp.Content)
}

// buildSystemPrompt formats the system prompt template with the glossary of
// ledgered terms.
func buildSystemPrompt(known []Term) string {
	if len(known) == 0 {
		return fmt.Sprintf(systemPromptTemplate, "(none yet)")
	}
	var sb strings.Builder
	for _, t := range known {
		sb.WriteString("- ")
		sb.WriteString(t.Corrected)
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String())
}

// parseResponse unmarshals the LLM output, stripping markdown code fences
// some models insist on adding.
func parseResponse(content string) (string, []Correction, error) {
	cleaned := stripMarkdown(content)

	var r correctionResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return "", nil, fmt.Errorf("%w: %w", errUnparseable, err)
	}
	if r.CorrectedText == "" {
		return "", nil, fmt.Errorf("%w: empty corrected_text", errUnparseable)
	}

	corrections := make([]Correction, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		if c.Original == "" || c.Original == c.Corrected {
			continue
		}
		corrections = append(corrections, Correction{
			Original:   c.Original,
			Corrected:  c.Corrected,
			Confidence: c.Confidence,
		})
	}

	return r.CorrectedText, corrections, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
