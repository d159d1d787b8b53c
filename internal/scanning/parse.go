package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zombor/billrecon/internal/extraction"
)

var rawTextKeys = []string{"ocr_text", "raw_text"}

var ocrTextPattern = regexp.MustCompile(`"(?:ocr_text|raw_text)"\s*:\s*"((?:[^"\\]|\\.)*)"?`)

// parseExtraction reads a model response. Markdown fences and chatter around the
// outermost JSON object are ignored, and numbers are kept exact. If the JSON is
// malformed the transcription is salvaged so the text-based tiers can still run.
func parseExtraction(text string) (*Extraction, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	body := text[start:]
	if end := strings.LastIndex(body, "}"); end != -1 {
		body = body[:end+1]
	}

	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		if rawText, ok := recoverRawText(body); ok {
			return &Extraction{Fields: extraction.Fields{}, RawText: rawText, Recovered: true}, nil
		}
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	out := &Extraction{}
	for _, key := range rawTextKeys {
		if s, ok := raw[key].(string); ok && out.RawText == "" {
			out.RawText = s
		}
		delete(raw, key)
	}
	out.Fields = extraction.Fields(raw).Canonical()
	return out, nil
}

func recoverRawText(body string) (string, bool) {
	m := ocrTextPattern.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	s, err := strconv.Unquote(`"` + m[1] + `"`)
	if err != nil {
		s = strings.ReplaceAll(m[1], `\n`, "\n")
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
