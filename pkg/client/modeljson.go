package client

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/ecorecycle/pkg/types"
)

// SimpleTestPrompt checks that a vision model can see the photo
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// ClassifyPrompt asks a vision model for the material of the main object
const ClassifyPrompt = `You are a recycling assistant. Identify the material of the main object in the photo.

Return JSON only:
{"label": "string", "confidence": 0.0, "tags": ["tag1", "tag2"]}

RULES
- label is one of: plástico, metal, papel, cartón, vidrio, orgánico, no reciclable.
- confidence is between 0 and 1.
- tags: lowercase, at most 5, describe the object (e.g. "botella", "lata").
- If you cannot tell, use {"label": "unidentified", "confidence": 0.1, "tags": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// UnidentifiedLabel is returned when the model reply cannot be read
const UnidentifiedLabel = "unidentified"

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInlineComment = regexp.MustCompile(`(?m)//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

type modelLabel struct {
	Label      string          `json:"label"`
	Confidence json.RawMessage `json:"confidence"`
	Tags       []string        `json:"tags"`
}

// ParseModelLabel reads a model reply into a classification. Replies that are
// not JSON yield UnidentifiedLabel with confidence 0.1 instead of an error.
func ParseModelLabel(raw, filename string) *types.ClassificationResult {
	res := &types.ClassificationResult{
		Filename:   filename,
		ReceivedAt: time.Now(),
	}

	raw = SanitizeModelJSON(raw)
	var m modelLabel
	if !strings.HasPrefix(raw, "{") || json.Unmarshal([]byte(raw), &m) != nil || strings.TrimSpace(m.Label) == "" {
		res.RawLabel = UnidentifiedLabel
		res.Confidence = 0.1
		return res
	}

	res.RawLabel = strings.TrimSpace(m.Label)
	res.Confidence = confidenceValue(m.Confidence)
	res.Tags = m.Tags
	return res
}

// confidenceValue accepts numbers and numeric strings
func confidenceValue(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return 0
}

// SanitizeModelJSON removes code fences, comments and trailing commas from a
// model reply and keeps the outermost object.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
