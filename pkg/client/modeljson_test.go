package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeModelJSON(t *testing.T) {
	in := "```json\n{\n  // material\n  \"label\": \"metal\", /* can */\n  \"tags\": [\"lata\",],\n}\n```"
	assert.Equal(t, "{\n\n  \"label\": \"metal\", \n  \"tags\": [\"lata\"]\n}", SanitizeModelJSON(in))
}

func TestParseModelLabel(t *testing.T) {
	res := ParseModelLabel(`Sure! {"label": "vidrio", "confidence": 0.82, "tags": ["botella"]}`, "a.jpg")
	assert.Equal(t, "vidrio", res.RawLabel)
	assert.InDelta(t, 0.82, res.Confidence, 1e-9)
	assert.Equal(t, []string{"botella"}, res.Tags)
	assert.Equal(t, "a.jpg", res.Filename)

	res = ParseModelLabel(`{"label": "papel", "confidence": "0.4"}`, "b.jpg")
	assert.InDelta(t, 0.4, res.Confidence, 1e-9)
}

func TestParseModelLabelFallback(t *testing.T) {
	for _, in := range []string{
		"I think this is a bottle",
		`{"label": }`,
		`{"confidence": 0.9}`,
		"",
	} {
		res := ParseModelLabel(in, "x.jpg")
		assert.Equal(t, UnidentifiedLabel, res.RawLabel, in)
		assert.InDelta(t, 0.1, res.Confidence, 1e-9, in)
	}
}
