package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `[1]`, StripCodeFence("```\n[1]\n```"))
	assert.Equal(t, `plain`, StripCodeFence("  plain "))
}

func TestExtractJSONObject(t *testing.T) {
	text := "Here is the data:\n{\"patient_info\": {\"Name\": \"A\"}, \"Prescription_info\": []}\nHope this helps!"
	assert.Equal(t, `{"patient_info": {"Name": "A"}, "Prescription_info": []}`, ExtractJSONObject(text))
	assert.Equal(t, "no json here", ExtractJSONObject("  no json here "))
}

func TestExtractJSONArray(t *testing.T) {
	assert.Equal(t, `[{"severity":"high"}]`, ExtractJSONArray("warnings: [{\"severity\":\"high\"}] done"))
	assert.Equal(t, "none", ExtractJSONArray("none"))
}
