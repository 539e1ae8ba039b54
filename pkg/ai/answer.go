package ai

import "github.com/tidwall/gjson"

// NoAnswer is returned by ExtractAnswer when the response carries no answer.
const NoAnswer = "No answer found in response"

// ExtractAnswer pulls the answer text out of a raw chat response. A top-level
// "answer" wins over "data.answer".
func ExtractAnswer(raw []byte) string {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return NoAnswer
	}
	if r := gjson.GetBytes(raw, "answer"); r.Exists() {
		return r.String()
	}
	if r := gjson.GetBytes(raw, "data.answer"); r.Exists() {
		return r.String()
	}
	return NoAnswer
}

// HasAnswer reports whether raw has a top-level answer field.
func HasAnswer(raw []byte) bool {
	return gjson.GetBytes(raw, "answer").Exists()
}
