package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"dify_cli/pkg/ai"
	"dify_cli/pkg/chatlog"

	"github.com/tidwall/gjson"
)

const separator = "--------------------------------------------------"

// NoLogs is printed when the chat log is empty or missing.
const NoLogs = "No logs found."

// WriteLogs prints every entry with its question and answer. Responses without
// an answer field are shown as indented JSON.
func WriteLogs(w io.Writer, entries []chatlog.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, NoLogs)
		return
	}

	fmt.Fprintf(w, "\n=== Chat Logs (%d entries) ===\n", len(entries))
	for i, e := range entries {
		fmt.Fprintf(w, "\n[%d] %s\n", i+1, e.Timestamp)
		fmt.Fprintf(w, "Q: %s\n", e.Question)
		if ai.HasAnswer(e.Response) {
			fmt.Fprintf(w, "A: %s\n", gjson.GetBytes(e.Response, "answer").String())
		} else {
			fmt.Fprintf(w, "Response: %s\n", prettyJSON(e.Response))
		}
		fmt.Fprintln(w, separator)
	}
}

// WriteLogSummary prints one line per entry, truncated to width.
func WriteLogSummary(w io.Writer, entries []chatlog.Entry, width int) {
	if len(entries) == 0 {
		fmt.Fprintln(w, NoLogs)
		return
	}
	for i, e := range entries {
		answer := gjson.GetBytes(e.Response, "answer").String()
		line := fmt.Sprintf("[%d] %s  Q: %s  A: %s", i+1, e.Timestamp, Preview(e.Question, 40), Preview(answer, 80))
		fmt.Fprintln(w, TruncateToWidth(line, width))
	}
}

func prettyJSON(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}
