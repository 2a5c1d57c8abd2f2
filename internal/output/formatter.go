// Package output renders timed transcript segments, optionally merged with
// caller-supplied session notes, into plain-text, JSON and HTML artifacts.
// Every function is pure: segments and notes in, string out.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"audio-transcription-platform/internal/domain/model"
)

const divider = "================================================================================"

// Metadata describes the source of a rendering, for the JSON and HTML headers.
type Metadata struct {
	SourceName string
	CreatedAt  time.Time
}

// FormatTimestamp renders elapsed seconds as HH:MM:SS. Fractional seconds
// are truncated, not rounded.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// PlainText renders segments one per line. When notes are present a session
// info block precedes the transcript block.
func PlainText(segments []model.TranscriptSegment, notes string, withTimestamps bool) string {
	var lines []string

	if notes != "" {
		lines = append(lines,
			divider,
			"Session Info",
			divider,
			notes,
			"",
			divider,
			"Transcript",
			divider,
			"",
		)
	}

	for _, seg := range segments {
		if withTimestamps {
			lines = append(lines, fmt.Sprintf("[%s] %s", FormatTimestamp(seg.Start), seg.Text))
		} else {
			lines = append(lines, seg.Text)
		}
	}

	return strings.Join(lines, "\n")
}

// Mixed is the canonical combined artifact stored on the job: notes plus the
// timestamped transcript. Byte-identical to PlainText with timestamps on.
func Mixed(segments []model.TranscriptSegment, notes string) string {
	return PlainText(segments, notes, true)
}

type jsonSegment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Duration   float64  `json:"duration"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

type jsonDocument struct {
	Metadata struct {
		SourceName    string  `json:"source_name"`
		CreatedAt     string  `json:"created_at"`
		Notes         string  `json:"notes,omitempty"`
		TotalSegments int     `json:"total_segments"`
		TotalDuration float64 `json:"total_duration"`
	} `json:"metadata"`
	Segments []jsonSegment `json:"segments"`
}

// JSON renders a structured document with a metadata block and per-segment
// timing, text and confidence.
func JSON(segments []model.TranscriptSegment, notes string, meta Metadata) (string, error) {
	var doc jsonDocument
	doc.Metadata.SourceName = meta.SourceName
	if !meta.CreatedAt.IsZero() {
		doc.Metadata.CreatedAt = meta.CreatedAt.UTC().Format(time.RFC3339)
	}
	doc.Metadata.Notes = notes
	doc.Metadata.TotalSegments = len(segments)
	if n := len(segments); n > 0 {
		doc.Metadata.TotalDuration = segments[n-1].End
	}

	doc.Segments = make([]jsonSegment, 0, len(segments))
	for _, seg := range segments {
		doc.Segments = append(doc.Segments, jsonSegment{
			Start:      seg.Start,
			End:        seg.End,
			Duration:   seg.End - seg.Start,
			Text:       seg.Text,
			Confidence: seg.Confidence,
		})
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("output: marshal json document: %w", err)
	}
	return string(b), nil
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
	"\n", "<br>",
)

// EscapeHTML escapes user-supplied text before embedding it in the HTML
// rendering. This is an injection-safety contract: notes and segment text
// must always pass through here.
func EscapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}

const htmlHead = `<!DOCTYPE html>
<html lang="ja">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Transcript</title>
    <style>
        body {
            font-family: 'Hiragino Sans', 'Noto Sans JP', sans-serif;
            max-width: 900px;
            margin: 0 auto;
            padding: 20px;
            background-color: #FFF4E9;
            color: #333;
        }
        .header {
            background-color: #de8f7d;
            color: white;
            padding: 20px;
            border-radius: 8px;
            margin-bottom: 20px;
        }
        .metadata { font-size: 0.9em; opacity: 0.9; }
        .session-log {
            background-color: white;
            padding: 20px;
            border-radius: 8px;
            margin-bottom: 20px;
            border-left: 4px solid #de8f7d;
        }
        .session-log h2 { margin-top: 0; color: #de8f7d; }
        .transcript {
            background-color: white;
            padding: 20px;
            border-radius: 8px;
        }
        .segment {
            margin-bottom: 15px;
            padding: 10px;
            border-bottom: 1px solid #eee;
        }
        .segment:last-child { border-bottom: none; }
        .timestamp {
            color: #de8f7d;
            font-weight: bold;
            font-size: 0.9em;
            margin-right: 10px;
        }
        .text { line-height: 1.6; }
    </style>
</head>
<body>
`

// HTML renders a self-contained document. All user-supplied text is escaped
// before embedding.
func HTML(segments []model.TranscriptSegment, notes string, meta Metadata) string {
	var b strings.Builder
	b.WriteString(htmlHead)

	b.WriteString("    <div class=\"header\">\n")
	b.WriteString("        <h1>Session Transcript</h1>\n")
	b.WriteString("        <div class=\"metadata\">\n")
	if meta.SourceName != "" {
		fmt.Fprintf(&b, "            <p>Source: %s</p>\n", EscapeHTML(meta.SourceName))
	}
	if !meta.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "            <p>Created: %s</p>\n", meta.CreatedAt.UTC().Format("2006-01-02 15:04"))
	}
	b.WriteString("        </div>\n")
	b.WriteString("    </div>\n")

	if notes != "" {
		b.WriteString("    <div class=\"session-log\">\n")
		b.WriteString("        <h2>Session Info</h2>\n")
		fmt.Fprintf(&b, "        <p>%s</p>\n", EscapeHTML(notes))
		b.WriteString("    </div>\n")
	}

	b.WriteString("    <div class=\"transcript\">\n")
	b.WriteString("        <h2>Transcript</h2>\n")
	for _, seg := range segments {
		b.WriteString("        <div class=\"segment\">\n")
		fmt.Fprintf(&b, "            <span class=\"timestamp\">[%s]</span>\n", FormatTimestamp(seg.Start))
		fmt.Fprintf(&b, "            <span class=\"text\">%s</span>\n", EscapeHTML(seg.Text))
		b.WriteString("        </div>\n")
	}
	b.WriteString("    </div>\n")

	b.WriteString("</body>\n</html>")
	return b.String()
}
