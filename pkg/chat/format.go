package chat

import (
	"regexp"
	"strings"
)

// LineBreak is the markup emitted for every newline.
const LineBreak = "<br />"

const routineIntro = "Here is your personalized skincare routine:"

var (
	h2Re         = regexp.MustCompile(`(?m)^## (.+)$`)
	h3Re         = regexp.MustCompile(`(?m)^### (.+)$`)
	doubleStarRe = regexp.MustCompile(`\*\*(.+?)\*\*`)
	singleStarRe = regexp.MustCompile(`\*(.+?)\*`)
	numberedRe   = regexp.MustCompile(`^\d+\. `)
)

// FormatRoutine rewrites markdown-flavoured routine text into markup. The
// rules run in a fixed order and each one sees the output of the previous,
// so the result is not stable under a second application.
func FormatRoutine(text string) string {
	s := h2Re.ReplaceAllStringFunc(text, func(m string) string {
		heading := strings.TrimSpace(strings.TrimPrefix(m, "## "))
		switch {
		case heading == "Tips":
			return `<p class="text-lg font-bold">Tips</p>`
		case strings.HasPrefix(heading, "Morning Routine"), strings.HasPrefix(heading, "Evening Routine"):
			return `<h2 class="text-xl font-bold text-primary mt-4 mb-2">` + heading + `</h2>`
		default:
			return `<p class="font-bold">` + heading + `</p>`
		}
	})
	s = h3Re.ReplaceAllString(s, `<p class="font-semibold">$1</p>`)
	s = doubleStarRe.ReplaceAllString(s, `<strong>$1</strong>`)
	s = emphasizeQuotes(s)
	// Residual single asterisks can mis-nest with the double-asterisk rule.
	s = singleStarRe.ReplaceAllString(s, `<strong>$1</strong>`)
	s = strings.ReplaceAll(s, "\n", LineBreak)

	lines := strings.Split(s, LineBreak)
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "- "):
			lines[i] = `<li class="ml-2">` + strings.TrimPrefix(line, "- ") + `</li>`
		case numberedRe.MatchString(line):
			lines[i] = "<p>" + line + "</p>"
		}
	}
	s = strings.Join(lines, LineBreak)

	return strings.ReplaceAll(s, routineIntro, `<p class="mb-4 font-medium">`+routineIntro+`</p>`)
}

// emphasizeQuotes wraps double-quoted spans in strong tags. Quotes inside a
// markup tag delimit attribute values and are skipped. A span may contain
// markup but never crosses a line.
func emphasizeQuotes(s string) string {
	var b strings.Builder
	open, last := -1, 0
	inTag := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inTag:
			if c == '>' {
				inTag = false
			}
		case c == '<' && i+1 < len(s) && isTagStart(s[i+1]):
			inTag = true
		case c == '\n':
			open = -1
		case c == '"':
			// An empty pair leaves the first quote literal.
			if open < 0 || i == open+1 {
				open = i
				continue
			}
			b.WriteString(s[last:open])
			b.WriteString("<strong>")
			b.WriteString(s[open+1 : i])
			b.WriteString("</strong>")
			last, open = i+1, -1
		}
	}
	b.WriteString(s[last:])
	return b.String()
}

func isTagStart(c byte) bool {
	return c == '/' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
