// Package chunk splits document bodies into paragraph-aligned pieces sized
// for an embedding model, and extracts titles from Markdown.
package chunk

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultMaxChars is the chunk size used when none is configured.
const DefaultMaxChars = 2000

// frontmatterPattern matches a leading YAML frontmatter block.
var frontmatterPattern = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n*`)

// StripFrontmatter removes a leading YAML frontmatter block.
func StripFrontmatter(body string) string {
	if loc := frontmatterPattern.FindStringIndex(body); loc != nil {
		return body[loc[1]:]
	}
	return body
}

// Title returns the text of the first level-one Markdown heading that is
// not inside a fenced code block.
func Title(body string) (string, bool) {
	inFence := false
	for _, line := range strings.Split(StripFrontmatter(body), "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || !strings.HasPrefix(line, "# ") {
			continue
		}
		title := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(line[2:]), "#"))
		if title != "" {
			return title, true
		}
	}
	return "", false
}

// Split breaks body into chunks of at most maxChars runes. Chunks follow
// paragraph boundaries (blank lines); fenced code blocks are kept whole
// unless they alone exceed maxChars. Paragraphs longer than maxChars are
// cut at the last whitespace before the limit. An empty body yields nil.
func Split(body string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	body = strings.ReplaceAll(StripFrontmatter(body), "\r\n", "\n")
	if strings.TrimSpace(body) == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, para := range mergeFences(paragraphs(body)) {
		n := runeLen(para)
		if n > maxChars {
			flush()
			chunks = append(chunks, splitLong(para, maxChars)...)
			continue
		}
		if currentLen > 0 && currentLen+2+n > maxChars {
			flush()
		}
		if currentLen > 0 {
			current.WriteString("\n\n")
			currentLen += 2
		}
		current.WriteString(para)
		currentLen += n
	}
	flush()
	return chunks
}

func paragraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(body, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// mergeFences rejoins paragraphs that were split inside a fenced code block.
func mergeFences(paras []string) []string {
	var out []string
	var fence strings.Builder
	open := false

	for _, p := range paras {
		odd := strings.Count(p, "```")%2 == 1
		if open {
			fence.WriteString("\n\n")
			fence.WriteString(p)
			if odd {
				out = append(out, fence.String())
				fence.Reset()
				open = false
			}
			continue
		}
		if odd {
			open = true
			fence.WriteString(p)
			continue
		}
		out = append(out, p)
	}
	if open {
		out = append(out, fence.String())
	}
	return out
}

// splitLong cuts text into pieces of at most max runes, preferring to cut
// at whitespace in the second half of each window.
func splitLong(text string, max int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > max {
		cut := max
		for i := max; i > max/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			out = append(out, piece)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if piece := strings.TrimSpace(string(runes)); piece != "" {
		out = append(out, piece)
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
