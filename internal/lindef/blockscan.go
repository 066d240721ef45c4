package lindef

import (
	"regexp"
	"strings"
)

// extractBlock finds "keyword { ... }" with matched-brace scanning (LDF
// sections can nest, so a naive non-greedy regex would truncate at the
// first inner "}") and returns the substring strictly between the braces.
// Reports ok=false if the keyword's opening brace is not found.
func extractBlock(text, keyword string) (string, bool) {
	re := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(keyword) + `\s*\{`)
	loc := re.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	openIdx := strings.IndexByte(text[loc[0]:], '{')
	if openIdx < 0 {
		return "", false
	}
	start := loc[0] + openIdx
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start+1 : i], true
			}
		}
	}
	return "", false
}

// extractAllBlocks finds every "name { ... }" occurrence inside body and
// returns each (name, content) pair in source order. Used for per-node or
// per-signal-encoding-type sub-blocks.
func extractAllBlocks(body string, headerRe *regexp.Regexp) []blockMatch {
	var out []blockMatch
	idx := 0
	for {
		loc := headerRe.FindStringSubmatchIndex(body[idx:])
		if loc == nil {
			break
		}
		// Adjust indices relative to full body.
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += idx
			}
		}
		name := body[loc[2]:loc[3]]
		braceStart := strings.IndexByte(body[loc[1]:], '{')
		if braceStart < 0 {
			break
		}
		start := loc[1] + braceStart
		depth := 0
		end := -1
		for i := start; i < len(body); i++ {
			switch body[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					end = i
				}
			}
			if end >= 0 {
				break
			}
		}
		if end < 0 {
			break
		}
		out = append(out, blockMatch{Name: name, Content: body[start+1 : end]})
		idx = end + 1
	}
	return out
}

type blockMatch struct {
	Name    string
	Content string
}
