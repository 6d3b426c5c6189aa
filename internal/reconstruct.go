package internal

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// titleRunes bounds titles derived from the first user message
const titleRunes = 100

var (
	whitespaceRun = regexp.MustCompile(`\s+`)

	// Working directory heuristics, in precedence order.
	cdPattern        = regexp.MustCompile(`(?m)(?:^|[\s;&|(])cd\s+("[^"\n]+"|'[^'\n]+'|[^\s;&|)]+)`)
	directoryPattern = regexp.MustCompile(`(?i)directory:\s*("[^"\n]+"|'[^'\n]+'|\S+)`)
	absPathPattern   = regexp.MustCompile(`(?:^|[\s"'(=:\x60])(/(?:[\w.@+-]+/)*[\w.@+-]+|[A-Za-z]:\\[^\s"'\x60]+)`)
)

// CollapseWhitespace folds every whitespace run into one space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// DeriveTitle uses the leading characters of the first non-empty user message.
func DeriveTitle(messages []Message) string {
	for _, msg := range messages {
		if msg.Role != RoleUser {
			continue
		}
		text := CollapseWhitespace(msg.Content)
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > titleRunes {
			text = string([]rune(text)[:titleRunes])
		}
		return text
	}
	return ""
}

// ExtractWorkingDirectory guesses a working directory from free text. The
// rules run in a fixed order and each scans texts in order: an explicit
// "cd <path>", then "directory: <path>", then the first absolute path.
func ExtractWorkingDirectory(texts []string) string {
	for _, rule := range []*regexp.Regexp{cdPattern, directoryPattern, absPathPattern} {
		for _, text := range texts {
			for _, m := range rule.FindAllStringSubmatch(text, -1) {
				if p := cleanPathCandidate(m[1]); isAbsolutePath(p) {
					return p
				}
			}
		}
	}
	return ""
}

func cleanPathCandidate(s string) string {
	s = strings.Trim(s, `"'`)
	return strings.TrimRight(s, ".,;:)]}")
}

func isAbsolutePath(p string) bool {
	if len(p) > 1 && (p[0] == '/' || p[0] == '~') {
		return true
	}
	return len(p) > 3 && p[1] == ':' && p[2] == '\\'
}

// ReconstructMetadata fills fields that a missing metadata record would have
// provided. Fields that are already set are never overwritten.
func ReconstructMetadata(conv *Conversation, fallbackID string) {
	if conv == nil {
		return
	}
	if conv.SessionID == "" {
		conv.SessionID = fallbackID
	}
	if conv.Title == "" {
		conv.Title = DeriveTitle(conv.Messages)
	}
	if conv.CreatedAt == nil {
		for i := range conv.Messages {
			if conv.Messages[i].Timestamp != nil {
				conv.CreatedAt = conv.Messages[i].Timestamp
				break
			}
		}
	}
	if conv.UpdatedAt == nil {
		for i := len(conv.Messages) - 1; i >= 0; i-- {
			if conv.Messages[i].Timestamp != nil {
				conv.UpdatedAt = conv.Messages[i].Timestamp
				break
			}
		}
	}
	if conv.ProjectPath == "" {
		texts := make([]string, 0, len(conv.Messages))
		for _, msg := range conv.Messages {
			texts = append(texts, msg.Content)
		}
		conv.ProjectPath = ExtractWorkingDirectory(texts)
	}
}
