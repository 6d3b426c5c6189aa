package internal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CodeBlock is a fenced code fragment stored next to message text
type CodeBlock struct {
	Language string `json:"languageId,omitempty"`
	Content  string `json:"content,omitempty"`
	Code     string `json:"code,omitempty"`
}

// Body returns whichever content field the store filled in.
func (c CodeBlock) Body() string {
	if c.Content != "" {
		return c.Content
	}
	return c.Code
}

// FencedCode renders code as a markdown fence
func FencedCode(lang, code string) string {
	return fmt.Sprintf("```%s\n%s\n```", lang, code)
}

// ExtractBubbleText builds message text in three tiers:
// 1. the plain text field
// 2. text recovered from the richText editor state, when it adds something
// 3. code blocks appended as markdown fences
func ExtractBubbleText(text, richText string, codeBlocks []CodeBlock) string {
	var parts []string

	if text != "" {
		parts = append(parts, text)
	}

	if richText != "" {
		rich, err := ExtractTextFromRichText(richText)
		if err != nil {
			LogDebug("richText: %v", err)
		}
		rich = strings.TrimSpace(rich)
		if rich != "" && !strings.Contains(text, rich) {
			parts = append(parts, rich)
		}
	}

	for _, block := range codeBlocks {
		if body := block.Body(); body != "" {
			parts = append(parts, FencedCode(block.Language, body))
		}
	}

	return strings.Join(parts, "\n\n")
}

// ExtractTextFromRichText walks a Lexical-style editor state
// ({"root":{"children":[...]}}) and returns its text. Code nodes become fences.
func ExtractTextFromRichText(richTextJSON string) (string, error) {
	if richTextJSON == "" {
		return "", nil
	}

	var data interface{}
	if err := json.Unmarshal([]byte(richTextJSON), &data); err != nil {
		return "", fmt.Errorf("failed to parse richText JSON: %w", err)
	}

	switch v := data.(type) {
	case map[string]interface{}:
		if root, ok := v["root"].(map[string]interface{}); ok {
			return richNodeText(root), nil
		}
		return richNodeText(v), nil
	case []interface{}:
		return richChildrenText(v), nil
	}
	return "", fmt.Errorf("unexpected richText shape %T", data)
}

func richChildrenText(children []interface{}) string {
	var b strings.Builder
	for _, child := range children {
		node, ok := child.(map[string]interface{})
		if !ok {
			continue
		}
		b.WriteString(richNodeText(node))
	}
	return b.String()
}

func richNodeText(node map[string]interface{}) string {
	nodeType, _ := node["type"].(string)
	children, _ := node["children"].([]interface{})

	switch nodeType {
	case "text":
		s, _ := node["text"].(string)
		return s
	case "linebreak":
		return "\n"
	case "code":
		lang, _ := node["language"].(string)
		code := richChildrenText(children)
		if code == "" {
			return ""
		}
		return "\n" + FencedCode(lang, code) + "\n"
	case "paragraph", "heading", "quote", "listitem":
		inner := richChildrenText(children)
		if inner == "" {
			return ""
		}
		return inner + "\n"
	}

	var b strings.Builder
	for _, field := range []string{"text", "content", "value"} {
		if s, ok := node[field].(string); ok && s != "" {
			b.WriteString(s)
		}
	}
	b.WriteString(richChildrenText(children))
	return b.String()
}
