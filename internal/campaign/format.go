package campaign

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const previewRunes = 500

const footer = "*Campaign generated automatically from an RPG book analysis.  \n" +
	"Balance may need adjustments for your specific group.*"

// Envelope は成果物ドキュメントの見出し情報です。
type Envelope struct {
	Complexity  Complexity
	Title       string
	Language    string
	GeneratedAt time.Time
}

// FormatCampaign は本文を共通の見出しとフッターで包みます。
func FormatCampaign(content string, env Envelope) string {
	titleLine := "#"
	if env.Title != "" {
		titleLine = "# " + env.Title
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n# 🎲 RPG CAMPAIGN - %s\n", strings.ToUpper(string(env.Complexity)))
	b.WriteString(titleLine + "\n")
	fmt.Fprintf(&b, "**Duration**: %s sessions  \n", SessionCount(env.Complexity))
	fmt.Fprintf(&b, "**Language**: %s  \n", env.Language)
	fmt.Fprintf(&b, "**Generated at**: %s  \n", env.GeneratedAt.Format("02/01/2006 15:04"))
	fmt.Fprintf(&b, "**Complexity**: %s\n", capitalize(string(env.Complexity)))
	b.WriteString("\n---\n\n")
	b.WriteString(strings.TrimSpace(content))
	b.WriteString("\n\n---\n\n")
	b.WriteString(footer)
	b.WriteString("\n")
	return b.String()
}

// Preview は先頭 500 文字に "..." を付けて返します。短い場合はそのままです。
func Preview(doc string) string {
	if utf8.RuneCountInString(doc) <= previewRunes {
		return doc
	}
	return string([]rune(doc)[:previewRunes]) + "..."
}

// ExtractTitle は本文の最初のレベル1見出しを返します。
func ExtractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// truncateRunes は先頭 n 文字を返します。
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
