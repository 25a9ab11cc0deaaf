package campaign

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// BuildPrompt は生成サービスに送るプロンプトを組み立てます。
// bookText は呼び出し側で上限文字数に切り詰めておきます。
func BuildPrompt(bookText string, complexity Complexity, language string) string {
	var b strings.Builder
	b.WriteString("You are an expert tabletop RPG game master who writes complete, ready-to-play campaigns.\n\n")
	b.WriteString("**PROVIDED RPG BOOK:**\n")
	b.WriteString(bookText)
	b.WriteString("... [text truncated for analysis]\n\n")

	b.WriteString("**INSTRUCTIONS:**\n")
	b.WriteString("1. Analyse the RPG book above and understand its system, setting, mechanics and style\n")
	fmt.Fprintf(&b, "2. Create a **%s** campaign in the language: %s\n", strings.ToUpper(string(complexity)), language)
	b.WriteString("3. The campaign must be COMPLETE: the game master can run it with no extra preparation\n\n")

	fmt.Fprintf(&b, "**CAMPAIGN FORMAT (%s):**\n%s\n", complexity, Guidelines(complexity))

	b.WriteString("**REQUIRED HEADER:**\n```yaml\n")
	b.WriteString("Title: [creative campaign title]\n")
	fmt.Fprintf(&b, "Complexity: %s\n", complexity)
	b.WriteString("Sessions: [number based on complexity]\n")
	b.WriteString("Character Level: [recommended range]\n")
	b.WriteString("System: [based on the analysed book]\n```\n\n")

	b.WriteString("**DETAILED CONTENT:**\n")
	for _, section := range []string{
		"OVERVIEW: an engaging summary of the campaign",
		"OPENING HOOK: how the first session starts",
		"CHARACTER ARCHETYPES: suggestions that fit the campaign",
		"DETAILED SESSIONS: objectives, encounters, NPCs and treasure for each session",
		"IMPORTANT NPCS: full statistics or references",
		"ENEMIES AND CREATURES: balanced encounters",
		"REWARDS AND TREASURE: magic items, equipment, rewards",
		"CHALLENGES AND PUZZLES: non-combat challenges",
		"POSSIBLE ENDINGS: multiple outcomes based on player choices",
		"MAPS AND LOCATIONS: detailed descriptions or instructions to build them",
	} {
		b.WriteString("- " + section + "\n")
	}

	b.WriteString("\n**STYLE:**\n")
	b.WriteString("- Use markdown and start with a level 1 heading containing the title\n")
	b.WriteString("- Be specific and detailed\n")
	b.WriteString("- Give clear statistics or references to the system\n")
	b.WriteString("- Include NPC dialogue where relevant\n")
	b.WriteString("- Balance combat, exploration and roleplay\n\n")
	fmt.Fprintf(&b, "Write the complete campaign in %s:\n", language)
	return b.String()
}

// splitChunks は text を最大 size 文字の断片に分けます。
// 可能なら改行、次に空白の直後で区切り、連結すると元の文字列に戻ります。
func splitChunks(text string, size int) []string {
	if size <= 0 || utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	runes := []rune(text)
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= size {
			chunks = append(chunks, string(runes))
			break
		}
		cut := size
		if i := lastIndexRune(runes[:size], '\n'); i >= size/2 {
			cut = i + 1
		} else if i := lastIndexRune(runes[:size], ' '); i >= size/2 {
			cut = i + 1
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
