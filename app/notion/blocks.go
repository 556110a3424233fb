package notion

import (
	"strings"
	"unicode/utf8"
)

type block map[string]any

func richText(s string) []map[string]any {
	return []map[string]any{
		{"type": "text", "text": map[string]string{"content": truncate(s)}},
	}
}

func headingBlock(text string) block {
	return block{
		"object":    "block",
		"type":      "heading_1",
		"heading_1": map[string]any{"rich_text": richText(text)},
	}
}

func dividerBlock() block {
	return block{
		"object":  "block",
		"type":    "divider",
		"divider": map[string]any{},
	}
}

func paragraphBlock(text string) block {
	return block{
		"object":    "block",
		"type":      "paragraph",
		"paragraph": map[string]any{"rich_text": richText(text)},
	}
}

// paragraphBlocks turns a formatted transcript into paragraph blocks,
// one per paragraph, splitting paragraphs longer than a block allows.
func paragraphBlocks(transcript string) []block {
	var blocks []block

	for _, paragraph := range strings.Split(transcript, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		for _, chunk := range splitText(paragraph, maxTextLength) {
			blocks = append(blocks, paragraphBlock(chunk))
		}
	}

	return blocks
}

// splitText cuts s into pieces of at most n characters, preferring to cut
// at a space.
func splitText(s string, n int) []string {
	var pieces []string

	for utf8.RuneCountInString(s) > n {
		runes := []rune(s)
		cut := n
		for i := n; i > n/2; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		pieces = append(pieces, strings.TrimSpace(string(runes[:cut])))
		s = strings.TrimSpace(string(runes[cut:]))
	}

	if s != "" {
		pieces = append(pieces, s)
	}

	return pieces
}
