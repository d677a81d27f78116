package telegram

import (
	"strings"
	"unicode/utf8"
)

// chunkLimit is the per-message budget in runes for the unformatted text.
// Telegram caps messages at 4096 characters after entity parsing; the margin
// covers the HTML tags added by FormatHTML and re-opened fences.
const chunkLimit = 3500

// splitMessage splits text into chunks of at most chunkLimit runes,
// preferring to break after a newline. A chunk that ends inside a code fence
// is closed with ``` and the next chunk reopens it with the same info line,
// so every chunk formats on its own.
func splitMessage(text string) []string {
	if utf8.RuneCountInString(text) <= chunkLimit {
		return []string{text}
	}

	var chunks []string
	var reopen string
	remaining := text
	for remaining != "" {
		if utf8.RuneCountInString(remaining) <= chunkLimit {
			chunks = append(chunks, reopen+remaining)
			break
		}

		cut := byteOffset(remaining, chunkLimit)
		splitPos := strings.LastIndex(remaining[:cut], "\n")
		if splitPos <= 0 {
			splitPos = cut
		} else {
			splitPos++ // keep the newline in the current chunk
		}
		chunk := reopen + remaining[:splitPos]
		remaining = remaining[splitPos:]

		reopen = ""
		if fence, open := openFence(chunk); open {
			if !strings.HasSuffix(chunk, "\n") {
				chunk += "\n"
			}
			chunk += "```"
			reopen = fence + "\n"
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// openFence reports whether s ends inside a ``` block and returns the line
// that opened it.
func openFence(s string) (string, bool) {
	var fence string
	open := false
	for line := range strings.Lines(s) {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "```") {
			continue
		}
		if open {
			open = false
		} else {
			open, fence = true, line
		}
	}
	return fence, open
}

// byteOffset returns the byte index of the n-th rune in s.
func byteOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
