package chat

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// TrimHistory bounds a conversation before it is sent upstream. Turns with
// roles other than user or assistant, and empty turns, are dropped. At most
// maxMessages of the most recent turns are kept, oldest turns are dropped
// until the total content length is within maxChars runes, and leading
// assistant turns are removed so the history opens with a user turn. A
// non-positive limit disables that bound.
func TrimHistory(msgs []Message, maxMessages, maxChars int) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" || (m.Role != RoleUser && m.Role != RoleAssistant) {
			continue
		}
		out = append(out, Message{Role: m.Role, Content: content})
	}

	if maxMessages > 0 && len(out) > maxMessages {
		out = out[len(out)-maxMessages:]
	}

	if maxChars > 0 {
		total := 0
		for _, m := range out {
			total += utf8.RuneCountInString(m.Content)
		}
		for total > maxChars && len(out) > 1 {
			total -= utf8.RuneCountInString(out[0].Content)
			out = out[1:]
		}
		if total > maxChars && len(out) == 1 {
			out[0].Content = string([]rune(out[0].Content)[:maxChars])
		}
	}

	for len(out) > 0 && out[0].Role != RoleUser {
		out = out[1:]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// ExtractEmail returns the first valid email address a user mentioned.
func ExtractEmail(msgs []Message) string {
	for _, m := range msgs {
		if m.Role != RoleUser {
			continue
		}
		for _, candidate := range emailPattern.FindAllString(m.Content, -1) {
			if addr, err := mail.ParseAddress(candidate); err == nil {
				return strings.ToLower(addr.Address)
			}
		}
	}
	return ""
}
