package tui

import (
	"strings"
	"unicode/utf8"
)

// maxInputLen is the maximum number of runes allowed in form inputs.
const maxInputLen = 512

// editRune processes a keystroke for inline text editing.
// Handles backspace (rune-aware) and single printable characters.
// Returns the text unchanged for non-printable keys (enter, esc, etc.).
func editRune(text string, key string) string {
	switch key {
	case "backspace":
		if len(text) > 0 {
			runes := []rune(text)
			return string(runes[:len(runes)-1])
		}
		return text
	default:
		if utf8.RuneCountInString(key) == 1 {
			if utf8.RuneCountInString(text) >= maxInputLen {
				return text
			}
			return text + key
		}
		return text
	}
}

// truncateToHeight limits output to maxLines newline-delimited lines.
// Returns the original string if it fits or maxLines is <= 0.
func truncateToHeight(s string, maxLines int) string {
	if maxLines <= 0 {
		return s
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n++
			if n >= maxLines {
				return s[:i+1]
			}
		}
	}
	return s
}

// field is one line of a form.
type field struct {
	label       string
	placeholder string
	value       string
	secret      bool
}

// form is a vertical list of fields with one focused at a time.
type form struct {
	fields []field
	focus  int
}

func newForm(fields ...field) form {
	return form{fields: fields}
}

// handleKey edits the focused field or moves focus. It reports whether the
// key was consumed.
func (f *form) handleKey(key string) bool {
	switch key {
	case "tab", "down":
		f.focus = (f.focus + 1) % len(f.fields)
		return true
	case "shift+tab", "up":
		f.focus = (f.focus - 1 + len(f.fields)) % len(f.fields)
		return true
	}
	cur := f.fields[f.focus].value
	next := editRune(cur, key)
	if next == cur && key != "backspace" {
		return false
	}
	f.fields[f.focus].value = next
	return true
}

// paste appends pasted text to the focused field, dropping newlines.
func (f *form) paste(text string) {
	text = strings.NewReplacer("\r", "", "\n", "").Replace(text)
	cur := f.fields[f.focus].value
	room := maxInputLen - utf8.RuneCountInString(cur)
	if room <= 0 {
		return
	}
	if r := []rune(text); len(r) > room {
		text = string(r[:room])
	}
	f.fields[f.focus].value = cur + text
}

// onLast reports whether focus is on the final field.
func (f form) onLast() bool {
	return f.focus == len(f.fields)-1
}

func (f form) value(i int) string {
	return strings.TrimSpace(f.fields[i].value)
}

// raw returns a field without trimming, for passwords.
func (f form) raw(i int) string {
	return f.fields[i].value
}

// missing returns the label of the first empty field, or "".
func (f form) missing() string {
	for _, fl := range f.fields {
		if strings.TrimSpace(fl.value) == "" {
			return fl.label
		}
	}
	return ""
}

// view renders every field, with a cursor on the focused one when the
// animation frame says so.
func (f form) view(frame int) string {
	width := 0
	for _, fl := range f.fields {
		if n := utf8.RuneCountInString(fl.label); n > width {
			width = n
		}
	}
	var b strings.Builder
	for i, fl := range f.fields {
		label := fl.label + strings.Repeat(" ", width-utf8.RuneCountInString(fl.label))
		prompt := "  "
		if i == f.focus {
			prompt = inputPromptStyle.Render("> ")
			label = selectedStyle.Render(label)
		} else {
			label = labelStyle.Render(label)
		}
		shown := fl.value
		if fl.secret {
			shown = strings.Repeat("•", utf8.RuneCountInString(fl.value))
		}
		var text string
		switch {
		case shown == "" && i != f.focus:
			text = inputPlaceholderStyle.Render(fl.placeholder)
		default:
			text = inputTextStyle.Render(shown)
		}
		cursor := ""
		if i == f.focus && (frame/4)%2 == 0 {
			cursor = accentStyle.Render("█")
		}
		b.WriteString(" " + prompt + label + "  " + text + cursor + "\n")
	}
	return b.String()
}
