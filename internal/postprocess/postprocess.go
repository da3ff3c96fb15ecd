// Package postprocess removes common LLM artifacts from model output.
//
// Every capability response passes through ExtractJSON before it is decoded,
// and scalar translations pass through CleanTranslation before they are
// returned to callers.
package postprocess

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a response holds no JSON object or array.
var ErrNoJSON = errors.New("no JSON object or array in response")

// ExtractJSON returns the first complete JSON object or array in text after
// removing reasoning blocks and markdown code fences.
func ExtractJSON(text string) (string, error) {
	text = removeThinkingBlocks(text)
	text = removeCodeFences(text)

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}
	end := matchingClose(text, start)
	if end < 0 {
		// unterminated; hand the tail to the decoder so the error names the problem
		return strings.TrimSpace(text[start:]), nil
	}
	return text[start : end+1], nil
}

// matchingClose returns the byte index of the bracket closing the one at
// start, honouring JSON string escapes, or -1.
func matchingClose(text string, start int) int {
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var codeFenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\n?(.*?)```")

func removeCodeFences(text string) string {
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// CleanTranslation removes LLM artifacts from a scalar translation of source:
//  1. Thinking / reasoning block removal
//  2. Instruction echo removal (prompt leakage)
//  3. Quote wrapping removal, skipped when source itself is quoted
func CleanTranslation(source, text string) string {
	text = removeThinkingBlocks(text)
	text = removeInstructionEchoes(text)
	if !isQuoteWrapped(strings.TrimSpace(source)) {
		text = removeQuoteWrapping(text)
	}
	return strings.TrimSpace(text)
}

// --- thinking blocks ---

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// RE2 has no backreferences so each tag variant is listed.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- instruction echoes ---

// echoPatterns match introductory phrases models prepend even when told not
// to. Each is anchored at the start and requires a colon.
var echoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:formatted |final |translated )?(?:translation|text)\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:formatted |final )?(?:translation|translated text)\s*:`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is)(?: the)? (?:formatted |final |translated )?(?:translation|text)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- quote wrapping ---

func isQuoteWrapped(text string) bool {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return false
	}
	first, last := runes[0], runes[n-1]
	return (first == '"' && last == '"') ||
		(first == '\'' && last == '\'') ||
		(first == '«' && last == '»') ||
		(first == '“' && last == '”') ||
		(first == '「' && last == '」') ||
		(first == '‘' && last == '’')
}

// removeQuoteWrapping strips one matching pair of outer quotes.
func removeQuoteWrapping(text string) string {
	if !isQuoteWrapped(text) {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[1 : len(runes)-1]))
}
