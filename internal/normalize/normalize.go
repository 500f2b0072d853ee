// Package normalize canonicalizes fault-description query strings before
// they reach any retriever: trimming, whitespace collapsing, abbreviation
// expansion, and common-misspelling correction, so retrieval and
// calibration operate on a consistent vocabulary.
package normalize

import (
	"regexp"
	"strings"
)

// abbreviations maps shorthand automotive terms to their canonical form.
// Entries are applied as plain substring replacements. No value here is
// itself a key, and where a value contains its own key ("发动" -> "发动机"),
// applyTable leaves text that already reads as the value alone, which keeps
// Normalize idempotent. Latin-script keys are
// lower-case because Normalize lower-cases ASCII letters before this table
// is applied.
var abbreviations = map[string]string{
	"abs":  "防抱死制动系统",
	"esp":  "车身电子稳定系统",
	"ecu":  "电子控制单元",
	"dtc":  "故障代码",
	"发动":   "发动机",
	"变速箱": "变速器",
	"离合":   "离合器",
}

// misspellings maps common typos and homophones observed in free-text
// fault reports to their canonical spelling.
var misspellings = map[string]string{
	"质车":  "刹车",
	"制动器": "制动",
	"异想":  "异响",
	"发骚":  "发飘",
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// faultCodePattern matches tokens that look like fault codes (e.g. P0301,
// U0100-1C) so they pass through unaltered.
var faultCodePattern = regexp.MustCompile(`^[A-Za-z][0-9][0-9A-Za-z-]{2,}$`)

// Normalize canonicalizes a raw query string: it trims surrounding
// whitespace, collapses interior whitespace runs to a single space,
// lower-cases ASCII letters, and rewrites abbreviations and common
// misspellings to their canonical forms. Fault-code-shaped tokens are
// preserved verbatim.
//
// Normalize is deterministic and idempotent: Normalize(Normalize(q)) ==
// Normalize(q) for any q.
func Normalize(query string) string {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return ""
	}

	collapsed := whitespaceRun.ReplaceAllString(trimmed, " ")

	tokens := strings.Split(collapsed, " ")
	for i, tok := range tokens {
		if faultCodePattern.MatchString(tok) {
			tokens[i] = strings.ToUpper(tok)
			continue
		}
		tokens[i] = lowerASCII(tok)
	}
	normalized := strings.Join(tokens, " ")

	normalized = applyTable(normalized, abbreviations)
	normalized = applyTable(normalized, misspellings)

	return normalized
}

func applyTable(s string, table map[string]string) string {
	for from, to := range table {
		if strings.Contains(to, from) {
			parts := strings.Split(s, to)
			for i, p := range parts {
				parts[i] = strings.ReplaceAll(p, from, to)
			}
			s = strings.Join(parts, to)
			continue
		}
		s = strings.ReplaceAll(s, from, to)
	}
	return s
}

// lowerASCII lower-cases only ASCII letters, leaving non-Latin scripts
// (e.g. Chinese, which has no case) untouched.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
