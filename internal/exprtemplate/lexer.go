// Package exprtemplate implements the small `{{ }}` expression language of
// §4.9: variable interpolation against a local and a remote scope,
// `if`/`else`/`end` conditionals, and `{{-`/`-}}` whitespace trimming.
// A real tokenizer/parser rather than repeated string.ReplaceAll passes,
// since the conditionals and dotted remote-scope lookups need a tree.
package exprtemplate

import "strings"

type tokenKind int

const (
	tokenText tokenKind = iota
	tokenAction
)

// token is either a literal run of text or the raw contents between a
// `{{`/`}}` pair (trimmed, with any `-` trim markers still attached so the
// parser can apply them).
type token struct {
	kind tokenKind
	text string
}

// tokenize splits src on `{{`/`}}` delimiters. An unterminated `{{` is a
// hard error, matching the spec's "unclosed... is a hard error" wording.
func tokenize(src string) ([]token, error) {
	var toks []token
	rest := src
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			if rest != "" {
				toks = append(toks, token{kind: tokenText, text: rest})
			}
			return toks, nil
		}
		if start > 0 {
			toks = append(toks, token{kind: tokenText, text: rest[:start]})
		}
		rest = rest[start+2:]
		end := strings.Index(rest, "}}")
		if end < 0 {
			return nil, errUnclosedAction
		}
		toks = append(toks, token{kind: tokenAction, text: rest[:end]})
		rest = rest[end+2:]
	}
}
