package exprtemplate

import (
	"fmt"
	"strconv"
	"strings"
)

type nodeKind int

const (
	nodeText nodeKind = iota
	nodeVar
	nodeIf
)

// node is one step of the parsed template, chained via next the way the
// spec describes ("nodes chain via a next pointer").
type node struct {
	kind nodeKind

	text string // nodeText

	varPath  string // nodeVar / nodeIf's condition path
	isRemote bool
	filters  []filterCall // nodeVar only

	thenClause *node // nodeIf
	elseClause *node // nodeIf, nil if no {{ else }}

	next *node
}

// item is a token after trim-marker processing: either literal text or a
// parsed action body (with the leading/trailing "-" markers stripped).
type item struct {
	isAction bool
	text     string // literal text, only valid when !isAction
	action   string // trimmed action body, only valid when isAction
}

// lower converts raw tokens into items, applying {{- / -}} whitespace
// trimming to the text immediately before/after each action.
func lower(toks []token) []item {
	items := make([]item, 0, len(toks))
	trimNextLeft := false
	for _, t := range toks {
		if t.kind == tokenText {
			text := t.text
			if trimNextLeft {
				text = strings.TrimLeftFunc(text, isSpace)
				trimNextLeft = false
			}
			items = append(items, item{text: text})
			continue
		}
		body := t.text
		trimLeft := strings.HasPrefix(body, "-")
		if trimLeft {
			body = strings.TrimPrefix(body, "-")
		}
		trimRight := strings.HasSuffix(body, "-")
		if trimRight {
			body = strings.TrimSuffix(body, "-")
		}
		body = strings.TrimSpace(body)

		if trimLeft && len(items) > 0 && !items[len(items)-1].isAction {
			items[len(items)-1].text = strings.TrimRightFunc(items[len(items)-1].text, isSpace)
		}
		items = append(items, item{isAction: true, action: body})
		trimNextLeft = trimRight
	}
	return items
}

// isSpace matches the unicode.IsSpace predicate without importing unicode
// just for this one call site's rune set (ASCII template whitespace only).
func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// parseVarNode builds a nodeVar from an action body of the form ".path" or
// "$remote.path".
func parseVarNode(body string) (*node, error) {
	if body == "" {
		return nil, errEmptyVarPath
	}
	if strings.HasPrefix(body, "$") {
		path := strings.TrimPrefix(body, "$")
		path = strings.TrimPrefix(path, ".")
		if path == "" {
			return nil, errEmptyVarPath
		}
		return &node{kind: nodeVar, varPath: path, isRemote: true}, nil
	}
	path := strings.TrimPrefix(body, ".")
	if path == "" {
		return nil, errEmptyVarPath
	}
	return &node{kind: nodeVar, varPath: path, isRemote: false}, nil
}

// parseVarAction parses a full `{{ .path | fn arg ... | fn2 ... }}` body
// into a nodeVar carrying its filter pipeline.
func parseVarAction(body string) (*node, error) {
	segments := strings.Split(body, "|")
	n, err := parseVarNode(strings.TrimSpace(segments[0]))
	if err != nil {
		return nil, err
	}
	for _, seg := range segments[1:] {
		fc, err := parseFilterCall(strings.TrimSpace(seg))
		if err != nil {
			return nil, err
		}
		n.filters = append(n.filters, fc)
	}
	return n, nil
}

func parseFilterCall(s string) (filterCall, error) {
	fields := splitFields(s)
	if len(fields) == 0 {
		return filterCall{}, fmt.Errorf("exprtemplate: empty pipeline stage")
	}
	fc := filterCall{name: fields[0]}
	for _, f := range fields[1:] {
		fc.args = append(fc.args, parseLiteral(f))
	}
	return fc, nil
}

// splitFields splits on whitespace while keeping double-quoted substrings
// intact, enough for sprig-style `date "2006-01-02"` argument lists.
func splitFields(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			cur.WriteRune(r)
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}

func parseLiteral(tok string) interface{} {
	if len(tok) >= 2 && tok[0] == '"' && tok[len(tok)-1] == '"' {
		if unq, err := strconv.Unquote(tok); err == nil {
			return unq
		}
	}
	if i, err := strconv.Atoi(tok); err == nil {
		return i
	}
	return tok
}

// parse tokenizes and builds the node tree for src.
func parse(src string) (*node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	items := lower(toks)
	head, pos, err := parseBlock(items, 0, false)
	if err != nil {
		return nil, err
	}
	if pos != len(items) {
		// parseBlock only stops early on else/end, which at top level is stray.
		if items[pos].isAction && items[pos].action == "else" {
			return nil, errStrayElse
		}
		return nil, errStrayEnd
	}
	return head, nil
}

// parseBlock builds a chained node list starting at pos, stopping at EOF
// (top-level) or at a sibling "else"/"end" action (nested, insideIf=true).
// It returns the position of the stopping token (len(items) at EOF).
func parseBlock(items []item, pos int, insideIf bool) (*node, int, error) {
	var head, tail *node
	appendNode := func(n *node) {
		if head == nil {
			head = n
			tail = n
			return
		}
		tail.next = n
		tail = n
	}

	for pos < len(items) {
		it := items[pos]
		if !it.isAction {
			appendNode(&node{kind: nodeText, text: it.text})
			pos++
			continue
		}
		if it.action == "else" || it.action == "end" {
			if !insideIf {
				return head, pos, boolErr(it.action)
			}
			return head, pos, nil
		}
		if strings.HasPrefix(it.action, "if ") || it.action == "if" {
			cond := strings.TrimSpace(strings.TrimPrefix(it.action, "if"))
			condNode, err := parseVarNode(cond)
			if err != nil {
				return nil, 0, err
			}
			thenHead, next, err := parseBlock(items, pos+1, true)
			if err != nil {
				return nil, 0, err
			}
			if next >= len(items) {
				return nil, 0, errUnclosedIf
			}
			var elseHead *node
			if items[next].action == "else" {
				elseHead, next, err = parseBlock(items, next+1, true)
				if err != nil {
					return nil, 0, err
				}
				if next >= len(items) || items[next].action != "end" {
					return nil, 0, errUnclosedIf
				}
			}
			appendNode(&node{kind: nodeIf, varPath: condNode.varPath, isRemote: condNode.isRemote, thenClause: thenHead, elseClause: elseHead})
			pos = next + 1
			continue
		}
		varNode, err := parseVarAction(it.action)
		if err != nil {
			return nil, 0, err
		}
		appendNode(varNode)
		pos++
	}
	return head, pos, nil
}

func boolErr(action string) error {
	if action == "else" {
		return errStrayElse
	}
	return errStrayEnd
}
