package exprtemplate

import (
	"fmt"
	"sort"
	"strings"
)

// Expand renders tmpl against a local scope (".name" paths) and a remote
// scope ("$remote.path" paths). It never errors on an unresolved variable:
// per §4.9, the path is recorded in the returned unresolvable set and
// rendered in place as "UNDEFINED[<path>]". Only malformed template syntax
// (unclosed action, stray else/end, unclosed if) returns an error.
func Expand(tmpl string, local, remote map[string]interface{}) (string, []string, error) {
	root, err := parse(tmpl)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	unresolved := map[string]struct{}{}
	if err := renderChain(root, local, remote, &sb, unresolved); err != nil {
		return "", nil, err
	}

	list := make([]string, 0, len(unresolved))
	for k := range unresolved {
		list = append(list, k)
	}
	sort.Strings(list)
	return sb.String(), list, nil
}

func renderChain(n *node, local, remote map[string]interface{}, sb *strings.Builder, unresolved map[string]struct{}) error {
	for n != nil {
		switch n.kind {
		case nodeText:
			sb.WriteString(n.text)
		case nodeVar:
			val, ok := resolvePath(n.varPath, scopeFor(n, local, remote))
			if !ok {
				marker := varSyntax(n)
				unresolved[marker] = struct{}{}
				sb.WriteString("UNDEFINED[" + marker + "]")
				break
			}
			for _, fc := range n.filters {
				var err error
				val, err = applyFilter(val, fc)
				if err != nil {
					return err
				}
			}
			sb.WriteString(formatValue(val))
		case nodeIf:
			val, ok := resolvePath(n.varPath, scopeFor(n, local, remote))
			if !ok {
				unresolved[varSyntax(n)] = struct{}{}
			}
			if ok && isTruthy(val) {
				if err := renderChain(n.thenClause, local, remote, sb, unresolved); err != nil {
					return err
				}
			} else if n.elseClause != nil {
				if err := renderChain(n.elseClause, local, remote, sb, unresolved); err != nil {
					return err
				}
			}
		}
		n = n.next
	}
	return nil
}

func scopeFor(n *node, local, remote map[string]interface{}) map[string]interface{} {
	if n.isRemote {
		return remote
	}
	return local
}

func varSyntax(n *node) string {
	if n.isRemote {
		return "$" + n.varPath
	}
	return "." + n.varPath
}

// resolvePath walks a dot-separated path through nested
// map[string]interface{} values, the shape §4.9's localConfig/peerif/
// peerblock/affif/affblock/site.metadata scopes are assembled from.
func resolvePath(path string, scope map[string]interface{}) (interface{}, bool) {
	if scope == nil {
		return nil, false
	}
	var cur interface{} = scope
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func isTruthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	default:
		return true
	}
}
