package exprtemplate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandLocalAndRemoteScopes(t *testing.T) {
	local := map[string]interface{}{"name": "web", "config": map[string]interface{}{"port": 8080}}
	remote := map[string]interface{}{"block": map[string]interface{}{"name": "db"}}

	out, unresolved, err := Expand("svc={{ .name }} port={{ .config.port }} peer={{ $block.name }}", local, remote)
	require.NoError(t, err)
	require.Empty(t, unresolved)
	require.Equal(t, "svc=web port=8080 peer=db", out)
}

func TestExpandUnresolvedRendersUndefinedMarker(t *testing.T) {
	out, unresolved, err := Expand("value={{ .missing }}", map[string]interface{}{}, nil)
	require.NoError(t, err)
	require.Equal(t, "value=UNDEFINED[.missing]", out)
	require.Equal(t, []string{".missing"}, unresolved)
}

func TestExpandIfElse(t *testing.T) {
	tmpl := "{{ if .ready }}up{{ else }}down{{ end }}"
	out, _, err := Expand(tmpl, map[string]interface{}{"ready": true}, nil)
	require.NoError(t, err)
	require.Equal(t, "up", out)

	out, _, err = Expand(tmpl, map[string]interface{}{"ready": false}, nil)
	require.NoError(t, err)
	require.Equal(t, "down", out)
}

func TestExpandIfWithoutElseFallsThrough(t *testing.T) {
	out, _, err := Expand("[{{ if .flag }}X{{ end }}]", map[string]interface{}{"flag": false}, nil)
	require.NoError(t, err)
	require.Equal(t, "[]", out)
}

func TestExpandWhitespaceTrimMarkers(t *testing.T) {
	tmpl := "a\n{{- .x -}}\nb"
	out, _, err := Expand(tmpl, map[string]interface{}{"x": "MID"}, nil)
	require.NoError(t, err)
	require.Equal(t, "aMIDb", out)
}

func TestExpandPipelineAppliesSprigFunction(t *testing.T) {
	out, _, err := Expand("{{ .name | upper }}", map[string]interface{}{"name": "web"}, nil)
	require.NoError(t, err)
	require.Equal(t, "WEB", out)
}

func TestExpandEndWithoutIfIsHardError(t *testing.T) {
	_, _, err := Expand("{{ end }}", nil, nil)
	require.ErrorIs(t, err, errStrayEnd)
}

func TestExpandUnclosedThenIsHardError(t *testing.T) {
	_, _, err := Expand("{{ if .x }}unterminated", map[string]interface{}{"x": true}, nil)
	require.ErrorIs(t, err, errUnclosedIf)
}
