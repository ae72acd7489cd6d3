package exprtemplate

import (
	"fmt"
	"reflect"

	"github.com/Masterminds/sprig/v3"
)

// templateFuncs is the function library §4.9/SPEC_FULL §11 makes available
// to a piped variable reference, e.g. `{{ .name | upper }}` or
// `{{ .issued | date "2006-01-02" }}`. It extends the spec's minimal
// if/variable core with sprig's string and date helpers rather than
// growing a bespoke function set.
var templateFuncs = sprig.TxtFuncMap()

// filterCall is one stage of a `{{ .path | fn arg1 arg2 }}` pipeline.
type filterCall struct {
	name string
	args []interface{}
}

// applyFilter invokes a named sprig function with fc.args followed by val
// as its final argument, the convention every sprig/text-template pipeline
// function follows. Like text/template's own reflect-based function
// dispatch, a type mismatch is recovered into an error rather than left to
// panic the renderer.
func applyFilter(val interface{}, fc filterCall) (result interface{}, err error) {
	fn, ok := templateFuncs[fc.name]
	if !ok {
		return nil, fmt.Errorf("exprtemplate: unknown template function %q", fc.name)
	}
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("exprtemplate: %q is not callable", fc.name)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exprtemplate: calling %q: %v", fc.name, r)
		}
	}()

	args := make([]reflect.Value, 0, len(fc.args)+1)
	for _, a := range fc.args {
		args = append(args, reflect.ValueOf(a))
	}
	args = append(args, reflect.ValueOf(val))

	out := fv.Call(args)
	if len(out) == 0 {
		return nil, nil
	}
	if len(out) == 2 {
		if errv, ok := out[1].Interface().(error); ok && errv != nil {
			return nil, errv
		}
	}
	return out[0].Interface(), nil
}
