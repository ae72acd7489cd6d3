package exprtemplate

import "errors"

var (
	errUnclosedAction = errors.New("exprtemplate: unclosed {{ action")
	errStrayElse      = errors.New("exprtemplate: else without matching if")
	errStrayEnd       = errors.New("exprtemplate: end without matching if")
	errUnclosedIf     = errors.New("exprtemplate: if without matching end")
	errEmptyVarPath   = errors.New("exprtemplate: empty variable path")
)
