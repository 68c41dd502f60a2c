package syntax

import (
	"context"
	"errors"
	"strings"

	"github.com/yuin/gopher-lua/parse"
)

// checkLua parses in-process; no interpreter is spawned.
func checkLua(_ context.Context, _ *Checker, code string) error {
	_, err := parse.Parse(strings.NewReader(code), "<check>")
	if err == nil {
		return nil
	}

	var perr *parse.Error
	if errors.As(err, &perr) && perr.Pos.Line > 0 {
		message := perr.Message
		if perr.Token != "" {
			message += " near '" + perr.Token + "'"
		}
		v := lineError("lua", "Lua", perr.Pos.Line, message, sourceLine(code, perr.Pos.Line))
		v.Column = perr.Pos.Column
		return v
	}
	return genericError("lua", "Lua", err.Error())
}
