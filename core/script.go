package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// undefinedArg renders as a bare `undefined` argument.
type undefinedArg struct{}

var undefined = undefinedArg{}

// buildCall renders `window.<ns>?.<method>(<args>)`. Arguments are JSON
// encoded; nil renders as null.
func buildCall(namespace, method string, args ...any) (string, error) {
	rendered, err := renderArgs(args)
	if err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}
	return fmt.Sprintf("window.%s?.%s(%s)", namespace, method, rendered), nil
}

// buildOptionalCall is buildCall for methods the surface may not define.
func buildOptionalCall(namespace, method string, args ...any) (string, error) {
	rendered, err := renderArgs(args)
	if err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}
	return fmt.Sprintf("window.%s?.%s?.(%s)", namespace, method, rendered), nil
}

func renderArgs(args []any) (string, error) {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if _, ok := arg.(undefinedArg); ok {
			parts = append(parts, "undefined")
			continue
		}
		data, err := json.Marshal(arg)
		if err != nil {
			return "", err
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, ", "), nil
}
