// ABOUTME: Small argument parser for subcommands
// ABOUTME: Supports "--name value", "--name=value" and boolean flags

package main

import (
	"fmt"
	"strings"
)

type parsedArgs struct {
	positional []string
	values     map[string]string
	bools      map[string]bool
}

func (a *parsedArgs) has(name string) bool {
	return a.bools[name]
}

// parseArgs splits args into positionals and flags. known maps each flag to
// whether it takes a value. "--" ends flag parsing.
func parseArgs(args []string, known map[string]bool) (*parsedArgs, error) {
	out := &parsedArgs{values: map[string]string{}, bools: map[string]bool{}}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			out.positional = append(out.positional, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "--") || arg == "-" {
			out.positional = append(out.positional, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		takesValue, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown flag: --%s", name)
		}
		if !takesValue {
			if hasValue {
				return nil, fmt.Errorf("--%s does not take a value", name)
			}
			out.bools[name] = true
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		out.values[name] = value
	}
	return out, nil
}
