package main

import (
	"errors"
	"flag"
	"strings"
)

// errHelp is returned by commands that printed their usage on request.
var errHelp = errors.New("help requested")

// extractProfileFlag removes a leading -p/--profile option, which must come
// before the subcommand.
func extractProfileFlag(args []string) (string, []string) {
	profile := ""
	for len(args) > 0 {
		a := args[0]
		switch {
		case a == "-p" || a == "--profile" || a == "-profile":
			if len(args) < 2 {
				return profile, args[1:]
			}
			profile = args[1]
			args = args[2:]
		case strings.HasPrefix(a, "-p="):
			profile, args = strings.TrimPrefix(a, "-p="), args[1:]
		case strings.HasPrefix(a, "--profile="):
			profile, args = strings.TrimPrefix(a, "--profile="), args[1:]
		default:
			return profile, args
		}
	}
	return profile, args
}

// normalizeArgs moves flags ahead of positional arguments so that
// "suggest mail.json --limit 3" parses like "suggest --limit 3 mail.json".
// Everything after "--" stays positional.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(a, "-") || a == "-" {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
		if strings.Contains(a, "=") {
			continue
		}
		f := fs.Lookup(strings.TrimLeft(a, "-"))
		if f == nil || isBoolFlag(f) {
			continue
		}
		if i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	if len(positional) == 0 {
		return flags
	}
	return append(append(flags, "--"), positional...)
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// parseFlags parses args with fs after normalization and maps -h to errHelp.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return err
	}
	return nil
}
