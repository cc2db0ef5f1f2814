// Package flagx lets several flag sets share one argument list. Each set
// parses only the flags it knows, so -c can be read before the defaults are
// loaded and the remaining flags after.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs keeps the arguments that belong to the named flags. Names are
// given without dashes and match both "-name" and "--name", in the forms
// "-name value" and "-name=value". A value is taken from the next argument
// only when it does not itself start with a dash.
func FilterArgs(args []string, names ...string) []string {
	known := make(map[string]struct{}, len(names))
	for _, n := range names {
		known[n] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		name, hasValue, ok := flagName(args[i])
		if !ok {
			continue
		}
		if _, ok := known[name]; !ok {
			continue
		}

		filtered = append(filtered, args[i])
		if !hasValue && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// flagName splits "-name", "--name" or "-name=value" and reports whether the
// value is inline.
func flagName(arg string) (name string, hasValue bool, ok bool) {
	if !strings.HasPrefix(arg, "-") {
		return "", false, false
	}
	name = strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
	if name == "" {
		return "", false, false
	}
	if i := strings.IndexByte(name, '='); i >= 0 {
		return name[:i], true, true
	}
	return name, false, true
}

// ConfigFileFlag returns the path given with -c or -config, or "" when
// neither is present. The last occurrence wins.
func ConfigFileFlag(args []string) string {
	var config string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&config, "config", "", "path to config file (JSON or YAML)")
	fs.StringVar(&config, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, "c", "config"))

	return config
}
