package command

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownOptionalArg is returned when a command's trailing argument
// list contains a token that isn't one of the keywords the command
// declares.
var ErrUnknownOptionalArg = errors.New("command: unknown optional argument")

// ErrBadArguments is returned when a declared keyword argument's value
// fails to parse, or when two mutually exclusive keywords are both
// present.
var ErrBadArguments = errors.New("command: bad arguments")

// argKind distinguishes a bare flag (e.g. a hypothetical NX) from a
// keyword that consumes the following token as its value (e.g. PX ms).
type argKind int

const (
	argFlag argKind = iota
	argKeywordInt
)

// argSpec declares one optional trailing argument a command accepts.
type argSpec struct {
	keyword    string
	kind       argKind
	exclusives []string // other keywords in this command's spec this one can't coexist with
}

// parsedArgs is the outcome of matching a token stream against a set of
// argSpecs: which flags/keywords were present and their integer values.
type parsedArgs struct {
	ints  map[string]int64
	flags map[string]bool
}

func (p parsedArgs) hasInt(keyword string) (int64, bool) {
	v, ok := p.ints[strings.ToUpper(keyword)]
	return v, ok
}

func (p parsedArgs) hasFlag(keyword string) bool {
	return p.flags[strings.ToUpper(keyword)]
}

// parseOptionalArgs consumes tokens against the declared specs,
// matching keywords case-insensitively. It rejects unknown tokens and
// enforces each spec's exclusivity list.
func parseOptionalArgs(tokens [][]byte, specs []argSpec) (parsedArgs, error) {
	byKeyword := make(map[string]argSpec, len(specs))
	for _, s := range specs {
		byKeyword[strings.ToUpper(s.keyword)] = s
	}

	out := parsedArgs{ints: make(map[string]int64), flags: make(map[string]bool)}
	present := make(map[string]bool)

	for i := 0; i < len(tokens); i++ {
		token := strings.ToUpper(string(tokens[i]))
		spec, ok := byKeyword[token]
		if !ok {
			return parsedArgs{}, errors.Wrapf(ErrUnknownOptionalArg, "%q", tokens[i])
		}

		for _, other := range spec.exclusives {
			if present[strings.ToUpper(other)] {
				return parsedArgs{}, errors.Wrapf(ErrBadArguments, "%s and %s are mutually exclusive", spec.keyword, other)
			}
		}

		switch spec.kind {
		case argFlag:
			out.flags[token] = true
		case argKeywordInt:
			i++
			if i >= len(tokens) {
				return parsedArgs{}, errors.Wrapf(ErrBadArguments, "%s requires a value", spec.keyword)
			}
			n, err := strconv.ParseInt(string(tokens[i]), 10, 64)
			if err != nil {
				return parsedArgs{}, errors.Wrapf(ErrBadArguments, "%s value %q is not an integer", spec.keyword, tokens[i])
			}
			out.ints[token] = n
		}
		present[token] = true
	}

	return out, nil
}
