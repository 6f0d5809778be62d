package route

import (
	"strings"

	"github.com/wippyai/wagi/errors"
)

// SubRoute is one line of a module's _routes output.
type SubRoute struct {
	Pattern    Pattern
	Entrypoint string
}

// ParseSubRoutes parses _routes output: zero or more lines of
// "<sub-pattern> <entrypoint>". Blank lines are skipped; any other
// malformed line is an error, which aborts startup.
func ParseSubRoutes(text string) ([]SubRoute, error) {
	var routes []SubRoute
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, errors.InvalidInput(errors.PhaseDiscover, "invalid _routes line %q", strings.TrimSpace(line))
		}
		p, err := ParsePattern(fields[0])
		if err != nil {
			return nil, errors.InvalidInput(errors.PhaseDiscover, "invalid _routes pattern %q", fields[0])
		}
		routes = append(routes, SubRoute{Pattern: p, Entrypoint: fields[1]})
	}
	return routes, nil
}
