package mysqldriver

import (
	"regexp"
	"strings"
)

var delimiterCommandRe = regexp.MustCompile(`(?im)\A\s*delimiter\s*(\S+)\s*$`)

// splitStatements takes a string containing multiple SQL statements and splits them into
// individual statements with limited support for the DELIMITER keyword, as implemented by
// the mysql command line client. CreateQuery uses this to run admin/DDL scripts that define
// stored routines (which need a temporary alternate delimiter to embed semicolons).
//
// Limitations: a delimiter given as a quoted string is not supported; a statement is only
// split on a delimiter occurring at the end of a line, to avoid splitting inside string
// literals or comments; comments containing a line-ending delimiter are not handled.
func splitStatements(statements string) []string {
	delimiterRe := makeDelimiterRe(";")

	var result []string

	for len(statements) > 0 {
		if match := delimiterCommandRe.FindStringSubmatch(statements); match != nil {
			delimiterRe = makeDelimiterRe(match[1])
			statements = statements[len(match[0]):]
			continue
		}

		split := delimiterRe.Split(statements, 2)

		if statement := strings.TrimSpace(split[0]); len(statement) > 0 {
			result = append(result, statement)
		}

		if len(split) > 1 {
			statements = split[1]
		} else {
			statements = ""
		}
	}

	return result
}

func makeDelimiterRe(delimiter string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)` + regexp.QuoteMeta(delimiter) + `$`)
}
