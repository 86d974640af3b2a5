// Command sqllint checks that every SQL string constant opens with a unique
// "--sql <uuid>" audit marker, so SQLRunner logs can be traced to a query.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	l := newLinter()
	for _, target := range targets {
		if err := l.lint(target); err != nil {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
			os.Exit(1)
		}
	}
	if len(l.findings) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "sqllint: invalid SQL audit markers")
	for _, f := range l.findings {
		fmt.Fprintf(os.Stderr, "  %s\n", f)
	}
	os.Exit(1)
}
