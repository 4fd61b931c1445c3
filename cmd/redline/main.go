// Command redline lints a file or stdin offline.
//
// Exit status is 0 when the text is clean, 1 when redlines were found and
// 2 on usage or input errors. -apply always exits 0 on success.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"crisiscrew.org/internal/redline"
)

const (
	exitClean    = 0
	exitRedlines = 1
	exitError    = 2
)

const usageText = `usage: redline [flags] [file]

Reads stdin when no file is given.

Exit status: 0 when no redlines are found, 1 when at least one is found
(not with -apply), 2 on usage or input errors.

`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("redline", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		termsPath = fs.String("terms", "", "YAML risk table replacing the built-in terms")
		order     = fs.String("order", "term", "Output order: term or position")
		summary   = fs.Bool("summary", false, "Print per-severity counts instead of redlines")
		apply     = fs.Bool("apply", false, "Print the text with suggestions applied")
	)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usageText)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitClean
		}
		return exitError
	}

	o, err := redline.ParseOrder(*order)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	opts := []redline.Option{redline.WithOrder(o)}
	if *termsPath != "" {
		table, err := redline.LoadTableFile(*termsPath)
		if err != nil {
			fmt.Fprintf(stderr, "load terms: %v\n", err)
			return exitError
		}
		opts = append(opts, redline.WithTable(table))
	}

	text, err := readInput(fs.Arg(0), stdin)
	if err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return exitError
	}

	redlines := redline.New(opts...).Lint(text)
	out := bufio.NewWriter(stdout)
	defer out.Flush()

	switch {
	case *apply:
		revised, _ := redline.Apply(text, redlines)
		fmt.Fprint(out, revised)
		return exitClean
	case *summary:
		s := redline.Summarize(redlines)
		fmt.Fprintf(out, "total %d\n", s.Total)
		for _, sev := range redline.Severities {
			fmt.Fprintf(out, "%-8s %d\n", sev, s.BySeverity[sev])
		}
	default:
		enc := json.NewEncoder(out)
		for _, r := range redlines {
			if err := enc.Encode(r); err != nil {
				fmt.Fprintf(stderr, "encode: %v\n", err)
				return exitError
			}
		}
	}
	if len(redlines) > 0 {
		return exitRedlines
	}
	return exitClean
}

func readInput(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}
