package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "fetch":
		return runFetch(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "process", "run-once":
		return runProcess(args[1:])
	case "keywords":
		return runKeywords(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "newsdedup CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  newsdedup <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database connectivity and schema")
	fmt.Fprintln(os.Stderr, "  validate  Validate candidate JSON files against the article schema")
	fmt.Fprintln(os.Stderr, "  fetch     Download configured feeds into per-source JSON files")
	fmt.Fprintln(os.Stderr, "  ingest    Deduplicate candidate JSON files into the article store")
	fmt.Fprintln(os.Stderr, "  process   Run fetch + ingest in sequence")
	fmt.Fprintln(os.Stderr, "  run-once  Alias for process")
	fmt.Fprintln(os.Stderr, "  keywords  Print the stored keywords of an article")
	fmt.Fprintln(os.Stderr, "  serve     Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"newsdedup <command> -h\" for command-specific flags.")
}
