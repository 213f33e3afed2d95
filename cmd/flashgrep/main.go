package main

import (
	"fmt"
	"os"

	"github.com/flashgrep/flashgrep/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if err := runCommand(cmd, args); err != nil {
		fatal("%v", err)
	}
}

func runCommand(cmd string, args []string) error {
	switch cmd {
	case "serve":
		return cmdServe(args)
	case "index":
		return cmdIndex(args)
	case "query":
		return cmdQuery(args)
	case "glob":
		return cmdGlob(args)
	case "stats":
		return cmdStats(args)
	case "help", "-h", "--help":
		printUsage()
		return nil
	case "version", "-v", "--version":
		return cmdVersion(args)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func cmdVersion(args []string) error {
	for _, arg := range args {
		if arg == "--json" {
			fmt.Println(version.JSON())
			return nil
		}
	}
	fmt.Println(version.String())
	return nil
}

func printUsage() {
	fmt.Printf(`flashgrep %s - local code indexing and retrieval engine

Usage:
  flashgrep <command> [arguments]

Commands:
  serve      Watch the repository and serve query/glob/read/write RPCs
  index      Run a one-shot full index of the repository
  query      Run a search query against the index
  glob       List files matching a glob pattern
  stats      Print index file/chunk/symbol counts and size
  version    Show version information

Flags (most commands):
  --root=<path>   Repository root (default: walk up from cwd for .flashgrep or .git)

Environment:
  FLASHGREP_ROOT           Repository root, overridden by --root
  FLASHGREP_MCP_PORT       RPC TCP port (default: 7777)
  FLASHGREP_USE_UNIX_SOCKET  Also serve on the repo's .flashgrep/mcp.sock (default: true on unix)
  FLASHGREP_EXTENSIONS     Comma-separated list of indexed file extensions
  FLASHGREP_IGNORED_DIRS   Comma-separated list of directory names to skip

Examples:
  flashgrep index
  flashgrep serve
  flashgrep query "func New" --mode=literal
  flashgrep glob "**/*.go" --recursive
  flashgrep stats
`, version.Short())
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "flashgrep: "+format+"\n", args...)
	os.Exit(1)
}
