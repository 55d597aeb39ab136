// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the repodoc CLI for generating tutorial-style
// architecture documentation from GitHub repositories.
//
// Usage:
//
//	repodoc init                       Create .repodoc/project.yaml configuration
//	repodoc generate [--repo URL]      Generate documentation for a repository
//	repodoc estimate [--repo URL]      Estimate LLM cost before generating
//	repodoc cache show|clear           Inspect or clear the generation cache
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/repodoc/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags carries flags that affect every command.
type GlobalFlags struct {
	// JSON switches all output to machine-readable JSON.
	JSON bool

	// Quiet suppresses progress bars and informational output.
	Quiet bool

	// NoColor disables ANSI colors.
	NoColor bool

	// Verbose raises log verbosity (0 = warn, 1 = info, 2 = debug).
	Verbose int
}

// main parses global flags and dispatches to command handlers.
//
// Commands:
//   - init: Create .repodoc/project.yaml configuration
//   - generate: Crawl a repository and generate documentation
//   - estimate: Estimate token usage and cost across models
//   - cache: Inspect or clear cached generations
func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to .repodoc/project.yaml (default: ./.repodoc/project.yaml)")
		globals     GlobalFlags
	)
	flag.BoolVar(&globals.JSON, "json", false, "Output as JSON")
	flag.BoolVarP(&globals.Quiet, "quiet", "q", false, "Suppress progress output")
	flag.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	flag.CountVarP(&globals.Verbose, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `repodoc - repository documentation generator

repodoc crawls a GitHub repository, identifies its core abstractions with an
LLM, and writes a linked set of tutorial chapters plus an index page with a
relationship diagram. Unchanged repositories are served from a local cache
without any LLM calls.

Usage:
  repodoc <command> [options]

Commands:
  init          Create .repodoc/project.yaml configuration
  generate      Generate documentation for a repository
  estimate      Estimate token usage and cost before generating
  cache         Inspect or clear the generation cache (show|clear)

Global Options:
  --config      Path to .repodoc/project.yaml
  --json        Output as JSON
  -q, --quiet   Suppress progress output
  --no-color    Disable colored output
  -v            Increase log verbosity (repeatable)
  --version     Show version and exit

Examples:
  repodoc init
  repodoc generate --repo https://github.com/acme/widget
  repodoc generate --repo acme/widget --out ./docs --full
  repodoc estimate --repo acme/widget --chapters 8
  repodoc cache show
  repodoc cache clear --repo acme/widget

Data Storage:
  Cached generations are stored in ~/.repodoc/cache/

Environment Variables:
  GITHUB_TOKEN       Token for private repositories and higher rate limits
  OLLAMA_HOST        Ollama URL (default: http://localhost:11434)
  OPENAI_API_KEY     OpenAI API key
  ANTHROPIC_API_KEY  Anthropic API key

For detailed command help: repodoc <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("repodoc version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	ui.InitColors(globals.NoColor)
	initLogging(globals)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs)
	case "generate":
		runGenerate(cmdArgs, *configPath, globals)
	case "estimate":
		runEstimate(cmdArgs, *configPath, globals)
	case "cache":
		runCache(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
