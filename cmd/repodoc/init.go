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

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/repodoc/internal/ui"
)

// initFlags holds parsed flags for the init command.
type initFlags struct {
	force, nonInteractive         bool
	repoURL, provider, model, out string
}

// runInit executes the 'init' CLI command, creating a .repodoc/project.yaml
// configuration file.
//
// Flags:
//   - --force: Overwrite existing configuration
//   - -y: Non-interactive mode, use all defaults
//   - --repo: Repository URL
//   - --provider: LLM provider (ollama, openai, anthropic)
//   - --model: LLM model name
//   - --out: Output directory for generated documentation
//
// Examples:
//
//	repodoc init                               Interactive setup
//	repodoc init -y --repo acme/widget         Use defaults
//	repodoc init --provider openai --model gpt-4o-mini
func runInit(args []string) {
	flags := parseInitFlags(args)

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot get current directory: %v\n", err)
		os.Exit(1)
	}

	configPath := ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !flags.force {
		fmt.Fprintf(os.Stderr, "Error: %s already exists. Use --force to overwrite.\n", configPath)
		os.Exit(1)
	}

	cfg := DefaultConfig()
	if flags.repoURL != "" {
		cfg.Repo.URL = flags.repoURL
	}
	if flags.provider != "" {
		cfg.LLM.Provider = flags.provider
	}
	if flags.model != "" {
		cfg.LLM.Model = flags.model
	}
	if flags.out != "" {
		cfg.Output.Dir = flags.out
	}

	if !flags.nonInteractive {
		runInteractiveConfig(bufio.NewReader(os.Stdin), cfg)
	}

	if err := SaveConfig(configPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ui.Successf("Created %s", configPath)
	printNextSteps()
}

func parseInitFlags(args []string) initFlags {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.BoolVar(&f.force, "force", false, "Overwrite existing configuration")
	fs.BoolVarP(&f.nonInteractive, "yes", "y", false, "Non-interactive mode (use defaults)")
	fs.StringVar(&f.repoURL, "repo", "", "Repository URL")
	fs.StringVar(&f.provider, "provider", "", "LLM provider (ollama, openai, anthropic)")
	fs.StringVar(&f.model, "model", "", "LLM model name")
	fs.StringVar(&f.out, "out", "", "Output directory for generated documentation")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repodoc init [options]

Creates .repodoc/project.yaml configuration file.

Examples:
  repodoc init                               # Interactive setup
  repodoc init -y --repo acme/widget         # Non-interactive with defaults
  repodoc init --provider openai --model gpt-4o-mini

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}

// runInteractiveConfig prompts for the common settings, keeping the current
// value when the user presses enter.
func runInteractiveConfig(reader *bufio.Reader, cfg *Config) {
	cfg.Repo.URL = prompt(reader, "Repository URL (owner/repo)", cfg.Repo.URL)
	cfg.LLM.Provider = prompt(reader, "LLM provider (ollama, openai, anthropic)", cfg.LLM.Provider)
	cfg.LLM.Model = prompt(reader, "LLM model", cfg.LLM.Model)
	cfg.Output.Dir = prompt(reader, "Output directory", cfg.Output.Dir)
}

func prompt(reader *bufio.Reader, label, current string) string {
	if current != "" {
		fmt.Printf("%s [%s]: ", label, current)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return current
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	return line
}

func printNextSteps() {
	fmt.Println()
	ui.SubHeader("Next steps:")
	fmt.Println("  1. Estimate the cost:      repodoc estimate")
	fmt.Println("  2. Generate documentation: repodoc generate")
	fmt.Println("  3. Re-run after changes; unchanged repositories are served from cache")
}
