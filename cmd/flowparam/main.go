package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	case "param":
		return runParamNoun(args)

	// --- ROOT ALIASES ---
	case "update":
		if hasHelpFlag(args) {
			printParamUpdateHelp()
			return 0
		}
		return runParamUpdate(args)
	case "list":
		if hasHelpFlag(args) {
			printParamListHelp()
			return 0
		}
		return runParamList(args)

	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func runParamNoun(args []string) int {
	if len(args) < 1 {
		printParamNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printParamNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "update":
		if hasHelpFlag(actionArgs) {
			printParamUpdateHelp()
			return 0
		}
		return runParamUpdate(actionArgs)
	case "list":
		if hasHelpFlag(actionArgs) {
			printParamListHelp()
			return 0
		}
		return runParamList(actionArgs)
	case "verify":
		if hasHelpFlag(actionArgs) {
			printParamVerifyHelp()
			return 0
		}
		return runParamVerify(actionArgs)
	case "history":
		if hasHelpFlag(actionArgs) {
			printParamHistoryHelp()
			return 0
		}
		return runParamHistory(actionArgs)
	case "browse":
		if hasHelpFlag(actionArgs) {
			printParamBrowseHelp()
			return 0
		}
		return runParamBrowse(actionArgs)
	case "help":
		printParamNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown param action: %s (see \"flowparam param help\")\n", action)
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: flowparam version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("flowparam %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`flowparam - Interactive parameter editor for elaborated build graphs

Usage:
  flowparam param <action> [flags]

Param Commands:
  param update      Update a parameter for one step or all steps
  param list        Show parameters for one step or all steps
  param verify      Check that run scripts match their step configs
  param history     Show recent interactive parameter edits
  param browse      Interactive step/parameter browser TUI

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

The graph metadata directory (` + "`.flow`" + `) is discovered by walking up from
the working directory; override with --graph PATH or $FLOWPARAM_GRAPH.

Use 'flowparam param help' for action-specific flags.
`)
}

func printParamNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: flowparam param <action> [flags]")
	fmt.Fprintln(w, "Actions: update, list, verify, history, browse")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run any action with -h to see more details")
}

func printParamUpdateHelp() {
	fmt.Println()
	fmt.Println("Usage: flowparam param update --key/-k <key> --value/-v <value> [--step/-s <int>] [--all] [--graph PATH]")
	fmt.Println()
	fmt.Println("Example: flowparam param update --key clock_period --value 2.0 --all")
	fmt.Println()
	fmt.Println("Updates the parameter for the given step in the build graph.")
	fmt.Println("The parameter key-value pair is only updated if the key is")
	fmt.Println("defined and exists; steps without the key are skipped. The")
	fmt.Println("--all option applies the update to every step in the currently")
	fmt.Println("elaborated graph. Each updated step's run script is regenerated.")
	fmt.Println()
}

func printParamListHelp() {
	fmt.Println("Usage: flowparam param list [--step <int>] [--json] [--graph PATH]")
	fmt.Println("Show parameters for one step, or for every step in the graph.")
}

func printParamVerifyHelp() {
	fmt.Println("Usage: flowparam param verify [--step <int>] [--json] [--graph PATH]")
	fmt.Println("Check that each step's run script matches its configure.yml.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All run scripts are consistent")
	fmt.Println("  1  One or more run scripts are stale or missing")
}

func printParamHistoryHelp() {
	fmt.Println("Usage: flowparam param history [--limit N] [--json] [--graph PATH]")
	fmt.Println("Show recent interactive parameter edits, newest first.")
}

func printParamBrowseHelp() {
	fmt.Println("Usage: flowparam param browse [--graph PATH]")
	fmt.Println("Read-only TUI listing steps and their parameters.")
	fmt.Println("")
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Navigate steps")
}
