// Package runscript renders and verifies the generated flow-run script for a
// step. The script embeds the step's resolved parameter values plus a BLAKE3
// checksum of the configure.yml it was rendered from, so a script that no
// longer matches its config is detectable.
package runscript

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"flowparam/internal/fsutil"
	"flowparam/internal/graph"
)

const checksumPrefix = "# config-checksum: blake3:"

// ComputeConfigChecksum computes the BLAKE3 hash of a step's configure.yml.
func ComputeConfigChecksum(configPath string) (string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Regenerate renders the flow-run script for step from its persisted config
// document and writes it atomically. The document must already be saved;
// the embedded checksum covers the on-disk configure.yml.
func Regenerate(step graph.Step, doc *graph.Document) error {
	checksum, err := ComputeConfigChecksum(step.ConfigPath())
	if err != nil {
		return fmt.Errorf("checksum step config: %w", err)
	}

	script := Render(step, doc, checksum)
	if err := fsutil.WriteFileAtomic(step.RunScriptPath(), script, 0o755); err != nil {
		return fmt.Errorf("write run script for step %d: %w", step.ID, err)
	}
	return nil
}

// Render produces the script text for a step.
func Render(step graph.Step, doc *graph.Document, checksum string) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "#!/usr/bin/env bash\n")
	fmt.Fprintf(&b, "# %s -- step %d-%s\n", graph.RunScriptName, step.ID, step.Name)
	fmt.Fprintf(&b, "# Generated by flowparam. Do not edit: this file is regenerated\n")
	fmt.Fprintf(&b, "# whenever step parameters change.\n")
	fmt.Fprintf(&b, "%s%s\n", checksumPrefix, checksum)
	fmt.Fprintf(&b, "\n")
	fmt.Fprintf(&b, "set -euo pipefail\n")
	fmt.Fprintf(&b, "\n")

	params := doc.Parameters()
	sort.Slice(params, func(i, j int) bool { return params[i].Key < params[j].Key })
	for _, p := range params {
		if !isShellIdentifier(p.Key) {
			fmt.Fprintf(&b, "# parameter %q is not exportable as an environment variable\n", p.Key)
			continue
		}
		fmt.Fprintf(&b, "export %s=%s\n", p.Key, shellQuote(p.Value))
	}

	commands := doc.Commands()
	if len(commands) > 0 {
		fmt.Fprintf(&b, "\n")
		for _, cmd := range commands {
			fmt.Fprintf(&b, "%s\n", cmd)
		}
	}

	return []byte(b.String())
}

func isShellIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
