package runscript

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"flowparam/internal/graph"
)

// Status is the outcome of a run script consistency check.
type Status string

const (
	// StatusOK means the script's embedded checksum matches the config.
	StatusOK Status = "ok"
	// StatusStale means the config changed after the script was generated,
	// or the script was edited by hand.
	StatusStale Status = "stale"
	// StatusMissing means the script does not exist or carries no checksum.
	StatusMissing Status = "missing"
)

// Verify checks that a step's run script still reflects its configure.yml.
func Verify(step graph.Step) (Status, error) {
	embedded, err := embeddedChecksum(step.RunScriptPath())
	if err != nil {
		if os.IsNotExist(err) {
			return StatusMissing, nil
		}
		return "", fmt.Errorf("read run script for step %d: %w", step.ID, err)
	}
	if embedded == "" {
		return StatusMissing, nil
	}

	actual, err := ComputeConfigChecksum(step.ConfigPath())
	if err != nil {
		return "", fmt.Errorf("checksum step config: %w", err)
	}
	if actual != embedded {
		return StatusStale, nil
	}
	return StatusOK, nil
}

func embeddedChecksum(scriptPath string) (string, error) {
	f, err := os.Open(scriptPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, checksumPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, checksumPrefix)), nil
		}
		// The checksum lives in the header; stop at the first non-comment line.
		if line != "" && !strings.HasPrefix(line, "#") {
			break
		}
	}
	return "", scanner.Err()
}
