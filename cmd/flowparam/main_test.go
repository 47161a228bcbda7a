package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flowparam/internal/graph"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

// writeGraphFixture builds a two-step metadata store and returns its root.
func writeGraphFixture(t *testing.T) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), graph.MetadataDirName)
	steps := map[string]string{
		"1-rtl":       "name: rtl\nparameters:\n  design_name: GcdUnit\n",
		"4-synthesis": "name: synthesis\nparameters:\n  clock_period: 1.5\n  design_name: GcdUnit\ncommands:\n  - source run-synthesis.sh\n",
	}
	for dirName, config := range steps {
		dir := filepath.Join(root, dirName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, graph.ConfigFileName), []byte(config), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func readStepConfig(t *testing.T, root, dirName string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(root, dirName, graph.ConfigFileName))
	if err != nil {
		t.Fatalf("read %s config: %v", dirName, err)
	}
	return string(raw)
}

func TestRunParamUpdateSingleStep(t *testing.T) {
	root := writeGraphFixture(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runParamUpdate([]string{"--graph", root, "--key", "clock_period", "--value", "2.0", "--step", "4"})
	})
	if code != 0 {
		t.Fatalf("runParamUpdate() code = %d, stderr: %s", code, stderr)
	}
	want := `Updated parameter "clock_period" = "2.0" for step "4"`
	if !strings.Contains(stdout, want) {
		t.Fatalf("stdout missing confirmation %q:\n%s", want, stdout)
	}

	if !strings.Contains(readStepConfig(t, root, "4-synthesis"), "clock_period: 2.0") {
		t.Fatal("configure.yml not updated")
	}
	if _, err := os.Stat(filepath.Join(root, "4-synthesis", graph.RunScriptName)); err != nil {
		t.Fatalf("run script not generated: %v", err)
	}
	// The untargeted step is untouched.
	if _, err := os.Stat(filepath.Join(root, "1-rtl", graph.RunScriptName)); !os.IsNotExist(err) {
		t.Fatal("untargeted step got a run script")
	}
}

func TestRunParamUpdateAllSkipsStepsWithoutKey(t *testing.T) {
	root := writeGraphFixture(t)
	rtlBefore := readStepConfig(t, root, "1-rtl")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runParamUpdate([]string{"--graph", root, "-k", "clock_period", "-v", "2.0", "--all"})
	})
	if code != 0 {
		t.Fatalf("runParamUpdate() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, `Parameter "clock_period" is not defined for step "1" (skipped)`) {
		t.Fatalf("stdout missing skip line:\n%s", stdout)
	}
	if !strings.Contains(stdout, `Updated parameter "clock_period" = "2.0" for step "4"`) {
		t.Fatalf("stdout missing update line:\n%s", stdout)
	}
	if got := readStepConfig(t, root, "1-rtl"); got != rtlBefore {
		t.Fatalf("skipped step config changed:\n%s", got)
	}
}

func TestRunParamUpdateMissingValueShowsHelp(t *testing.T) {
	root := writeGraphFixture(t)
	before := readStepConfig(t, root, "4-synthesis")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runParamUpdate([]string{"--graph", root, "--key", "clock_period", "--step", "4"})
	})
	if code != 0 {
		t.Fatalf("runParamUpdate() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Usage: flowparam param update") {
		t.Fatalf("stdout missing usage help:\n%s", stdout)
	}
	if got := readStepConfig(t, root, "4-synthesis"); got != before {
		t.Fatal("config changed on a usage error")
	}
}

func TestRunParamUpdateMissingTargetingShowsHelp(t *testing.T) {
	root := writeGraphFixture(t)

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runParamUpdate([]string{"--graph", root, "--key", "clock_period", "--value", "2.0"})
	})
	if code != 0 {
		t.Fatalf("runParamUpdate() code = %d", code)
	}
	if !strings.Contains(stdout, "Usage: flowparam param update") {
		t.Fatalf("stdout missing usage help:\n%s", stdout)
	}
}

func TestRunParamUpdateRejectsStepAndAllTogether(t *testing.T) {
	root := writeGraphFixture(t)
	before := readStepConfig(t, root, "4-synthesis")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runParamUpdate([]string{"--graph", root, "--key", "clock_period", "--value", "2.0", "--step", "4", "--all"})
	})
	if code != 0 {
		t.Fatalf("runParamUpdate() code = %d", code)
	}
	if !strings.Contains(stdout, "use either --step or --all, not both") {
		t.Fatalf("stdout missing conflict note:\n%s", stdout)
	}
	if got := readStepConfig(t, root, "4-synthesis"); got != before {
		t.Fatal("config changed despite conflicting targeting flags")
	}
}

func TestRunParamUpdateNonexistentStep(t *testing.T) {
	root := writeGraphFixture(t)
	before := readStepConfig(t, root, "4-synthesis")

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runParamUpdate([]string{"--graph", root, "--key", "clock_period", "--value", "2.0", "--step", "99"})
	})
	if code != 1 {
		t.Fatalf("runParamUpdate() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "step 99 not found") {
		t.Fatalf("stderr missing step lookup error:\n%s", stderr)
	}
	if got := readStepConfig(t, root, "4-synthesis"); got != before {
		t.Fatal("config changed despite unknown step id")
	}
}

func TestRunParamUpdateNotElaborated(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runParamUpdate([]string{"--graph", filepath.Join(t.TempDir(), graph.MetadataDirName), "--key", "k", "--value", "v", "--all"})
	})
	if code != 1 {
		t.Fatalf("runParamUpdate() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "not elaborated") {
		t.Fatalf("stderr missing elaboration error:\n%s", stderr)
	}
	if !strings.Contains(stderr, "Elaborate the build graph") {
		t.Fatalf("stderr missing remediation hint:\n%s", stderr)
	}
}

func TestRunParamUpdateRecordsHistory(t *testing.T) {
	root := writeGraphFixture(t)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runParamUpdate([]string{"--graph", root, "--key", "clock_period", "--value", "2.0", "--step", "4"})
	})
	if code != 0 {
		t.Fatalf("runParamUpdate() code = %d, stderr: %s", code, stderr)
	}

	histCode, stdout, histStderr := captureOutputWithExitCode(t, func() int {
		return runParamHistory([]string{"--graph", root, "--json"})
	})
	if histCode != 0 {
		t.Fatalf("runParamHistory() code = %d, stderr: %s", histCode, histStderr)
	}

	var entries []struct {
		StepID   int    `json:"step_id"`
		Key      string `json:"key"`
		OldValue string `json:"old_value"`
		NewValue string `json:"new_value"`
		Outcome  string `json:"outcome"`
	}
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatalf("failed to parse history json: %v\noutput=%s", err, stdout)
	}
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.StepID != 4 || e.Key != "clock_period" || e.OldValue != "1.5" || e.NewValue != "2.0" || e.Outcome != "updated" {
		t.Fatalf("unexpected history entry: %+v", e)
	}
}

func TestRunParamListJSON(t *testing.T) {
	root := writeGraphFixture(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runParamList([]string{"--graph", root, "--json"})
	})
	if code != 0 {
		t.Fatalf("runParamList() code = %d, stderr: %s", code, stderr)
	}

	var out []struct {
		StepID     int               `json:"step_id"`
		StepName   string            `json:"step_name"`
		Parameters map[string]string `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("failed to parse list json: %v\noutput=%s", err, stdout)
	}
	if len(out) != 2 {
		t.Fatalf("list entries = %d, want 2", len(out))
	}
	if out[0].StepID != 1 || out[1].StepID != 4 {
		t.Fatalf("steps out of order: %+v", out)
	}
	if out[1].Parameters["clock_period"] != "1.5" {
		t.Fatalf("unexpected synthesis parameters: %+v", out[1].Parameters)
	}
}

func TestRunParamListSingleStep(t *testing.T) {
	root := writeGraphFixture(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runParamList([]string{"--graph", root, "--step", "4"})
	})
	if code != 0 {
		t.Fatalf("runParamList() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Step 4-synthesis") {
		t.Fatalf("stdout missing step header:\n%s", stdout)
	}
	if !strings.Contains(stdout, "clock_period = 1.5") {
		t.Fatalf("stdout missing parameter line:\n%s", stdout)
	}
	if strings.Contains(stdout, "Step 1-rtl") {
		t.Fatalf("stdout includes untargeted step:\n%s", stdout)
	}
}

func TestRunParamVerifyDetectsStaleScript(t *testing.T) {
	root := writeGraphFixture(t)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runParamUpdate([]string{"--graph", root, "--key", "clock_period", "--value", "2.0", "--step", "4"})
	})
	if code != 0 {
		t.Fatalf("runParamUpdate() code = %d, stderr: %s", code, stderr)
	}

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runParamVerify([]string{"--graph", root, "--step", "4"})
	})
	if code != 0 {
		t.Fatalf("runParamVerify() code = %d, want 0:\n%s", code, stdout)
	}
	if !strings.Contains(stdout, "4-synthesis: ok") {
		t.Fatalf("stdout missing ok status:\n%s", stdout)
	}

	// Edit the config behind the script's back.
	configPath := filepath.Join(root, "4-synthesis", graph.ConfigFileName)
	if err := os.WriteFile(configPath, []byte("name: synthesis\nparameters:\n  clock_period: 9.9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runParamVerify([]string{"--graph", root})
	})
	if code != 1 {
		t.Fatalf("runParamVerify() code = %d, want 1:\n%s", code, stdout)
	}
	if !strings.Contains(stdout, "4-synthesis: stale") {
		t.Fatalf("stdout missing stale status:\n%s", stdout)
	}
	if !strings.Contains(stdout, "1-rtl: missing") {
		t.Fatalf("stdout missing missing status:\n%s", stdout)
	}
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"frobnicate"})
	})
	if code != 1 {
		t.Fatalf("runCLI() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown command: frobnicate") {
		t.Fatalf("stderr missing unknown command notice:\n%s", stderr)
	}
}

func TestRunParamNounUnknownAction(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runParamNoun([]string{"delete"})
	})
	if code != 1 {
		t.Fatalf("runParamNoun() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown param action: delete") {
		t.Fatalf("stderr missing unknown action notice:\n%s", stderr)
	}
}

func TestRunParamNounActionHelp(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runParamNoun([]string{"update", "--help"})
	})
	if code != 0 {
		t.Fatalf("runParamNoun() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Usage: flowparam param update") {
		t.Fatalf("stdout missing action help usage:\n%s", stdout)
	}
}

func TestRunCLIRootUpdateAlias(t *testing.T) {
	root := writeGraphFixture(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"update", "--graph", root, "--key", "clock_period", "--value", "2.0", "--step", "4"})
	})
	if code != 0 {
		t.Fatalf("runCLI() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, `Updated parameter "clock_period" = "2.0" for step "4"`) {
		t.Fatalf("stdout missing confirmation:\n%s", stdout)
	}
}

func TestRunCLIRootVersionFlag(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "abc1234567890", "2026-02-12T11:30:00Z")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"--version"})
	})
	if code != 0 {
		t.Fatalf("runCLI() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "flowparam 1.2.3") {
		t.Fatalf("stdout missing semantic version:\n%s", stdout)
	}
	if !strings.Contains(stdout, "commit: abc123456789") {
		t.Fatalf("stdout missing short commit:\n%s", stdout)
	}
	if !strings.Contains(stdout, "built_at: 2026-02-12T11:30:00Z") {
		t.Fatalf("stdout missing build time:\n%s", stdout)
	}
}

func TestRunVersionJSONOutputIncludesMetadata(t *testing.T) {
	setVersionMetadataForTest(t, "2.0.0-rc.1", "aabbccddeeff001122334455", "2026-02-12T11:30:00-05:00")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runVersion([]string{"--json"})
	})
	if code != 0 {
		t.Fatalf("runVersion() code = %d, stderr: %s", code, stderr)
	}

	var out struct {
		Version   string `json:"version"`
		Commit    string `json:"commit"`
		BuildTime string `json:"build_time"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("failed to parse version JSON: %v\noutput=%s", err, stdout)
	}
	if out.Version != "2.0.0-rc.1" {
		t.Fatalf("version = %q, want %q", out.Version, "2.0.0-rc.1")
	}
	if out.Commit != "aabbccddeeff" {
		t.Fatalf("commit = %q, want %q", out.Commit, "aabbccddeeff")
	}
	if out.BuildTime != "2026-02-12T16:30:00Z" {
		t.Fatalf("build_time = %q, want %q", out.BuildTime, "2026-02-12T16:30:00Z")
	}
}

func TestResolveGraphRootAcceptsProjectDir(t *testing.T) {
	project := t.TempDir()
	store := filepath.Join(project, graph.MetadataDirName)
	if err := os.MkdirAll(store, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := resolveGraphRoot(project)
	if err != nil {
		t.Fatalf("resolveGraphRoot() error = %v", err)
	}
	if got != store {
		t.Fatalf("resolveGraphRoot() = %q, want %q", got, store)
	}

	got, err = resolveGraphRoot(store)
	if err != nil {
		t.Fatalf("resolveGraphRoot() error = %v", err)
	}
	if got != store {
		t.Fatalf("resolveGraphRoot() = %q, want %q", got, store)
	}
}
