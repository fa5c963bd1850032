package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mitchellh/go-homedir"
)

// validYAML is a minimal stagegate.yaml that passes Validate.
const validYAML = `
version: 1.0.0
marker: .pipeline.properties
trunk: main

defaults:
  stage.build.enabled: true
  stage.security.scan.enabled: true

stages:
  - name: build
    key: stage.build.enabled
  - name: security-scan
    key: stage.security.scan.enabled
  - name: deploy-prod
    key: stage.deploy.prod.enabled
    branches:
      only: [main]
`

// validMarker enables production deploys and turns off the build.
const validMarker = `# onboarded to the shared pipeline
stage.build.enabled=false
stage.deploy.prod.enabled=true
`

// writeCheckout writes a definition and a marker file into a temp directory
// and returns the directory and the definition path. An empty marker is not
// written.
func writeCheckout(t *testing.T, definition, marker string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	defPath := filepath.Join(dir, "stagegate.yaml")
	if err := os.WriteFile(defPath, []byte(definition), 0644); err != nil {
		t.Fatalf("write definition: %v", err)
	}
	if marker != "" {
		if err := os.WriteFile(filepath.Join(dir, ".pipeline.properties"), []byte(marker), 0644); err != nil {
			t.Fatalf("write marker: %v", err)
		}
	}
	return dir, defPath
}

// TestValidateSubcommandSuccess verifies that `stagegate validate` exits 0
// and prints a success message for a valid checkout.
func TestValidateSubcommandSuccess(t *testing.T) {
	dir, defPath := writeCheckout(t, validYAML, validMarker)
	var stdout, stderr bytes.Buffer

	code := run([]string{"--definition", defPath, "--dir", dir, "validate"}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("want exit 0, got %d; stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "configuration is valid") {
		t.Fatalf("stdout = %q, want it to contain %q", stdout.String(), "configuration is valid")
	}
}

// TestValidateDefaultPaths verifies that `stagegate validate` defaults to
// ./stagegate.yaml and the current directory.
func TestValidateDefaultPaths(t *testing.T) {
	dir, _ := writeCheckout(t, validYAML, validMarker)

	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })

	var stdout, stderr bytes.Buffer
	code := run([]string{"validate"}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("want exit 0, got %d; stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "configuration is valid") {
		t.Fatalf("stdout = %q, want it to contain %q", stdout.String(), "configuration is valid")
	}
}

// TestValidateFailures verifies that `stagegate validate` exits non-zero and
// logs the cause for every kind of broken input.
func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name       string
		definition string
		marker     string
		wantLog    string
	}{
		{
			name:       "invalid definition",
			definition: "version: 1.0.0\nmarker: .pipeline.properties\n",
			marker:     validMarker,
			wantLog:    "stages: at least one stage required",
		},
		{
			name:       "malformed marker",
			definition: validYAML,
			marker:     "stage.build.enabled=true\nstage.deploy.prod.enabled\n",
			wantLog:    "line 2",
		},
		{
			name:       "missing marker",
			definition: validYAML,
			wantLog:    "not onboarded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, defPath := writeCheckout(t, tt.definition, tt.marker)
			var stdout, stderr bytes.Buffer

			code := run([]string{"--definition", defPath, "--dir", dir, "validate"}, &stdout, &stderr)

			if code != 1 {
				t.Fatalf("want exit 1, got %d", code)
			}
			if !strings.Contains(stderr.String(), tt.wantLog) {
				t.Fatalf("stderr = %q, want it to contain %q", stderr.String(), tt.wantLog)
			}
		})
	}
}

// TestValidateMissingDefinition verifies that a missing definition file
// fails the run.
func TestValidateMissingDefinition(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--definition", "/nonexistent/stagegate.yaml", "validate"}, &stdout, &stderr)

	if code == 0 {
		t.Fatal("want non-zero exit for missing definition, got 0")
	}
}

// TestMarkerOverride verifies that --marker replaces the marker name from
// the definition.
func TestMarkerOverride(t *testing.T) {
	dir, defPath := writeCheckout(t, validYAML, "")
	if err := os.WriteFile(filepath.Join(dir, "ci.properties"), []byte(validMarker), 0644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	var stdout, stderr bytes.Buffer

	code := run([]string{"--definition", defPath, "--dir", dir, "--marker", "ci.properties", "validate"}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("want exit 0, got %d; stderr: %s", code, stderr.String())
	}
}

// TestPlanJSON verifies the decisions printed by `stagegate plan`.
func TestPlanJSON(t *testing.T) {
	dir, defPath := writeCheckout(t, validYAML, validMarker)
	var stdout, stderr bytes.Buffer

	code := run([]string{"--definition", defPath, "--dir", dir, "--branch", "main", "plan", "-o", "json"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("want exit 0, got %d; stderr: %s", code, stderr.String())
	}

	var decisions []struct {
		Stage  string `json:"stage"`
		Run    bool   `json:"run"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &decisions); err != nil {
		t.Fatalf("plan output is not JSON: %v\n%s", err, stdout.String())
	}
	want := map[string]bool{"build": false, "security-scan": true, "deploy-prod": true}
	if len(decisions) != len(want) {
		t.Fatalf("got %d decisions, want %d", len(decisions), len(want))
	}
	for _, d := range decisions {
		if d.Run != want[d.Stage] {
			t.Errorf("%s: run = %v, want %v (reason %q)", d.Stage, d.Run, want[d.Stage], d.Reason)
		}
	}
}

// TestPlanTable verifies the default table output.
func TestPlanTable(t *testing.T) {
	dir, defPath := writeCheckout(t, validYAML, validMarker)
	var stdout, stderr bytes.Buffer

	code := run([]string{"--definition", defPath, "--dir", dir, "--branch", "feature/x", "plan"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("want exit 0, got %d; stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "skip (branch rule)") {
		t.Errorf("stdout = %q, want deploy-prod skipped by the branch rule", stdout.String())
	}
}

// TestPlanUnknownOutput verifies that a bad --output value is rejected.
func TestPlanUnknownOutput(t *testing.T) {
	dir, defPath := writeCheckout(t, validYAML, validMarker)
	var stdout, stderr bytes.Buffer

	code := run([]string{"--definition", defPath, "--dir", dir, "plan", "-o", "xml"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("want exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "unknown output format") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

// TestCheckExitCodes verifies the exit code contract of `stagegate check`.
func TestCheckExitCodes(t *testing.T) {
	tests := []struct {
		name   string
		branch string
		stage  string
		want   int
	}{
		{"deploy from main", "main", "deploy-prod", 0},
		{"deploy from feature branch", "feature/x", "deploy-prod", 3},
		{"flag disabled", "main", "build", 3},
		{"default enabled", "feature/x", "security-scan", 0},
		{"unknown stage", "main", "release", 1},
	}
	dir, defPath := writeCheckout(t, validYAML, validMarker)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run([]string{"--definition", defPath, "--dir", dir, "--branch", tt.branch, "check", tt.stage}, &stdout, &stderr)
			if code != tt.want {
				t.Fatalf("want exit %d, got %d; stderr: %s", tt.want, code, stderr.String())
			}
		})
	}
}

// TestCheckVerbose verifies that --verbose prints the reason.
func TestCheckVerbose(t *testing.T) {
	dir, defPath := writeCheckout(t, validYAML, validMarker)
	var stdout, stderr bytes.Buffer

	code := run([]string{"--definition", defPath, "--dir", dir, "--branch", "main", "check", "-v", "build"}, &stdout, &stderr)
	if code != 3 {
		t.Fatalf("want exit 3, got %d", code)
	}
	if got := stdout.String(); got != "skip build: flag disabled\n" {
		t.Errorf("stdout = %q", got)
	}
}

// TestCheckMalformedMarkerFails verifies that a malformed marker fails the
// run instead of being reported as a skipped stage.
func TestCheckMalformedMarkerFails(t *testing.T) {
	dir, defPath := writeCheckout(t, validYAML, "stage.deploy.prod.enabled\n")
	var stdout, stderr bytes.Buffer

	code := run([]string{"--definition", defPath, "--dir", dir, "--branch", "main", "check", "deploy-prod"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("want exit 1, got %d", code)
	}
}

// TestUnknownSubcommand verifies that an unknown subcommand exits non-zero
// and names the bad subcommand.
func TestUnknownSubcommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"frobnicate"}, &stdout, &stderr)

	if code == 0 {
		t.Fatal("want non-zero exit for unknown subcommand, got 0")
	}
	if !strings.Contains(stderr.String(), "unknown command") {
		t.Fatalf("stderr = %q, want it to contain %q", stderr.String(), "unknown command")
	}
	if !strings.Contains(stderr.String(), "frobnicate") {
		t.Fatalf("stderr = %q, want it to contain the bad subcommand name", stderr.String())
	}
}

// TestNoSubcommand verifies that running with no subcommand prints
// usage and exits non-zero.
func TestNoSubcommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{}, &stdout, &stderr)

	if code == 0 {
		t.Fatal("want non-zero exit for missing subcommand, got 0")
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Fatalf("stderr = %q, want it to contain usage info", stderr.String())
	}
}

// TestVersionSubcommand verifies that `stagegate version` prints a version.
func TestVersionSubcommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"version"}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("want exit 0, got %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "stagegate ") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

// TestLogLevelFlag verifies that the --log-level flag is accepted
// and does not cause an error.
func TestLogLevelFlag(t *testing.T) {
	dir, defPath := writeCheckout(t, validYAML, validMarker)
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run([]string{"--log-level", level, "--definition", defPath, "--dir", dir, "validate"}, &stdout, &stderr)
			if code != 0 {
				t.Fatalf("want exit 0 with --log-level %s, got %d; stderr: %s", level, code, stderr.String())
			}
		})
	}
}

// TestNoGlobalState verifies that each invocation uses only its own flags.
// Multiple invocations with different inputs produce independent results.
func TestNoGlobalState(t *testing.T) {
	dir, defPath := writeCheckout(t, validYAML, validMarker)
	var stdout1, stderr1 bytes.Buffer
	code1 := run([]string{"--definition", defPath, "--dir", dir, "validate"}, &stdout1, &stderr1)

	var stdout2, stderr2 bytes.Buffer
	code2 := run([]string{"--definition", "/nonexistent.yaml", "validate"}, &stdout2, &stderr2)

	if code1 != 0 {
		t.Fatalf("first run: want exit 0, got %d", code1)
	}
	if code2 == 0 {
		t.Fatal("second run: want non-zero exit, got 0")
	}
}

// TestExamplesValidate verifies that the shipped example checkout validates.
func TestExamplesValidate(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--definition", "examples/stagegate.yaml", "--dir", "examples", "validate"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("want exit 0, got %d; stderr: %s", code, stderr.String())
	}
}

// TestDefinitionHomeExpansion verifies that a leading ~ in --definition
// resolves against the home directory.
func TestDefinitionHomeExpansion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	if err := os.WriteFile(filepath.Join(home, "stagegate.yaml"), []byte(validYAML), 0644); err != nil {
		t.Fatalf("write definition: %v", err)
	}
	dir, _ := writeCheckout(t, "", validMarker)
	var stdout, stderr bytes.Buffer

	code := run([]string{"--definition", "~/stagegate.yaml", "--dir", dir, "validate"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("want exit 0, got %d; stderr: %s", code, stderr.String())
	}
}

// tagYAML gates a publish stage to release tags off the trunk.
const tagYAML = `
version: 1.0.0
marker: .pipeline.properties
trunk: main
stages:
  - name: publish
    key: stage.publish.enabled
    tags:
      only:
        - '/v[0-9]+\.[0-9]+\.[0-9]+/'
    primary: false
`

// TestCheckTagRule verifies that tag selectors and the primary requirement
// reach the check decision.
func TestCheckTagRule(t *testing.T) {
	t.Setenv("TAG_NAME", "")
	t.Setenv("BRANCH_IS_PRIMARY", "")
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"release tag", []string{"--branch", "v1.2.0", "--tag", "v1.2.0"}, 0},
		{"snapshot tag", []string{"--branch", "nightly", "--tag", "nightly"}, 3},
		{"trunk without tag", []string{"--branch", "main"}, 3},
	}
	dir, defPath := writeCheckout(t, tagYAML, "stage.publish.enabled=true\n")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			args := append([]string{"--definition", defPath, "--dir", dir}, tt.args...)
			args = append(args, "check", "publish")
			code := run(args, &stdout, &stderr)
			if code != tt.want {
				t.Fatalf("want exit %d, got %d; stderr: %s", tt.want, code, stderr.String())
			}
		})
	}
}
