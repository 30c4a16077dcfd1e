package cli

import (
	"bytes"
	"strings"
	"testing"
)

// execRoot runs the real root command with the given arguments and returns
// the combined output. Args and writers are restored afterwards so the
// command stays usable across subtests.
func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	if args == nil {
		// A nil slice would make cobra fall back to the test binary's
		// own arguments.
		args = []string{}
	}

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootShowsHelp(t *testing.T) {
	cases := map[string][]string{
		"no arguments":    {},
		"help flag":       {"--help"},
		"short help flag": {"-h"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			output, err := execRoot(t, args...)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !strings.Contains(output, "Federated authentication network engine") {
				t.Errorf("Help should describe the engine, got: %s", output)
			}
			if !strings.Contains(output, "serve") {
				t.Errorf("Help should list the serve command, got: %s", output)
			}
		})
	}
}

func TestRootRejectsUnknownCommand(t *testing.T) {
	_, err := execRoot(t, "definitely-not-a-command")
	if err == nil {
		t.Fatal("Expected an error for an unknown command")
	}
}

func TestCommandsAreRegistered(t *testing.T) {
	expected := []string{"serve", "keygen", "document", "resolve", "validate", "health", "version", "man"}

	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}

	for _, name := range expected {
		if !registered[name] {
			t.Errorf("Command %q is not registered on the root command", name)
		}
	}
}
