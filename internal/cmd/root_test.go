package cmd

import (
	"bytes"
	"testing"
)

func TestNewRootCommandHasExpectedSubcommands(t *testing.T) {
	root := NewRootCommand()
	want := []string{"add", "remove", "list", "clear", "check", "start"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected subcommand %q", name)
		}
	}
}

func TestRootCommandListWithNoTargetsFileExitsNonZero(t *testing.T) {
	path := withTargetsPath(t)
	root := NewRootCommand()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--targets-path", path, "list"})

	err := root.Execute()
	if ExitCode(err) != ExitTargetsMissing {
		t.Fatalf("got exit code %d, err=%v", ExitCode(err), err)
	}
}
