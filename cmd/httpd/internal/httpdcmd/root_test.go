package httpdcmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandWiresAllSubcommands(t *testing.T) {
	root := RootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "fileserver", "get", "put", "post"} {
		require.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestPostRequiresFileFlag(t *testing.T) {
	root := RootCommand()
	root.SetArgs([]string{"post", "http://example.invalid/upload"})
	root.SetOut(new(noopWriter))
	root.SetErr(new(noopWriter))
	err := root.Execute()
	require.Error(t, err)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
