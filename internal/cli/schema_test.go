package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "kbsearchd", Short: "root"}
	AddHelpJSONFlag(root)

	search := &cobra.Command{
		Use:         "search <query>",
		Short:       "Search",
		Annotations: map[string]string{EnvAnnotation: "KBSEARCH_MAX_RESULTS, KBSEARCH_DATA_FILE"},
		Run:         func(cmd *cobra.Command, args []string) {},
	}
	search.Flags().IntP("limit", "n", 0, "Maximum number of results")

	hidden := &cobra.Command{Use: "internal", Hidden: true, Run: func(cmd *cobra.Command, args []string) {}}

	root.AddCommand(search, hidden)
	return root
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(testTree())

	assert.Equal(t, "kbsearchd", schema.Name)
	assert.Empty(t, schema.Flags, "persistent help-json is not a local flag")
	require.Len(t, schema.Subcommands, 1)

	search := schema.Subcommands[0]
	assert.Equal(t, "search", search.Name)
	assert.Equal(t, []string{"KBSEARCH_DATA_FILE", "KBSEARCH_MAX_RESULTS"}, search.Env)
	require.Len(t, search.Flags, 1)
	assert.Equal(t, FlagSchema{
		Name:        "limit",
		Shorthand:   "n",
		Type:        "int",
		Default:     "0",
		Description: "Maximum number of results",
	}, search.Flags[0])
}

func TestHelpJSONTarget(t *testing.T) {
	root := testTree()

	target, ok := HelpJSONTarget(root, []string{"search", "--help-json"})
	require.True(t, ok)
	assert.Equal(t, "search", target.Name())

	target, ok = HelpJSONTarget(root, []string{"--help-json"})
	require.True(t, ok)
	assert.Equal(t, root, target)

	target, ok = HelpJSONTarget(root, []string{"unknown", "--help-json"})
	require.True(t, ok)
	assert.Equal(t, root, target)

	_, ok = HelpJSONTarget(root, []string{"search", "x"})
	assert.False(t, ok)
}

func TestWriteSchema(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteSchema(&buf, testTree()))

	var decoded CommandSchema
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "kbsearchd", decoded.Name)
}
