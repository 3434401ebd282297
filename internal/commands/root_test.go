package commands

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()

	want := []string{
		"upload", "ingest", "scan", "reanalyze", "statements", "transactions",
		"autoassign", "assign", "flag", "unassign", "archive", "unarchive",
		"split", "unsplit", "transfer", "member",
	}
	got := make(map[string]bool)
	for _, c := range root.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, got[name], "missing subcommand %s", name)
	}

	assert.NotNil(t, root.PersistentFlags().Lookup("db"))
	assert.NotNil(t, root.PersistentFlags().Lookup("matcher-config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("verbose"))
}

func TestParseSplitEntries(t *testing.T) {
	entries, err := parseSplitEntries([]string{"12:1500.00", "7:250"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(12), entries[0].MemberID)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("1500.00")))
	assert.Equal(t, int64(7), entries[1].MemberID)

	_, err = parseSplitEntries([]string{"12"})
	assert.Error(t, err, "missing amount")
	_, err = parseSplitEntries([]string{"abc:100"})
	assert.Error(t, err, "bad member ID")
	_, err = parseSplitEntries([]string{"12:oops"})
	assert.Error(t, err, "bad amount")
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1", "42"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 42}, ids)

	_, err = parseIDs([]string{"0"})
	assert.Error(t, err)
	_, err = parseIDs([]string{"x"})
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "this is a…", truncate("this is a long narrative", 10))

	// Counted in runes, never cut mid-rune.
	assert.Equal(t, "éééééééééé", truncate("éééééééééé", 10))
	assert.Equal(t, "crème brû…", truncate("crème brûlée variée", 10))
}
