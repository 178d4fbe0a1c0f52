package tabular

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_TrimsHeaders(t *testing.T) {
	in := " award_id , state ,amount\na1,CA,100\n"
	tb, err := ReadCSV("grants.csv", strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"award_id", "state", "amount"}, tb.Headers)
	require.Len(t, tb.Rows, 1)
}

func TestReadCSV_RaggedRows(t *testing.T) {
	in := "a,b,c\n1,2\n1,2,3,4\n"
	tb, err := ReadCSV("ragged.csv", strings.NewReader(in))
	require.NoError(t, err)

	require.Len(t, tb.Rows, 2)
	assert.Equal(t, "", tb.Cell(0, 2), "short row reads as empty cell")
	assert.Equal(t, "3", tb.Cell(1, 2))
}

func TestReadCSV_EmptyInput(t *testing.T) {
	_, err := ReadCSV("empty.csv", strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty input")
}

func TestColumn_CaseInsensitive(t *testing.T) {
	tb := &Table{Headers: []string{"Award_ID", "STATE"}}

	idx, ok := tb.Column("award_id")
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = tb.Column("state")
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = tb.Column("missing")
	assert.False(t, ok)
}

func TestFindColumn_SubstringAndExclude(t *testing.T) {
	tb := &Table{Headers: []string{"State Name", "State Abbreviation"}}

	nameIdx, ok := tb.FindColumn([]string{"name"})
	require.True(t, ok)
	assert.Equal(t, 0, nameIdx)

	// Without the exclusion "abbr" would also match header 1, but excluding
	// the name column must not change that; excluding 1 forces a miss.
	_, ok = tb.FindColumn([]string{"abbr"}, 1)
	assert.False(t, ok)

	codeIdx, ok := tb.FindColumn([]string{"abbr", "code"}, nameIdx)
	require.True(t, ok)
	assert.Equal(t, 1, codeIdx)
}

func TestCell_TrimsWhitespace(t *testing.T) {
	tb := &Table{Rows: [][]string{{"  CA  ", "100"}}}
	assert.Equal(t, "CA", tb.Cell(0, 0))
}

func TestSchemaError_Message(t *testing.T) {
	err := &SchemaError{Table: "grants.csv", Missing: "award_id"}
	assert.Equal(t, "table grants.csv: no column matching award_id", err.Error())
}
