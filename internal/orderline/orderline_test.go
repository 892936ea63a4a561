package orderline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderchat/orderchat/internal/orderline"
)

func TestParseTable(t *testing.T) {
	payload := []byte(`[
		{"reqnum": "R-100", "ordlin": 1, "effpri": 3.5},
		{"reqnum": "R-101", "ordlin": 2, "effpri": 7}
	]`)

	table := orderline.Parse(payload, nil)
	require.False(t, table.Degraded())
	assert.Equal(t, []string{"reqnum", "ordlin", "effpri"}, table.Columns,
		"column order matches the server's key order")
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "R-100", table.Rows[0].Cells["reqnum"])
	assert.Equal(t, "1", table.Rows[0].Cells["ordlin"])
	assert.Equal(t, "3.5", table.Rows[0].Cells["effpri"])
	assert.Equal(t, "7", table.Rows[1].Cells["effpri"])
	assert.Zero(t, table.ChangedRows())
}

func TestParseDiffMarksChangedRows(t *testing.T) {
	current := []byte(`[
		{"reqnum": "R-100", "effpri": 3},
		{"reqnum": "R-101", "effpri": 9},
		{"reqnum": "R-102", "effpri": 1}
	]`)
	previous := []byte(`[
		{"reqnum": "R-100", "effpri": 3},
		{"reqnum": "R-101", "effpri": 2}
	]`)

	table := orderline.Parse(current, previous)
	require.Len(t, table.Rows, 3)
	assert.False(t, table.Rows[0].Changed)
	assert.True(t, table.Rows[1].Changed, "effpri went from 2 to 9")
	assert.False(t, table.Rows[2].Changed, "rows beyond the previous version are not marked")
	assert.Equal(t, 1, table.ChangedRows())
}

func TestParseMalformedDegradesToRawText(t *testing.T) {
	raw := []byte(`The order data could not be retrieved at this time.`)

	table := orderline.Parse(raw, nil)
	require.True(t, table.Degraded())
	assert.Equal(t, string(raw), table.Raw)
	assert.Empty(t, table.Rows)
}

func TestParseMalformedPreviousDegrades(t *testing.T) {
	current := []byte(`[{"reqnum": "R-100"}]`)
	previous := []byte(`not json`)

	table := orderline.Parse(current, previous)
	assert.True(t, table.Degraded())
	assert.Equal(t, string(current), table.Raw)
}

func TestParseNullPreviousIgnored(t *testing.T) {
	current := []byte(`[{"reqnum": "R-100"}]`)

	table := orderline.Parse(current, []byte("null"))
	require.False(t, table.Degraded())
	require.Len(t, table.Rows, 1)
}

func TestParseEmptyArray(t *testing.T) {
	table := orderline.Parse([]byte(`[]`), nil)
	require.False(t, table.Degraded())
	assert.Empty(t, table.Columns)
	assert.Empty(t, table.Rows)
}

func TestColumnTitle(t *testing.T) {
	assert.Equal(t, "Request Number", orderline.ColumnTitle("reqnum"))
	assert.Equal(t, "Order Line", orderline.ColumnTitle("ordlin"))
	assert.Equal(t, "Effective Priority", orderline.ColumnTitle("effpri"))
	assert.Equal(t, "warehouse", orderline.ColumnTitle("warehouse"), "unknown keys pass through")
}
