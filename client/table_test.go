package main

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderTable(t *testing.T, table *table) string {
	t.Helper()
	color.NoColor = true

	var output strings.Builder
	require.NoError(t, table.render(&output))
	return output.String()
}

func TestTableAlignsColumns(t *testing.T) {
	table := newTable("ID", "State", "Work dir")
	table.addRow("1.pbs", "Queued", "/tmp/a")
	table.addRow("1234.pbs", "Running", "/tmp/b")

	expected := "" +
		"ID        State    Work dir\n" +
		"1.pbs     Queued   /tmp/a\n" +
		"1234.pbs  Running  /tmp/b\n"
	assert.Equal(t, expected, renderTable(t, table))
}

func TestTableMultilineCells(t *testing.T) {
	table := newTable("Time", "Event", "Message")
	table.addRow("10:00:00", "Allocation submission failed", "qsub execution failed\nCaused by:\nExit code: 1")
	table.addRow("10:00:01", "Allocation queued", "1.pbs")

	expected := "" +
		"Time      Event                         Message\n" +
		"10:00:00  Allocation submission failed  qsub execution failed\n" +
		"                                        Caused by:\n" +
		"                                        Exit code: 1\n" +
		"10:00:01  Allocation queued             1.pbs\n"
	assert.Equal(t, expected, renderTable(t, table))
}

func TestTableWideCharacters(t *testing.T) {
	table := newTable("Name", "Backlog")
	table.addRow("日本", "2")
	table.addRow("gpu", "10")

	expected := "" +
		"Name  Backlog\n" +
		"日本  2\n" +
		"gpu   10\n"
	assert.Equal(t, expected, renderTable(t, table))
}

func TestTableWithoutRows(t *testing.T) {
	assert.Equal(t, "ID  State\n", renderTable(t, newTable("ID", "State")))
}
