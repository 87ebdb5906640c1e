package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetNoColor(true)
	t.Cleanup(func() {
		SetOutput(nil)
		SetNoColor(false)
		SetQuietMode(false)
	})
	return &buf
}

func TestPrintHelpers(t *testing.T) {
	buf := capture(t)

	PrintError("Failed to load configuration", "bad yaml")
	PrintError("No stored accounts found", "")
	PrintInfo("Profile", "natgeo")
	PrintSuccess("done")

	assert.Equal(t, "Failed to load configuration: bad yaml\nNo stored accounts found\nProfile: natgeo\ndone\n", buf.String())
}

func TestQuietModeKeepsErrors(t *testing.T) {
	buf := capture(t)
	SetQuietMode(true)

	PrintSuccess("hidden")
	PrintHighlight("hidden")
	PrintError("shown")

	assert.Equal(t, "shown\n", buf.String())
}

func TestColorsCanBeDisabled(t *testing.T) {
	capture(t)
	assert.Equal(t, "x", Red("x"))

	SetNoColor(false)
	assert.Equal(t, "\033[31mx\033[0m", Red("x"))
}

func TestPrintTable(t *testing.T) {
	buf := capture(t)

	PrintTable([]string{"USER", "STATUS"}, [][]string{
		{"natgeo", "SUCCESS"},
		{"a", "FAILED"},
	})

	want := "USER    STATUS\n" +
		"natgeo  SUCCESS\n" +
		"a       FAILED\n"
	assert.Equal(t, want, buf.String())
}
