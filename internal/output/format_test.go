package output_test

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hwclaim/internal/output"
)

type named struct{ name string }

func (n named) String() string { return "named:" + n.name }

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want output.Format
	}{
		{"json", output.FormatJSON},
		{" JSON ", output.FormatJSON},
		{"text", output.FormatText},
		{"", output.FormatAuto},
		{"yaml", output.FormatAuto},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, output.ParseFormat(tt.in))
		})
	}
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.Equal(t, output.FormatJSON, output.DetectFormat(&buf, output.FormatAuto), "non-terminal defaults to JSON")
	assert.Equal(t, output.FormatText, output.DetectFormat(&buf, output.FormatText))
	assert.Equal(t, output.FormatJSON, output.DetectFormat(&buf, ""))
	assert.False(t, output.IsTerminal(&buf))
	assert.False(t, output.IsTerminal((*os.File)(nil)))
}

func TestFormatter_Print(t *testing.T) {
	t.Parallel()

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		f := output.NewFormatter(output.FormatJSON, &buf)
		require.NoError(t, f.Print(map[string]int{"accounts": 2}))

		var got map[string]int
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, 2, got["accounts"])
		assert.True(t, f.IsJSON())
	})

	t.Run("text values", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		f := output.NewFormatter(output.FormatText, &buf)
		require.NoError(t, f.Print("hello"))
		require.NoError(t, f.Print(named{"x"}))
		require.NoError(t, f.Print(42))
		assert.Equal(t, "hello\nnamed:x\n42\n", buf.String())
	})

	t.Run("table", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		f := output.NewFormatter(output.FormatText, &buf)
		tbl := output.NewTable("A")
		tbl.AddRow("1")
		require.NoError(t, f.Print(tbl))
		assert.Equal(t, "A\n-\n1\n", buf.String())
	})
}

func TestFormatter_Messages(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer
	f := output.NewFormatter(output.FormatText, &out).WithErrWriter(&errOut)
	f.Infof("scanning %d", 1)
	f.Successf("done %s", "ok")
	f.Warnf("careful %d", 2)
	require.NoError(t, f.Field("Balance", "1.00 KMD"))

	assert.Contains(t, out.String(), "scanning 1\n")
	assert.Contains(t, out.String(), "done ok\n")
	assert.Contains(t, out.String(), "Balance:")
	assert.Contains(t, out.String(), "1.00 KMD")
	assert.Equal(t, "warning: careful 2\n", errOut.String())
}

func TestFormatter_JSONSuppressesChatter(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer
	f := output.NewFormatter(output.FormatJSON, &out).WithErrWriter(&errOut)
	f.Info("progress")
	f.Success("done")
	f.Warn("still shown")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "still shown")
}

func TestThemeByName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, output.ThemeLight, output.ThemeByName(output.ThemeLight, false).Name)
	assert.Equal(t, output.ThemeDark, output.ThemeByName("unknown", false).Name)
	assert.Equal(t, output.ThemeLight, output.ThemeByName(output.ThemeLight, true).Name)

	plain := output.ThemeByName(output.ThemeDark, true)
	assert.Equal(t, "12.5", plain.Amount("12.5"))
	assert.Equal(t, "x", plain.Header("x"))
}
