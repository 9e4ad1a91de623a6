package format_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/iotrac/internal/format"
)

type row struct {
	ID   int64  `json:"id"`
	Name string `json:"device_type"`
}

func sample() format.Tabular {
	data := []row{{ID: 1, Name: "drone"}, {ID: 2, Name: "smart-lock"}}
	return format.Tabular{
		Header: []string{"ID", "Type"},
		Rows:   [][]string{{"1", "drone"}, {"2", "smart-lock"}},
		Data:   data,
	}
}

func TestTable(t *testing.T) {
	var out, errOut bytes.Buffer
	p, err := format.NewPrinter(&out, &errOut, format.Table, false)
	require.NoError(t, err)

	require.NoError(t, p.Print(sample()))
	require.Contains(t, out.String(), "smart-lock")
	require.Contains(t, out.String(), "TYPE")

	out.Reset()
	require.NoError(t, p.Print(format.Tabular{Header: []string{"ID"}}))
	require.Equal(t, "No data to display\n", out.String())

	p.Warning("store %s", "unavailable")
	require.Equal(t, "Warning: store unavailable\n", errOut.String())
}

func TestJSONAndYAML(t *testing.T) {
	var out bytes.Buffer
	p, err := format.NewPrinter(&out, &out, format.JSON, true)
	require.NoError(t, err)
	require.NoError(t, p.Print(sample()))
	require.Contains(t, out.String(), `"device_type": "smart-lock"`)

	out.Reset()
	p, err = format.NewPrinter(&out, &out, format.YAML, true)
	require.NoError(t, err)
	require.NoError(t, p.Print(sample()))
	require.Contains(t, out.String(), "- device_type: drone")
	require.Equal(t, "success", p.Status("success"), "colors are table-only")
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := format.NewPrinter(nil, nil, "xml", false)
	require.Error(t, err)
}
