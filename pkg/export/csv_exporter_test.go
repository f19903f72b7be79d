package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	exporter := NewCSVExporter()

	data := Dataset{
		Headers: []string{"Course Code", "Grade"},
		Rows: []map[string]string{
			{"Course Code": "CS101", "Grade": "A"},
			{"Course Code": "CS201", "Grade": "B+"},
		},
		Footer: []string{"GPA: 3.65"},
	}

	out, err := exporter.Render(data)
	require.NoError(t, err)
	assert.Equal(t, "Course Code,Grade\nCS101,A\nCS201,B+\nGPA: 3.65\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	exporter := NewCSVExporter()

	_, err := exporter.Render(Dataset{})
	assert.Error(t, err)
}

func TestCSVExporterFillsMissingCells(t *testing.T) {
	exporter := NewCSVExporter()

	out, err := exporter.Render(Dataset{
		Headers: []string{"Course Code", "Grade"},
		Rows:    []map[string]string{{"Course Code": "CS101"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Course Code,Grade\nCS101,\n", string(out))
}
