package formatting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testReport() ClusterReport {
	return ClusterReport{
		Clusters: []ClusterRow{
			{Zone: "z1", Cluster: "a", Registered: true, Version: "v1.31.2", JobRuntime: true},
			{Zone: "z1", Cluster: "b", Registered: true, Metrics: true},
			{Zone: "z2", Cluster: "c"},
		},
		Registered: 2,
		Total:      3,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{in: "", want: FormatTable},
		{in: "table", want: FormatTable},
		{in: "json", want: FormatJSON},
		{in: "yaml", want: FormatYAML},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTableFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(Options{Format: FormatTable}).FormatClusters(&buf, testReport()))

	out := buf.String()
	assert.Contains(t, out, "JOB RUNTIME")
	assert.Contains(t, out, "v1.31.2")
	assert.Contains(t, out, "unreachable")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "2/3 registered")
	// no escape codes without color
	assert.NotContains(t, out, "\x1b[")
}

func TestTableFormatter_Color(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(Options{Format: FormatTable, Color: true}).FormatClusters(&buf, testReport()))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(Options{Format: FormatJSON}).FormatClusters(&buf, testReport()))

	var got ClusterReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, testReport(), got)

	buf.Reset()
	require.NoError(t, NewFormatter(Options{Format: FormatJSON}).FormatClusters(&buf, ClusterReport{}))
	assert.Contains(t, buf.String(), `"clusters": []`)
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(Options{Format: FormatYAML}).FormatClusters(&buf, testReport()))
	assert.Contains(t, buf.String(), "jobRuntime: true")

	var got ClusterReport
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, testReport(), got)
}

func TestPrettyJSON(t *testing.T) {
	assert.Equal(t, "{\n  \"name\": \"test\",\n  \"value\": 42\n}", PrettyJSON(map[string]interface{}{"name": "test", "value": 42}))
	assert.Equal(t, "\"hello\"", PrettyJSON("hello"))
	// channels cannot be marshaled
	ch := make(chan int)
	assert.Equal(t, PrettyJSON(ch), fmt.Sprintf("%v", ch))
}
