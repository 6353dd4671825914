package formatting

import (
	"io"

	"gopkg.in/yaml.v3"
)

type yamlFormatter struct{}

func (yamlFormatter) FormatClusters(out io.Writer, report ClusterReport) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
