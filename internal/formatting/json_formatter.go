package formatting

import (
	"fmt"
	"io"
)

type jsonFormatter struct{}

func (jsonFormatter) FormatClusters(out io.Writer, report ClusterReport) error {
	if report.Clusters == nil {
		report.Clusters = []ClusterRow{}
	}
	_, err := fmt.Fprintln(out, PrettyJSON(report))
	return err
}
