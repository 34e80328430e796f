package influx

import (
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/sigalign/internal/core"
)

// BuildQuery renders the Flux query for one field within tr. Tag filters
// keep the descriptor's tag order. Rows are merged into one table, sorted by
// time and limited to maxSamples.
func BuildQuery(acc core.TimeSeriesAccess, tr core.TimeRange, maxSamples int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", quote(acc.Bucket))
	fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n", timeLiteral(tr.Start), timeLiteral(tr.End))
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %s)\n", quote(acc.Measurement))
	for _, tag := range acc.Tags {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r[%s] == %s)\n", quote(tag.Key), quote(tag.Value))
	}
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._field == %s)\n", quote(acc.Field))
	b.WriteString("  |> group()\n")
	b.WriteString("  |> sort(columns: [\"_time\"])\n")
	fmt.Fprintf(&b, "  |> limit(n: %d)\n", maxSamples)
	return b.String()
}

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `${`, `\${`)

// quote returns s as a Flux string literal.
func quote(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

func timeLiteral(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
