package layers

import (
	"bufio"
	"fmt"
	"io"
)

const bannerStars = "**********************************"

// WriteBanner writes the header that precedes a layer in a full dump.
func WriteBanner(w io.Writer, name string) error {
	_, err := fmt.Fprintf(w, "%s   %s   %s\n", bannerStars, name, bannerStars)
	return err
}

// WriteEntries writes one key=value line per entry. Nil and empty values
// keep their key with nothing after the separator.
func WriteEntries(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		bw.WriteString(e.Key)
		bw.WriteByte('=')
		bw.WriteString(FormatValue(e.Value))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// FormatValue renders a layer value the way it appears in a dump.
func FormatValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
