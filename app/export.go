package app

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/abhi007singh/legendary-sniffle/app/models"
)

// column order of the export
var exportFields = []string{"sNo", "productName", "inputImageUrls", "outputImageUrls"}

const crlf = "\r\n"

// Humanize turns a camelCase field name into title case words: "sNo" -> "S No".
func Humanize(field string) string {
	var b strings.Builder
	for i, r := range field {
		switch {
		case i == 0:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsUpper(r):
			b.WriteByte(' ')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExportHeaders returns the header line fields of an export.
func ExportHeaders() []string {
	out := make([]string, len(exportFields))
	for i, f := range exportFields {
		out[i] = Humanize(f)
	}
	return out
}

// WriteExport renders rows ordered by sNo. Array fields are always quoted
// and comma-joined; every line ends in CRLF.
func WriteExport(w io.Writer, rows []models.Row) error {
	sorted := append([]models.Row(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SequenceNumber < sorted[j].SequenceNumber })

	bw := bufio.NewWriter(w)
	headers := ExportHeaders()
	for i, h := range headers {
		headers[i] = quoteScalar(h)
	}
	bw.WriteString(strings.Join(headers, ","))
	bw.WriteString(crlf)

	for _, r := range sorted {
		bw.WriteString(strconv.Itoa(r.SequenceNumber))
		bw.WriteByte(',')
		bw.WriteString(quoteScalar(r.ProductName))
		bw.WriteByte(',')
		bw.WriteString(quoteList(r.SourceImageURLs))
		bw.WriteByte(',')
		bw.WriteString(quoteList(r.OutputImageURLs))
		bw.WriteString(crlf)
	}
	return bw.Flush()
}

func quoteScalar(s string) string {
	if s == "" {
		return s
	}
	if !strings.ContainsAny(s, ",\"\r\n") && s[0] != ' ' && s[len(s)-1] != ' ' {
		return s
	}
	return quote(s)
}

func quoteList(list []string) string {
	return quote(strings.Join(list, ","))
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// WriteExportFile materializes an export in a temp file. The caller must
// run cleanup on every path once the file is no longer needed.
func WriteExportFile(rows []models.Row) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "export-*.csv")
	if err != nil {
		return "", func() {}, err
	}
	cleanup = func() { os.Remove(f.Name()) }

	if err := WriteExport(f, rows); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return f.Name(), cleanup, nil
}
