package utils

import (
	"strings"
	"time"
)

// ISOFormat is the string used to format Go ISO times
const ISOFormat = "2006-01-02T15:04:05.000Z"

// strptime directives mapped to Go reference layout fragments. Table files
// produced by the legacy tooling carry strptime-style date formats.
var strptimeLayouts = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
	'j': "002",
	'b': "Jan",
	'B': "January",
	'%': "%",
}

// DateLayout converts a strptime-style format such as "%Y-%m-%d" into a Go
// reference layout. Formats without any '%' directive are assumed to already
// be Go layouts and are returned unchanged.
func DateLayout(format string) string {
	if !strings.ContainsRune(format, '%') {
		return format
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 >= len(format) {
			b.WriteByte(format[i])
			continue
		}
		i++
		if layout, ok := strptimeLayouts[format[i]]; ok {
			b.WriteString(layout)
		} else {
			b.WriteByte('%')
			b.WriteByte(format[i])
		}
	}
	return b.String()
}

// ParseDate parses value with a strptime-style or Go-style date format.
func ParseDate(value string, format string) (time.Time, error) {
	return time.Parse(DateLayout(format), value)
}
