package compose

import (
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ychihi393/chintai-checker-final/internal/domain"
)

var printer = message.NewPrinter(language.Japanese)

// amount renders an optional yen value with digit grouping. Absent values
// render as 0; this is display only.
func amount(v *float64) string {
	n, _ := domain.Amount(v)
	return printer.Sprintf("%d", int64(math.Round(n)))
}

// score renders the 0-100 risk score.
func score(v *float64) string {
	n, _ := domain.Amount(v)
	return strconv.FormatInt(int64(math.Round(n)), 10)
}
