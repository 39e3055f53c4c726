package gateway

import "github.com/shopspring/decimal"

// centsToYuan formats an amount in cents as a yuan string with two decimals.
func centsToYuan(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// yuanToCents parses a yuan amount. Unparseable input yields 0.
func yuanToCents(yuan string) int64 {
	d, err := decimal.NewFromString(yuan)
	if err != nil {
		return 0
	}
	return d.Shift(2).Round(0).IntPart()
}
