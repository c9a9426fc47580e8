package gen

import (
	"encoding/json"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// DiffSummary compares two JSON encoded unit summaries. It returns an
// ascii rendering of the differences and whether both are equal.
func DiffSummary(expected []byte, actual []byte) (string, bool, error) {
	delta, err := gojsondiff.New().Compare(expected, actual)
	if err != nil {
		return "", false, err
	}
	if !delta.Modified() {
		return "", true, nil
	}

	var left interface{}
	if err := json.Unmarshal(expected, &left); err != nil {
		return "", false, err
	}
	cfg := formatter.AsciiFormatterConfig{ShowArrayIndex: true}
	text, err := formatter.NewAsciiFormatter(left, cfg).Format(delta)
	if err != nil {
		return "", false, err
	}
	return text, false, nil
}
