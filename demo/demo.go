// Package demo supplies the bundled fallback dataset served when
// neither the network nor the cache can produce data. It always
// succeeds.
package demo

import (
	_ "embed"
	"encoding/json"

	"github.com/courtsight/shotcache/shots"
)

//go:embed dataset.json
var datasetJSON []byte

var dataset []shots.Record

func init() {
	if err := json.Unmarshal(datasetJSON, &dataset); err != nil {
		// The dataset ships with the binary; failing to parse it is a
		// build defect, not a runtime condition.
		panic("demo: bundled dataset is invalid: " + err.Error())
	}
}

// Rows returns the demo dataset. The key is accepted for interface
// symmetry with live fetches; every key gets the same bundled rows.
// Callers receive a copy and may mutate it freely.
func Rows(_ shots.Key) []shots.Record {
	out := make([]shots.Record, len(dataset))
	copy(out, dataset)
	return out
}

// Len reports the size of the bundled dataset.
func Len() int { return len(dataset) }
