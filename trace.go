package override

import (
	"encoding/json"
)

// Trace captures provenance for a key across the layers of a LayeredStore.
// Source names the layer whose state won, empty when every layer defers.
type Trace struct {
	Key    string        `json:"key"`
	State  OverrideState `json:"state"`
	Source string        `json:"source,omitempty"`
	Layers []Provenance  `json:"layers"`
}

// Provenance details what a single layer holds for a traced key.
type Provenance struct {
	Layer    string        `json:"layer"`
	Label    string        `json:"label,omitempty"`
	Priority int           `json:"priority"`
	ReadOnly bool          `json:"read_only,omitempty"`
	State    OverrideState `json:"state"`
	Found    bool          `json:"found"`
	Error    string        `json:"error,omitempty"`
}

// ToJSON serialises the trace for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a payload produced by ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
