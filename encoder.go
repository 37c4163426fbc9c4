package mend

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Encoder serializes values that compensable operations persist, such as
// snapshots taken before a write.
type Encoder interface {
	Encode(any) ([]byte, error)
	Decode([]byte, any) error
}

// JSONEncoder encodes with encoding/json and decodes with sonic.
type JSONEncoder struct{}

func (*JSONEncoder) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (*JSONEncoder) Decode(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// DefaultEncoder is used when no Encoder is supplied.
var DefaultEncoder Encoder = &JSONEncoder{}
