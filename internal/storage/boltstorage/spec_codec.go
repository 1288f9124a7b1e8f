package boltstorage

import (
	"bytes"
	"encoding/gob"
)

func encodeSpec(spec *Spec) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(spec)
	return buf.Bytes()
}

func decodeSpec(b []byte) (*Spec, error) {
	var spec Spec
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}
