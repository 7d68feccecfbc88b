package xjson

import (
	"bytes"

	gjson "github.com/goccy/go-json"
)

// Single import site for JSON: raft commands, snapshots and config files all
// go through goccy/go-json.

func Marshal(v interface{}) ([]byte, error) {
	return gjson.Marshal(v)
}

func Unmarshal(data []byte, v interface{}) error {
	return gjson.Unmarshal(data, v)
}

// UnmarshalStrict rejects fields v does not declare, so that a misspelled
// config key is an error rather than a silent default.
func UnmarshalStrict(data []byte, v interface{}) error {
	dec := gjson.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
