package wpilog

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// msgpackText renders a msgpack payload as compact JSON. It reports false
// when the payload is not a single well-formed msgpack value.
func msgpackText(payload []byte) (string, bool) {
	rd := bytes.NewReader(payload)
	dec := msgpack.NewDecoder(rd)
	dec.SetMapDecoder(func(d *msgpack.Decoder) (interface{}, error) {
		return d.DecodeUntypedMap()
	})

	v, err := dec.DecodeInterface()
	if err != nil {
		return "", false
	}
	if rd.Len() != 0 {
		return "", false
	}

	out, err := json.Marshal(jsonSafe(v))
	if err != nil {
		return "", false
	}
	return string(out), true
}

// jsonSafe converts msgpack maps with non-string keys into string-keyed maps.
func jsonSafe(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, item := range val {
			m[fmt.Sprint(k)] = jsonSafe(item)
		}
		return m
	case map[string]interface{}:
		for k, item := range val {
			val[k] = jsonSafe(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = jsonSafe(item)
		}
		return val
	default:
		return v
	}
}
