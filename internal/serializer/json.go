package serializer

import "encoding/json"

// JSONArray serializes a tuple as a UTF-8 JSON array whose elements are
// the argument values. Implemented on encoding/json: a JSON array of
// arbitrary values is exactly what the standard library's array
// marshaling already produces, so no third-party codec does this job
// better (see DESIGN.md).
type JSONArray struct{}

func (JSONArray) Name() string { return "json" }

func (JSONArray) Encode(values []interface{}) ([]byte, error) {
	if values == nil {
		values = []interface{}{}
	}
	return json.Marshal(values)
}

func (JSONArray) Decode(payload []byte) ([]interface{}, error) {
	var values []interface{}
	if len(payload) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(payload, &values); err != nil {
		return nil, err
	}
	return values, nil
}
