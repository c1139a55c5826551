package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// IDList список int64-идентификаторов, сериализуется массивом строк.
// При разборе принимает и строки, и числа.
type IDList []int64

// MarshalJSON реализует json.Marshaler.
func (l IDList) MarshalJSON() ([]byte, error) {
	out := make([]string, len(l))
	for i, id := range l {
		out[i] = strconv.FormatInt(id, 10)
	}
	return json.Marshal(out)
}

// UnmarshalJSON реализует json.Unmarshaler.
func (l *IDList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	res := make(IDList, 0, len(raw))
	for _, item := range raw {
		s := string(item)
		if len(s) >= 2 && s[0] == '"' {
			if err := json.Unmarshal(item, &s); err != nil {
				return err
			}
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %s: %w", string(item), err)
		}
		res = append(res, id)
	}
	*l = res
	return nil
}
