package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID はバックエンドが返す識別子を表す。
// JSONでは数値と文字列のどちらでも届くため、受け取った形のまま送り返せるよう元の表現を保持する。
type ID struct {
	value   string
	numeric bool
}

// NewID は文字列のIDを生成する。
func NewID(v string) ID {
	return ID{value: v}
}

// NewNumericID は数値のIDを生成する。
func NewNumericID(v int64) ID {
	return ID{value: fmt.Sprintf("%d", v), numeric: true}
}

// String はIDの文字列表現を返す。
func (id ID) String() string {
	return id.value
}

// IsZero は値が空かどうかを返す。
func (id ID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON は受信時と同じ型（数値または文字列）でエンコードする。
func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON は数値・文字列・nullを受け付ける。
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ID{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID{value: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id: %s", string(b))
	}
	*id = ID{value: n.String(), numeric: true}
	return nil
}
