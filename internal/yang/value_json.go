package yang

import (
	"encoding/base64"
	"encoding/json"
)

// wireValue is the compact on-wire shape of Value: only the field active
// for Kind is populated, keeping get-item/set-item payloads small.
type wireValue struct {
	Type    string   `json:"type"`
	Int     *int64   `json:"int,omitempty"`
	Uint    *uint64  `json:"uint,omitempty"`
	Dec64   *int64   `json:"dec64,omitempty"`
	Scale   uint8     `json:"scale,omitempty"`
	Bool    *bool    `json:"bool,omitempty"`
	Str     string   `json:"str,omitempty"`
	Bin     string   `json:"bin,omitempty"` // base64
	BitSet  []string `json:"bits,omitempty"`
	XPath   string   `json:"xpath,omitempty"`
	Default bool     `json:"default,omitempty"`
}

// MarshalJSON implements the wire encoding of the tagged Value union
// described in spec §6 ("Value").
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Type: v.Kind.String(), Scale: v.Scale, XPath: v.XPath, Default: v.Default}
	switch v.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		w.Int = &v.Int
	case KindUint8, KindUint16, KindUint32, KindUint64:
		w.Uint = &v.Uint
	case KindDecimal64:
		w.Dec64 = &v.Dec64
	case KindBool:
		w.Bool = &v.Bool
	case KindBinary:
		w.Bin = base64.StdEncoding.EncodeToString(v.Bin)
	case KindBits:
		w.BitSet = v.BitSet
	case KindEmpty:
		// no payload
	default:
		w.Str = v.Str
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements the inverse of MarshalJSON, resolving Type back
// to a Kind and populating only the field that Kind uses.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind := kindFromString(w.Type)
	*v = Value{Kind: kind, Scale: w.Scale, XPath: w.XPath, Default: w.Default, Str: w.Str, BitSet: w.BitSet}
	if w.Int != nil {
		v.Int = *w.Int
	}
	if w.Uint != nil {
		v.Uint = *w.Uint
	}
	if w.Dec64 != nil {
		v.Dec64 = *w.Dec64
	}
	if w.Bool != nil {
		v.Bool = *w.Bool
	}
	if w.Bin != "" {
		b, err := base64.StdEncoding.DecodeString(w.Bin)
		if err != nil {
			return err
		}
		v.Bin = b
	}
	return nil
}
