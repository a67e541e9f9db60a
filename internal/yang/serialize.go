package yang

import (
	"encoding/hex"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
)

// Marshal serializes tree to the XML-like on-disk format of the per-module
// data file. The per-module side-data file has its own encoding (see
// internal/persist) and does not use this function.
func Marshal(tree *Tree) ([]byte, error) {
	var buf strings.Builder
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	start := xml.StartElement{Name: xml.Name{Local: "data"}}
	if err := enc.EncodeToken(start); err != nil {
		return nil, err
	}
	for _, child := range tree.Root.Children {
		if err := encodeNode(enc, child); err != nil {
			return nil, err
		}
	}
	if err := enc.EncodeToken(start.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return []byte(buf.String() + "\n"), nil
}

func encodeNode(enc *xml.Encoder, n *Node) error {
	name := xml.Name{Local: n.Name}
	switch {
	case n.Value != nil:
		start := xml.StartElement{Name: name, Attr: []xml.Attr{{Name: xml.Name{Local: "type"}, Value: n.Value.Kind.String()}}}
		if n.Value.Kind == KindDecimal64 {
			start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "scale"}, Value: strconv.Itoa(int(n.Value.Scale))})
		}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.CharData([]byte(encodeValueText(*n.Value)))); err != nil {
			return err
		}
		return enc.EncodeToken(start.End())
	default:
		start := xml.StartElement{Name: name}
		if len(n.Keys) > 0 {
			for _, k := range sortedKeys(n.Keys) {
				start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "key:" + k}, Value: n.Keys[k].String()})
			}
		}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := encodeNode(enc, c); err != nil {
				return err
			}
		}
		return enc.EncodeToken(start.End())
	}
}

func encodeValueText(v Value) string {
	if v.Kind == KindBinary {
		return hex.EncodeToString(v.Bin)
	}
	return v.String()
}

// Unmarshal reconstructs a Tree for module from the on-disk format written
// by Marshal, resolving each element against module's schema so the result
// carries the same Schema pointers a freshly-edited tree would.
func Unmarshal(module *Module, data []byte) (*Tree, error) {
	tree := NewTree(module)
	dec := xml.NewDecoder(strings.NewReader(string(data)))

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "data" {
			if err := decodeChildren(dec, tree.Root, module.Root); err != nil {
				return nil, err
			}
			break
		}
	}
	return tree, nil
}

func decodeChildren(dec *xml.Decoder, parent *Node, parentSchema *SchemaNode) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			schema, ok := parentSchema.Children[t.Name.Local]
			if !ok {
				if err := dec.Skip(); err != nil {
					return err
				}
				continue
			}
			node := &Node{Name: t.Name.Local, Schema: schema, Parent: parent}
			if schema.Kind == KindLeaf || schema.Kind == KindLeafList {
				var typeAttr, scaleAttr string
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "type":
						typeAttr = a.Value
					case "scale":
						scaleAttr = a.Value
					}
				}
				text, err := readCharData(dec)
				if err != nil {
					return err
				}
				v := decodeValueText(typeAttr, scaleAttr, text)
				node.Value = &v
			} else {
				if schema.Kind == KindList {
					node.Keys = map[string]Value{}
					for _, a := range t.Attr {
						name := a.Name.Local
						if a.Name.Space != "" {
							name = a.Name.Space + ":" + name
						}
						if strings.HasPrefix(name, "key:") {
							node.Keys[strings.TrimPrefix(name, "key:")] = literalValue(a.Value)
						}
					}
				}
				if err := decodeChildren(dec, node, schema); err != nil {
					return err
				}
			}
			parent.Children = append(parent.Children, node)
		case xml.EndElement:
			return nil
		}
	}
}

func readCharData(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			return sb.String(), nil
		}
	}
}

func decodeValueText(kindName, scaleAttr, text string) Value {
	kind := kindFromString(kindName)
	v := Value{Kind: kind}
	switch kind {
	case KindBinary:
		b, _ := hex.DecodeString(text)
		v.Bin = b
	case KindBool:
		v.Bool = text == "true"
	case KindInt8, KindInt16, KindInt32, KindInt64:
		n, _ := strconv.ParseInt(text, 10, 64)
		v.Int = n
	case KindUint8, KindUint16, KindUint32, KindUint64:
		n, _ := strconv.ParseUint(text, 10, 64)
		v.Uint = n
	case KindDecimal64:
		if s, err := strconv.Atoi(scaleAttr); err == nil {
			v.Scale = uint8(s)
		}
		v.Dec64 = parseDecimal64(text, v.Scale)
	case KindBits:
		if text != "" {
			v.BitSet = strings.Fields(text)
		}
	case KindEmpty:
		// no payload
	default:
		v.Str = text
	}
	return v
}

// parseDecimal64 parses fixed-point text (as produced by formatDecimal64)
// back into decimal64's unscaled-digits representation at the given scale.
func parseDecimal64(text string, scale uint8) int64 {
	neg := strings.HasPrefix(text, "-")
	if neg {
		text = text[1:]
	}
	intPart, fracPart, _ := strings.Cut(text, ".")
	for len(fracPart) < int(scale) {
		fracPart += "0"
	}
	fracPart = fracPart[:scale]
	n, _ := strconv.ParseInt(intPart+fracPart, 10, 64)
	if neg {
		n = -n
	}
	return n
}

func kindFromString(s string) Kind {
	for k := KindInt8; k <= KindUnion; k++ {
		if k.String() == s {
			return k
		}
	}
	return KindString
}
