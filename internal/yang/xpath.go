package yang

import (
	"errors"
	"strconv"
	"strings"

	"github.com/confd-io/confd/internal/protoerr"
)

// step is one parsed path component: a node name plus zero or more
// key/value predicates (list keys, or a single "." predicate addressing a
// leaf-list entry by value).
type step struct {
	name  string
	preds map[string]Value
}

// parsePath splits an absolute XPath into steps. The first step must carry
// a "module:" prefix; confd's data model is always resolved against one
// already-identified module (the Data Manager picks the module from that
// prefix), so later steps are unprefixed.
func parsePath(moduleName, xpath string) ([]step, error) {
	if xpath == "" || xpath[0] != '/' {
		return nil, protoerr.Newf(protoerr.BadElement, "xpath must be absolute").WithPath(xpath)
	}
	parts := strings.Split(xpath[1:], "/")
	steps := make([]step, 0, len(parts))
	for i, raw := range parts {
		if raw == "" {
			continue
		}
		name, predRaw, hasPred := cutPredicate(raw)
		if i == 0 {
			prefix, rest, ok := strings.Cut(name, ":")
			if !ok {
				return nil, protoerr.Newf(protoerr.BadElement, "first path step must carry a module prefix").WithPath(xpath)
			}
			if prefix != moduleName {
				return nil, protoerr.Newf(protoerr.UnknownModel, "unknown module: "+prefix).WithPath(xpath)
			}
			name = rest
		}
		s := step{name: name}
		if hasPred {
			preds, err := parsePredicates(predRaw)
			if err != nil {
				return nil, protoerr.Newf(protoerr.BadElement, err.Error()).WithPath(xpath)
			}
			s.preds = preds
		}
		steps = append(steps, s)
	}
	if len(steps) == 0 {
		return nil, protoerr.Newf(protoerr.BadElement, "empty xpath").WithPath(xpath)
	}
	return steps, nil
}

// cutPredicate splits "name[pred1][pred2]" into ("name", "[pred1][pred2]", true).
func cutPredicate(raw string) (name, predRaw string, has bool) {
	i := strings.IndexByte(raw, '[')
	if i < 0 {
		return raw, "", false
	}
	return raw[:i], raw[i:], true
}

func parsePredicates(raw string) (map[string]Value, error) {
	preds := map[string]Value{}
	for len(raw) > 0 {
		if raw[0] != '[' {
			return nil, errors.New("malformed predicate")
		}
		end := strings.IndexByte(raw, ']')
		if end < 0 {
			return nil, errors.New("unterminated predicate")
		}
		body := raw[1:end]
		raw = raw[end+1:]

		if eq := strings.IndexByte(body, '='); eq >= 0 {
			key := body[:eq]
			val := strings.Trim(body[eq+1:], `'"`)
			preds[key] = literalValue(val)
		} else {
			// bare "." predicate (leaf-list value match)
			preds["."] = literalValue(strings.Trim(body, `'"`))
		}
	}
	return preds, nil
}

func literalValue(raw string) Value {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Int64Value(n)
	}
	return StringValue(raw)
}
