package device

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openconfig/gnmi/proto/gnmi"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// collectJSON flattens a GetResponse into one JSON document. A single
// update yields its value unchanged. Several updates yield a list, with each
// object stamped with the keys of its path's last element.
func collectJSON(resp *gnmi.GetResponse) ([]byte, error) {
	var updates []*gnmi.Update
	for _, n := range resp.GetNotification() {
		updates = append(updates, n.GetUpdate()...)
	}

	switch len(updates) {
	case 0:
		return nil, nil
	case 1:
		return updateValue(updates[0])
	}

	list := []byte(`[]`)
	for _, u := range updates {
		v, err := updateValue(u)
		if err != nil {
			return nil, err
		}
		if gjson.ParseBytes(v).IsObject() {
			v, err = stampKeys(v, u.GetPath())
			if err != nil {
				return nil, &decodeError{reason: err.Error()}
			}
		}
		if list, err = sjson.SetRawBytes(list, "-1", v); err != nil {
			return nil, &decodeError{reason: err.Error()}
		}
	}
	return list, nil
}

// collectRoot merges a GetResponse into one root object, placing each
// update's value under its full path. List elements in the path select or
// create the matching array entry by key, so the result can be sent back
// with a Replace at "/".
func collectRoot(resp *gnmi.GetResponse) ([]byte, error) {
	type placed struct {
		elems []*gnmi.PathElem
		u     *gnmi.Update
	}
	var updates []placed
	for _, n := range resp.GetNotification() {
		prefix := n.GetPrefix().GetElem()
		for _, u := range n.GetUpdate() {
			elems := append(append([]*gnmi.PathElem{}, prefix...), u.GetPath().GetElem()...)
			updates = append(updates, placed{elems: elems, u: u})
		}
	}

	switch {
	case len(updates) == 0:
		return nil, nil
	case len(updates) == 1 && len(updates[0].elems) == 0:
		return updateValue(updates[0].u)
	}

	doc := []byte(`{}`)
	for _, p := range updates {
		v, err := updateValue(p.u)
		if err != nil {
			return nil, err
		}
		if doc, err = setAtPath(doc, p.elems, v); err != nil {
			return nil, &decodeError{reason: err.Error()}
		}
	}
	return doc, nil
}

func setAtPath(doc []byte, elems []*gnmi.PathElem, v []byte) ([]byte, error) {
	if len(elems) == 0 {
		obj := gjson.ParseBytes(v)
		if !obj.IsObject() {
			return nil, fmt.Errorf("root update is not an object")
		}
		var err error
		obj.ForEach(func(k, val gjson.Result) bool {
			doc, err = sjson.SetRawBytes(doc, escapeKey(k.String()), []byte(val.Raw))
			return err == nil
		})
		return doc, err
	}

	var segs []string
	for i, e := range elems {
		segs = append(segs, escapeKey(e.GetName()))
		if len(e.GetKey()) == 0 {
			continue
		}
		list := strings.Join(segs, ".")
		idx := findEntry(gjson.GetBytes(doc, list), e.GetKey())
		segs = append(segs, fmt.Sprint(idx))
		if i == len(elems)-1 {
			break
		}
		entry := strings.Join(segs, ".")
		if !gjson.GetBytes(doc, entry).Exists() {
			stamped, err := stampKeys([]byte(`{}`), &gnmi.Path{Elem: []*gnmi.PathElem{e}})
			if err != nil {
				return nil, err
			}
			if doc, err = sjson.SetRawBytes(doc, entry, stamped); err != nil {
				return nil, err
			}
		}
	}

	path := strings.Join(segs, ".")
	if last := elems[len(elems)-1]; len(last.GetKey()) > 0 && gjson.ParseBytes(v).IsObject() {
		var err error
		if v, err = stampKeys(v, &gnmi.Path{Elem: []*gnmi.PathElem{last}}); err != nil {
			return nil, err
		}
	}
	return sjson.SetRawBytes(doc, path, v)
}

// findEntry returns the index of the list entry whose fields match keys, or
// the next free index.
func findEntry(list gjson.Result, keys map[string]string) int {
	entries := list.Array()
	for i, entry := range entries {
		match := true
		for k, want := range keys {
			if entry.Get(escapeKey(k)).String() != want {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return len(entries)
}

var keyEscaper = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)

func escapeKey(k string) string { return keyEscaper.Replace(k) }

func updateValue(u *gnmi.Update) ([]byte, error) {
	tv := u.GetVal()
	var raw []byte
	switch {
	case len(tv.GetJsonIetfVal()) > 0:
		raw = tv.GetJsonIetfVal()
	case len(tv.GetJsonVal()) > 0:
		raw = tv.GetJsonVal()
	default:
		scalar, err := scalarValue(tv)
		if err != nil {
			return nil, err
		}
		return scalar, nil
	}
	if !json.Valid(raw) {
		return nil, &decodeError{reason: "response value is not valid JSON"}
	}
	return raw, nil
}

func scalarValue(tv *gnmi.TypedValue) ([]byte, error) {
	var v interface{}
	switch val := tv.GetValue().(type) {
	case *gnmi.TypedValue_StringVal:
		v = val.StringVal
	case *gnmi.TypedValue_IntVal:
		v = val.IntVal
	case *gnmi.TypedValue_UintVal:
		v = val.UintVal
	case *gnmi.TypedValue_BoolVal:
		v = val.BoolVal
	case nil:
		return []byte(`null`), nil
	default:
		return nil, &decodeError{reason: fmt.Sprintf("unsupported value type %T", val)}
	}
	return json.Marshal(v)
}

func stampKeys(obj []byte, p *gnmi.Path) ([]byte, error) {
	elems := p.GetElem()
	if len(elems) == 0 {
		return obj, nil
	}
	keys := elems[len(elems)-1].GetKey()
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	var err error
	for _, k := range names {
		if gjson.GetBytes(obj, k).Exists() {
			continue
		}
		if obj, err = sjson.SetBytes(obj, k, keys[k]); err != nil {
			return nil, err
		}
	}
	return obj, nil
}
