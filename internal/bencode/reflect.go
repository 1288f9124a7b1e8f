package bencode

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

func newByteReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

func fieldTag(f reflect.StructField) (name string, skip, omitempty bool) {
	tag := f.Tag.Get("bencode")
	if tag == "-" {
		return "", true, false
	}
	if tag == "" {
		return f.Name, false, false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, p := range parts[1:] {
		if p == "omitempty" {
			omitempty = true
		}
	}
	return name, false, omitempty
}

// assign copies a decoded dynamic value (as returned by Decoder.Decode)
// into v, a pointer to the destination.
func assign(raw interface{}, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("bencode: Unmarshal target must be a non-nil pointer")
	}
	return assignValue(raw, rv.Elem())
}

func assignValue(raw interface{}, dst reflect.Value) error {
	if raw == nil {
		return nil
	}
	switch dst.Kind() {
	case reflect.Ptr:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return assignValue(raw, dst.Elem())
	case reflect.Interface:
		dst.Set(reflect.ValueOf(raw))
		return nil
	}

	switch x := raw.(type) {
	case int64:
		switch dst.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			dst.SetInt(x)
			return nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			dst.SetUint(uint64(x))
			return nil
		case reflect.Bool:
			dst.SetBool(x != 0)
			return nil
		}
		return fmt.Errorf("bencode: cannot assign integer to %s", dst.Type())
	case []byte:
		switch dst.Kind() {
		case reflect.String:
			dst.SetString(string(x))
			return nil
		case reflect.Slice:
			if dst.Type().Elem().Kind() == reflect.Uint8 {
				b := make([]byte, len(x))
				copy(b, x)
				dst.Set(reflect.ValueOf(b))
				return nil
			}
		case reflect.Array:
			if dst.Type().Elem().Kind() == reflect.Uint8 {
				if dst.Len() != len(x) {
					return fmt.Errorf("bencode: expected %d-byte string, got %d", dst.Len(), len(x))
				}
				reflect.Copy(dst, reflect.ValueOf(x))
				return nil
			}
		}
		return fmt.Errorf("bencode: cannot assign byte string to %s", dst.Type())
	case []interface{}:
		switch dst.Kind() {
		case reflect.Slice:
			s := reflect.MakeSlice(dst.Type(), len(x), len(x))
			for i, item := range x {
				if err := assignValue(item, s.Index(i)); err != nil {
					return err
				}
			}
			dst.Set(s)
			return nil
		case reflect.Array:
			if dst.Len() != len(x) {
				return fmt.Errorf("bencode: array length mismatch: want %d got %d", dst.Len(), len(x))
			}
			for i, item := range x {
				if err := assignValue(item, dst.Index(i)); err != nil {
					return err
				}
			}
			return nil
		}
		return fmt.Errorf("bencode: cannot assign list to %s", dst.Type())
	case map[string]interface{}:
		switch dst.Kind() {
		case reflect.Struct:
			return assignStruct(x, dst)
		case reflect.Map:
			m := reflect.MakeMapWithSize(dst.Type(), len(x))
			for k, val := range x {
				kv := reflect.New(dst.Type().Key()).Elem()
				kv.SetString(k)
				vv := reflect.New(dst.Type().Elem()).Elem()
				if err := assignValue(val, vv); err != nil {
					return err
				}
				m.SetMapIndex(kv, vv)
			}
			dst.Set(m)
			return nil
		}
		return fmt.Errorf("bencode: cannot assign dict to %s", dst.Type())
	}
	return fmt.Errorf("bencode: unsupported decoded type %T", raw)
}

func assignStruct(dict map[string]interface{}, dst reflect.Value) error {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue // unexported
		}
		name, skip, _ := fieldTag(f)
		if skip {
			continue
		}
		raw, ok := dict[name]
		if !ok {
			continue
		}
		if err := assignValue(raw, dst.Field(i)); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	return nil
}

// Marshal encodes v as bencode. Supported inputs: []byte, string,
// integer and bool kinds (bools encode as 0/1), slices/arrays (as
// lists, []byte/[N]byte as byte strings), maps with string keys, and
// structs using `bencode:"name"` tags (`bencode:"-"` skips a field;
// `,omitempty` skips zero-valued fields). Dictionary keys are always
// written in sorted order, which is required for a stable info-hash.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v reflect.Value) error {
	if !v.IsValid() {
		return fmt.Errorf("bencode: cannot encode invalid value")
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return fmt.Errorf("bencode: cannot encode nil")
		}
		return encodeValue(buf, v.Elem())
	case reflect.String:
		encodeBytes(buf, []byte(v.String()))
		return nil
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			encodeBytes(buf, b)
			return nil
		}
		buf.WriteByte('l')
		for i := 0; i < v.Len(); i++ {
			if err := encodeValue(buf, v.Index(i)); err != nil {
				return err
			}
		}
		buf.WriteByte('e')
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		encodeInt(buf, v.Int())
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		encodeInt(buf, int64(v.Uint()))
		return nil
	case reflect.Bool:
		if v.Bool() {
			encodeInt(buf, 1)
		} else {
			encodeInt(buf, 0)
		}
		return nil
	case reflect.Map:
		return encodeMap(buf, v)
	case reflect.Struct:
		return encodeStruct(buf, v)
	}
	return fmt.Errorf("bencode: unsupported type %s", v.Type())
}

func encodeBytes(buf *bytes.Buffer, b []byte) {
	buf.WriteString(strconv.Itoa(len(b)))
	buf.WriteByte(':')
	buf.Write(b)
}

func encodeInt(buf *bytes.Buffer, n int64) {
	buf.WriteByte('i')
	buf.WriteString(strconv.FormatInt(n, 10))
	buf.WriteByte('e')
}

func encodeMap(buf *bytes.Buffer, v reflect.Value) error {
	if v.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("bencode: map keys must be strings")
	}
	keys := v.MapKeys()
	skeys := make([]string, len(keys))
	byKey := make(map[string]reflect.Value, len(keys))
	for i, k := range keys {
		s := k.String()
		skeys[i] = s
		byKey[s] = v.MapIndex(k)
	}
	sort.Strings(skeys)
	buf.WriteByte('d')
	for _, k := range skeys {
		encodeBytes(buf, []byte(k))
		if err := encodeValue(buf, byKey[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('e')
	return nil
}

type structField struct {
	name string
	val  reflect.Value
}

func encodeStruct(buf *bytes.Buffer, v reflect.Value) error {
	t := v.Type()
	fields := make([]structField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		name, skip, omitempty := fieldTag(f)
		if skip {
			continue
		}
		fv := v.Field(i)
		if omitempty && fv.IsZero() {
			continue
		}
		fields = append(fields, structField{name: name, val: fv})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })
	buf.WriteByte('d')
	for _, f := range fields {
		encodeBytes(buf, []byte(f.name))
		if err := encodeValue(buf, f.val); err != nil {
			return err
		}
	}
	buf.WriteByte('e')
	return nil
}

// Dict is a convenience ordered-by-sort map type for building ad hoc
// dictionaries (tracker responses) without declaring a struct.
type Dict map[string]interface{}

// NewEncoder-style one-shot helper used by the tracker server response
// path: encode a Dict directly.
func (d Dict) Marshal() ([]byte, error) {
	return Marshal(map[string]interface{}(d))
}
