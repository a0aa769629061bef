package memstore

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"time"
)

// timeFieldIndex indexes a time.Time field as 8 big-endian bytes of unix
// nanoseconds so that LowerBound scans walk the table in time order.
type timeFieldIndex struct {
	Field string
}

func (t *timeFieldIndex) FromObject(obj interface{}) (bool, []byte, error) {
	v := reflect.Indirect(reflect.ValueOf(obj))
	fv := v.FieldByName(t.Field)
	if !fv.IsValid() {
		return false, nil, fmt.Errorf("field '%s' for %#v is invalid", t.Field, obj)
	}
	ts, ok := fv.Interface().(time.Time)
	if !ok {
		return false, nil, fmt.Errorf("field '%s' is not a time.Time", t.Field)
	}
	if ts.IsZero() {
		return false, nil, nil
	}
	return true, encodeTime(ts), nil
}

func (t *timeFieldIndex) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("must provide only a single argument")
	}
	ts, ok := args[0].(time.Time)
	if !ok {
		return nil, fmt.Errorf("argument must be a time.Time: %#v", args[0])
	}
	return encodeTime(ts), nil
}

func encodeTime(ts time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(ts.UnixNano()))
	return buf
}
