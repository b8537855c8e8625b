// Package check provides the assertion helpers consumed by test
// actions. Every helper formats its operands, captures its caller's
// source location and funnels the outcome through the Reporter
// boundary; none of them touch the session state directly.
package check

import (
	"bytes"
	"cmp"
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"

	"github.com/crucible-run/crucible/model"
)

// report records a result under the location skip frames up the stack:
// 2 for a helper called directly by user code, one more for each
// delegation frame in between.
func report(r model.Reporter, skip int, kind model.Kind, msg string) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		file, line = "???", 0
	}
	r.ReportAt(filepath.Base(file), line, kind, msg)
}

// Expr verifies that a condition holds. desc names the condition in the
// result line.
func Expr(r model.Reporter, ok bool, desc string) {
	if ok {
		report(r, 2, model.Pass, desc)
	} else {
		report(r, 2, model.Fail, desc)
	}
}

// Eq verifies that two values are equal. Each operand is formatted
// according to its own type in the failure message.
func Eq[T comparable](r model.Reporter, a, b T) {
	if a == b {
		report(r, 2, model.Pass, fmt.Sprintf("%v == %v", a, b))
	} else {
		report(r, 2, model.Fail, fmt.Sprintf("%v == %v does not hold (left = %v, right = %v)", a, b, a, b))
	}
}

// Ne verifies that two values differ.
func Ne[T comparable](r model.Reporter, a, b T) {
	if a != b {
		report(r, 2, model.Pass, fmt.Sprintf("%v != %v", a, b))
	} else {
		report(r, 2, model.Fail, fmt.Sprintf("%v != %v does not hold (left = %v, right = %v)", a, b, a, b))
	}
}

// Gt verifies that a is greater than b.
func Gt[T cmp.Ordered](r model.Reporter, a, b T) {
	ordered(r, a > b, a, b, ">")
}

// Ge verifies that a is greater than or equal to b.
func Ge[T cmp.Ordered](r model.Reporter, a, b T) {
	ordered(r, a >= b, a, b, ">=")
}

// Lt verifies that a is lower than b.
func Lt[T cmp.Ordered](r model.Reporter, a, b T) {
	ordered(r, a < b, a, b, "<")
}

// Le verifies that a is lower than or equal to b.
func Le[T cmp.Ordered](r model.Reporter, a, b T) {
	ordered(r, a <= b, a, b, "<=")
}

// ordered sits one frame below Gt/Ge/Lt/Le, so it reports with an
// extra level of skip to keep the location on the user's call site.
func ordered[T cmp.Ordered](r model.Reporter, ok bool, a, b T, op string) {
	if ok {
		report(r, 3, model.Pass, fmt.Sprintf("%v %s %v", a, op, b))
	} else {
		report(r, 3, model.Fail, fmt.Sprintf("%v %s %v does not hold (left = %v, right = %v)", a, op, b, a, b))
	}
}

// Nil verifies that a value is nil, including typed nil pointers,
// maps, slices, channels and functions.
func Nil(r model.Reporter, v any) {
	if isNil(v) {
		report(r, 2, model.Pass, "value is nil")
	} else {
		report(r, 2, model.Fail, fmt.Sprintf("value is nil does not hold (value = %v)", v))
	}
}

// NotNil verifies that a value is not nil.
func NotNil(r model.Reporter, v any) {
	if !isNil(v) {
		report(r, 2, model.Pass, fmt.Sprintf("value is not nil (value = %v)", v))
	} else {
		report(r, 2, model.Fail, "value is not nil does not hold")
	}
}

// BytesEq verifies that two byte slices hold the same data.
func BytesEq(r model.Reporter, a, b []byte) {
	if bytes.Equal(a, b) {
		report(r, 2, model.Pass, fmt.Sprintf("%d bytes equal", len(a)))
	} else {
		report(r, 2, model.Fail, fmt.Sprintf("bytes equal does not hold (left = %q, right = %q)", a, b))
	}
}

// BytesNe verifies that two byte slices differ.
func BytesNe(r model.Reporter, a, b []byte) {
	if !bytes.Equal(a, b) {
		report(r, 2, model.Pass, "bytes differ")
	} else {
		report(r, 2, model.Fail, fmt.Sprintf("bytes differ does not hold (both = %q)", a))
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}
