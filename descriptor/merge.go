/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package descriptor

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/cowdogmoo/stratum/errors"
)

// Policy decides which side wins when both descriptors set a scalar.
type Policy int

const (
	// KeepExisting keeps values already set on the receiver. Used when a
	// module is merged into the image or module that installs it.
	KeepExisting Policy = iota
	// PreferIncoming lets the incoming descriptor win. Used for overrides.
	PreferIncoming
)

func (p Policy) String() string {
	if p == PreferIncoming {
		return "prefer-incoming"
	}
	return "keep-existing"
}

var keyedType = reflect.TypeOf((*Keyed)(nil)).Elem()

// Merge applies src on top of dst, which must be pointers to the same
// struct type. Fields absent from dst are deep-copied from src. Nested
// descriptors are merged recursively. Lists of Keyed elements are merged
// by key: a matching entry is merged and moved to the front, an unmatched
// entry is inserted at the front. Scalar lists gain the novel values of
// src in order. Fields tagged merge:"skip" are replaced as a whole by the
// winning side and never merged element-wise. Lists of lists are
// rejected with a MergeError.
func Merge(dst, src any, policy Policy) error {
	dv := reflect.ValueOf(dst)
	sv := reflect.ValueOf(src)
	if dv.Kind() != reflect.Ptr || dv.IsNil() || dv.Elem().Kind() != reflect.Struct {
		return &errors.MergeError{Reason: fmt.Sprintf("receiver must be a non-nil struct pointer, got %T", dst)}
	}
	if sv.Kind() != reflect.Ptr || sv.Type() != dv.Type() {
		return &errors.MergeError{Reason: fmt.Sprintf("cannot merge %T into %T", src, dst)}
	}
	if sv.IsNil() {
		return nil
	}
	return mergeStruct(dv.Elem(), sv.Elem(), policy, "")
}

// MergeModule merges a module's image configuration into i, keeping every
// value i already has. The module's own installs and builder images are
// handled by the resolver and are not copied.
func (i *Image) MergeModule(m *Module) error {
	contrib := m.Image
	contrib.Modules = nil
	contrib.Builders = nil
	return Merge(i, &contrib, KeepExisting)
}

// ApplyOverride applies an override descriptor on top of i. Every value
// the override sets wins, including name and version.
func (i *Image) ApplyOverride(o *Image) error {
	return Merge(i, o, PreferIncoming)
}

// Clone returns a deep copy of i.
func (i *Image) Clone() *Image {
	if i == nil {
		return nil
	}
	return deepCopy(reflect.ValueOf(i)).Interface().(*Image)
}

// Clone returns a deep copy of m, including its directory.
func (m *Module) Clone() *Module {
	if m == nil {
		return nil
	}
	return deepCopy(reflect.ValueOf(m)).Interface().(*Module)
}

func mergeStruct(dst, src reflect.Value, policy Policy, at string) error {
	t := dst.Type()
	for n := 0; n < t.NumField(); n++ {
		f := t.Field(n)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("yaml")
		if tag == "-" {
			continue
		}
		if f.Anonymous && strings.Contains(tag, "inline") {
			if err := mergeStruct(dst.Field(n), src.Field(n), policy, at); err != nil {
				return err
			}
			continue
		}

		name := strings.Split(tag, ",")[0]
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		skip := f.Tag.Get("merge") == "skip"
		if err := mergeValue(dst.Field(n), src.Field(n), policy, skip, joinPath(at, name)); err != nil {
			return err
		}
	}
	return nil
}

func mergeValue(dst, src reflect.Value, policy Policy, skip bool, at string) error {
	if err := rejectNested(src, at); err != nil {
		return err
	}
	if isEmpty(src) {
		return nil
	}
	if isEmpty(dst) {
		dst.Set(deepCopy(src))
		return nil
	}
	if skip {
		if policy == PreferIncoming {
			dst.Set(deepCopy(src))
		}
		return nil
	}

	switch dst.Kind() {
	case reflect.Ptr:
		if dst.Elem().Kind() == reflect.Struct {
			return mergeStruct(dst.Elem(), src.Elem(), policy, at)
		}
	case reflect.Struct:
		return mergeStruct(dst, src, policy, at)
	case reflect.Slice:
		return mergeSlice(dst, src, policy, at)
	case reflect.Map:
		return mergeMap(dst, src, policy, at)
	case reflect.Interface:
		return mergeInterface(dst, src, policy, at)
	}

	if policy == PreferIncoming {
		dst.Set(deepCopy(src))
	}
	return nil
}

func mergeSlice(dst, src reflect.Value, policy Policy, at string) error {
	if err := rejectNested(dst, at); err != nil {
		return err
	}

	if dst.Type().Elem().Implements(keyedType) {
		return mergeKeyed(dst, src, policy, at)
	}

	out := dst
	for n := 0; n < src.Len(); n++ {
		v := src.Index(n)
		if !containsValue(out, v) {
			out = reflect.Append(out, deepCopy(v))
		}
	}
	dst.Set(out)
	return nil
}

// mergeKeyed walks the incoming entries in order. Each one, merged with
// its existing namesake if any, is placed at the front of the list.
func mergeKeyed(dst, src reflect.Value, policy Policy, at string) error {
	items := make([]reflect.Value, 0, dst.Len()+src.Len())
	for n := 0; n < dst.Len(); n++ {
		items = append(items, dst.Index(n))
	}

	for n := 0; n < src.Len(); n++ {
		in := src.Index(n)
		if in.IsNil() {
			continue
		}
		key := in.Interface().(Keyed).MergeKey()

		merged := deepCopy(in)
		for idx, cur := range items {
			if cur.IsNil() || cur.Interface().(Keyed).MergeKey() != key {
				continue
			}
			merged = deepCopy(cur)
			if err := mergeValue(merged, in, policy, false, fmt.Sprintf("%s[%s]", at, key)); err != nil {
				return err
			}
			items = append(items[:idx], items[idx+1:]...)
			break
		}
		items = append([]reflect.Value{merged}, items...)
	}

	out := reflect.MakeSlice(dst.Type(), 0, len(items))
	for _, v := range items {
		out = reflect.Append(out, v)
	}
	dst.Set(out)
	return nil
}

func mergeMap(dst, src reflect.Value, policy Policy, at string) error {
	out := reflect.MakeMapWithSize(dst.Type(), dst.Len()+src.Len())
	iter := dst.MapRange()
	for iter.Next() {
		out.SetMapIndex(iter.Key(), iter.Value())
	}

	iter = src.MapRange()
	for iter.Next() {
		k, v := iter.Key(), iter.Value()
		cur := out.MapIndex(k)
		if !cur.IsValid() {
			out.SetMapIndex(k, deepCopy(v))
			continue
		}
		slot := reflect.New(cur.Type()).Elem()
		slot.Set(deepCopy(cur))
		if err := mergeValue(slot, v, policy, false, joinPath(at, fmt.Sprint(k.Interface()))); err != nil {
			return err
		}
		out.SetMapIndex(k, slot)
	}

	dst.Set(out)
	return nil
}

// mergeInterface handles the untyped values found in free-form maps such
// as the OSBS container configuration.
func mergeInterface(dst, src reflect.Value, policy Policy, at string) error {
	d, s := dst.Elem(), src.Elem()
	if d.Kind() == s.Kind() && d.Type() == s.Type() {
		switch d.Kind() {
		case reflect.Map, reflect.Slice:
			slot := reflect.New(d.Type()).Elem()
			slot.Set(d)
			if err := mergeValue(slot, s, policy, false, at); err != nil {
				return err
			}
			dst.Set(slot)
			return nil
		}
	}
	if policy == PreferIncoming {
		dst.Set(deepCopy(src))
	}
	return nil
}

// rejectNested fails on lists whose elements are themselves lists.
func rejectNested(v reflect.Value, at string) error {
	if !v.IsValid() {
		return nil
	}
	if v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil
	}

	nested := &errors.MergeError{Field: at, Reason: "lists of lists are not supported"}
	switch v.Type().Elem().Kind() {
	case reflect.Slice, reflect.Array:
		return nested
	case reflect.Interface:
		for n := 0; n < v.Len(); n++ {
			e := v.Index(n)
			if e.IsNil() {
				continue
			}
			if k := e.Elem().Kind(); k == reflect.Slice || k == reflect.Array {
				return nested
			}
		}
	}
	return nil
}

func containsValue(list, v reflect.Value) bool {
	for n := 0; n < list.Len(); n++ {
		if reflect.DeepEqual(list.Index(n).Interface(), v.Interface()) {
			return true
		}
	}
	return false
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	default:
		return v.IsZero()
	}
}

func joinPath(at, name string) string {
	if at == "" {
		return name
	}
	return at + "." + name
}

// deepCopy returns a copy of v that shares no pointers, slices or maps
// with it.
func deepCopy(v reflect.Value) reflect.Value {
	out := reflect.New(v.Type()).Elem()
	copyInto(out, v)
	return out
}

func copyInto(dst, src reflect.Value) {
	switch src.Kind() {
	case reflect.Ptr:
		if src.IsNil() {
			return
		}
		p := reflect.New(src.Type().Elem())
		copyInto(p.Elem(), src.Elem())
		dst.Set(p)
	case reflect.Struct:
		for n := 0; n < src.NumField(); n++ {
			if dst.Field(n).CanSet() {
				copyInto(dst.Field(n), src.Field(n))
			}
		}
	case reflect.Slice:
		if src.IsNil() {
			return
		}
		s := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		for n := 0; n < src.Len(); n++ {
			copyInto(s.Index(n), src.Index(n))
		}
		dst.Set(s)
	case reflect.Map:
		if src.IsNil() {
			return
		}
		m := reflect.MakeMapWithSize(src.Type(), src.Len())
		iter := src.MapRange()
		for iter.Next() {
			m.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		dst.Set(m)
	case reflect.Interface:
		if src.IsNil() {
			return
		}
		dst.Set(deepCopy(src.Elem()))
	default:
		dst.Set(src)
	}
}

// Equal reports whether a and b describe the same thing, ignoring fields
// that are not part of the serialized descriptor. Comparing two keyed
// descriptors with different keys is a MergeError.
func Equal(a, b any) (bool, error) {
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if !av.IsValid() || !bv.IsValid() {
		return !av.IsValid() && !bv.IsValid(), nil
	}
	if av.Type() != bv.Type() {
		return false, nil
	}

	ak, aok := a.(Keyed)
	bk, bok := b.(Keyed)
	if aok && bok && !av.IsNil() && !bv.IsNil() && ak.MergeKey() != bk.MergeKey() {
		return false, &errors.MergeError{
			Reason: fmt.Sprintf("cannot compare %q with %q: identities differ", ak.MergeKey(), bk.MergeKey()),
		}
	}
	return equalValue(av, bv), nil
}

func equalValue(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.Ptr, reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		if a.Kind() == reflect.Interface && a.Elem().Type() != b.Elem().Type() {
			return false
		}
		return equalValue(a.Elem(), b.Elem())
	case reflect.Struct:
		t := a.Type()
		for n := 0; n < t.NumField(); n++ {
			f := t.Field(n)
			if !f.IsExported() || f.Tag.Get("yaml") == "-" {
				continue
			}
			if !equalValue(a.Field(n), b.Field(n)) {
				return false
			}
		}
		return true
	case reflect.Slice:
		if a.Len() != b.Len() {
			return false
		}
		for n := 0; n < a.Len(); n++ {
			if !equalValue(a.Index(n), b.Index(n)) {
				return false
			}
		}
		return true
	case reflect.Map:
		if a.Len() != b.Len() {
			return false
		}
		iter := a.MapRange()
		for iter.Next() {
			bv := b.MapIndex(iter.Key())
			if !bv.IsValid() || !equalValue(iter.Value(), bv) {
				return false
			}
		}
		return true
	default:
		return a.Interface() == b.Interface()
	}
}
