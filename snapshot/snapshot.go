// Package snapshot copies values so cached data and caller-held data cannot
// mutate each other.
package snapshot

import (
	"reflect"
	"regexp"
	"time"
)

// Policy selects how much copying protects stored values from later mutation
// through references the caller kept.
type Policy string

const (
	// PolicyNone stores values exactly as given. Fastest, but the caller and
	// the cache share state.
	PolicyNone Policy = "none"

	// PolicyShallow copies one level deep: top-level maps, slices, and
	// pointed-to structs. Nested references stay shared.
	PolicyShallow Policy = "shallow"

	// PolicyDeep recursively copies the whole reachable graph. Cycle-safe.
	PolicyDeep Policy = "deep"
)

// DefaultFieldBudget bounds how many values a deep copy visits before giving
// up and handing back the original. Keeps pathological graphs from stalling
// a write.
const DefaultFieldBudget = 10000

var (
	timeType   = reflect.TypeOf(time.Time{})
	regexpType = reflect.TypeOf((*regexp.Regexp)(nil))
)

// Apply copies v according to the policy. Unknown policies behave like
// PolicyNone.
func Apply(p Policy, v any) any {
	switch p {
	case PolicyShallow:
		return ShallowCopy(v)
	case PolicyDeep:
		return DeepCopy(v)
	default:
		return v
	}
}

// ShallowCopy copies the top level of v: a new map with the same entries, a
// new slice with the same elements, or a new struct behind a fresh pointer.
// Everything else, including nested references, is returned as is.
func ShallowCopy(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface()
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	case reflect.Ptr:
		if rv.IsNil() || rv.Type() == regexpType || rv.Elem().Kind() != reflect.Struct {
			return v
		}
		if rv.Elem().Type() == timeType {
			return v
		}
		out := reflect.New(rv.Type().Elem())
		out.Elem().Set(rv.Elem())
		return out.Interface()
	default:
		return v
	}
}

/*
DeepCopy returns a recursive copy of v with no live references back into the
original graph.

Some types pass through uncopied:

  - time.Time and *regexp.Regexp: immutable by convention
  - functions, channels, unsafe pointers: not meaningfully copyable
  - unexported struct fields: carried over by value assignment, so any
    references they hold stay shared

Byte slices ARE copied; they are the one reference type where sharing is
both likely and cheap to prevent. Cycles are handled with a visited table,
so self-referential maps and slices clone into equally self-referential
copies instead of recursing forever.

Graphs larger than DefaultFieldBudget values are handed back uncopied.
*/
func DeepCopy(v any) any {
	return DeepCopyBudget(v, DefaultFieldBudget)
}

// DeepCopyBudget is DeepCopy with an explicit visit budget.
func DeepCopyBudget(v any, budget int) any {
	if v == nil {
		return nil
	}
	c := &cloner{seen: make(map[memoKey]reflect.Value), budget: budget}
	out, ok := c.clone(reflect.ValueOf(v))
	if !ok {
		return v
	}
	return out.Interface()
}

// memoKey identifies one visited reference. The data pointer alone is
// ambiguous: a slice shares its start address with any prefix of itself,
// and a pointer to a struct shares its address with one to its first field.
type memoKey struct {
	ptr uintptr
	typ reflect.Type
	len int
}

type cloner struct {
	seen   map[memoKey]reflect.Value // reference -> finished or in-progress clone
	budget int
}

// clone copies rv. The second return is false once the visit budget is
// spent; callers abandon the whole copy at that point.
func (c *cloner) clone(rv reflect.Value) (reflect.Value, bool) {
	if !rv.IsValid() {
		return rv, true
	}
	c.budget--
	if c.budget < 0 {
		return reflect.Value{}, false
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return rv, true
		}
		elem, ok := c.clone(rv.Elem())
		if !ok {
			return reflect.Value{}, false
		}
		out := reflect.New(rv.Type()).Elem()
		out.Set(elem)
		return out, true

	case reflect.Ptr:
		if rv.IsNil() || rv.Type() == regexpType {
			return rv, true
		}
		key := memoKey{ptr: rv.Pointer(), typ: rv.Type()}
		if memo, ok := c.seen[key]; ok {
			return memo, true
		}
		out := reflect.New(rv.Type().Elem())
		// registered before descending so cycles resolve to the new pointer
		c.seen[key] = out
		elem, ok := c.clone(rv.Elem())
		if !ok {
			return reflect.Value{}, false
		}
		out.Elem().Set(elem)
		return out, true

	case reflect.Map:
		if rv.IsNil() {
			return rv, true
		}
		key := memoKey{ptr: rv.Pointer(), typ: rv.Type()}
		if memo, ok := c.seen[key]; ok {
			return memo, true
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		c.seen[key] = out
		iter := rv.MapRange()
		for iter.Next() {
			k, ok := c.clone(iter.Key())
			if !ok {
				return reflect.Value{}, false
			}
			v, ok := c.clone(iter.Value())
			if !ok {
				return reflect.Value{}, false
			}
			out.SetMapIndex(k, v)
		}
		return out, true

	case reflect.Slice:
		if rv.IsNil() {
			return rv, true
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
			reflect.Copy(out, rv)
			return out, true
		}
		// zero-length slices share a data pointer and must not be memoized
		key := memoKey{ptr: rv.Pointer(), typ: rv.Type(), len: rv.Len()}
		if rv.Len() > 0 {
			if memo, ok := c.seen[key]; ok {
				return memo, true
			}
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		if rv.Len() > 0 {
			c.seen[key] = out
		}
		for i := 0; i < rv.Len(); i++ {
			ev, ok := c.clone(rv.Index(i))
			if !ok {
				return reflect.Value{}, false
			}
			out.Index(i).Set(ev)
		}
		return out, true

	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		out.Set(rv)
		for i := 0; i < rv.Len(); i++ {
			ev, ok := c.clone(rv.Index(i))
			if !ok {
				return reflect.Value{}, false
			}
			out.Index(i).Set(ev)
		}
		return out, true

	case reflect.Struct:
		if rv.Type() == timeType {
			return rv, true
		}
		out := reflect.New(rv.Type()).Elem()
		// whole-value assignment first so unexported fields carry over
		out.Set(rv)
		for i := 0; i < rv.NumField(); i++ {
			if rv.Type().Field(i).PkgPath != "" {
				continue
			}
			fv, ok := c.clone(rv.Field(i))
			if !ok {
				return reflect.Value{}, false
			}
			out.Field(i).Set(fv)
		}
		return out, true

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return rv, true

	default:
		// scalars and strings are values; nothing to copy
		return rv, true
	}
}

// Primitive reports whether v needs no copying at all to be safely shared:
// nil, booleans, strings, and numeric values.
func Primitive(v any) bool {
	switch v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64, complex64, complex128:
		return true
	}
	return false
}

// Identity returns a stable address identifying a reference value, or 0 for
// values that have none. Two interface values with the same nonzero identity
// are views of the same underlying object, which is what clone-reuse keys on.
func Identity(v any) uintptr {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		if rv.IsNil() {
			return 0
		}
		return rv.Pointer()
	case reflect.Slice:
		// zero-length slices share a runtime sentinel address
		if rv.IsNil() || rv.Len() == 0 {
			return 0
		}
		return rv.Pointer()
	}
	return 0
}
