package persist

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/krisalay/chronocache/types"
)

/*
Plain JSON cannot round-trip every value a cache holds: time.Time flattens
to a string, []byte to base64, and a map[string]struct{} set marshals to
useless empty objects. Values of those types are wrapped in a small envelope
on the way out,

	{"_meta":{"type":"time"},"value":"2026-01-02T15:04:05Z"}

and unwrapped on the way in. The "_meta" key is reserved: a stored map whose
value is shaped exactly like the envelope above is indistinguishable from one
and will be unwrapped on load.

Numbers are a documented loss: JSON has one number type, so any int stored
through a snapshot comes back as float64.
*/

const (
	tagTime  = "time"
	tagBytes = "bytes"
	tagSet   = "set"
)

type tagMeta struct {
	Type string `json:"type"`
}

type taggedValue struct {
	Meta  tagMeta         `json:"_meta"`
	Value json.RawMessage `json:"value"`
}

/*
EncodeValue serializes a cache value for storage, wrapping types plain JSON
would flatten. Maps and slices are walked so nested times and byte slices
survive too.
*/
func EncodeValue(v any) (json.RawMessage, error) {
	switch t := v.(type) {
	case time.Time:
		return encodeTagged(tagTime, t)
	case []byte:
		return encodeTagged(tagBytes, t)
	case map[string]struct{}:
		members := make([]string, 0, len(t))
		for k := range t {
			members = append(members, k)
		}
		sort.Strings(members)
		return encodeTagged(tagSet, members)
	case map[string]any:
		out := make(map[string]json.RawMessage, len(t))
		for k, item := range t {
			enc, err := EncodeValue(item)
			if err != nil {
				return nil, errors.Wrapf(err, "key %q", k)
			}
			out[k] = enc
		}
		raw, err := json.Marshal(out)
		return raw, errors.WithStack(err)
	case []any:
		out := make([]json.RawMessage, 0, len(t))
		for i, item := range t {
			enc, err := EncodeValue(item)
			if err != nil {
				return nil, errors.Wrapf(err, "index %d", i)
			}
			out = append(out, enc)
		}
		raw, err := json.Marshal(out)
		return raw, errors.WithStack(err)
	default:
		raw, err := json.Marshal(v)
		return raw, errors.WithStack(err)
	}
}

func encodeTagged(tag string, v any) (json.RawMessage, error) {
	inner, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	raw, err := json.Marshal(taggedValue{Meta: tagMeta{Type: tag}, Value: inner})
	return raw, errors.WithStack(err)
}

/*
DecodeValue is the inverse of EncodeValue. Untagged objects come back as
map[string]any, arrays as []any and numbers as float64.
*/
func DecodeValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty value")
	}

	switch trimmed[0] {
	case '{':
		if tagged, ok := probeTagged(trimmed); ok {
			return decodeTagged(tagged)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, errors.WithStack(err)
		}
		out := make(map[string]any, len(fields))
		for k, item := range fields {
			dec, err := DecodeValue(item)
			if err != nil {
				return nil, errors.Wrapf(err, "key %q", k)
			}
			out[k] = dec
		}
		return out, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, errors.WithStack(err)
		}
		out := make([]any, 0, len(items))
		for i, item := range items {
			dec, err := DecodeValue(item)
			if err != nil {
				return nil, errors.Wrapf(err, "index %d", i)
			}
			out = append(out, dec)
		}
		return out, nil
	default:
		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, errors.WithStack(err)
		}
		return v, nil
	}
}

// probeTagged reports whether raw is an envelope written by encodeTagged.
func probeTagged(raw json.RawMessage) (taggedValue, bool) {
	var tv taggedValue
	if err := json.Unmarshal(raw, &tv); err != nil {
		return taggedValue{}, false
	}
	if tv.Meta.Type == "" || tv.Value == nil {
		return taggedValue{}, false
	}
	switch tv.Meta.Type {
	case tagTime, tagBytes, tagSet:
		return tv, true
	}
	return taggedValue{}, false
}

func decodeTagged(tv taggedValue) (any, error) {
	switch tv.Meta.Type {
	case tagTime:
		var t time.Time
		if err := json.Unmarshal(tv.Value, &t); err != nil {
			return nil, errors.Wrap(err, "tagged time")
		}
		return t, nil
	case tagBytes:
		var b []byte
		if err := json.Unmarshal(tv.Value, &b); err != nil {
			return nil, errors.Wrap(err, "tagged bytes")
		}
		return b, nil
	case tagSet:
		var members []string
		if err := json.Unmarshal(tv.Value, &members); err != nil {
			return nil, errors.Wrap(err, "tagged set")
		}
		set := make(map[string]struct{}, len(members))
		for _, m := range members {
			set[m] = struct{}{}
		}
		return set, nil
	}
	return nil, errors.Errorf("unknown value tag %q", tv.Meta.Type)
}

/*
EncodeEntries turns live cache entries into a storable payload. SavedAt is
stamped with the current time.
*/
func EncodeEntries(entries []*types.CacheEntry) (*types.Payload, error) {
	p := &types.Payload{
		Version: types.PayloadVersion,
		SavedAt: time.Now().UTC(),
		Entries: make([]types.PersistedEntry, 0, len(entries)),
	}
	for _, e := range entries {
		if e == nil {
			continue
		}
		raw, err := EncodeValue(e.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "encode entry %q", e.Key)
		}
		p.Entries = append(p.Entries, types.PersistedEntry{
			Key:         e.Key,
			Value:       raw,
			ExpireAt:    e.ExpireAt,
			CreatedAt:   e.CreatedAt,
			AccessCount: e.AccessCount,
		})
	}
	return p, nil
}

/*
DecodeEntries turns a loaded payload back into cache entries. Payloads
written by a newer layout than this build understands are rejected.
*/
func DecodeEntries(p *types.Payload) ([]*types.CacheEntry, error) {
	if p == nil {
		return nil, nil
	}
	if p.Version > types.PayloadVersion {
		return nil, errors.Errorf("snapshot version %d is newer than supported version %d", p.Version, types.PayloadVersion)
	}
	entries := make([]*types.CacheEntry, 0, len(p.Entries))
	for _, pe := range p.Entries {
		v, err := DecodeValue(pe.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "decode entry %q", pe.Key)
		}
		entries = append(entries, &types.CacheEntry{
			Key:         pe.Key,
			Value:       v,
			ExpireAt:    pe.ExpireAt,
			CreatedAt:   pe.CreatedAt,
			AccessCount: pe.AccessCount,
		})
	}
	return entries, nil
}
