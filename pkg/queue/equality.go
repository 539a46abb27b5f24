package queue

import (
	"bytes"
	"encoding/json"
)

// equivalent implements the task deduplication predicate from the data
// model: two tasks are equivalent iff name, locks (as sets), args (as an
// ordered sequence), and kwargs compare equal after removing ignoreKeys
// from both sides' kwargs. The symmetric difference of the surviving
// kwarg key sets must be empty; remaining shared keys must have
// structurally equal JSON values (compared in canonical form, so
// whitespace differences do not matter).
func equivalent(a, b *Task, ignoreKeys map[string]struct{}) bool {
	if a.Name != b.Name {
		return false
	}
	if !locksEqual(a.Locks, b.Locks) {
		return false
	}
	if !argsEqual(a.Args, b.Args) {
		return false
	}
	return kwargsEqual(a.Kwargs, b.Kwargs, ignoreKeys)
}

func locksEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func argsEqual(a, b []json.RawMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(canonical(a[i]), canonical(b[i])) {
			return false
		}
	}
	return true
}

func kwargsEqual(a, b map[string]json.RawMessage, ignoreKeys map[string]struct{}) bool {
	for k, av := range a {
		if _, ignored := ignoreKeys[k]; ignored {
			continue
		}
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !bytes.Equal(canonical(av), canonical(bv)) {
			return false
		}
	}
	for k := range b {
		if _, ignored := ignoreKeys[k]; ignored {
			continue
		}
		if _, ok := a[k]; !ok {
			return false
		}
	}
	return true
}

// canonical normalizes whitespace-insensitive JSON so that structurally
// equal values compare equal regardless of how the client formatted them.
func canonical(raw json.RawMessage) []byte {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
