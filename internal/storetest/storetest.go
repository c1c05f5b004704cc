/*
Copyright 2024 The Strusgo Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package storetest exercises any store.KV implementation against the
// same contract.
package storetest

import (
	"bytes"
	"testing"

	"strusgo/pkg/store"
)

// Test runs the store.KV contract against kv.
func Test(t *testing.T, kv store.KV) {
	t.Helper()

	if _, err := kv.Get([]byte("missing")); err != store.ErrNotFound {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}

	b := new(store.Batch)
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))
	b.Put([]byte("c"), []byte("3"))
	if err := kv.Write(b, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	v, err := kv.Get([]byte("b"))
	if err != nil {
		t.Fatalf("Get(b): %v", err)
	}
	if !bytes.Equal(v, []byte("2")) {
		t.Fatalf("Get(b) = %q, want %q", v, "2")
	}

	c := kv.NewCursor()
	defer c.Close()
	if err := c.SeekUpperBound([]byte("b")); err != nil {
		t.Fatalf("SeekUpperBound: %v", err)
	}
	var got []string
	for c.Next() {
		got = append(got, string(c.Key())+"="+string(c.Value()))
	}
	want := []string{"b=2", "c=3"}
	if len(got) != len(want) {
		t.Fatalf("cursor results = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cursor results = %v, want %v", got, want)
		}
	}

	del := new(store.Batch)
	del.Delete([]byte("b"))
	if err := kv.Write(del, false); err != nil {
		t.Fatalf("Write(delete): %v", err)
	}
	if _, err := kv.Get([]byte("b")); err != store.ErrNotFound {
		t.Fatalf("Get(b) after delete = %v, want ErrNotFound", err)
	}
}
