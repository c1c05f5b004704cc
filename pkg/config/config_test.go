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

package config

import (
	"testing"

	"strusgo/pkg/block"
	"strusgo/pkg/ixerr"
)

func TestParseFull(t *testing.T) {
	opts, err := Parse("path=/tmp/st; metadata=doclen:uint16, weight:float32; cache=4M; acl=yes; compression=no")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if opts.Path != "/tmp/st" {
		t.Errorf("Path = %q", opts.Path)
	}
	if opts.CacheSize != 4<<20 {
		t.Errorf("CacheSize = %d, want %d", opts.CacheSize, 4<<20)
	}
	if !opts.ACL || opts.Compression {
		t.Errorf("ACL = %v, Compression = %v", opts.ACL, opts.Compression)
	}
	if opts.Schema == nil || len(opts.Schema.Names) != 2 {
		t.Fatalf("Schema = %+v", opts.Schema)
	}
	if opts.Schema.Names[0] != "doclen" || opts.Schema.Types[0] != block.ColumnUInt16 {
		t.Errorf("column 0 = %s:%s", opts.Schema.Names[0], opts.Schema.Types[0])
	}
	if opts.Schema.Types[1] != block.ColumnFloat32 {
		t.Errorf("column 1 type = %s", opts.Schema.Types[1])
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		conf string
	}{
		{"missing path", "cache=1M"},
		{"duplicate key", "path=/a; path=/b"},
		{"unknown key", "path=/a; bogus=1"},
		{"no equals", "path=/a; cache"},
		{"bad column type", "path=/a; metadata=doclen:int64"},
		{"column without type", "path=/a; metadata=doclen"},
		{"duplicate column", "path=/a; metadata=x:int8, x:int8"},
		{"bad cache size", "path=/a; cache=lots"},
		{"bad bool", "path=/a; acl=maybe"},
	}
	for _, tc := range cases {
		if _, err := Parse(tc.conf); !ixerr.Is(err, ixerr.InvalidArgument) {
			t.Errorf("%s: Parse(%q) = %v, want InvalidArgument", tc.name, tc.conf, err)
		}
	}
}

func TestParseSizeSuffixes(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"cache=512", 512},
		{"cache=2K", 2 << 10},
		{"cache=3m", 3 << 20},
		{"cache=1G", 1 << 30},
	}
	for _, tc := range cases {
		opts, err := Parse("path=/a; " + tc.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.in, err)
			continue
		}
		if opts.CacheSize != tc.want {
			t.Errorf("Parse(%q).CacheSize = %d, want %d", tc.in, opts.CacheSize, tc.want)
		}
	}
}

func TestDefaults(t *testing.T) {
	opts, err := Parse("path=/tmp/st")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if opts.CacheSize != DefaultCacheSize {
		t.Errorf("CacheSize = %d, want default %d", opts.CacheSize, DefaultCacheSize)
	}
	if opts.ACL || opts.Compression || opts.Schema != nil {
		t.Errorf("defaults = %+v", opts)
	}
}
