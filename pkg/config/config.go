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

// Package config parses the storage create/open options: path,
// metadata schema, metadata cache size, acl and compression switches.
// Option strings use the semicolon form
// "path=/tmp/st; metadata=doclen:uint16; cache=16M"; duplicate keys are
// rejected before values reach the accessor layer.
package config

import (
	"strconv"
	"strings"

	"go4.org/jsonconfig"

	"strusgo/pkg/block"
	"strusgo/pkg/ixerr"
)

// DefaultCacheSize bounds the decoded metadata-block cache when no
// cache option is given.
const DefaultCacheSize = 16 << 20

// Options is the parsed and validated configuration of one storage
// instance.
type Options struct {
	// Path is the filesystem location of the key-value store. Mandatory.
	Path string

	// Schema is the metadata column layout. Only consulted on create;
	// an opened storage reads its persisted descriptor instead.
	Schema *block.Schema

	// CacheSize is the metadata cache budget in bytes.
	CacheSize int64

	// ACL enables per-document access control lists.
	ACL bool

	// Compression enables block compression on the value path.
	Compression bool
}

// Parse splits a "key=value; key=value" option string, rejecting
// duplicate and unknown keys, and returns the validated Options.
func Parse(conf string) (*Options, error) {
	obj := jsonconfig.Obj{}
	seen := map[string]bool{}
	for _, part := range strings.Split(conf, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return nil, ixerr.Newf(ixerr.InvalidArgument, "config: expected key=value, got %q", part)
		}
		key := strings.TrimSpace(part[:eq])
		val := strings.TrimSpace(part[eq+1:])
		if seen[key] {
			return nil, ixerr.Newf(ixerr.InvalidArgument, "config: duplicate key %q", key)
		}
		seen[key] = true
		obj[key] = val
	}
	return fromObj(obj)
}

// FromMap builds Options from an already-split option map.
func FromMap(conf map[string]string) (*Options, error) {
	obj := jsonconfig.Obj{}
	for k, v := range conf {
		obj[k] = v
	}
	return fromObj(obj)
}

func fromObj(obj jsonconfig.Obj) (*Options, error) {
	opts := &Options{
		Path:      obj.RequiredString("path"),
		CacheSize: DefaultCacheSize,
	}
	metadata := obj.OptionalString("metadata", "")
	cache := obj.OptionalString("cache", "")
	acl := obj.OptionalString("acl", "no")
	compression := obj.OptionalString("compression", "no")
	if err := obj.Validate(); err != nil {
		return nil, ixerr.Wrap(ixerr.InvalidArgument, err, "config")
	}

	if metadata != "" {
		schema, err := ParseSchema(metadata)
		if err != nil {
			return nil, err
		}
		opts.Schema = schema
	}
	if cache != "" {
		n, err := parseSize(cache)
		if err != nil {
			return nil, err
		}
		opts.CacheSize = n
	}
	var err error
	if opts.ACL, err = parseYesNo("acl", acl); err != nil {
		return nil, err
	}
	if opts.Compression, err = parseYesNo("compression", compression); err != nil {
		return nil, err
	}
	return opts, nil
}

// ParseSchema parses a comma list of name:type column declarations
// ("doclen:uint16, pageweight:float32") into a block.Schema.
func ParseSchema(s string) (*block.Schema, error) {
	schema := &block.Schema{}
	for _, decl := range strings.Split(s, ",") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		colon := strings.IndexByte(decl, ':')
		if colon < 0 {
			return nil, ixerr.Newf(ixerr.InvalidArgument, "config: metadata entry %q missing type", decl)
		}
		name := strings.TrimSpace(decl[:colon])
		typeName := strings.ToLower(strings.TrimSpace(decl[colon+1:]))
		if name == "" {
			return nil, ixerr.Newf(ixerr.InvalidArgument, "config: metadata entry %q missing name", decl)
		}
		if _, ok := schema.Index(name); ok {
			return nil, ixerr.Newf(ixerr.InvalidArgument, "config: duplicate metadata column %q", name)
		}
		t, err := block.ParseColumnType(typeName)
		if err != nil {
			return nil, err
		}
		schema.Names = append(schema.Names, name)
		schema.Types = append(schema.Types, t)
	}
	if len(schema.Names) == 0 {
		return nil, ixerr.New(ixerr.InvalidArgument, "config: empty metadata schema")
	}
	return schema, nil
}

// parseSize parses a byte count with an optional K/M/G suffix.
func parseSize(s string) (int64, error) {
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult = 1 << 10
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult = 1 << 20
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "G"), strings.HasSuffix(s, "g"):
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, ixerr.Newf(ixerr.InvalidArgument, "config: bad cache size %q", s)
	}
	return n * mult, nil
}

func parseYesNo(key, val string) (bool, error) {
	switch strings.ToLower(val) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	}
	return false, ixerr.Newf(ixerr.InvalidArgument, "config: option %s expects yes or no, got %q", key, val)
}
