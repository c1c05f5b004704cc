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

package block

import "github.com/klauspost/compress/s2"

// Compress wraps a marshaled block in S2 (Snappy-compatible) compression
// before it hits the store, when a storage instance is configured with
// compression enabled.
func Compress(raw []byte) []byte {
	return s2.Encode(nil, raw)
}

// Decompress reverses Compress.
func Decompress(compressed []byte) ([]byte, error) {
	return s2.Decode(nil, compressed)
}
