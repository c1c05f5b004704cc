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

package varint

import (
	"bytes"
	"testing"
)

// sample covers every encoding length boundary plus values around them.
var sample = []uint32{
	0, 1, 2, 63, 64, 127,
	128, 129, 2047, 2048,
	65535, 65536, 1<<16 + 1,
	1<<21 - 1, 1 << 21,
	1<<26 - 1, 1 << 26,
	1<<31 - 2, 1<<31 - 1,
}

func TestPackUnpackRoundTrip(t *testing.T) {
	for _, n := range sample {
		enc := Pack(nil, n)
		if got := Len(n); got != len(enc) {
			t.Errorf("Len(%d) = %d, encoding is %d bytes", n, got, len(enc))
		}
		v, consumed, err := Unpack(enc)
		if err != nil {
			t.Fatalf("Unpack(Pack(%d)): %v", n, err)
		}
		if v != n || consumed != len(enc) {
			t.Errorf("Unpack(Pack(%d)) = (%d, %d), want (%d, %d)", n, v, consumed, n, len(enc))
		}
		skipped, err := Skip(enc)
		if err != nil || skipped != len(enc) {
			t.Errorf("Skip(Pack(%d)) = (%d, %v), want %d", n, skipped, err, len(enc))
		}
	}
}

func TestPackNoRangeDelimByte(t *testing.T) {
	for _, n := range sample {
		for _, b := range Pack(nil, n) {
			if b == RangeDelim {
				t.Fatalf("Pack(%d) contains the range delimiter byte 0xFE", n)
			}
		}
	}
}

func TestPackPreservesOrderOnEqualLength(t *testing.T) {
	prev := Pack(nil, sample[0])
	for _, n := range sample[1:] {
		cur := Pack(nil, n)
		if len(cur) == len(prev) && bytes.Compare(prev, cur) >= 0 {
			t.Errorf("Pack(%d) not byte-lexicographically greater than its predecessor", n)
		}
		prev = cur
	}
}

func TestRangeRoundTrip(t *testing.T) {
	cases := []struct{ idx, size uint32 }{
		{0, 0}, {1, 0}, {7, 3}, {1000, 1}, {1 << 20, 1 << 10},
	}
	for _, tc := range cases {
		enc := PackRange(nil, tc.idx, tc.size)
		idx, size, consumed, err := UnpackRange(enc)
		if err != nil {
			t.Fatalf("UnpackRange(PackRange(%d,%d)): %v", tc.idx, tc.size, err)
		}
		if idx != tc.idx || size != tc.size || consumed != len(enc) {
			t.Errorf("UnpackRange = (%d,%d,%d), want (%d,%d,%d)", idx, size, consumed, tc.idx, tc.size, len(enc))
		}
		if tc.size == 0 && bytes.IndexByte(enc, RangeDelim) >= 0 {
			t.Errorf("PackRange(%d,0) carries a delimiter, want bare index", tc.idx)
		}
	}
}

func TestUnpackCorrupt(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"truncated continuation", []byte{0xC2}},
		{"bad continuation byte", []byte{0xC2, 0xC0}},
		{"lead byte length 7", []byte{0xFE, 0x80}},
		{"lead byte length 8", []byte{0xFF, 0x80}},
		{"bare continuation", []byte{0x80}},
	}
	for _, tc := range cases {
		if _, _, err := Unpack(tc.buf); err == nil {
			t.Errorf("Unpack(%s) succeeded, want CorruptData", tc.name)
		}
		if _, err := Skip(tc.buf); err == nil {
			t.Errorf("Skip(%s) succeeded, want CorruptData", tc.name)
		}
	}
}

func TestFindUpperBoundAsc(t *testing.T) {
	values := []uint32{3, 9, 27, 81, 243, 729, 2187, 6561, 19683, 59049}
	var buf []byte
	offsets := make([]int, len(values))
	for i, v := range values {
		offsets[i] = len(buf)
		buf = Pack(buf, v)
	}
	for i, v := range values {
		off, err := FindUpperBoundAsc(buf, v)
		if err != nil {
			t.Fatalf("FindUpperBoundAsc(%d): %v", v, err)
		}
		if off != offsets[i] {
			t.Errorf("FindUpperBoundAsc(%d) = offset %d, want %d", v, off, offsets[i])
		}
		// A needle between elements lands on the next one.
		off, err = FindUpperBoundAsc(buf, v-1)
		if err != nil {
			t.Fatal(err)
		}
		if off != offsets[i] {
			t.Errorf("FindUpperBoundAsc(%d) = offset %d, want %d", v-1, off, offsets[i])
		}
	}
	off, err := FindUpperBoundAsc(buf, 59050)
	if err != nil {
		t.Fatal(err)
	}
	if off != len(buf) {
		t.Errorf("FindUpperBoundAsc(past end) = %d, want len(buf)=%d", off, len(buf))
	}
}

func TestFindUpperBoundLongBuffer(t *testing.T) {
	// Exercise the stride-probing path: enough elements that the buffer
	// is far longer than the probe stride.
	var buf []byte
	for v := uint32(1); v <= 500; v++ {
		buf = Pack(buf, v*2)
	}
	for _, needle := range []uint32{1, 2, 3, 499, 500, 501, 997, 998, 1000} {
		off, err := FindUpperBoundAsc(buf, needle)
		if err != nil {
			t.Fatalf("FindUpperBoundAsc(%d): %v", needle, err)
		}
		v, _, err := Unpack(buf[off:])
		if err != nil {
			t.Fatal(err)
		}
		if v < needle {
			t.Errorf("FindUpperBoundAsc(%d) landed on %d", needle, v)
		}
		if v > needle+1 {
			t.Errorf("FindUpperBoundAsc(%d) overshot to %d", needle, v)
		}
	}
}

func TestGlobalCounterRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 1<<31 - 1, 1 << 31, 1 << 40, 1<<62 - 1}
	for _, n := range cases {
		enc := PackGlobalCounter(nil, n)
		v, consumed, err := UnpackGlobalCounter(enc)
		if err != nil {
			t.Fatalf("UnpackGlobalCounter(%d): %v", n, err)
		}
		if v != n || consumed != len(enc) {
			t.Errorf("UnpackGlobalCounter = (%d, %d), want (%d, %d)", v, consumed, n, len(enc))
		}
	}
}

func TestCheckStringUTF8(t *testing.T) {
	valid := []string{"", "ascii", "käse", "日本語", "é€"}
	for _, s := range valid {
		if !CheckStringUTF8(s) {
			t.Errorf("CheckStringUTF8(%q) = false, want true", s)
		}
	}
	invalid := []string{"\xff", "a\x80b", "\xc2", "\xc2\xc0"}
	for _, s := range invalid {
		if CheckStringUTF8(s) {
			t.Errorf("CheckStringUTF8(%q) = true, want false", s)
		}
	}
}
