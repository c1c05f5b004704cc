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

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"

	"strusgo/pkg/ixerr"
	"strusgo/pkg/varint"
)

// MetaDataRowsPerBlock is the fixed row count of a MetaData block:
// docno 0..1023 live in block 0, 1024..2047 in block 1, and so on.
const MetaDataRowsPerBlock = 1024

// ColumnType is the physical width/encoding of one metadata column.
type ColumnType uint8

const (
	ColumnInt8 ColumnType = iota
	ColumnInt16
	ColumnInt32
	ColumnUInt8
	ColumnUInt16
	ColumnUInt32
	ColumnFloat16
	ColumnFloat32
)

// Size returns the column's width in bytes.
func (c ColumnType) Size() int {
	switch c {
	case ColumnInt8, ColumnUInt8:
		return 1
	case ColumnInt16, ColumnUInt16, ColumnFloat16:
		return 2
	case ColumnInt32, ColumnUInt32, ColumnFloat32:
		return 4
	}
	return 0
}

func (c ColumnType) String() string {
	switch c {
	case ColumnInt8:
		return "int8"
	case ColumnInt16:
		return "int16"
	case ColumnInt32:
		return "int32"
	case ColumnUInt8:
		return "uint8"
	case ColumnUInt16:
		return "uint16"
	case ColumnUInt32:
		return "uint32"
	case ColumnFloat16:
		return "float16"
	case ColumnFloat32:
		return "float32"
	}
	return "unknown"
}

// ParseColumnType maps a schema type name to its ColumnType.
func ParseColumnType(name string) (ColumnType, error) {
	for _, c := range []ColumnType{
		ColumnInt8, ColumnInt16, ColumnInt32,
		ColumnUInt8, ColumnUInt16, ColumnUInt32,
		ColumnFloat16, ColumnFloat32,
	} {
		if name == c.String() {
			return c, nil
		}
	}
	return 0, ixerr.Newf(ixerr.InvalidArgument, "metadata schema: unknown column type %q", name)
}

// Schema names and orders a MetaData block's fixed columns: a flat
// list of (name, type) pairs shared by every block in a storage
// instance.
type Schema struct {
	Names []string
	Types []ColumnType
}

// RowSize returns the byte width of one row under this schema.
func (s *Schema) RowSize() int {
	n := 0
	for _, t := range s.Types {
		n += t.Size()
	}
	return n
}

// Index returns the column index of name, or ok=false.
func (s *Schema) Index(name string) (int, bool) {
	for i, n := range s.Names {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// MetaDataBlock is a fixed MetaDataRowsPerBlock-row slab of column
// values for docnos [BlockNo*1024, BlockNo*1024+1024).
type MetaDataBlock struct {
	Schema  *Schema
	BlockNo uint32
	rows    [][]byte // row-major, each len == Schema.RowSize()
}

// NewMetaDataBlock returns a zero-valued block for blockNo under schema.
func NewMetaDataBlock(schema *Schema, blockNo uint32) *MetaDataBlock {
	rowSize := schema.RowSize()
	rows := make([][]byte, MetaDataRowsPerBlock)
	for i := range rows {
		rows[i] = make([]byte, rowSize)
	}
	return &MetaDataBlock{Schema: schema, BlockNo: blockNo, rows: rows}
}

func rowOf(docno uint32) int { return int(docno % MetaDataRowsPerBlock) }

// BlockNoOf returns the block number holding docno.
func BlockNoOf(docno uint32) uint32 { return docno / MetaDataRowsPerBlock }

// SetFloat writes value into column name for docno, converting to the
// column's physical type.
func (b *MetaDataBlock) SetFloat(docno uint32, name string, value float64) error {
	idx, ok := b.Schema.Index(name)
	if !ok {
		return ixerr.Newf(ixerr.InvalidArgument, "metadata block: unknown column %q", name)
	}
	row := b.rows[rowOf(docno)]
	off := b.colOffset(idx)
	switch b.Schema.Types[idx] {
	case ColumnInt8:
		row[off] = byte(int8(value))
	case ColumnInt16:
		binary.LittleEndian.PutUint16(row[off:], uint16(int16(value)))
	case ColumnInt32:
		binary.LittleEndian.PutUint32(row[off:], uint32(int32(value)))
	case ColumnUInt8:
		row[off] = byte(uint8(value))
	case ColumnUInt16:
		binary.LittleEndian.PutUint16(row[off:], uint16(value))
	case ColumnUInt32:
		binary.LittleEndian.PutUint32(row[off:], uint32(value))
	case ColumnFloat16:
		binary.LittleEndian.PutUint16(row[off:], uint16(float16.Fromfloat32(float32(value))))
	case ColumnFloat32:
		binary.LittleEndian.PutUint32(row[off:], math.Float32bits(float32(value)))
	}
	return nil
}

// GetFloat reads column name for docno as a float64.
func (b *MetaDataBlock) GetFloat(docno uint32, name string) (float64, error) {
	idx, ok := b.Schema.Index(name)
	if !ok {
		return 0, ixerr.Newf(ixerr.InvalidArgument, "metadata block: unknown column %q", name)
	}
	row := b.rows[rowOf(docno)]
	off := b.colOffset(idx)
	switch b.Schema.Types[idx] {
	case ColumnInt8:
		return float64(int8(row[off])), nil
	case ColumnInt16:
		return float64(int16(binary.LittleEndian.Uint16(row[off:]))), nil
	case ColumnInt32:
		return float64(int32(binary.LittleEndian.Uint32(row[off:]))), nil
	case ColumnUInt8:
		return float64(row[off]), nil
	case ColumnUInt16:
		return float64(binary.LittleEndian.Uint16(row[off:])), nil
	case ColumnUInt32:
		return float64(binary.LittleEndian.Uint32(row[off:])), nil
	case ColumnFloat16:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(row[off:])).Float32()), nil
	case ColumnFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(row[off:]))), nil
	}
	return 0, nil
}

func (b *MetaDataBlock) colOffset(idx int) int {
	off := 0
	for i := 0; i < idx; i++ {
		off += b.Schema.Types[i].Size()
	}
	return off
}

// Marshal encodes the block's raw row bytes (the schema itself is
// stored once per storage instance, not per block).
func (b *MetaDataBlock) Marshal() []byte {
	rowSize := b.Schema.RowSize()
	buf := make([]byte, 0, rowSize*MetaDataRowsPerBlock)
	for _, row := range b.rows {
		buf = append(buf, row...)
	}
	return buf
}

// ZeroRow clears docno's row (used when a document is deleted).
func (b *MetaDataBlock) ZeroRow(docno uint32) {
	row := b.rows[rowOf(docno)]
	for i := range row {
		row[i] = 0
	}
}

// IsZero reports whether every row of the block is zero, i.e. the block
// carries no information and its stored record can be dropped.
func (b *MetaDataBlock) IsZero() bool {
	for _, row := range b.rows {
		for _, c := range row {
			if c != 0 {
				return false
			}
		}
	}
	return true
}

// Marshal encodes the schema descriptor for the MetaDataDescr record:
// a count followed by (name length, name bytes, type) per column.
func (s *Schema) Marshal() []byte {
	buf := varint.Pack(nil, uint32(len(s.Names)))
	for i, name := range s.Names {
		buf = varint.Pack(buf, uint32(len(name)))
		buf = append(buf, name...)
		buf = append(buf, byte(s.Types[i]))
	}
	return buf
}

// UnmarshalSchema decodes a descriptor encoded by Schema.Marshal.
func UnmarshalSchema(raw []byte) (*Schema, error) {
	i := 0
	count, n, err := varint.Unpack(raw[i:])
	if err != nil {
		return nil, err
	}
	i += n
	s := &Schema{
		Names: make([]string, 0, count),
		Types: make([]ColumnType, 0, count),
	}
	for k := uint32(0); k < count; k++ {
		l, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		if i+int(l)+1 > len(raw) {
			return nil, ixerr.New(ixerr.CorruptData, "metadata schema: truncated descriptor")
		}
		s.Names = append(s.Names, string(raw[i:i+int(l)]))
		i += int(l)
		t := ColumnType(raw[i])
		i++
		if t.Size() == 0 {
			return nil, ixerr.Newf(ixerr.CorruptData, "metadata schema: bad column type %d", t)
		}
		s.Types = append(s.Types, t)
	}
	return s, nil
}

// UnmarshalMetaData decodes a block encoded by Marshal for the given
// schema and block number.
func UnmarshalMetaData(schema *Schema, blockNo uint32, raw []byte) (*MetaDataBlock, error) {
	rowSize := schema.RowSize()
	if len(raw) != rowSize*MetaDataRowsPerBlock {
		return nil, ixerr.Newf(ixerr.CorruptData, "metadata block: expected %d bytes, got %d", rowSize*MetaDataRowsPerBlock, len(raw))
	}
	b := NewMetaDataBlock(schema, blockNo)
	for i := range b.rows {
		copy(b.rows[i], raw[i*rowSize:(i+1)*rowSize])
	}
	return b, nil
}
