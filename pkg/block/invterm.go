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

import "strusgo/pkg/varint"

// InvTermEntry names one (type,term) pair a document contains, with the
// ff it had in that document at the time of insertion.
type InvTermEntry struct {
	TypeNo uint32
	TermNo uint32
	Ff     uint32
}

// InvTermRecord is the value stored under a single document's InvTerm
// key (keyschema.InvTerm(docno)): every (type,term) the document
// contributed to the index, so a delete can find and clean up every
// posting the document touched without re-tokenizing it. Unlike the
// other block families this one is not addressed by a "largest address
// in block" key: exactly one record exists per docno, so it needs no
// doc-index skip layer.
type InvTermRecord struct {
	Entries []InvTermEntry
}

// Marshal encodes the record.
func (r *InvTermRecord) Marshal() []byte {
	buf := varint.Pack(nil, uint32(len(r.Entries)))
	for _, e := range r.Entries {
		buf = varint.Pack(buf, e.TypeNo)
		buf = varint.Pack(buf, e.TermNo)
		buf = varint.Pack(buf, e.Ff)
	}
	return buf
}

// UnmarshalInvTerm decodes a record encoded by Marshal.
func UnmarshalInvTerm(raw []byte) (*InvTermRecord, error) {
	i := 0
	count, n, err := varint.Unpack(raw[i:])
	if err != nil {
		return nil, err
	}
	i += n
	rec := &InvTermRecord{Entries: make([]InvTermEntry, count)}
	for k := uint32(0); k < count; k++ {
		typeNo, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		termNo, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		ff, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		rec.Entries[k] = InvTermEntry{TypeNo: typeNo, TermNo: termNo, Ff: ff}
	}
	return rec, nil
}
