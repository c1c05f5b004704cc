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

// Package keyschema builds and parses the storage engine's physical key
// layout: a single family-selecting prefix byte followed by packed
// integers.
package keyschema

import "strusgo/pkg/varint"

// Family is the single leading byte selecting a record family.
type Family byte

const (
	FamilyTermType      Family = 't'
	FamilyTermValue     Family = 'i'
	FamilyDocID         Family = 'd'
	FamilyUserName      Family = 'u'
	FamilyAttributeName Family = 'a'
	FamilyVariable      Family = 'v'
	FamilyPosInfo       Family = 'p'
	FamilyDocList       Family = 'b'
	FamilyFf            Family = 'f'
	FamilyForwardIndex  Family = 'F'
	FamilyInvTerm       Family = 'r'
	FamilyMetaData      Family = 'm'
	FamilyDocAttribute  Family = 'x'
	FamilyDocFrequency  Family = 'D'
	FamilyUserAcl       Family = 'U'
	FamilyAcl           Family = 'A'
	FamilyMetaDataDescr Family = 'M'
	// FamilyStructure holds per-document structure spans, following the
	// same "prefix + packed docno_hi" addressing as every other block
	// family.
	FamilyStructure Family = 'S'
)

// Builder appends packed integers behind a family prefix.
type Builder struct {
	buf []byte
}

// New starts a key with the given family prefix.
func New(f Family) *Builder {
	return &Builder{buf: append(make([]byte, 0, 16), byte(f))}
}

// Elem appends a packed integer element.
func (b *Builder) Elem(v uint32) *Builder {
	b.buf = varint.Pack(b.buf, v)
	return b
}

// Raw appends raw bytes verbatim (used by the Variable family, whose key
// tail is an ASCII name rather than packed integers).
func (b *Builder) Raw(s string) *Builder {
	b.buf = append(b.buf, s...)
	return b
}

// Bytes returns the built key.
func (b *Builder) Bytes() []byte { return b.buf }

// Family0 returns the family byte of a key.
func Family0(key []byte) Family {
	if len(key) == 0 {
		return 0
	}
	return Family(key[0])
}

// Tail returns the key bytes after the family prefix.
func Tail(key []byte) []byte {
	if len(key) == 0 {
		return nil
	}
	return key[1:]
}

// --- convenience constructors for each family ---

func TermType(typeno uint32) []byte { return New(FamilyTermType).Elem(typeno).Bytes() }
func TermValue(termno uint32) []byte { return New(FamilyTermValue).Elem(termno).Bytes() }
func DocID(docno uint32) []byte     { return New(FamilyDocID).Elem(docno).Bytes() }
func UserName(userno uint32) []byte { return New(FamilyUserName).Elem(userno).Bytes() }
func AttributeName(attrno uint32) []byte {
	return New(FamilyAttributeName).Elem(attrno).Bytes()
}
func Variable(name string) []byte { return New(FamilyVariable).Raw(name).Bytes() }

// PosInfo returns the key for the posinfo block of (typeno,termno)
// addressed by docnoHi (the largest docno the block contains).
func PosInfo(typeno, termno, docnoHi uint32) []byte {
	return New(FamilyPosInfo).Elem(typeno).Elem(termno).Elem(docnoHi).Bytes()
}

// PosInfoPrefix returns the key prefix common to all posinfo blocks of
// (typeno,termno), for an upper-bound seek.
func PosInfoPrefix(typeno, termno uint32) []byte {
	return New(FamilyPosInfo).Elem(typeno).Elem(termno).Bytes()
}

func DocList(typeno, termno, docnoHi uint32) []byte {
	return New(FamilyDocList).Elem(typeno).Elem(termno).Elem(docnoHi).Bytes()
}

func DocListPrefix(typeno, termno uint32) []byte {
	return New(FamilyDocList).Elem(typeno).Elem(termno).Bytes()
}

func Ff(typeno, termno, docnoHi uint32) []byte {
	return New(FamilyFf).Elem(typeno).Elem(termno).Elem(docnoHi).Bytes()
}

func FfPrefix(typeno, termno uint32) []byte {
	return New(FamilyFf).Elem(typeno).Elem(termno).Bytes()
}

func ForwardIndex(typeno, docno, posHi uint32) []byte {
	return New(FamilyForwardIndex).Elem(typeno).Elem(docno).Elem(posHi).Bytes()
}

func ForwardIndexPrefix(typeno, docno uint32) []byte {
	return New(FamilyForwardIndex).Elem(typeno).Elem(docno).Bytes()
}

func InvTerm(docno uint32) []byte { return New(FamilyInvTerm).Elem(docno).Bytes() }

func MetaData(blockno uint32) []byte { return New(FamilyMetaData).Elem(blockno).Bytes() }

func DocAttribute(docno, attrno uint32) []byte {
	return New(FamilyDocAttribute).Elem(docno).Elem(attrno).Bytes()
}

func DocAttributePrefix(docno uint32) []byte {
	return New(FamilyDocAttribute).Elem(docno).Bytes()
}

func DocFrequency(typeno, termno uint32) []byte {
	return New(FamilyDocFrequency).Elem(typeno).Elem(termno).Bytes()
}

func UserAcl(userno, docnoHi uint32) []byte {
	return New(FamilyUserAcl).Elem(userno).Elem(docnoHi).Bytes()
}

func UserAclPrefix(userno uint32) []byte {
	return New(FamilyUserAcl).Elem(userno).Bytes()
}

func Acl(docno, usernoHi uint32) []byte {
	return New(FamilyAcl).Elem(docno).Elem(usernoHi).Bytes()
}

func AclPrefix(docno uint32) []byte {
	return New(FamilyAcl).Elem(docno).Bytes()
}

func MetaDataDescr() []byte { return New(FamilyMetaDataDescr).Bytes() }

func Structure(docnoHi uint32) []byte { return New(FamilyStructure).Elem(docnoHi).Bytes() }

func StructurePrefix() []byte { return New(FamilyStructure).Bytes() }
