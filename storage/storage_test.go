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

package storage

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"strusgo/pkg/block"
	"strusgo/pkg/config"
	"strusgo/pkg/ixerr"
	"strusgo/pkg/metadata"
	"strusgo/pkg/store"
	"strusgo/pkg/weighting"
)

func newTestStorage(t *testing.T, conf string) *Storage {
	t.Helper()
	opts, err := config.FromMap(confMap(conf))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	s, err := CreateWithKV(store.NewMem(), opts)
	if err != nil {
		t.Fatalf("CreateWithKV: %v", err)
	}
	return s
}

func confMap(conf string) map[string]string {
	m := map[string]string{"path": "mem"}
	for _, part := range strings.Split(conf, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		m[strings.TrimSpace(part[:eq])] = strings.TrimSpace(part[eq+1:])
	}
	return m
}

// insertText indexes a whitespace-tokenized document with 1-based
// positions and a doclen metadata column if the schema has one.
func insertText(t *testing.T, s *Storage, docID, text string) {
	t.Helper()
	tx := s.NewTransaction()
	doc, err := tx.InsertDocument(docID)
	if err != nil {
		t.Fatalf("InsertDocument(%q): %v", docID, err)
	}
	tokens := strings.Fields(text)
	for i, tok := range tokens {
		pos := uint32(i + 1)
		if err := doc.AddSearchTerm("word", tok, pos); err != nil {
			t.Fatalf("AddSearchTerm: %v", err)
		}
		if err := doc.AddForwardTerm("orig", tok, pos); err != nil {
			t.Fatalf("AddForwardTerm: %v", err)
		}
	}
	if schema := s.Schema(); schema != nil {
		if _, ok := schema.Index("doclen"); ok {
			if err := doc.SetMetaData("doclen", float64(len(tokens))); err != nil {
				t.Fatalf("SetMetaData: %v", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit(%q): %v", docID, err)
	}
}

func queryDocs(t *testing.T, s *Storage, term string) (ids []string, ffs []uint32) {
	t.Helper()
	it, err := s.PostingIterator("word", term)
	if err != nil {
		t.Fatalf("PostingIterator(%q): %v", term, err)
	}
	defer it.Close()
	docno, err := it.SkipDoc(1)
	for err == nil && docno != 0 {
		id, derr := s.DocidOf(docno)
		if derr != nil {
			t.Fatalf("DocidOf(%d): %v", docno, derr)
		}
		ff, ferr := it.Frequency()
		if ferr != nil {
			t.Fatalf("Frequency: %v", ferr)
		}
		ids = append(ids, id)
		ffs = append(ffs, ff)
		docno, err = it.SkipDoc(docno + 1)
	}
	if err != nil {
		t.Fatalf("SkipDoc: %v", err)
	}
	return ids, ffs
}

func smokeCorpus(t *testing.T, s *Storage) {
	t.Helper()
	insertText(t, s, "d1", "a a b")
	insertText(t, s, "d2", "a b c")
	insertText(t, s, "d3", "b c d")
	insertText(t, s, "d4", "a a a b")
}

func TestBM25Smoke(t *testing.T) {
	s := newTestStorage(t, "metadata=doclen:uint16")
	defer s.Close()
	smokeCorpus(t, s)

	ids, ffs := queryDocs(t, s, "a")
	if !reflect.DeepEqual(ids, []string{"d1", "d2", "d4"}) {
		t.Errorf("a docs = %v, want [d1 d2 d4]", ids)
	}
	if !reflect.DeepEqual(ffs, []uint32{2, 1, 3}) {
		t.Errorf("a ffs = %v, want [2 1 3]", ffs)
	}
	df, err := s.DocumentFrequency("word", "a")
	if err != nil {
		t.Fatal(err)
	}
	if df != 3 {
		t.Errorf("df(a) = %d, want 3", df)
	}
	if got := s.NofDocuments(); got != 4 {
		t.Errorf("NofDocuments = %d, want 4", got)
	}
}

func TestIntersection(t *testing.T) {
	s := newTestStorage(t, "")
	defer s.Close()
	smokeCorpus(t, s)

	intersect := func(t1, t2 string) []string {
		it1, err := s.PostingIterator("word", t1)
		if err != nil {
			t.Fatal(err)
		}
		defer it1.Close()
		it2, err := s.PostingIterator("word", t2)
		if err != nil {
			t.Fatal(err)
		}
		defer it2.Close()
		var ids []string
		d1, _ := it1.SkipDoc(1)
		for d1 != 0 {
			d2, err := it2.SkipDoc(d1)
			if err != nil {
				t.Fatal(err)
			}
			if d2 == 0 {
				break
			}
			if d2 == d1 {
				id, _ := s.DocidOf(d1)
				ids = append(ids, id)
				d1, _ = it1.SkipDoc(d1 + 1)
			} else {
				d1, _ = it1.SkipDoc(d2)
			}
		}
		return ids
	}

	if got := intersect("a", "b"); !reflect.DeepEqual(got, []string{"d1", "d2", "d4"}) {
		t.Errorf("a∩b = %v, want [d1 d2 d4]", got)
	}
	if got := intersect("b", "c"); !reflect.DeepEqual(got, []string{"d2", "d3"}) {
		t.Errorf("b∩c = %v, want [d2 d3]", got)
	}
}

func TestPositions(t *testing.T) {
	s := newTestStorage(t, "")
	defer s.Close()
	smokeCorpus(t, s)

	d4, err := s.DocnoOf("d4")
	if err != nil {
		t.Fatal(err)
	}
	it, err := s.PostingIterator("word", "a")
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	if docno, _ := it.SkipDoc(d4); docno != d4 {
		t.Fatalf("SkipDoc(d4) = %d", docno)
	}
	positions, err := it.Positions()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(positions, []uint16{1, 2, 3}) {
		t.Errorf("positions(a, d4) = %v, want [1 2 3]", positions)
	}
	if p, _ := it.SkipPos(2); p != 2 {
		t.Errorf("SkipPos(2) = %d, want 2", p)
	}
	if p, _ := it.SkipPos(4); p != 0 {
		t.Errorf("SkipPos(4) = %d, want 0", p)
	}

	itb, err := s.PostingIterator("word", "b")
	if err != nil {
		t.Fatal(err)
	}
	defer itb.Close()
	if docno, _ := itb.SkipDoc(d4); docno != d4 {
		t.Fatalf("b SkipDoc(d4) = %d", docno)
	}
	if positions, _ := itb.Positions(); !reflect.DeepEqual(positions, []uint16{4}) {
		t.Errorf("positions(b, d4) = %v, want [4]", positions)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStorage(t, "")
	defer s.Close()
	smokeCorpus(t, s)

	tx := s.NewTransaction()
	if err := tx.DeleteDocument("d2"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	ids, _ := queryDocs(t, s, "a")
	if !reflect.DeepEqual(ids, []string{"d1", "d4"}) {
		t.Errorf("a docs after delete = %v, want [d1 d4]", ids)
	}
	df, err := s.DocumentFrequency("word", "a")
	if err != nil {
		t.Fatal(err)
	}
	if df != 2 {
		t.Errorf("df(a) = %d, want 2", df)
	}
	cIds, _ := queryDocs(t, s, "c")
	if !reflect.DeepEqual(cIds, []string{"d3"}) {
		t.Errorf("c docs after delete = %v, want [d3]", cIds)
	}
	if got := s.NofDocuments(); got != 3 {
		t.Errorf("NofDocuments = %d, want 3", got)
	}
}

func TestMetaDataRestriction(t *testing.T) {
	s := newTestStorage(t, "metadata=doclen:uint16")
	defer s.Close()
	smokeCorpus(t, s) // doclen: d1=3 d2=3 d3=3 d4=4

	reader, err := s.MetaDataReader()
	if err != nil {
		t.Fatal(err)
	}
	handle, ok := reader.Handle("doclen")
	if !ok {
		t.Fatal("no doclen handle")
	}
	restr := metadata.NewRestriction().AddGroup(metadata.Condition{
		Handle: handle, Op: metadata.CompareLess, Value: 4,
	})

	var matched []string
	for _, id := range []string{"d1", "d2", "d3", "d4"} {
		docno, err := s.DocnoOf(id)
		if err != nil {
			t.Fatal(err)
		}
		ok, err := restr.Match(reader, s.Schema(), docno)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			matched = append(matched, id)
		}
	}
	if !reflect.DeepEqual(matched, []string{"d1", "d2", "d3"}) {
		t.Errorf("doclen < 4 matched %v, want [d1 d2 d3]", matched)
	}
}

func TestWeightingFormula(t *testing.T) {
	s := newTestStorage(t, "")
	defer s.Close()
	smokeCorpus(t, s)

	n := float64(s.NofDocuments())
	df, err := s.DocumentFrequency("word", "a")
	if err != nil {
		t.Fatal(err)
	}
	it, err := s.PostingIterator("word", "a")
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	d1, _ := s.DocnoOf("d1")
	if docno, _ := it.SkipDoc(d1); docno != d1 {
		t.Fatal("d1 not in posting of a")
	}
	ff, err := it.Frequency()
	if err != nil {
		t.Fatal(err)
	}

	fm := weighting.DefaultFunctionMap()
	fm.DefineVariable("N", weighting.ConstVar(n), 0)
	fm.DefineVariable("df", weighting.ConstVar(float64(df)), 0)
	fm.DefineVariable("ff", weighting.ConstVar(float64(ff)), 0)

	prog, err := weighting.Compile("log10( (N - df + 0.5) / (df + 0.5) ) * ff", fm)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	got, err := weighting.Run(prog, weighting.NewContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := math.Log10((n-float64(df)+0.5)/(float64(df)+0.5)) * float64(ff)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("formula = %v, want %v", got, want)
	}

	if _, err := weighting.Compile("1 + 2 * 3", fm); err == nil {
		t.Error("mixed-precedence expression without parentheses compiled, want error")
	}
}

func TestForwardIterator(t *testing.T) {
	s := newTestStorage(t, "")
	defer s.Close()
	smokeCorpus(t, s)

	it, err := s.ForwardIterator("orig", "d2") // "a b c"
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	want := []string{"a", "b", "c"}
	for i, tok := range want {
		pos, err := it.SkipPos(uint32(i + 1))
		if err != nil {
			t.Fatal(err)
		}
		if pos != uint32(i+1) {
			t.Fatalf("SkipPos(%d) = %d", i+1, pos)
		}
		got, err := it.Fetch()
		if err != nil {
			t.Fatal(err)
		}
		if got != tok {
			t.Errorf("Fetch at %d = %q, want %q", pos, got, tok)
		}
	}
	if pos, _ := it.SkipPos(4); pos != 0 {
		t.Errorf("SkipPos(4) = %d, want 0", pos)
	}
}

func TestStructures(t *testing.T) {
	s := newTestStorage(t, "")
	defer s.Close()

	tx := s.NewTransaction()
	doc, err := tx.InsertDocument("d1")
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.AddSearchTerm("word", "x", 1); err != nil {
		t.Fatal(err)
	}
	// Two sentences inside one paragraph.
	for _, span := range []block.StructureSpan{
		{SourceFrom: 1, SourceTo: 5, SinkFrom: 1, SinkTo: 2},
		{SourceFrom: 1, SourceTo: 5, SinkFrom: 3, SinkTo: 5},
		{SourceFrom: 6, SourceTo: 9, SinkFrom: 6, SinkTo: 9},
	} {
		if err := doc.DefineStructure(span); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	docno, err := s.DocnoOf("d1")
	if err != nil {
		t.Fatal(err)
	}
	it := s.StructureIterator()
	defer it.Close()
	if d, err := it.SkipDoc(docno); err != nil || d != docno {
		t.Fatalf("SkipDoc = (%d, %v)", d, err)
	}
	src := it.SkipPosSource(0)
	if src.Start != 1 || src.End != 5 {
		t.Fatalf("first source = %+v", src)
	}
	sink := it.SkipPosSink(0)
	if sink.Start != 1 || sink.End != 2 {
		t.Errorf("first sink = %+v", sink)
	}
	sink = it.SkipPosSink(sink.End + 1)
	if sink.Start != 3 || sink.End != 5 {
		t.Errorf("second sink = %+v", sink)
	}
	src = it.SkipPosSource(src.End + 1)
	if src.Start != 6 || src.End != 9 {
		t.Errorf("second source = %+v", src)
	}
}

func TestACL(t *testing.T) {
	s := newTestStorage(t, "acl=yes")
	defer s.Close()

	tx := s.NewTransaction()
	doc, err := tx.InsertDocument("d1")
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.AddSearchTerm("word", "x", 1); err != nil {
		t.Fatal(err)
	}
	if err := doc.SetUserAccess("alice"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if ok, err := s.CheckAccess("alice", "d1"); err != nil || !ok {
		t.Errorf("CheckAccess(alice) = (%v, %v), want true", ok, err)
	}
	if ok, err := s.CheckAccess("bob", "d1"); err != nil || ok {
		t.Errorf("CheckAccess(bob) = (%v, %v), want false", ok, err)
	}

	tx = s.NewTransaction()
	if err := tx.DeleteDocument("d1"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CheckAccess("alice", "d1"); !ixerr.Is(err, ixerr.NotFound) {
		t.Errorf("CheckAccess after delete = %v, want NotFound", err)
	}
}

func TestAttributes(t *testing.T) {
	s := newTestStorage(t, "")
	defer s.Close()

	tx := s.NewTransaction()
	doc, err := tx.InsertDocument("d1")
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.AddSearchTerm("word", "x", 1); err != nil {
		t.Fatal(err)
	}
	if err := doc.SetAttribute("title", "A Winter's Tale"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	got, err := s.AttributeValue("d1", "title")
	if err != nil {
		t.Fatal(err)
	}
	if got != "A Winter's Tale" {
		t.Errorf("title = %q", got)
	}
	if _, err := s.AttributeValue("d1", "author"); !ixerr.Is(err, ixerr.NotFound) {
		t.Errorf("missing attribute = %v, want NotFound", err)
	}
}

// dump snapshots every key/value pair except the 'v' variable family,
// whose counters are allowed to differ.
func dump(t *testing.T, kv store.KV) map[string]string {
	t.Helper()
	out := make(map[string]string)
	cur := kv.NewCursor()
	defer cur.Close()
	if err := cur.SeekUpperBound([]byte{0}); err != nil {
		t.Fatal(err)
	}
	for cur.Next() {
		key := cur.Key()
		if len(key) > 0 && key[0] == 'v' {
			continue
		}
		out[string(key)] = string(cur.Value())
	}
	return out
}

func TestInsertDeleteRoundTrip(t *testing.T) {
	mem := store.NewMem()
	opts, err := config.FromMap(map[string]string{"path": "mem", "metadata": "doclen:uint16"})
	if err != nil {
		t.Fatal(err)
	}
	s, err := CreateWithKV(mem, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// A base document interns the term vocabulary first, so the extra
	// document introduces no new term records.
	insertText(t, s, "base", "a b c")
	before := dump(t, mem)

	insertText(t, s, "extra", "a b c a")
	tx := s.NewTransaction()
	if err := tx.DeleteDocument("extra"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	after := dump(t, mem)
	if !reflect.DeepEqual(before, after) {
		for k, v := range after {
			if before[k] != v {
				t.Errorf("key %q differs after round trip: %q -> %q", k, before[k], v)
			}
		}
		for k, v := range before {
			if _, ok := after[k]; !ok {
				t.Errorf("key %q (%q) missing after round trip", k, v)
			}
		}
	}
}

func TestCompressedStorage(t *testing.T) {
	opts, err := config.FromMap(map[string]string{"path": "mem", "compression": "yes"})
	if err != nil {
		t.Fatal(err)
	}
	s, err := CreateWithKV(store.NewMem(), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	smokeCorpus(t, s)

	ids, ffs := queryDocs(t, s, "a")
	if !reflect.DeepEqual(ids, []string{"d1", "d2", "d4"}) {
		t.Errorf("a docs = %v", ids)
	}
	if !reflect.DeepEqual(ffs, []uint32{2, 1, 3}) {
		t.Errorf("a ffs = %v", ffs)
	}
}

func TestUnknownTermYieldsEmptyIterator(t *testing.T) {
	s := newTestStorage(t, "")
	defer s.Close()
	smokeCorpus(t, s)

	it, err := s.PostingIterator("word", "zebra")
	if err != nil {
		t.Fatalf("PostingIterator(unknown) = %v, want empty iterator", err)
	}
	defer it.Close()
	if docno, err := it.SkipDoc(1); err != nil || docno != 0 {
		t.Errorf("SkipDoc = (%d, %v), want (0, nil)", docno, err)
	}
	df, err := it.DocumentFrequency()
	if err != nil || df != 0 {
		t.Errorf("df = (%d, %v), want 0", df, err)
	}
}

func TestReopen(t *testing.T) {
	mem := store.NewMem()
	opts, err := config.FromMap(map[string]string{"path": "mem", "metadata": "doclen:uint16"})
	if err != nil {
		t.Fatal(err)
	}
	s, err := CreateWithKV(mem, opts)
	if err != nil {
		t.Fatal(err)
	}
	smokeCorpus(t, s)

	// Reopen over the same bytes without the metadata option: the
	// schema must come back from the persisted descriptor.
	opts2, err := config.FromMap(map[string]string{"path": "mem"})
	if err != nil {
		t.Fatal(err)
	}
	s2, err := OpenWithKV(mem, opts2)
	if err != nil {
		t.Fatalf("OpenWithKV: %v", err)
	}
	if s2.Schema() == nil || s2.Schema().Names[0] != "doclen" {
		t.Errorf("reopened schema = %+v", s2.Schema())
	}
	if got := s2.NofDocuments(); got != 4 {
		t.Errorf("reopened NofDocuments = %d, want 4", got)
	}
	ids, _ := queryDocs(t, s2, "a")
	if !reflect.DeepEqual(ids, []string{"d1", "d2", "d4"}) {
		t.Errorf("reopened a docs = %v", ids)
	}

	if _, err := CreateWithKV(mem, opts); !ixerr.Is(err, ixerr.InvalidArgument) {
		t.Errorf("CreateWithKV over existing = %v, want InvalidArgument", err)
	}
}
