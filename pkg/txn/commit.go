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

package txn

import (
	"sort"

	"github.com/google/btree"

	"strusgo/pkg/block"
	"strusgo/pkg/cursor"
	"strusgo/pkg/ixerr"
	"strusgo/pkg/keymap"
	"strusgo/pkg/keyschema"
	"strusgo/pkg/metacache"
	"strusgo/pkg/store"
	"strusgo/pkg/varint"
)

// SoftBlockSize is the target byte size a rebuilt block grows to before
// the merge step splits it.
const SoftBlockSize = 1024

// writeSet accumulates the commit's puts and deletes keyed by the full
// store key, so a later operation on the same key supersedes an earlier
// one and the final batch never carries a put and a delete of one key.
type writeSet struct {
	ops map[string]writeOp
}

type writeOp struct {
	del bool
	val []byte
}

func newWriteSet() *writeSet { return &writeSet{ops: make(map[string]writeOp)} }

func (w *writeSet) put(key, val []byte) {
	w.ops[string(key)] = writeOp{val: append([]byte(nil), val...)}
}

func (w *writeSet) del(key []byte) {
	w.ops[string(key)] = writeOp{del: true}
}

// batch emits the accumulated operations in ascending key order.
func (w *writeSet) batch() *store.Batch {
	keys := make([]string, 0, len(w.ops))
	for k := range w.ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b := &store.Batch{}
	for _, k := range keys {
		op := w.ops[k]
		if op.del {
			b.Delete([]byte(k))
		} else {
			b.Put([]byte(k), op.val)
		}
	}
	return b
}

// commitCtx carries the state of one commit critical section.
type commitCtx struct {
	t  *Transaction
	kv store.KV
	ws *writeSet

	// userAclRemoves accumulates per-user docno removals from the purge
	// pass, so each user's ACL family is merged exactly once together
	// with any staged grants. Merging a family twice in one commit
	// would have the second merge read pre-commit state and resurrect
	// blocks the first merge already rewrote.
	userAclRemoves map[uint32][]uint32

	refresh  []uint32 // changed metadata block numbers
	nofDelta int64
}

// Commit applies every staged change under the process-wide transaction
// lock and emits one batched atomic write.
func (t *Transaction) Commit() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	t.deps.Lock.Lock()
	defer t.deps.Lock.Unlock()

	c := &commitCtx{
		t:              t,
		kv:             t.deps.KV,
		ws:             newWriteSet(),
		userAclRemoves: make(map[uint32][]uint32),
	}

	// A document both deleted and re-inserted in this transaction is a
	// replace, not a net delete.
	for docno := range t.deletes {
		if _, ok := t.docs[docno]; ok {
			delete(t.deletes, docno)
			t.replaces[docno] = true
		}
	}

	deltas, docs, err := c.renameStaged()
	if err != nil {
		return err
	}
	byTerm := make(map[[2]uint32]*termDelta, len(deltas))
	for _, d := range deltas {
		byTerm[[2]uint32{d.typeno, d.termno}] = d
	}

	purge := c.purgeList()
	deltas, err = c.purgeDocs(purge, deltas, byTerm)
	if err != nil {
		return err
	}

	if err := c.mergeTerms(deltas); err != nil {
		return err
	}
	if err := c.writeDocRecords(deltas, docs, purge); err != nil {
		return err
	}
	if err := c.applyMetaData(docs, purge); err != nil {
		return err
	}
	c.writeVariables()

	if err := t.deps.KV.Write(c.ws.batch(), t.deps.Sync); err != nil {
		return ixerr.Wrap(ixerr.IoError, err, "commit write failed")
	}

	if t.deps.Cache != nil {
		for _, blockNo := range c.refresh {
			t.deps.Cache.Invalidate(blockNo)
		}
	}
	if t.deps.NofDocuments != nil {
		t.deps.NofDocuments.Add(c.nofDelta)
	}
	t.types.Clear()
	t.values.Clear()
	t.docids.Clear()
	t.users.Clear()
	t.attrs.Clear()
	t.state = stateCommitted
	return nil
}

// renameStaged allocates stable ids for every unknown name and rewrites
// all staged postings and per-doc records through the resulting rename
// maps.
func (c *commitCtx) renameStaged() ([]*termDelta, map[uint32]*docStage, error) {
	t := c.t
	nameBatch := &store.Batch{}
	resolve := func(m *keymap.Map, next *keymap.Counter) map[uint32]uint32 {
		rn := make(map[uint32]uint32)
		pending := m.Pending()
		names := make([]string, 0, len(pending))
		for name := range pending {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			stable := next.Alloc()
			m.Resolve(nameBatch, name, stable)
			rn[pending[name]] = stable
		}
		return rn
	}
	rnType := resolve(t.types, t.deps.NextTypeno)
	rnTerm := resolve(t.values, t.deps.NextTermno)
	rnDoc := resolve(t.docids, t.deps.NextDocno)
	rnUser := resolve(t.users, t.deps.NextUserno)
	rnAttr := resolve(t.attrs, t.deps.NextAttrno)
	for _, p := range nameBatch.Puts() {
		c.ws.put(p.Key, p.Value)
	}
	c.nofDelta = int64(t.newDocs) - int64(len(t.deletes))

	final := func(id uint32, rn map[uint32]uint32) (uint32, error) {
		if !keymap.IsUnknown(id) {
			return id, nil
		}
		stable, ok := rn[id]
		if !ok {
			return 0, ixerr.Newf(ixerr.CorruptData, "unresolved local id %d at commit", id)
		}
		return stable, nil
	}

	var deltas []*termDelta
	var iterErr error
	t.terms.Ascend(func(it btree.Item) bool {
		d := it.(*termDelta)
		typeno, err := final(d.typeno, rnType)
		if err != nil {
			iterErr = err
			return false
		}
		termno, err := final(d.termno, rnTerm)
		if err != nil {
			iterErr = err
			return false
		}
		nd := &termDelta{
			typeno:  typeno,
			termno:  termno,
			adds:    make(map[uint32][]uint16, len(d.adds)),
			removes: make(map[uint32]bool, len(d.removes)),
		}
		for docno, positions := range d.adds {
			stable, err := final(docno, rnDoc)
			if err != nil {
				iterErr = err
				return false
			}
			nd.adds[stable] = positions
		}
		for docno := range d.removes {
			stable, err := final(docno, rnDoc)
			if err != nil {
				iterErr = err
				return false
			}
			nd.removes[stable] = true
		}
		deltas = append(deltas, nd)
		return true
	})
	if iterErr != nil {
		return nil, nil, iterErr
	}
	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].typeno != deltas[j].typeno {
			return deltas[i].typeno < deltas[j].typeno
		}
		return deltas[i].termno < deltas[j].termno
	})

	docs := make(map[uint32]*docStage, len(t.docs))
	for docno, st := range t.docs {
		stable, err := final(docno, rnDoc)
		if err != nil {
			return nil, nil, err
		}
		nst := newDocStage()
		nst.metadata = st.metadata
		nst.structures = st.structures
		for attrno, val := range st.attributes {
			a, err := final(attrno, rnAttr)
			if err != nil {
				return nil, nil, err
			}
			nst.attributes[a] = val
		}
		for userno := range st.users {
			u, err := final(userno, rnUser)
			if err != nil {
				return nil, nil, err
			}
			nst.users[u] = true
		}
		for typeno, m := range st.forward {
			ty, err := final(typeno, rnType)
			if err != nil {
				return nil, nil, err
			}
			nst.forward[ty] = m
		}
		docs[stable] = nst
	}
	return deltas, docs, nil
}

// purgeList returns the stable docnos whose previous content must be
// stricken: full deletes plus re-inserted documents.
func (c *commitCtx) purgeList() []uint32 {
	set := make(map[uint32]bool, len(c.t.deletes)+len(c.t.replaces))
	for docno := range c.t.deletes {
		set[docno] = true
	}
	for docno := range c.t.replaces {
		set[docno] = true
	}
	out := make([]uint32, 0, len(set))
	for docno := range set {
		out = append(out, docno)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// purgeDocs strikes each purged document from every posting it
// contributed to (via its inverse-term record) and erases its doc-keyed
// records.
func (c *commitCtx) purgeDocs(purge []uint32, deltas []*termDelta, byTerm map[[2]uint32]*termDelta) ([]*termDelta, error) {
	t := c.t
	for _, docno := range purge {
		raw, err := c.kv.Get(keyschema.InvTerm(docno))
		switch err {
		case nil:
			rec, derr := block.UnmarshalInvTerm(raw)
			if derr != nil {
				return nil, derr
			}
			for _, e := range rec.Entries {
				key := [2]uint32{e.TypeNo, e.TermNo}
				d := byTerm[key]
				if d == nil {
					d = &termDelta{
						typeno:  e.TypeNo,
						termno:  e.TermNo,
						adds:    make(map[uint32][]uint16),
						removes: make(map[uint32]bool),
					}
					byTerm[key] = d
					deltas = append(deltas, d)
				}
				d.removes[docno] = true
			}
			c.ws.del(keyschema.InvTerm(docno))
		case store.ErrNotFound:
			// Document had no indexed terms; nothing posting-side to undo.
		default:
			return nil, ixerr.Wrap(ixerr.IoError, err, "reading inverse-term record")
		}

		if err := c.deletePrefix(keyschema.DocAttributePrefix(docno)); err != nil {
			return nil, err
		}
		maxType := t.deps.NextTypeno.Current()
		for typeno := uint32(1); typeno <= maxType; typeno++ {
			if err := c.deletePrefix(keyschema.ForwardIndexPrefix(typeno, docno)); err != nil {
				return nil, err
			}
		}
		if t.deps.ACL {
			if err := c.purgeAcl(docno); err != nil {
				return nil, err
			}
		}
		if t.deletes[docno] {
			c.ws.del(keyschema.DocID(docno))
		}
	}
	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].typeno != deltas[j].typeno {
			return deltas[i].typeno < deltas[j].typeno
		}
		return deltas[i].termno < deltas[j].termno
	})
	return deltas, nil
}

// deletePrefix stages deletion of every key under prefix.
func (c *commitCtx) deletePrefix(prefix []byte) error {
	cur := c.kv.NewCursor()
	defer cur.Close()
	if err := cur.SeekUpperBound(prefix); err != nil {
		return ixerr.Wrap(ixerr.IoError, err, "prefix scan")
	}
	for cur.Next() {
		key := cur.Key()
		if !hasPrefix(key, prefix) {
			break
		}
		c.ws.del(key)
	}
	return nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// purgeAcl records docno's removal from every granting user's access
// list (merged later, once per user) and erases the document's inverse
// ACL blocks.
func (c *commitCtx) purgeAcl(docno uint32) error {
	blocks, err := collectAll(c.kv, keyschema.AclPrefix(docno))
	if err != nil {
		return err
	}
	for _, rb := range blocks {
		blk, err := block.UnmarshalDocList(rb.raw)
		if err != nil {
			return err
		}
		for _, r := range blk.Ranges() {
			for userno := r.From; userno <= r.To; userno++ {
				c.userAclRemoves[userno] = append(c.userAclRemoves[userno], docno)
			}
		}
		c.ws.del(keyschema.Acl(docno, rb.hi))
	}
	return nil
}

type rawBlock struct {
	hi  uint32
	raw []byte
}

// collectAll returns every block stored under prefix.
func collectAll(kv store.KV, prefix []byte) ([]rawBlock, error) {
	cur := cursor.NewRawCursor(kv, prefix)
	defer cur.Close()
	var out []rawBlock
	hi, raw, ok, err := cur.SeekUpperBound(0)
	for err == nil && ok {
		out = append(out, rawBlock{hi: hi, raw: raw})
		hi, raw, ok, err = cur.Next()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// collectOverlap returns the blocks under prefix whose docno span may
// intersect [min,max], plus the immediate predecessor block so an
// append coalesces into the family's trailing block instead of opening
// a run of undersized blocks. Collected block keys are staged for
// deletion; the caller rebuilds and re-puts the survivors.
func (c *commitCtx) collectOverlap(prefix []byte, keyFn func(uint32) []byte, min, max uint32) ([]rawBlock, error) {
	all, err := collectAll(c.kv, prefix)
	if err != nil {
		return nil, err
	}
	start := 0
	for start < len(all) && all[start].hi < min {
		start++
	}
	if start > 0 {
		start-- // predecessor
	}
	end := start
	for end < len(all) && all[end].hi < max {
		end++
	}
	if end < len(all) {
		end++ // first block with hi >= max still overlaps
	}
	picked := all[start:end]
	for _, rb := range picked {
		c.ws.del(keyFn(rb.hi))
	}
	return picked, nil
}

func touchedBounds(adds map[uint32][]uint16, removes map[uint32]bool) (min, max uint32) {
	min = ^uint32(0)
	for docno := range adds {
		if docno < min {
			min = docno
		}
		if docno > max {
			max = docno
		}
	}
	for docno := range removes {
		if docno < min {
			min = docno
		}
		if docno > max {
			max = docno
		}
	}
	return min, max
}

// mergeTerms folds each staged term delta into the term's posinfo,
// doclist and ff block families and updates its document-frequency
// record.
func (c *commitCtx) mergeTerms(deltas []*termDelta) error {
	for _, d := range deltas {
		if len(d.adds) == 0 && len(d.removes) == 0 {
			continue
		}
		dfDelta, err := c.mergePosInfo(d)
		if err != nil {
			return err
		}
		if err := c.mergeBoolean(
			keyschema.DocListPrefix(d.typeno, d.termno),
			func(hi uint32) []byte { return keyschema.DocList(d.typeno, d.termno, hi) },
			sortedDocnos(d.adds), sortedRemoves(d.removes, d.adds),
		); err != nil {
			return err
		}
		if err := c.mergeFf(d); err != nil {
			return err
		}
		if err := c.applyDfDelta(d.typeno, d.termno, dfDelta); err != nil {
			return err
		}
	}
	return nil
}

func sortedDocnos(adds map[uint32][]uint16) []uint32 {
	out := make([]uint32, 0, len(adds))
	for docno := range adds {
		out = append(out, docno)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// sortedRemoves drops removals superseded by a re-add of the same doc.
func sortedRemoves(removes map[uint32]bool, adds map[uint32][]uint16) []uint32 {
	out := make([]uint32, 0, len(removes))
	for docno := range removes {
		if _, readded := adds[docno]; !readded {
			out = append(out, docno)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type posEntry struct {
	docno     uint32
	positions []uint16
}

// mergePosInfo rewrites the affected posinfo blocks of one term and
// returns the term's document-frequency delta.
func (c *commitCtx) mergePosInfo(d *termDelta) (int64, error) {
	min, max := touchedBounds(d.adds, d.removes)
	picked, err := c.collectOverlap(
		keyschema.PosInfoPrefix(d.typeno, d.termno),
		func(hi uint32) []byte { return keyschema.PosInfo(d.typeno, d.termno, hi) },
		min, max,
	)
	if err != nil {
		return 0, err
	}

	existing := make(map[uint32][]uint16)
	var order []uint32
	for _, rb := range picked {
		blk, err := block.UnmarshalPosInfo(rb.raw)
		if err != nil {
			return 0, err
		}
		if blk.LastDoc() > rb.hi {
			return 0, ixerr.Newf(ixerr.CorruptData, "posinfo block id %d less than contained docno %d", rb.hi, blk.LastDoc())
		}
		docno, ok := blk.SkipDoc(0)
		for ok {
			positions, _ := blk.Positions(docno)
			existing[docno] = positions
			order = append(order, docno)
			docno, ok = blk.SkipDoc(docno + 1)
		}
	}

	var dfDelta int64
	for docno := range d.removes {
		if _, was := existing[docno]; was {
			if _, readded := d.adds[docno]; !readded {
				dfDelta--
			}
			delete(existing, docno)
		}
	}
	for docno, positions := range d.adds {
		if _, was := existing[docno]; !was {
			dfDelta++
			order = append(order, docno)
		}
		existing[docno] = positions
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	entries := make([]posEntry, 0, len(existing))
	var prev uint32
	for _, docno := range order {
		if docno == prev && len(entries) > 0 {
			continue
		}
		positions, ok := existing[docno]
		if !ok {
			continue
		}
		entries = append(entries, posEntry{docno: docno, positions: positions})
		prev = docno
	}

	return dfDelta, c.rebuildPosInfo(d.typeno, d.termno, entries)
}

// rebuildPosInfo packs entries into blocks up to the soft size limit.
func (c *commitCtx) rebuildPosInfo(typeno, termno uint32, entries []posEntry) error {
	b := block.NewPosInfoBuilder()
	est := 0
	flush := func() error {
		blk := b.Build()
		if blk.LastDoc() == 0 {
			return nil
		}
		c.ws.put(keyschema.PosInfo(typeno, termno, blk.LastDoc()), blk.Marshal())
		b = block.NewPosInfoBuilder()
		est = 0
		return nil
	}
	for _, e := range entries {
		sz := 5 + 2*len(e.positions)
		if est > 0 && est+sz > SoftBlockSize {
			if err := flush(); err != nil {
				return err
			}
		}
		if err := b.Append(e.docno, e.positions); err != nil {
			return err
		}
		est += sz
	}
	return flush()
}

// mergeFf rewrites the affected ff blocks of one term in step with the
// posinfo merge, keeping ff == len(positions).
func (c *commitCtx) mergeFf(d *termDelta) error {
	min, max := touchedBounds(d.adds, d.removes)
	picked, err := c.collectOverlap(
		keyschema.FfPrefix(d.typeno, d.termno),
		func(hi uint32) []byte { return keyschema.Ff(d.typeno, d.termno, hi) },
		min, max,
	)
	if err != nil {
		return err
	}

	ffs := make(map[uint32]uint32)
	for _, rb := range picked {
		blk, err := block.UnmarshalFf(rb.raw)
		if err != nil {
			return err
		}
		for i, docno := range blk.Docnos {
			ffs[docno] = blk.Ffs[i]
		}
	}
	for docno := range d.removes {
		if _, readded := d.adds[docno]; !readded {
			delete(ffs, docno)
		}
	}
	for docno, positions := range d.adds {
		ffs[docno] = uint32(len(positions))
	}

	docnos := make([]uint32, 0, len(ffs))
	for docno := range ffs {
		docnos = append(docnos, docno)
	}
	sort.Slice(docnos, func(i, j int) bool { return docnos[i] < docnos[j] })

	b := block.NewFfBuilder()
	count := 0
	flush := func() {
		blk := b.Build()
		if blk.LastDoc() != 0 {
			c.ws.put(keyschema.Ff(d.typeno, d.termno, blk.LastDoc()), blk.Marshal())
		}
		b = block.NewFfBuilder()
		count = 0
	}
	perEntry := 6
	for _, docno := range docnos {
		if count > 0 && (count+1)*perEntry > SoftBlockSize {
			flush()
		}
		if err := b.Append(docno, ffs[docno]); err != nil {
			return err
		}
		count++
	}
	flush()
	return nil
}

// mergeBoolean rewrites one boolean-block family (doclist, user ACL, or
// doc ACL) under prefix, adding and removing the given members.
func (c *commitCtx) mergeBoolean(prefix []byte, keyFn func(uint32) []byte, adds, removes []uint32) error {
	if len(adds) == 0 && len(removes) == 0 {
		return nil
	}
	min := ^uint32(0)
	var max uint32
	for _, v := range adds {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	for _, v := range removes {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	picked, err := c.collectOverlap(prefix, keyFn, min, max)
	if err != nil {
		return err
	}

	existing := block.NewDocListBuilder(nil)
	for _, rb := range picked {
		blk, err := block.UnmarshalDocList(rb.raw)
		if err != nil {
			return err
		}
		for _, r := range blk.Ranges() {
			existing.DefineRange(r.From, r.To)
		}
	}

	deltas := make([]block.MergeRange, 0, len(adds)+len(removes))
	for _, v := range removes {
		deltas = append(deltas, block.MergeRange{From: v, To: v, IsMember: false})
	}
	for _, v := range adds {
		deltas = append(deltas, block.MergeRange{From: v, To: v, IsMember: true})
	}
	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].From != deltas[j].From {
			return deltas[i].From < deltas[j].From
		}
		return !deltas[i].IsMember && deltas[j].IsMember
	})
	merged := block.ApplyDeltas(existing.Build(), deltas)

	// Split the merged node list at the soft limit; each node encodes
	// to at most 13 bytes (tag plus two packed integers of up to 6
	// bytes each).
	const perNode = 13
	nodesPerBlock := SoftBlockSize / perNode
	nodes := merged.Nodes
	for len(nodes) > 0 {
		n := len(nodes)
		if n > nodesPerBlock {
			n = nodesPerBlock
		}
		chunk := &block.DocListBlock{Nodes: nodes[:n]}
		c.ws.put(keyFn(chunk.LastDoc()), chunk.Marshal())
		nodes = nodes[n:]
	}
	return nil
}

// applyDfDelta adjusts the term's persisted document-frequency record.
func (c *commitCtx) applyDfDelta(typeno, termno uint32, delta int64) error {
	if delta == 0 {
		return nil
	}
	key := keyschema.DocFrequency(typeno, termno)
	var df int64
	raw, err := c.kv.Get(key)
	switch err {
	case nil:
		v, _, derr := varint.UnpackGlobalCounter(raw)
		if derr != nil {
			return derr
		}
		df = int64(v)
	case store.ErrNotFound:
	default:
		return ixerr.Wrap(ixerr.IoError, err, "reading df record")
	}
	df += delta
	if df < 0 {
		return ixerr.Newf(ixerr.CorruptData, "document frequency of term (%d,%d) decremented below zero", typeno, termno)
	}
	if df == 0 {
		c.ws.del(key)
		return nil
	}
	c.ws.put(key, varint.PackGlobalCounter(nil, uint64(df)))
	return nil
}

// writeDocRecords stages the per-document records of every inserted
// document: inverse-term, attributes, forward index, structures and ACL
// grants.
func (c *commitCtx) writeDocRecords(deltas []*termDelta, docs map[uint32]*docStage, purge []uint32) error {
	// Inverse-term records, entries in (typeno,termno) order because the
	// delta slice is sorted.
	invPerDoc := make(map[uint32]*block.InvTermRecord)
	for _, d := range deltas {
		for docno, positions := range d.adds {
			rec := invPerDoc[docno]
			if rec == nil {
				rec = &block.InvTermRecord{}
				invPerDoc[docno] = rec
			}
			rec.Entries = append(rec.Entries, block.InvTermEntry{
				TypeNo: d.typeno, TermNo: d.termno, Ff: uint32(len(positions)),
			})
		}
	}
	for docno, rec := range invPerDoc {
		c.ws.put(keyschema.InvTerm(docno), rec.Marshal())
	}

	docnos := make([]uint32, 0, len(docs))
	for docno := range docs {
		docnos = append(docnos, docno)
	}
	sort.Slice(docnos, func(i, j int) bool { return docnos[i] < docnos[j] })

	userAdds := make(map[uint32][]uint32)
	structAdds := make(map[uint32][]block.StructureSpan)
	for _, docno := range docnos {
		st := docs[docno]
		for attrno, val := range st.attributes {
			c.ws.put(keyschema.DocAttribute(docno, attrno), []byte(val))
		}
		for typeno, m := range st.forward {
			if err := c.rebuildForward(typeno, docno, m); err != nil {
				return err
			}
		}
		if len(st.structures) > 0 {
			structAdds[docno] = st.structures
		}
		if len(st.users) > 0 {
			usernos := make([]uint32, 0, len(st.users))
			for userno := range st.users {
				usernos = append(usernos, userno)
			}
			sort.Slice(usernos, func(i, j int) bool { return usernos[i] < usernos[j] })
			// Doc-side blocks are built fresh: any previous grant set of
			// this docno was already erased by the purge pass.
			b := block.NewDocListBuilder(nil)
			for _, userno := range usernos {
				b.AddElem(userno)
			}
			blk := b.Build()
			c.ws.put(keyschema.Acl(docno, blk.LastDoc()), blk.Marshal())
			for _, userno := range usernos {
				userAdds[userno] = append(userAdds[userno], docno)
			}
		}
	}

	// One merge per user ACL family, folding the purge pass's removals
	// and this transaction's grants together.
	userSet := make(map[uint32]bool, len(userAdds)+len(c.userAclRemoves))
	for userno := range userAdds {
		userSet[userno] = true
	}
	for userno := range c.userAclRemoves {
		userSet[userno] = true
	}
	usernos := make([]uint32, 0, len(userSet))
	for userno := range userSet {
		usernos = append(usernos, userno)
	}
	sort.Slice(usernos, func(i, j int) bool { return usernos[i] < usernos[j] })
	for _, userno := range usernos {
		adds := userAdds[userno]
		sort.Slice(adds, func(i, j int) bool { return adds[i] < adds[j] })
		addSet := make(map[uint32]bool, len(adds))
		for _, docno := range adds {
			addSet[docno] = true
		}
		removes := make([]uint32, 0, len(c.userAclRemoves[userno]))
		for _, docno := range c.userAclRemoves[userno] {
			if !addSet[docno] {
				removes = append(removes, docno)
			}
		}
		sort.Slice(removes, func(i, j int) bool { return removes[i] < removes[j] })
		uid := userno
		if err := c.mergeBoolean(
			keyschema.UserAclPrefix(uid),
			func(hi uint32) []byte { return keyschema.UserAcl(uid, hi) },
			adds, removes,
		); err != nil {
			return err
		}
	}

	return c.mergeStructures(structAdds, purge)
}

// rebuildForward writes fresh forward-index blocks for one (typeno,
// docno); the purge pass already erased the document's previous ones.
func (c *commitCtx) rebuildForward(typeno, docno uint32, contents map[uint32]string) error {
	positions := make([]uint32, 0, len(contents))
	for pos := range contents {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

	b := block.NewForwardIndexBuilder()
	est := 0
	flush := func() {
		blk := b.Build()
		if blk.LastDoc() != 0 {
			c.ws.put(keyschema.ForwardIndex(typeno, docno, blk.LastDoc()), blk.Marshal())
		}
		b = block.NewForwardIndexBuilder()
		est = 0
	}
	for _, pos := range positions {
		content := contents[pos]
		sz := 4 + len(content)
		if est > 0 && est+sz > SoftBlockSize {
			flush()
		}
		if err := b.Append(pos, content); err != nil {
			return err
		}
		est += sz
	}
	flush()
	return nil
}

// mergeStructures rewrites the affected structure blocks: purged docs
// drop out, inserted docs' spans go in.
func (c *commitCtx) mergeStructures(adds map[uint32][]block.StructureSpan, purge []uint32) error {
	if len(adds) == 0 && len(purge) == 0 {
		return nil
	}
	min := ^uint32(0)
	var max uint32
	for docno := range adds {
		if docno < min {
			min = docno
		}
		if docno > max {
			max = docno
		}
	}
	for _, docno := range purge {
		if docno < min {
			min = docno
		}
		if docno > max {
			max = docno
		}
	}
	picked, err := c.collectOverlap(
		keyschema.StructurePrefix(),
		keyschema.Structure,
		min, max,
	)
	if err != nil {
		return err
	}

	merged := make(map[uint32][]block.StructureSpan)
	for _, rb := range picked {
		blk, err := block.UnmarshalStructure(rb.raw)
		if err != nil {
			return err
		}
		for i, docno := range blk.Docnos {
			merged[docno] = blk.Spans[i]
		}
	}
	for _, docno := range purge {
		delete(merged, docno)
	}
	for docno, spans := range adds {
		merged[docno] = spans
	}

	docnos := make([]uint32, 0, len(merged))
	for docno := range merged {
		docnos = append(docnos, docno)
	}
	sort.Slice(docnos, func(i, j int) bool { return docnos[i] < docnos[j] })

	b := block.NewStructureBuilder()
	est := 0
	flush := func() error {
		blk := b.Build()
		if blk.LastDoc() != 0 {
			c.ws.put(keyschema.Structure(blk.LastDoc()), blk.Marshal())
		}
		b = block.NewStructureBuilder()
		est = 0
		return nil
	}
	for _, docno := range docnos {
		spans := merged[docno]
		sz := 4 + 17*len(spans)
		if est > 0 && est+sz > SoftBlockSize {
			if err := flush(); err != nil {
				return err
			}
		}
		if err := b.Append(docno, spans); err != nil {
			return err
		}
		est += sz
	}
	return flush()
}

// applyMetaData folds the staged metadata column writes and the purged
// documents' row clears into their 1024-row blocks and records the
// refresh list.
func (c *commitCtx) applyMetaData(docs map[uint32]*docStage, purge []uint32) error {
	if c.t.deps.Schema == nil {
		return nil
	}
	type blockEdit struct {
		sets  map[uint32]map[string]float64
		zeros []uint32
	}
	edits := make(map[uint32]*blockEdit)
	editOf := func(blockNo uint32) *blockEdit {
		e := edits[blockNo]
		if e == nil {
			e = &blockEdit{sets: make(map[uint32]map[string]float64)}
			edits[blockNo] = e
		}
		return e
	}
	for docno, st := range docs {
		if len(st.metadata) == 0 {
			continue
		}
		editOf(block.BlockNoOf(docno)).sets[docno] = st.metadata
	}
	// Purged rows are zeroed first; a re-inserted document's staged
	// column sets then land on a clean row rather than on stale values.
	for _, docno := range purge {
		e := editOf(block.BlockNoOf(docno))
		e.zeros = append(e.zeros, docno)
	}

	blockNos := make([]uint32, 0, len(edits))
	for blockNo := range edits {
		blockNos = append(blockNos, blockNo)
	}
	sort.Slice(blockNos, func(i, j int) bool { return blockNos[i] < blockNos[j] })

	load := metacache.StoreLoader(c.kv, c.t.deps.Schema)
	for _, blockNo := range blockNos {
		blk, err := load(blockNo)
		if err != nil {
			return err
		}
		e := edits[blockNo]
		for _, docno := range e.zeros {
			blk.ZeroRow(docno)
		}
		for docno, cols := range e.sets {
			names := make([]string, 0, len(cols))
			for name := range cols {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				if err := blk.SetFloat(docno, name, cols[name]); err != nil {
					return err
				}
			}
		}
		if blk.IsZero() {
			c.ws.del(keyschema.MetaData(blockNo))
		} else {
			c.ws.put(keyschema.MetaData(blockNo), blk.Marshal())
		}
		c.refresh = append(c.refresh, blockNo)
	}
	return nil
}

// writeVariables persists the id counters and the document count
// through the same batched write as the payload.
func (c *commitCtx) writeVariables() {
	t := c.t
	put := func(name string, v uint64) {
		c.ws.put(keyschema.Variable(name), varint.PackGlobalCounter(nil, v))
	}
	put(VarTypeNo, uint64(t.deps.NextTypeno.Current()))
	put(VarTermNo, uint64(t.deps.NextTermno.Current()))
	put(VarDocNo, uint64(t.deps.NextDocno.Current()))
	put(VarUserNo, uint64(t.deps.NextUserno.Current()))
	put(VarAttribNo, uint64(t.deps.NextAttrno.Current()))
	nof := int64(0)
	if t.deps.NofDocuments != nil {
		nof = t.deps.NofDocuments.Load()
	}
	nof += c.nofDelta
	if nof < 0 {
		nof = 0
	}
	put(VarNofDocs, uint64(nof))
}
