package chunk

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/strataio/strata/chain"
	"github.com/strataio/strata/compress"
	"github.com/strataio/strata/encoding"
	"github.com/strataio/strata/errs"
	"github.com/strataio/strata/format"
	"github.com/strataio/strata/internal/pool"
	"github.com/strataio/strata/stream"
)

// Node references on the wire are 1-based varints: 0 is the end-of-record
// sentinel and numNodes+1 means the successor is computed from the
// transitions stream. Internally the two sentinels are negative indexes.
const (
	nodeEndOfRecord int32 = -1
	nodeComputed    int32 = -2
)

// maxStateMachineNodes bounds the node table against allocation-bomb
// headers; real automatons stay orders of magnitude below it.
const maxStateMachineNodes = 1 << 24

type nodeVerdict uint8

const (
	verdictUnknown nodeVerdict = iota
	verdictEmit
	verdictDiscard // consume bytes, emit to the discard sink
	verdictElide   // consume nothing, buffer is never read
)

// tnode is one state machine node: it describes how to emit one field
// occurrence and names the value stream supplying its bytes.
type tnode struct {
	tag      uint64
	tagBytes []byte
	subtype  format.Subtype
	buffer   int32 // buffer index, -1 if the node carries no buffer
	next     int32
	verdict  nodeVerdict
}

func (n *tnode) fieldNum() uint32 {
	return uint32(n.tag >> 3)
}

// tbucket is a compressed group of value-stream buffers, decompressed
// lazily on first access.
type tbucket struct {
	compressed       chain.Chain
	uncompressedSize uint64
	data             chain.Chain
	loaded           bool
}

// tbuffer is one contiguous value stream for a logical column.
type tbuffer struct {
	bucket int
	offset uint64 // offset of this buffer within the decompressed bucket
	size   uint64
	reader *stream.ChainReader
	shared bool // referenced by more than one node
}

// stack frame of the submessage/group bracket tracking during decoding.
type tframe struct {
	field uint32
	group bool
	mark  uint64 // writer position at MessageEnd, for computed lengths
}

type transposeDecoder struct {
	header      Header
	projection  FieldProjection
	compression format.CompressionKind

	nodes   []tnode
	buffers []tbuffer
	buckets []tbucket
	// bucketCompressedLens mirrors buckets; kept separate so the whole
	// directory is validated before any bucket body is read.
	bucketCompressedLens []uint64
	start                int32

	transitions *stream.ChainReader

	writer  *stream.BackwardWriter
	frames  []tframe
	path    FieldPath
	scratch *pool.ByteBuffer

	// opsBudget bounds state machine executions so a malformed automaton
	// with an emission-free cycle cannot loop forever.
	opsBudget uint64
}

// decodeTransposed reconstructs the records of a transposed chunk,
// returning the record end offsets and the assembled value stream.
func decodeTransposed(src stream.Reader, h Header, projection FieldProjection) (limits []uint64, values chain.Chain, err error) {
	d := &transposeDecoder{
		header:     h,
		projection: projection,
		scratch:    pool.GetRecordBuffer(),
	}
	defer pool.PutRecordBuffer(d.scratch)

	if err := d.parse(src); err != nil {
		return nil, chain.Chain{}, err
	}

	// Per-record length tables live only until frame() computes the
	// limits, so they come from the slice pool.
	recEmitted, releaseEmitted := pool.GetUint64Slice(int(h.NumRecords))
	defer releaseEmitted()
	recStored, releaseStored := pool.GetUint64Slice(int(h.NumRecords))
	defer releaseStored()

	d.writer = stream.NewBackwardWriter(d.sizeHint())
	if err := d.run(recEmitted, recStored); err != nil {
		d.writer.Close()
		return nil, chain.Chain{}, err
	}
	if !d.writer.Close() {
		return nil, chain.Chain{}, fmt.Errorf("%w: %w", errs.ErrReader, d.writer.Err())
	}
	values = d.writer.Chain()

	limits, err = d.frame(recEmitted, recStored, uint64(values.Len()))
	if err != nil {
		return nil, chain.Chain{}, err
	}

	return limits, values, nil
}

func (d *transposeDecoder) sizeHint() int {
	if d.projection.IncludesAll() {
		return int(d.header.DecodedDataSize)
	}

	return 0
}

// parse reads the payload structure: compression kind, header block
// (counts, buffer sizes, bucket directory, node table, start node,
// transitions directory), bucket bodies, and the transitions stream.
func (d *transposeDecoder) parse(src stream.Reader) error {
	if !src.Pull(1) {
		return fmt.Errorf("%w: %w", errs.ErrReader, src.Err())
	}
	w := src.Available()
	if len(w) == 0 {
		return fmt.Errorf("%w: missing compression header", errs.ErrShortRead)
	}
	d.compression = format.CompressionKind(w[0])
	if _, err := compress.GetCodec(d.compression); err != nil {
		return err
	}
	if !src.Skip(1) {
		return fmt.Errorf("%w: %w", errs.ErrReader, src.Err())
	}

	headerUncompressed, err := encoding.ReadUvarint(src)
	if err != nil {
		return fmt.Errorf("header size: %w", err)
	}
	if headerUncompressed > MaxPayload {
		return fmt.Errorf("%w: header block %d bytes", errs.ErrChunkTooLarge, headerUncompressed)
	}
	headerBlock, err := encoding.ReadLengthPrefixed(src, MaxPayload)
	if err != nil {
		return fmt.Errorf("header block: %w", err)
	}
	headerBytes, err := compress.Decompress(d.compression, headerBlock.Bytes(), headerUncompressed)
	if err != nil {
		return err
	}
	hr := stream.NewChainReader(chain.FromBytes(headerBytes))

	numBuckets, err := encoding.ReadUvarint(hr)
	if err != nil {
		return fmt.Errorf("bucket count: %w", err)
	}
	numBuffers, err := encoding.ReadUvarint(hr)
	if err != nil {
		return fmt.Errorf("buffer count: %w", err)
	}
	numNodes, err := encoding.ReadUvarint(hr)
	if err != nil {
		return fmt.Errorf("node count: %w", err)
	}
	if !hr.Pull(1) || len(hr.Available()) == 0 {
		return fmt.Errorf("%w: missing flags", errs.ErrShortRead)
	}
	flags := hr.Available()[0]
	hr.Skip(1)
	explicitNext := flags&0x01 != 0

	if numNodes > maxStateMachineNodes || numNodes > headerUncompressed {
		return fmt.Errorf("%w: %d nodes", errs.ErrChunkTooLarge, numNodes)
	}
	if numBuffers > headerUncompressed {
		return fmt.Errorf("%w: %d buffers", errs.ErrChunkTooLarge, numBuffers)
	}
	if numBuckets > numBuffers {
		return fmt.Errorf("%w: %d buckets for %d buffers", errs.ErrInvalidNodeTable, numBuckets, numBuffers)
	}
	if numBuffers > 0 && numBuckets == 0 {
		return fmt.Errorf("%w: buffers without buckets", errs.ErrInvalidNodeTable)
	}
	if d.header.NumRecords > 0 && numBuffers == 0 {
		return fmt.Errorf("%w: missing record boundary buffer", errs.ErrInvalidNodeTable)
	}

	// Buffer sizes.
	d.buffers = make([]tbuffer, numBuffers)
	var totalBufferBytes uint64
	for i := range d.buffers {
		size, err := encoding.ReadUvarint(hr)
		if err != nil {
			return fmt.Errorf("buffer %d size: %w", i, err)
		}
		if size > MaxPayload-totalBufferBytes {
			return fmt.Errorf("%w: buffer sizes", errs.ErrOverflow)
		}
		totalBufferBytes += size
		d.buffers[i].size = size
	}

	// Each record boundary varint takes at least one byte, so more records
	// than boundary-buffer bytes cannot be well-formed. This rejects
	// allocation-bomb headers before the length tables are sized.
	if d.header.NumRecords > 0 && d.header.NumRecords > d.buffers[0].size {
		return fmt.Errorf("%w: %d records in %d boundary bytes",
			errs.ErrTooManyRecords, d.header.NumRecords, d.buffers[0].size)
	}

	// Bucket directory: buckets partition the buffer list in order.
	d.buckets = make([]tbucket, numBuckets)
	next := 0
	for i := range d.buckets {
		compressedLen, err := encoding.ReadUvarint(hr)
		if err != nil {
			return fmt.Errorf("bucket %d length: %w", i, err)
		}
		if compressedLen > MaxPayload {
			return fmt.Errorf("%w: bucket %d", errs.ErrChunkTooLarge, i)
		}
		count, err := encoding.ReadUvarint(hr)
		if err != nil {
			return fmt.Errorf("bucket %d buffer count: %w", i, err)
		}
		if count > numBuffers-uint64(next) {
			return fmt.Errorf("%w: bucket buffer counts exceed %d buffers", errs.ErrInvalidNodeTable, numBuffers)
		}
		var offset uint64
		for j := uint64(0); j < count; j++ {
			d.buffers[next].bucket = i
			d.buffers[next].offset = offset
			offset += d.buffers[next].size
			next++
		}
		d.buckets[i].uncompressedSize = offset
		d.bucketCompressedLens = append(d.bucketCompressedLens, compressedLen)
	}
	if next != int(numBuffers) {
		return fmt.Errorf("%w: bucket buffer counts sum to %d, expected %d", errs.ErrInvalidNodeTable, next, numBuffers)
	}

	// Node table.
	d.nodes = make([]tnode, numNodes)
	for i := range d.nodes {
		if err := d.parseNode(hr, i, explicitNext, numNodes, numBuffers); err != nil {
			return err
		}
	}
	if !explicitNext {
		for i := range d.nodes {
			if i == len(d.nodes)-1 {
				d.nodes[i].next = nodeEndOfRecord
			} else {
				d.nodes[i].next = int32(i) + 1
			}
		}
	}

	// Every value buffer must be referenced by some node; unreferenced
	// buffers are trailing garbage. Buffer 0 is the record boundary buffer
	// and must not be referenced.
	refs := make([]int, numBuffers)
	for i := range d.nodes {
		if b := d.nodes[i].buffer; b >= 0 {
			refs[b]++
		}
	}
	for i := 1; i < int(numBuffers); i++ {
		if refs[i] == 0 {
			return fmt.Errorf("%w: buffer %d unreferenced", errs.ErrInvalidBufferRef, i)
		}
		d.buffers[i].shared = refs[i] > 1
	}

	// Start node.
	startRef, err := encoding.ReadUvarint(hr)
	if err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	d.start, err = resolveNodeRef(startRef, numNodes)
	if err != nil {
		return err
	}
	if d.start == nodeComputed {
		return fmt.Errorf("%w: computed start node", errs.ErrInvalidNodeRef)
	}

	// Transitions directory.
	transUncompressed, err := encoding.ReadUvarint(hr)
	if err != nil {
		return fmt.Errorf("transitions size: %w", err)
	}
	if transUncompressed > MaxPayload {
		return fmt.Errorf("%w: transitions %d bytes", errs.ErrChunkTooLarge, transUncompressed)
	}
	transCompressed, err := encoding.ReadUvarint(hr)
	if err != nil {
		return fmt.Errorf("transitions length: %w", err)
	}
	if transCompressed > MaxPayload {
		return fmt.Errorf("%w: transitions %d compressed bytes", errs.ErrChunkTooLarge, transCompressed)
	}
	if !hr.VerifyEndAndClose() {
		return fmt.Errorf("header block: %w", hr.Err())
	}

	if err := d.checkStaticCycles(); err != nil {
		return err
	}

	// Bucket bodies, in directory order.
	for i := range d.buckets {
		body, ok := src.ReadChain(int(d.bucketCompressedLens[i]))
		if !ok {
			return fmt.Errorf("bucket %d body: %w", i, src.Err())
		}
		d.buckets[i].compressed = body
	}

	// Transitions stream.
	transBody, ok := src.ReadChain(int(transCompressed))
	if !ok {
		return fmt.Errorf("transitions: %w", src.Err())
	}
	transBytes, err := compress.Decompress(d.compression, transBody.Bytes(), transUncompressed)
	if err != nil {
		return err
	}
	d.transitions = stream.NewChainReader(chain.FromBytes(transBytes))

	// Every byte consumed from a buffer or the transitions stream can pay
	// for at most numNodes+2 executions of non-consuming nodes (static
	// no-op cycles are rejected above), so this budget never rejects a
	// well-formed chunk while bounding hostile ones.
	perByte := numNodes + 2
	d.opsBudget = satMul(totalBufferBytes+transUncompressed+d.header.NumRecords+2, perByte)
	d.opsBudget = satAdd(d.opsBudget, d.header.DecodedDataSize+1024)

	return nil
}

func satAdd(a, b uint64) uint64 {
	if a > ^uint64(0)-b {
		return ^uint64(0)
	}

	return a + b
}

func satMul(a, b uint64) uint64 {
	if b != 0 && a > ^uint64(0)/b {
		return ^uint64(0)
	}

	return a * b
}

// checkStaticCycles rejects automatons containing a cycle of statically
// linked nodes that consume no bytes: such a cycle would loop forever at
// runtime without draining any input.
func (d *transposeDecoder) checkStaticCycles() error {
	// state: 0 unvisited, 1 in progress, 2 done
	state := make([]uint8, len(d.nodes))
	for i := range d.nodes {
		node := int32(i)
		for node >= 0 && state[node] == 0 {
			n := &d.nodes[node]
			if consumesBytes(n.subtype) || n.next == nodeComputed || n.next == nodeEndOfRecord {
				state[node] = 2
				break
			}
			state[node] = 1
			node = n.next
		}
		if node >= 0 && state[node] == 1 {
			return fmt.Errorf("%w: static no-op cycle at node %d", errs.ErrRunawayStateMachine, node)
		}
		// Mark the walked chain as done.
		node = int32(i)
		for node >= 0 && state[node] == 1 {
			state[node] = 2
			node = d.nodes[node].next
		}
	}

	return nil
}

// consumesBytes reports whether executing a node always drains at least
// one byte from its buffer.
func consumesBytes(subtype format.Subtype) bool {
	switch subtype {
	case format.SubtypeVarint, format.SubtypeFixed32, format.SubtypeFixed64, format.SubtypeLengthDelimited:
		return true
	default:
		return false
	}
}

func (d *transposeDecoder) parseNode(hr stream.Reader, i int, explicitNext bool, numNodes, numBuffers uint64) error {
	tag, err := encoding.ReadUvarint(hr)
	if err != nil {
		return fmt.Errorf("node %d tag: %w", i, err)
	}
	if !hr.Pull(1) || len(hr.Available()) == 0 {
		return fmt.Errorf("%w: node %d subtype", errs.ErrShortRead, i)
	}
	subtype := format.Subtype(hr.Available()[0])
	hr.Skip(1)
	if !subtype.IsValid() {
		return fmt.Errorf("%w: node %d subtype 0x%02x", errs.ErrInvalidNodeTable, i, uint8(subtype))
	}
	if err := validateNodeTag(tag, subtype); err != nil {
		return fmt.Errorf("node %d: %w", i, err)
	}

	bufferRef, err := encoding.ReadUvarint(hr)
	if err != nil {
		return fmt.Errorf("node %d buffer: %w", i, err)
	}
	buffer := int32(-1)
	if bufferRef != 0 {
		if bufferRef > numBuffers {
			return fmt.Errorf("%w: node %d references buffer %d of %d", errs.ErrInvalidBufferRef, i, bufferRef, numBuffers)
		}
		if bufferRef == 1 {
			return fmt.Errorf("%w: node %d references the record boundary buffer", errs.ErrInvalidBufferRef, i)
		}
		buffer = int32(bufferRef - 1)
	}
	if needsBuffer(subtype) != (buffer >= 0) {
		return fmt.Errorf("%w: node %d subtype %s buffer mismatch", errs.ErrInvalidNodeTable, i, subtype)
	}

	next := int32(0)
	if explicitNext {
		nextRef, err := encoding.ReadUvarint(hr)
		if err != nil {
			return fmt.Errorf("node %d next: %w", i, err)
		}
		next, err = resolveNodeRef(nextRef, numNodes)
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
	}

	d.nodes[i] = tnode{
		tag:      tag,
		tagBytes: protowire.AppendVarint(nil, tag),
		subtype:  subtype,
		buffer:   buffer,
		next:     next,
	}

	return nil
}

// resolveNodeRef decodes a 1-based node reference: 0 is end-of-record,
// 1..numNodes are node indexes, numNodes+1 means computed.
func resolveNodeRef(ref, numNodes uint64) (int32, error) {
	switch {
	case ref == 0:
		return nodeEndOfRecord, nil
	case ref <= numNodes:
		return int32(ref - 1), nil
	case ref == numNodes+1:
		return nodeComputed, nil
	default:
		return 0, fmt.Errorf("%w: reference %d of %d nodes", errs.ErrInvalidNodeRef, ref, numNodes)
	}
}

// validateNodeTag checks that the node's wire tag is consistent with its
// subtype: valid field number and the wire type the subtype emits.
func validateNodeTag(tag uint64, subtype format.Subtype) error {
	if subtype == format.SubtypeSkip {
		if tag != 0 {
			return fmt.Errorf("%w: skip node with tag %d", errs.ErrInvalidNodeTable, tag)
		}

		return nil
	}
	num := tag >> 3
	if num == 0 || num > uint64(protowire.MaxValidNumber) {
		return fmt.Errorf("%w: field number %d", errs.ErrInvalidNodeTable, num)
	}
	want := map[format.Subtype]protowire.Type{
		format.SubtypeVarint:          protowire.VarintType,
		format.SubtypeFixed32:         protowire.Fixed32Type,
		format.SubtypeFixed64:         protowire.Fixed64Type,
		format.SubtypeLengthDelimited: protowire.BytesType,
		format.SubtypeMessageStart:    protowire.BytesType,
		format.SubtypeMessageEnd:      protowire.BytesType,
		format.SubtypeStartGroup:      protowire.StartGroupType,
		format.SubtypeEndGroup:        protowire.EndGroupType,
	}[subtype]
	if protowire.Type(tag&0x07) != want {
		return fmt.Errorf("%w: subtype %s with wire type %d", errs.ErrInvalidNodeTable, subtype, tag&0x07)
	}

	return nil
}

func needsBuffer(subtype format.Subtype) bool {
	switch subtype {
	case format.SubtypeVarint, format.SubtypeFixed32, format.SubtypeFixed64, format.SubtypeLengthDelimited:
		return true
	default:
		return false
	}
}

// bufferReader returns the reader over buffer i, decompressing its bucket
// on first access. Buckets whose buffers are all elided by projection are
// never decompressed.
func (d *transposeDecoder) bufferReader(i int32) (*stream.ChainReader, error) {
	buf := &d.buffers[i]
	if buf.reader != nil {
		return buf.reader, nil
	}
	bkt := &d.buckets[buf.bucket]
	if !bkt.loaded {
		out, err := compress.Decompress(d.compression, bkt.compressed.Bytes(), bkt.uncompressedSize)
		if err != nil {
			return nil, err
		}
		bkt.data = chain.FromBytes(out)
		bkt.loaded = true
	}
	buf.reader = stream.NewChainReader(bkt.data.Slice(int(buf.offset), int(buf.offset+buf.size)))

	return buf.reader, nil
}

// run decodes all records, in reverse record order, through the backward
// writer. It fills the per-record emitted lengths and the stored record
// lengths from the record boundary buffer, both in consumption order.
func (d *transposeDecoder) run(recEmitted, recStored []uint64) error {
	if len(recStored) == 0 {
		return nil
	}

	boundary, err := d.bufferReader(0)
	if err != nil {
		return err
	}
	for r := range recStored {
		recStored[r], err = encoding.ReadUvarint(boundary)
		if err != nil {
			return fmt.Errorf("record boundary %d: %w", r, err)
		}
	}

	for r := range recEmitted {
		startPos := d.writer.Pos()
		if err := d.runRecord(); err != nil {
			return err
		}
		recEmitted[r] = d.writer.Pos() - startPos
	}

	// The transitions stream and every touched buffer must be exactly
	// consumed; leftovers mean the payload disagrees with the automaton.
	if !d.transitions.VerifyEndAndClose() {
		return fmt.Errorf("transitions: %w", d.transitions.Err())
	}
	for i := range d.buffers {
		if d.buffers[i].reader != nil && !d.buffers[i].reader.VerifyEndAndClose() {
			return fmt.Errorf("buffer %d: %w", i, d.buffers[i].reader.Err())
		}
	}

	return nil
}

// runRecord executes the automaton for one record, from the start node to
// the end-of-record sentinel.
func (d *transposeDecoder) runRecord() error {
	node := d.start
	for node != nodeEndOfRecord {
		if d.opsBudget == 0 {
			return errs.ErrRunawayStateMachine
		}
		d.opsBudget--

		n := &d.nodes[node]
		if err := d.execNode(n); err != nil {
			return err
		}

		next := n.next
		if next == nodeComputed {
			ref, err := encoding.ReadUvarint(d.transitions)
			if err != nil {
				return fmt.Errorf("transition: %w", err)
			}
			next, err = resolveNodeRef(ref, uint64(len(d.nodes)))
			if err != nil {
				return err
			}
			if next == nodeComputed {
				return fmt.Errorf("%w: computed transition target", errs.ErrInvalidNodeRef)
			}
		}
		node = next
	}
	if len(d.frames) != 0 {
		d.frames = d.frames[:0]
		d.path = d.path[:0]

		return errs.ErrUnbalancedBrackets
	}

	return nil
}

// verdictFor resolves (and memoizes) the projection verdict of a node.
// path must be the node's full field path. Node-to-path stability is a
// format invariant, so the first occurrence decides.
func (d *transposeDecoder) verdictFor(n *tnode, path FieldPath) nodeVerdict {
	if n.verdict != verdictUnknown {
		return n.verdict
	}
	switch {
	case d.projection.IncludesAll() || d.projection.Includes(path):
		n.verdict = verdictEmit
	case n.buffer >= 0 && !d.buffers[n.buffer].shared:
		// An excluded value column nobody else reads can be elided
		// entirely; its bucket may then never decompress.
		n.verdict = verdictElide
	default:
		n.verdict = verdictDiscard
	}

	return n.verdict
}

func (d *transposeDecoder) execNode(n *tnode) error {
	switch n.subtype {
	case format.SubtypeSkip:
		return nil

	case format.SubtypeMessageEnd:
		d.frames = append(d.frames, tframe{field: n.fieldNum(), mark: d.writer.Pos()})
		d.path = append(d.path, n.fieldNum())

		return nil

	case format.SubtypeMessageStart:
		if len(d.frames) == 0 {
			return errs.ErrUnbalancedBrackets
		}
		top := d.frames[len(d.frames)-1]
		if top.group || top.field != n.fieldNum() {
			return errs.ErrUnbalancedBrackets
		}
		verdict := d.verdictFor(n, d.path)
		bodyLen := d.writer.Pos() - top.mark
		d.frames = d.frames[:len(d.frames)-1]
		d.path = d.path[:len(d.path)-1]
		if verdict == verdictEmit {
			d.scratch.Reset()
			d.scratch.MustWrite(n.tagBytes)
			d.scratch.B = encoding.AppendUvarint(d.scratch.B, bodyLen)
			d.writer.Push(d.scratch.Bytes())
		}

		return nil

	case format.SubtypeEndGroup:
		path := append(d.path, n.fieldNum())
		if d.verdictFor(n, path) == verdictEmit {
			d.writer.Push(n.tagBytes)
		}
		d.frames = append(d.frames, tframe{field: n.fieldNum(), group: true})
		d.path = path

		return nil

	case format.SubtypeStartGroup:
		if len(d.frames) == 0 {
			return errs.ErrUnbalancedBrackets
		}
		top := d.frames[len(d.frames)-1]
		if !top.group || top.field != n.fieldNum() {
			return errs.ErrUnbalancedBrackets
		}
		verdict := d.verdictFor(n, d.path)
		d.frames = d.frames[:len(d.frames)-1]
		d.path = d.path[:len(d.path)-1]
		if verdict == verdictEmit {
			d.writer.Push(n.tagBytes)
		}

		return nil

	case format.SubtypeVarint:
		return d.emitValue(n, func(br *stream.ChainReader, emit bool) error {
			if _, err := encoding.CopyUvarint(br, d.scratch); err != nil {
				return err
			}

			return nil
		})

	case format.SubtypeFixed32:
		return d.emitFixed(n, 4)

	case format.SubtypeFixed64:
		return d.emitFixed(n, 8)

	case format.SubtypeLengthDelimited:
		return d.emitValue(n, func(br *stream.ChainReader, emit bool) error {
			length, err := encoding.CopyUvarint(br, d.scratch)
			if err != nil {
				return err
			}
			if length > MaxPayload {
				return fmt.Errorf("%w: field of %d bytes", errs.ErrChunkTooLarge, length)
			}
			if !emit {
				if !br.Skip(int(length)) {
					return br.Err()
				}

				return nil
			}
			start := d.scratch.Len()
			d.scratch.ExtendOrGrow(int(length))
			if !br.ReadInto(d.scratch.Slice(start, start+int(length))) {
				return br.Err()
			}

			return nil
		})

	default:
		return fmt.Errorf("%w: subtype %s", errs.ErrInvalidNodeTable, n.subtype)
	}
}

// emitValue handles a value-carrying node: resolve the verdict, copy the
// value bytes via read (after the tag, when emitting), and push or discard
// the result.
func (d *transposeDecoder) emitValue(n *tnode, read func(br *stream.ChainReader, emit bool) error) error {
	path := append(d.path, n.fieldNum())
	verdict := d.verdictFor(n, path)
	if verdict == verdictElide {
		return nil
	}
	br, err := d.bufferReader(n.buffer)
	if err != nil {
		return err
	}
	d.scratch.Reset()
	emit := verdict == verdictEmit
	if emit {
		d.scratch.MustWrite(n.tagBytes)
	}
	if err := read(br, emit); err != nil {
		return fmt.Errorf("buffer %d: %w", n.buffer, err)
	}
	if emit {
		d.writer.Push(d.scratch.Bytes())
	}

	return nil
}

func (d *transposeDecoder) emitFixed(n *tnode, size int) error {
	return d.emitValue(n, func(br *stream.ChainReader, emit bool) error {
		start := d.scratch.Len()
		d.scratch.ExtendOrGrow(size)
		if !br.ReadInto(d.scratch.Slice(start, start+size)) {
			return br.Err()
		}

		return nil
	})
}

// frame computes the record end offsets. Records were decoded in reverse
// order, so both length tables arrive reversed.
//
// With full projection the stored record lengths are authoritative and
// must match what was emitted; with a proper projection the limits come
// from the emitted lengths, while the stored lengths must still sum to the
// header's decoded data size.
func (d *transposeDecoder) frame(recEmitted, recStored []uint64, valuesLen uint64) ([]uint64, error) {
	n := d.header.NumRecords
	if n == 0 {
		if valuesLen != 0 {
			return nil, fmt.Errorf("%w: %d value bytes with no records", errs.ErrSizeMismatch, valuesLen)
		}

		return nil, nil
	}

	full := d.projection.IncludesAll()
	limitb := encoding.NewLimitBuilder(int(n))
	defer limitb.Close()
	var storedSum uint64
	for i := len(recStored) - 1; i >= 0; i-- {
		if full && recEmitted[i] != recStored[i] {
			return nil, fmt.Errorf("%w: record emitted %d bytes, boundary says %d",
				errs.ErrSizeMismatch, recEmitted[i], recStored[i])
		}
		if recStored[i] > ^uint64(0)-storedSum {
			return nil, errs.ErrOverflow
		}
		storedSum += recStored[i]
		if err := limitb.Add(recEmitted[i]); err != nil {
			return nil, err
		}
	}
	if storedSum != d.header.DecodedDataSize {
		return nil, fmt.Errorf("%w: record boundaries sum to %d, expected %d",
			errs.ErrSizeMismatch, storedSum, d.header.DecodedDataSize)
	}
	if limitb.Sum() != valuesLen {
		return nil, fmt.Errorf("%w: limits sum to %d, values hold %d",
			errs.ErrSizeMismatch, limitb.Sum(), valuesLen)
	}

	return limitb.Take(), nil
}
