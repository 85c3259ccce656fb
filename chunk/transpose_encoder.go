package chunk

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/strataio/strata/chain"
	"github.com/strataio/strata/compress"
	"github.com/strataio/strata/encoding"
	"github.com/strataio/strata/errs"
	"github.com/strataio/strata/format"
)

// maxNestingDepth caps submessage and group recursion while parsing
// records into columns.
const maxNestingDepth = 100

// opKey identifies a state machine node: the full field path plus the wire
// tag and subtype. One node is created per distinct key, so every node
// occurs at exactly one field path (the invariant projection relies on).
type opKey struct {
	path    string // field numbers packed 4 bytes little-endian each
	tag     uint64
	subtype format.Subtype
}

// encOp is one field occurrence in forward record order. value holds the
// bytes appended to the node's column (nil for structural nodes).
type encOp struct {
	key   opKey
	value []byte
}

type parsedRecord struct {
	ops  []encOp
	emit uint64 // bytes the record emits when fully decoded
}

// TransposeEncoder builds a transposed chunk: each record is parsed as
// protobuf wire format and decomposed into per-field-path columns driven
// by a state machine, so that decoding can reconstruct the records with
// optional field projection.
//
// Records that do not parse as wire format are rejected; the simple chunk
// layout carries such records instead.
type TransposeEncoder struct {
	opts    encoderOptions
	records []parsedRecord
}

// NewTransposeEncoder creates a TransposeEncoder.
func NewTransposeEncoder(opts ...EncoderOption) *TransposeEncoder {
	e := &TransposeEncoder{opts: defaultEncoderOptions()}
	for _, opt := range opts {
		opt(&e.opts)
	}

	return e
}

// AddRecord parses one record into columns. Empty records are permitted.
func (e *TransposeEncoder) AddRecord(rec []byte) error {
	var pr parsedRecord
	emit, err := parseFields(rec, nil, 0, &pr.ops)
	if err != nil {
		return fmt.Errorf("record is not valid wire format: %w", err)
	}
	pr.emit = emit
	e.records = append(e.records, pr)

	return nil
}

// NumRecords returns the number of records added so far.
func (e *TransposeEncoder) NumRecords() uint64 {
	return uint64(len(e.records))
}

// Reset clears the encoder for the next chunk.
func (e *TransposeEncoder) Reset() {
	e.records = e.records[:0]
}

func packPath(path []uint32) string {
	buf := make([]byte, 4*len(path))
	for i, f := range path {
		binary.LittleEndian.PutUint32(buf[4*i:], f)
	}

	return string(buf)
}

// parseFields walks one message level in forward order, appending ops and
// returning the emitted (re-encoded) length of the level.
func parseFields(b []byte, path []uint32, depth int, ops *[]encOp) (uint64, error) {
	if depth > maxNestingDepth {
		return 0, fmt.Errorf("nesting deeper than %d", maxNestingDepth)
	}
	var emit uint64
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		tagVal := uint64(num)<<3 | uint64(typ)
		tagLen := uint64(encoding.UvarintLen(tagVal))
		b = b[n:]
		childPath := append(path, uint32(num))

		switch typ {
		case protowire.VarintType:
			_, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return 0, protowire.ParseError(m)
			}
			*ops = append(*ops, encOp{
				key:   opKey{packPath(childPath), tagVal, format.SubtypeVarint},
				value: append([]byte(nil), b[:m]...),
			})
			emit += tagLen + uint64(m)
			b = b[m:]

		case protowire.Fixed32Type:
			if len(b) < 4 {
				return 0, protowire.ParseError(-1)
			}
			*ops = append(*ops, encOp{
				key:   opKey{packPath(childPath), tagVal, format.SubtypeFixed32},
				value: append([]byte(nil), b[:4]...),
			})
			emit += tagLen + 4
			b = b[4:]

		case protowire.Fixed64Type:
			if len(b) < 8 {
				return 0, protowire.ParseError(-1)
			}
			*ops = append(*ops, encOp{
				key:   opKey{packPath(childPath), tagVal, format.SubtypeFixed64},
				value: append([]byte(nil), b[:8]...),
			})
			emit += tagLen + 8
			b = b[8:]

		case protowire.BytesType:
			length, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return 0, protowire.ParseError(m)
			}
			if length > uint64(len(b)-m) {
				return 0, protowire.ParseError(-1)
			}
			data := b[m : m+int(length)]
			if len(data) > 0 && depth < maxNestingDepth && isWireMessage(data, depth+1) {
				// A parseable payload is transposed as a submessage; its
				// length prefix is recomputed on decode, which also makes
				// nested projection possible.
				*ops = append(*ops, encOp{key: opKey{packPath(childPath), tagVal, format.SubtypeMessageStart}})
				subEmit, err := parseFields(data, childPath, depth+1, ops)
				if err != nil {
					return 0, err
				}
				*ops = append(*ops, encOp{key: opKey{packPath(childPath), tagVal, format.SubtypeMessageEnd}})
				emit += tagLen + uint64(encoding.UvarintLen(subEmit)) + subEmit
			} else {
				// Opaque bytes keep their original length prefix byte for
				// byte.
				*ops = append(*ops, encOp{
					key:   opKey{packPath(childPath), tagVal, format.SubtypeLengthDelimited},
					value: append([]byte(nil), b[:m+int(length)]...),
				})
				emit += tagLen + uint64(m) + length
			}
			b = b[m+int(length):]

		case protowire.StartGroupType:
			body, m := protowire.ConsumeGroup(num, b)
			if m < 0 {
				return 0, protowire.ParseError(m)
			}
			endTag := uint64(num)<<3 | uint64(protowire.EndGroupType)
			*ops = append(*ops, encOp{key: opKey{packPath(childPath), tagVal, format.SubtypeStartGroup}})
			subEmit, err := parseFields(body, childPath, depth+1, ops)
			if err != nil {
				return 0, err
			}
			*ops = append(*ops, encOp{key: opKey{packPath(childPath), endTag, format.SubtypeEndGroup}})
			emit += tagLen + subEmit + uint64(encoding.UvarintLen(endTag))
			b = b[m:]

		default:
			return 0, fmt.Errorf("wire type %d", typ)
		}
	}

	return emit, nil
}

// isWireMessage reports whether b parses fully as protobuf wire format,
// with nesting capped.
func isWireMessage(b []byte, depth int) bool {
	if depth > maxNestingDepth {
		return false
	}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return false
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			_, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return false
			}
			b = b[m:]
		case protowire.Fixed32Type:
			if len(b) < 4 {
				return false
			}
			b = b[4:]
		case protowire.Fixed64Type:
			if len(b) < 8 {
				return false
			}
			b = b[8:]
		case protowire.BytesType:
			_, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return false
			}
			b = b[m:]
		case protowire.StartGroupType:
			body, m := protowire.ConsumeGroup(num, b)
			if m < 0 || !isWireMessage(body, depth+1) {
				return false
			}
			b = b[m:]
		default:
			return false
		}
	}

	return true
}

// refEndOfRecord is the internal end-of-record marker in successor sets.
const refEndOfRecord int32 = -1

type encNode struct {
	tag     uint64
	subtype format.Subtype
	col     int // column index, -1 for structural nodes
	succs   map[int32]struct{}
}

// Encode assembles the chunk. The encoder keeps its contents; call Reset
// to start the next chunk.
func (e *TransposeEncoder) Encode() (*Chunk, error) {
	if uint64(len(e.records)) > MaxRecords {
		return nil, errs.ErrTooManyRecords
	}

	var (
		nodes     []encNode
		nodeByKey = make(map[opKey]int)
		cols      [][]byte
		recLenCol []byte
		seqs      = make([][]int32, 0, len(e.records))
		startSucc = make(map[int32]struct{})
		decoded   uint64
	)

	// Records are laid out in decoder consumption order: reverse record
	// order, and each record's fields reversed.
	for r := len(e.records) - 1; r >= 0; r-- {
		rec := &e.records[r]
		recLenCol = encoding.AppendUvarint(recLenCol, rec.emit)
		decoded += rec.emit

		seq := make([]int32, 0, len(rec.ops))
		for i := len(rec.ops) - 1; i >= 0; i-- {
			op := &rec.ops[i]
			idx, ok := nodeByKey[op.key]
			if !ok {
				idx = len(nodes)
				col := -1
				if needsBuffer(op.key.subtype) {
					col = len(cols)
					cols = append(cols, nil)
				}
				nodes = append(nodes, encNode{
					tag:     op.key.tag,
					subtype: op.key.subtype,
					col:     col,
					succs:   make(map[int32]struct{}),
				})
				nodeByKey[op.key] = idx
			}
			if c := nodes[idx].col; c >= 0 {
				cols[c] = append(cols[c], op.value...)
			}
			seq = append(seq, int32(idx))
		}

		if len(seq) == 0 {
			startSucc[refEndOfRecord] = struct{}{}
		} else {
			startSucc[seq[0]] = struct{}{}
		}
		for i := range seq {
			nxt := refEndOfRecord
			if i+1 < len(seq) {
				nxt = seq[i+1]
			}
			nodes[seq[i]].succs[nxt] = struct{}{}
		}
		seqs = append(seqs, seq)
	}

	if decoded > MaxPayload {
		return nil, errs.ErrChunkTooLarge
	}

	// Start node: a single successor is encoded directly; diverging record
	// heads go through a synthetic skip node with a computed transition.
	startRef := refEndOfRecord
	skipStart := len(startSucc) > 1
	if skipStart {
		startRef = int32(len(nodes))
		nodes = append(nodes, encNode{subtype: format.SubtypeSkip, col: -1, succs: startSucc})
	} else {
		for s := range startSucc {
			startRef = s
		}
	}

	// Successor encoding per node: static when unique, computed otherwise.
	const nextComputedEnc int32 = -2
	next := make([]int32, len(nodes))
	for i := range nodes {
		switch len(nodes[i].succs) {
		case 1:
			for s := range nodes[i].succs {
				next[i] = s
			}
		default:
			next[i] = nextComputedEnc
		}
	}

	// Transitions stream, in consumption order.
	var trans []byte
	for _, seq := range seqs {
		if skipStart {
			trans = appendNodeRef(trans, firstRef(seq))
		}
		for i := range seq {
			if next[seq[i]] != nextComputedEnc {
				continue
			}
			nxt := refEndOfRecord
			if i+1 < len(seq) {
				nxt = seq[i+1]
			}
			trans = appendNodeRef(trans, nxt)
		}
	}

	// Implicit transitions: a straight-line automaton needs no next refs.
	implicit := len(nodes) == 0
	if !skipStart && len(nodes) > 0 && startRef == 0 {
		implicit = true
		for i := range nodes {
			want := int32(i) + 1
			if i == len(nodes)-1 {
				want = refEndOfRecord
			}
			if next[i] != want {
				implicit = false
				break
			}
		}
	}

	// Buffers: index 0 is the record boundary column; columns follow in
	// node interning order.
	var buffers [][]byte
	if len(e.records) > 0 {
		buffers = append(buffers, recLenCol)
		buffers = append(buffers, cols...)
	} else if len(cols) > 0 {
		return nil, errs.ErrInvalidNodeTable
	}

	// Greedy bucket packing toward the target uncompressed size.
	type bucketSpec struct {
		count int
		size  uint64
	}
	var bucketSpecs []bucketSpec
	for _, buf := range buffers {
		sz := uint64(len(buf))
		needNew := len(bucketSpecs) == 0
		if !needNew {
			last := bucketSpecs[len(bucketSpecs)-1]
			needNew = last.count > 0 && last.size+sz > uint64(e.opts.bucketTargetSize)
		}
		if needNew {
			bucketSpecs = append(bucketSpecs, bucketSpec{})
		}
		last := &bucketSpecs[len(bucketSpecs)-1]
		last.count++
		last.size += sz
	}

	kind := e.opts.compression
	bucketBodies := make([][]byte, len(bucketSpecs))
	bi := 0
	for i, spec := range bucketSpecs {
		body := make([]byte, 0, spec.size)
		for j := 0; j < spec.count; j++ {
			body = append(body, buffers[bi]...)
			bi++
		}
		compressed, err := compress.Compress(kind, body)
		if err != nil {
			return nil, err
		}
		bucketBodies[i] = compressed
	}

	transBody, err := compress.Compress(kind, trans)
	if err != nil {
		return nil, err
	}

	// Header block.
	var hb []byte
	hb = encoding.AppendUvarint(hb, uint64(len(bucketSpecs)))
	hb = encoding.AppendUvarint(hb, uint64(len(buffers)))
	hb = encoding.AppendUvarint(hb, uint64(len(nodes)))
	flags := byte(0)
	if !implicit {
		flags |= 0x01
	}
	hb = append(hb, flags)
	for _, buf := range buffers {
		hb = encoding.AppendUvarint(hb, uint64(len(buf)))
	}
	for i, spec := range bucketSpecs {
		hb = encoding.AppendUvarint(hb, uint64(len(bucketBodies[i])))
		hb = encoding.AppendUvarint(hb, uint64(spec.count))
	}
	for i := range nodes {
		hb = encoding.AppendUvarint(hb, nodes[i].tag)
		hb = append(hb, byte(nodes[i].subtype))
		if nodes[i].col >= 0 {
			// Buffer reference: column c is buffer c+1, encoded 1-based.
			hb = encoding.AppendUvarint(hb, uint64(nodes[i].col)+2)
		} else {
			hb = encoding.AppendUvarint(hb, 0)
		}
		if !implicit {
			hb = appendNodeRefOrComputed(hb, next[i], len(nodes))
		}
	}
	hb = appendNodeRef(hb, startRef)
	hb = encoding.AppendUvarint(hb, uint64(len(trans)))
	hb = encoding.AppendUvarint(hb, uint64(len(transBody)))

	headerCompressed, err := compress.Compress(kind, hb)
	if err != nil {
		return nil, err
	}

	payload := []byte{byte(kind)}
	payload = encoding.AppendUvarint(payload, uint64(len(hb)))
	payload = encoding.AppendUvarint(payload, uint64(len(headerCompressed)))
	payload = append(payload, headerCompressed...)
	for _, body := range bucketBodies {
		payload = append(payload, body...)
	}
	payload = append(payload, transBody...)

	return &Chunk{
		Header: Header{
			ChunkType:       format.ChunkTransposed,
			NumRecords:      uint64(len(e.records)),
			DecodedDataSize: decoded,
			DataSize:        uint64(len(payload)),
		},
		Data: chain.FromBytes(payload),
	}, nil
}

func firstRef(seq []int32) int32 {
	if len(seq) == 0 {
		return refEndOfRecord
	}

	return seq[0]
}

// appendNodeRef appends the 1-based wire encoding of a node reference:
// 0 for end-of-record, index+1 otherwise.
func appendNodeRef(b []byte, ref int32) []byte {
	if ref == refEndOfRecord {
		return encoding.AppendUvarint(b, 0)
	}

	return encoding.AppendUvarint(b, uint64(ref)+1)
}

// appendNodeRefOrComputed additionally maps the computed marker to
// numNodes+1.
func appendNodeRefOrComputed(b []byte, ref int32, numNodes int) []byte {
	if ref == -2 {
		return encoding.AppendUvarint(b, uint64(numNodes)+1)
	}

	return appendNodeRef(b, ref)
}
