// Package replay implements the migration-log replay engine (spec.md
// §4.8): it rebuilds in-memory state from a recorded transaction lineage
// on startup, then splices newly arrived live transactions into that
// lineage as they reference it by guid.
package replay

import (
	"bufio"
	"io"
	"strconv"

	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
)

// Tx is one transaction recorded in the migration log.
type Tx struct {
	GUID    string
	Sighash string
	Payload []byte // decoded from the log's base64 encoding
}

// Block is one block's worth of recorded transactions.
type Block struct {
	Index        uint64
	SignerPubKey string
	Txs          []Tx
}

// ParseLog reads the migration log's text format: a sequence of blocks,
// each `blockIdx\nsignerPubKey\n` followed by zero or more
// `guid\nsighash\nbase64Payload\n` transaction records, terminated by a
// line containing only "." (spec.md §4.8).
func ParseLog(r io.Reader) ([]Block, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var blocks []Block
	for sc.Scan() {
		idxLine := sc.Text()
		if idxLine == "" {
			continue
		}
		idx, err := strconv.ParseUint(idxLine, 10, 64)
		if err != nil {
			return nil, apperr.InternalWrap(err, "migration log: bad block index %q", idxLine)
		}
		if !sc.Scan() {
			return nil, apperr.Internal("migration log: truncated after block index %d", idx)
		}
		signer := sc.Text()

		block := Block{Index: idx, SignerPubKey: signer}
		for {
			if !sc.Scan() {
				return nil, apperr.Internal("migration log: truncated block %d", idx)
			}
			guid := sc.Text()
			if guid == "." {
				break
			}
			if !sc.Scan() {
				return nil, apperr.Internal("migration log: truncated tx record in block %d", idx)
			}
			sighash := sc.Text()
			if !sc.Scan() {
				return nil, apperr.Internal("migration log: truncated tx record in block %d", idx)
			}
			payload, err := decodeBase64(sc.Text())
			if err != nil {
				return nil, apperr.InternalWrap(err, "migration log: bad payload for tx %s", guid)
			}
			block.Txs = append(block.Txs, Tx{GUID: guid, Sighash: sighash, Payload: payload})
		}
		blocks = append(blocks, block)
	}
	if err := sc.Err(); err != nil {
		return nil, apperr.InternalWrap(err, "migration log: scan failed")
	}
	return blocks, nil
}

// pos locates a transaction within the parsed log by (block index into the
// blocks slice, tx index within that block's Txs).
type pos struct {
	Block int
	Tx    int
}

// indexByGUID builds the guid -> (blocks slice position, txIdx) lookup
// described in spec.md §4.8. The position is the block's place in blocks,
// not derived from its Index field.
func indexByGUID(blocks []Block) map[string]pos {
	out := make(map[string]pos)
	for bi, b := range blocks {
		for ti, tx := range b.Txs {
			out[tx.GUID] = pos{Block: bi, Tx: ti}
		}
	}
	return out
}
