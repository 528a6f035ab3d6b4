package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
)

// Komodo transactions use the Zcash Sapling (v4, overwintered) format.
const (
	SaplingVersion        int32  = 4
	SaplingVersionGroupID uint32 = 0x892f2085
	SaplingBranchID       uint32 = 0x76b809bb

	overwinteredFlag uint32 = 1 << 31
)

// SerializeOutputs encodes the outputs the way they appear inside a
// transaction: a varint count followed by value and script of each.
func SerializeOutputs(outs []*wire.TxOut) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeOutputs(&buf, outs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SerializeSaplingTx encodes a transparent-only transaction in the Sapling
// v4 format. The shielded sections are empty.
func SerializeSaplingTx(tx *wire.MsgTx, expiryHeight uint32) ([]byte, error) {
	if tx == nil {
		return nil, fmt.Errorf("nil transaction")
	}

	var buf bytes.Buffer
	le := binary.LittleEndian

	header := uint32(SaplingVersion) | overwinteredFlag //nolint:gosec // G115: constant fits
	if err := binary.Write(&buf, le, header); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, le, SaplingVersionGroupID); err != nil {
		return nil, err
	}

	if err := wire.WriteVarInt(&buf, 0, uint64(len(tx.TxIn))); err != nil {
		return nil, err
	}
	for _, in := range tx.TxIn {
		buf.Write(in.PreviousOutPoint.Hash[:])
		if err := binary.Write(&buf, le, in.PreviousOutPoint.Index); err != nil {
			return nil, err
		}
		if err := wire.WriteVarBytes(&buf, 0, in.SignatureScript); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, le, in.Sequence); err != nil {
			return nil, err
		}
	}

	if err := writeOutputs(&buf, tx.TxOut); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, le, tx.LockTime); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, le, expiryHeight); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, le, int64(0)); err != nil { // valueBalance
		return nil, err
	}
	// vShieldedSpend, vShieldedOutput, vJoinSplit
	buf.Write([]byte{0x00, 0x00, 0x00})

	return buf.Bytes(), nil
}

func writeOutputs(w io.Writer, outs []*wire.TxOut) error {
	if err := wire.WriteVarInt(w, 0, uint64(len(outs))); err != nil {
		return err
	}
	for _, out := range outs {
		if err := binary.Write(w, binary.LittleEndian, out.Value); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, 0, out.PkScript); err != nil {
			return err
		}
	}
	return nil
}
