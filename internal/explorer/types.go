package explorer

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/mrz1836/hwclaim/internal/chain"
)

// FlexString accepts a JSON string or number. Insight servers disagree on
// whether versions and output values are quoted.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// Info is the body of GET /info.
type Info struct {
	Version         FlexString `json:"version"`
	ProtocolVersion int64      `json:"protocolversion"`
	Blocks          int64      `json:"blocks"`
	Connections     int64      `json:"connections"`
	Difficulty      float64    `json:"difficulty"`
	Network         string     `json:"network"`
}

// Healthy reports whether the endpoint answered with a usable version.
func (i *Info) Healthy() bool {
	v := strings.TrimSpace(string(i.Version))
	return v != "" && v != "0"
}

type infoResponse struct {
	Info *Info `json:"info"`
}

// Block is one entry of GET /blocks.
type Block struct {
	Hash     string `json:"hash"`
	Height   int64  `json:"height"`
	Time     int64  `json:"time"`
	TxLength int    `json:"txlength"`
}

type blocksResponse struct {
	Blocks []Block `json:"blocks"`
}

// UTXO is an unspent output as reported by GET /addr/{addr}/utxo.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Satoshis      uint64 `json:"satoshis"`
	Address       string `json:"address"`
	Confirmations int64  `json:"confirmations"`
	Height        int64  `json:"height"`
	ScriptPubKey  string `json:"scriptPubKey"`

	// Locktime is not part of the UTXO endpoint. The rewards calculator
	// fills it from the funding transaction.
	Locktime uint32 `json:"locktime,omitempty"`
}

// Outpoint returns "txid:vout".
func (u *UTXO) Outpoint() string {
	return u.TxID + ":" + itoa(u.Vout)
}

// TxInput is one vin entry of an Insight transaction.
type TxInput struct {
	TxID     string `json:"txid"`
	Vout     uint32 `json:"vout"`
	Address  string `json:"addr"`
	ValueSat uint64 `json:"valueSat"`
	Coinbase string `json:"coinbase,omitempty"`
}

// ScriptPubKey is the decoded output script.
type ScriptPubKey struct {
	Hex       string   `json:"hex"`
	Addresses []string `json:"addresses"`
	Type      string   `json:"type"`
}

// TxOutput is one vout entry of an Insight transaction.
type TxOutput struct {
	Value        FlexString   `json:"value"`
	N            uint32       `json:"n"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

// Satoshis converts the decimal value to satoshis.
func (o *TxOutput) Satoshis() (uint64, error) {
	return chain.ParseKMD(string(o.Value))
}

// PaysTo reports whether the output pays to addr.
func (o *TxOutput) PaysTo(addr string) bool {
	for _, a := range o.ScriptPubKey.Addresses {
		if a == addr {
			return true
		}
	}
	return false
}

// Transaction is the Insight transaction object returned by /tx/{txid}
// and inside /txs pages.
type Transaction struct {
	TxID          string     `json:"txid"`
	Version       int32      `json:"version"`
	LockTime      uint32     `json:"locktime"`
	Vin           []TxInput  `json:"vin"`
	Vout          []TxOutput `json:"vout"`
	BlockHash     string     `json:"blockhash,omitempty"`
	BlockHeight   int64      `json:"blockheight"`
	Confirmations int64      `json:"confirmations"`
	Time          int64      `json:"time"`
	BlockTime     int64      `json:"blocktime"`
}

// Timestamp returns the block time, or the first-seen time for mempool
// transactions.
func (t *Transaction) Timestamp() int64 {
	if t.BlockTime > 0 {
		return t.BlockTime
	}
	return t.Time
}

type txsPage struct {
	PagesTotal int           `json:"pagesTotal"`
	Txs        []Transaction `json:"txs"`
}

type rawTxResponse struct {
	RawTx string `json:"rawtx"`
}

type broadcastRequest struct {
	RawTx string `json:"rawtx"`
}

type broadcastResponse struct {
	TxID string `json:"txid"`
}
