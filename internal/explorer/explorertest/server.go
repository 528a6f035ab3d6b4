// Package explorertest provides an in-memory Insight explorer served over
// httptest for tests of packages that talk to explorers.
package explorertest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/explorer"
)

// DefaultTipTime is the tip time reported unless a test overrides it.
const DefaultTipTime int64 = 1_700_000_000

// Server is a fake Insight API.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	version    string
	tipTime    int64
	delay      time.Duration
	pageSize   int
	utxos      map[string][]explorer.UTXO
	history    map[string][]explorer.Transaction
	txs        map[string]explorer.Transaction
	raw        map[string]string
	failing    map[string]bool
	rejectWith string
	broadcasts []string
	hits       map[string]int
	queried    map[string]int
}

// New starts a server and registers its shutdown with t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		version:  "1.1.0",
		tipTime:  DefaultTipTime,
		pageSize: 10,
		utxos:    make(map[string][]explorer.UTXO),
		history:  make(map[string][]explorer.Transaction),
		txs:      make(map[string]explorer.Transaction),
		raw:      make(map[string]string),
		failing:  make(map[string]bool),
		hits:     make(map[string]int),
		queried:  make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// TxID returns a deterministic 64-character transaction id.
func TxID(n int) string {
	return fmt.Sprintf("%064x", n)
}

// SetVersion sets info.version; an empty value makes /info unhealthy.
func (s *Server) SetVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// SetTipTime sets the time of the newest block.
func (s *Server) SetTipTime(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tipTime = ts
}

// SetDelay delays every response.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// SetPageSize sets how many transactions /txs returns per page.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

// FailAddress makes every query for addr answer 500.
func (s *Server) FailAddress(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[addr] = true
}

// RejectBroadcasts makes /tx/send answer 400 with reason.
func (s *Server) RejectBroadcasts(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectWith = reason
}

// Fund records a confirmed transaction paying sats to addr and exposes the
// output as a UTXO. It returns the transaction.
func (s *Server) Fund(addr, txid string, sats uint64, locktime uint32, height int64) explorer.Transaction {
	tx := explorer.Transaction{
		TxID:          txid,
		Version:       4,
		LockTime:      locktime,
		Vin:           []explorer.TxInput{{TxID: TxID(0), Address: "RFundingSourceAddress", ValueSat: sats + 10_000}},
		Vout:          []explorer.TxOutput{PayTo(addr, sats, 0)},
		BlockHeight:   height,
		Confirmations: 10,
		Time:          s.tip() - 3600,
		BlockTime:     s.tip() - 3600,
	}
	s.AddTransaction(tx)
	s.AddUTXO(explorer.UTXO{
		TxID:          txid,
		Vout:          0,
		Satoshis:      sats,
		Address:       addr,
		Confirmations: 10,
		Height:        height,
		ScriptPubKey:  "76a914" + strings.Repeat("00", 20) + "88ac",
	})
	return tx
}

// PayTo builds a transaction output paying sats to addr.
func PayTo(addr string, sats uint64, n uint32) explorer.TxOutput {
	return explorer.TxOutput{
		Value:        explorer.FlexString(chain.FormatKMD(sats)),
		N:            n,
		ScriptPubKey: explorer.ScriptPubKey{Addresses: []string{addr}, Type: "pubkeyhash"},
	}
}

// AddUTXO exposes an unspent output.
func (s *Server) AddUTXO(u explorer.UTXO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utxos[u.Address] = append(s.utxos[u.Address], u)
}

// AddTransaction records a transaction and lists it in the history of
// every address it touches.
func (s *Server) AddTransaction(tx explorer.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txs[tx.TxID] = tx
	s.raw[tx.TxID] = hex.EncodeToString([]byte("raw:" + tx.TxID))

	seen := make(map[string]bool)
	for _, in := range tx.Vin {
		if in.Address != "" && !seen[in.Address] {
			seen[in.Address] = true
			s.history[in.Address] = append(s.history[in.Address], tx)
		}
	}
	for _, out := range tx.Vout {
		for _, a := range out.ScriptPubKey.Addresses {
			if !seen[a] {
				seen[a] = true
				s.history[a] = append(s.history[a], tx)
			}
		}
	}
}

// Broadcasts returns the raw transactions submitted so far.
func (s *Server) Broadcasts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.broadcasts...)
}

// Hits returns how many requests reached an operation: info, blocks,
// utxo, txs, tx, rawtx or send.
func (s *Server) Hits(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[op]
}

// Queried returns how many UTXO or history requests named addr.
func (s *Server) Queried(addr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queried[addr]
}

// RawTx returns the raw hex the server serves for txid.
func (s *Server) RawTx(txid string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw[txid]
}

func (s *Server) tip() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tipTime
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	path := r.URL.Path
	switch {
	case path == "/info":
		s.count("info", "")
		s.mu.Lock()
		v := s.version
		s.mu.Unlock()
		writeJSON(w, map[string]any{"info": map[string]any{"version": v, "blocks": 3_000_000}})

	case path == "/blocks":
		s.count("blocks", "")
		writeJSON(w, map[string]any{"blocks": []explorer.Block{{Height: 3_000_000, Time: s.tip()}}})

	case strings.HasPrefix(path, "/addr/") && strings.HasSuffix(path, "/utxo"):
		addr := strings.TrimSuffix(strings.TrimPrefix(path, "/addr/"), "/utxo")
		if s.count("utxo", addr) {
			http.Error(w, "backend failure", http.StatusInternalServerError)
			return
		}
		s.mu.Lock()
		utxos := append([]explorer.UTXO{}, s.utxos[addr]...)
		s.mu.Unlock()
		writeJSON(w, utxos)

	case path == "/txs":
		addr := r.URL.Query().Get("address")
		if s.count("txs", addr) {
			http.Error(w, "backend failure", http.StatusInternalServerError)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("pageNum"))
		writeJSON(w, s.page(addr, page))

	case path == "/tx/send" && r.Method == http.MethodPost:
		s.count("send", "")
		s.send(w, r)

	case strings.HasPrefix(path, "/tx/"):
		s.count("tx", "")
		s.mu.Lock()
		tx, ok := s.txs[strings.TrimPrefix(path, "/tx/")]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, tx)

	case strings.HasPrefix(path, "/rawtx/"):
		s.count("rawtx", "")
		s.mu.Lock()
		raw, ok := s.raw[strings.TrimPrefix(path, "/rawtx/")]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]string{"rawtx": raw})

	default:
		http.NotFound(w, r)
	}
}

// count records a hit and reports whether the address is set to fail.
func (s *Server) count(op, addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[op]++
	if addr != "" {
		s.queried[addr]++
	}
	return addr != "" && s.failing[addr]
}

func (s *Server) page(addr string, page int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.history[addr]
	size := s.pageSize
	if size <= 0 {
		size = len(all) + 1
	}
	pages := (len(all) + size - 1) / size
	if pages == 0 {
		pages = 1
	}

	start := page * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return map[string]any{"pagesTotal": pages, "txs": all[start:end]}
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RawTx string `json:"rawtx"`
	}
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &req); err != nil || req.RawTx == "" {
		http.Error(w, "Missing parameter: rawtx", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	reject := s.rejectWith
	if reject == "" {
		s.broadcasts = append(s.broadcasts, req.RawTx)
	}
	n := len(s.broadcasts)
	s.mu.Unlock()

	if reject != "" {
		http.Error(w, reject, http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"txid": TxID(1_000_000 + n)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
