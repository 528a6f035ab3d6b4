// Package report exports the discovered accounts of a session as an
// age-encrypted file. Account xpubs reveal every past and future address of
// an account, so the export is never written in the clear.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/discovery"
	"github.com/mrz1836/hwclaim/internal/fileutil"
	"github.com/mrz1836/hwclaim/internal/session"
)

// Version is the current report format version.
const Version = 1

// Extension is the file extension of exported reports.
const Extension = ".hwclaim"

const filePermissions = 0o600

var (
	// ErrCorrupted indicates the checksum of a report does not match.
	ErrCorrupted = errors.New("report corrupted - checksum mismatch")

	// ErrDecryptionFailed indicates the secret did not open the report.
	ErrDecryptionFailed = errors.New("report decryption failed")

	// ErrInvalidFormat indicates the file is not a report.
	ErrInvalidFormat = errors.New("invalid report format")

	// ErrNothingToExport indicates the session has no accounts.
	ErrNothingToExport = errors.New("no accounts to export")
)

// Report is the on-disk export.
type Report struct {
	Version       int      `json:"version"`
	Manifest      Manifest `json:"manifest"`
	EncryptedData []byte   `json:"encrypted_data"`
	Checksum      string   `json:"checksum"`
}

// Manifest is the unencrypted summary of a report. It carries no
// addresses or keys.
type Manifest struct {
	Vendor           device.Vendor `json:"vendor"`
	CreatedAt        time.Time     `json:"created_at"`
	AccountCount     int           `json:"account_count"`
	ClaimedCount     int           `json:"claimed_count"`
	EncryptionMethod string        `json:"encryption_method"`
}

// Contents is the encrypted payload.
type Contents struct {
	Vendor     device.Vendor                 `json:"vendor"`
	TipTime    int64                         `json:"tip_time"`
	Endpoint   string                        `json:"explorer_endpoint,omitempty"`
	Accounts   []discovery.Account           `json:"accounts"`
	Claims     map[uint32]session.ClaimState `json:"claims,omitempty"`
	ExportedAt time.Time                     `json:"exported_at"`
}

// Build collects the exportable parts of state.
func Build(state *session.State, now time.Time) (*Contents, error) {
	if state == nil || len(state.Accounts) == 0 {
		return nil, ErrNothingToExport
	}
	c := &Contents{
		Vendor:     state.Vendor,
		TipTime:    state.TipTime,
		Endpoint:   state.ExplorerEndpoint,
		Accounts:   append([]discovery.Account(nil), state.Accounts...),
		Claims:     make(map[uint32]session.ClaimState, len(state.Claims)),
		ExportedAt: now.UTC(),
	}
	for k, v := range state.Claims {
		c.Claims[k] = v
	}
	sort.Slice(c.Accounts, func(i, j int) bool { return c.Accounts[i].Index < c.Accounts[j].Index })
	return c, nil
}

// Seal encrypts contents for recipient, which is either an age public key
// ("age1...") or a passphrase.
func Seal(c *Contents, recipient string) (*Report, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("serializing report: %w", err)
	}

	encrypted, method, err := encrypt(data, recipient)
	if err != nil {
		return nil, fmt.Errorf("encrypting report: %w", err)
	}

	claimed := 0
	for _, st := range c.Claims {
		if st.IsClaimed {
			claimed++
		}
	}

	return &Report{
		Version: Version,
		Manifest: Manifest{
			Vendor:           c.Vendor,
			CreatedAt:        c.ExportedAt,
			AccountCount:     len(c.Accounts),
			ClaimedCount:     claimed,
			EncryptionMethod: method,
		},
		EncryptedData: encrypted,
		Checksum:      checksum(encrypted),
	}, nil
}

// Open verifies and decrypts a report with a passphrase or an age
// identity ("AGE-SECRET-KEY-1...").
func Open(r *Report, secret string) (*Contents, error) {
	if err := r.Verify(); err != nil {
		return nil, err
	}

	data, err := decrypt(r.EncryptedData, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}

	var c Contents
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return &c, nil
}

// Verify checks the version and checksum.
func (r *Report) Verify() error {
	if r == nil || r.Version != Version || len(r.EncryptedData) == 0 {
		return ErrInvalidFormat
	}
	if checksum(r.EncryptedData) != r.Checksum {
		return ErrCorrupted
	}
	return nil
}

// Write stores a report atomically.
func Write(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing report: %w", err)
	}
	if err := fileutil.WriteAtomic(path, data, filePermissions); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Read loads a report from disk. The checksum is not verified until Open.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the user
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return &r, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
