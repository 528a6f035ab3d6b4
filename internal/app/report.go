package app

import (
	"time"

	"github.com/mrz1836/hwclaim/internal/report"
	"github.com/mrz1836/hwclaim/internal/session"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Export seals the discovered accounts of state for recipient, an age
// public key or a passphrase, and writes the report to path.
func (s *Service) Export(state *session.State, path, recipient string) (*report.Manifest, error) {
	if _, err := requireVendor(state); err != nil {
		return nil, err
	}
	contents, err := report.Build(state, time.Now())
	if err != nil {
		return nil, hwerr.ErrNoAccounts
	}

	r, err := report.Seal(contents, recipient)
	if err != nil {
		return nil, hwerr.Wrap(hwerr.ErrInvalidInput, "sealing report: %v", err)
	}
	if err := report.Write(path, r); err != nil {
		return nil, err
	}
	s.cfg.Logger.Debug("exported %d accounts to %s (%s)", r.Manifest.AccountCount, path, r.Manifest.EncryptionMethod)
	return &r.Manifest, nil
}

// OpenExport reads and decrypts a report written by Export.
func (s *Service) OpenExport(path, secret string) (*report.Report, *report.Contents, error) {
	r, err := report.Read(path)
	if err != nil {
		return nil, nil, hwerr.Wrap(hwerr.ErrInvalidInput, "%v", err)
	}
	contents, err := report.Open(r, secret)
	if err != nil {
		return r, nil, hwerr.Wrap(hwerr.ErrInvalidInput, "%v", err)
	}
	return r, contents, nil
}
