package endpoint

import (
	"context"

	"github.com/mrz1836/hwclaim/internal/explorer"
)

// The Selector satisfies explorer.API by forwarding every call to the
// active endpoint, so collaborators hold one stable value across switches.
var _ explorer.API = (*Selector)(nil)

// GetInfo forwards to the active endpoint.
func (s *Selector) GetInfo(ctx context.Context) (*explorer.Info, error) {
	c, err := s.Client()
	if err != nil {
		return nil, err
	}
	return c.GetInfo(ctx)
}

// GetTipTime forwards to the active endpoint.
func (s *Selector) GetTipTime(ctx context.Context) (int64, error) {
	c, err := s.Client()
	if err != nil {
		return 0, err
	}
	return c.GetTipTime(ctx)
}

// GetUTXOs forwards to the active endpoint.
func (s *Selector) GetUTXOs(ctx context.Context, address string) ([]explorer.UTXO, error) {
	c, err := s.Client()
	if err != nil {
		return nil, err
	}
	return c.GetUTXOs(ctx, address)
}

// GetHistory forwards to the active endpoint.
func (s *Selector) GetHistory(ctx context.Context, address string) ([]explorer.Transaction, error) {
	c, err := s.Client()
	if err != nil {
		return nil, err
	}
	return c.GetHistory(ctx, address)
}

// GetTransaction forwards to the active endpoint.
func (s *Selector) GetTransaction(ctx context.Context, txid string) (*explorer.Transaction, error) {
	c, err := s.Client()
	if err != nil {
		return nil, err
	}
	return c.GetTransaction(ctx, txid)
}

// GetRawTransaction forwards to the active endpoint.
func (s *Selector) GetRawTransaction(ctx context.Context, txid string) (string, error) {
	c, err := s.Client()
	if err != nil {
		return "", err
	}
	return c.GetRawTransaction(ctx, txid)
}

// Broadcast forwards to the active endpoint.
func (s *Selector) Broadcast(ctx context.Context, rawHex string) (string, error) {
	c, err := s.Client()
	if err != nil {
		return "", err
	}
	return c.Broadcast(ctx, rawHex)
}
