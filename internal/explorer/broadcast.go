package explorer

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Broadcast submits a signed transaction through POST /tx/send and
// returns the txid reported by the explorer.
func (c *Client) Broadcast(ctx context.Context, rawHex string) (string, error) {
	rawHex = strings.TrimSpace(rawHex)
	if rawHex == "" {
		return "", fmt.Errorf("%w: empty transaction", hwerr.ErrInvalidInput)
	}
	if _, err := hex.DecodeString(rawHex); err != nil {
		return "", fmt.Errorf("%w: transaction is not hex: %w", hwerr.ErrInvalidInput, err)
	}

	var resp broadcastResponse
	if err := c.do(ctx, "broadcast", http.MethodPost, "/tx/send", broadcastRequest{RawTx: rawHex}, &resp); err != nil {
		return "", err
	}
	if resp.TxID == "" {
		return "", hwerr.WithDetails(hwerr.ErrTxRejected, map[string]string{
			"endpoint": c.name,
			"reason":   "no txid in response",
		})
	}

	c.logger.Debug("explorer %s accepted transaction %s", c.name, resp.TxID)
	return resp.TxID, nil
}
