package output

import (
	"io"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"
)

// QRConfig configures QR code rendering.
type QRConfig struct {
	// Level is the error correction level.
	Level qr.Level
	// QuietZone is the number of empty blocks around the QR code.
	QuietZone int
	// HalfBlocks uses half-height blocks for a more compact display.
	HalfBlocks bool
	// Force renders even when the writer is not a terminal.
	Force bool
}

// DefaultQRConfig returns the settings used for receive addresses.
func DefaultQRConfig() QRConfig {
	return QRConfig{
		Level:      qr.M,
		QuietZone:  1,
		HalfBlocks: true,
	}
}

// PaymentURI returns the "komodo:" URI wallets scan for an address.
func PaymentURI(address string) string {
	if address == "" || strings.HasPrefix(address, "komodo:") {
		return address
	}
	return "komodo:" + address
}

// RenderQR draws data as a QR code. Nothing is written unless w is a
// terminal or cfg.Force is set.
func RenderQR(w io.Writer, data string, cfg QRConfig) error {
	if data == "" || (!cfg.Force && !IsTerminal(w)) {
		return nil
	}

	qrterminal.GenerateWithConfig(data, qrterminal.Config{
		Level:          cfg.Level,
		Writer:         w,
		QuietZone:      cfg.QuietZone,
		HalfBlocks:     cfg.HalfBlocks,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
	})
	return nil
}
