// Package backupqr implements the paper-backup export: rendering
// the already-opaque config record (magic|version|kdf params|verifiers|
// wrapped keys|CRC32, no plaintext secret ever appears in it) as a QR
// code, for an operator who wants an offline paper copy of their vault's
// config alongside its on-disk config.bak. Scanning the code back in and
// writing it to the config path bypasses no KDF or AEAD step: the
// restored bytes are exactly what configstore.Decode already validates.
package backupqr

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"
)

// maxQRBytes is a conservative capacity budget for one QR code at
// qrcode.Medium error correction and alphanumeric/byte mode; GhostVault's
// config record (a few hundred bytes even with a generous wrapped-key
// length) fits in one code, but Chunks below still splits defensively
// for larger future record versions.
const maxQRBytes = 1200

// Chunks base64-encodes raw config bytes into the text payload a QR code
// carries and splits that payload into pieces that individually fit
// one code, each prefixed "n/total:" so a scanner can reassemble them
// in any order.
func Chunks(raw []byte) []string {
	payload := base64.StdEncoding.EncodeToString(raw)
	if len(payload) <= maxQRBytes {
		return []string{fmt.Sprintf("1/1:%s", payload)}
	}
	var chunks []string
	total := (len(payload) + maxQRBytes - 1) / maxQRBytes
	for i := 0; i < total; i++ {
		start := i * maxQRBytes
		end := start + maxQRBytes
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, fmt.Sprintf("%d/%d:%s", i+1, total, payload[start:end]))
	}
	return chunks
}

// DisplayTerminal renders each chunk as a QR code to writer, one after
// another, for an operator to photograph or scan in sequence.
func DisplayTerminal(writer io.Writer, raw []byte) {
	f, isFile := writer.(*os.File)
	for _, chunk := range Chunks(raw) {
		cfg := qrterminal.Config{
			Level:     qrterminal.M,
			Writer:    writer,
			BlackChar: qrterminal.BLACK,
			WhiteChar: qrterminal.WHITE,
			QuietZone: 1,
		}
		if isFile {
			cfg.Writer = f
		}
		qrterminal.GenerateWithConfig(chunk, cfg)
	}
}

// ExportPNG writes one PNG per chunk at pathPrefix-N.png, sized size
// pixels square.
func ExportPNG(pathPrefix string, raw []byte, size int) ([]string, error) {
	chunks := Chunks(raw)
	paths := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		path := fmt.Sprintf("%s-%d.png", pathPrefix, i+1)
		if err := qrcode.WriteFile(chunk, qrcode.Medium, size, path); err != nil {
			return nil, fmt.Errorf("backupqr: write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Decode reverses Chunks: given every chunk's text payload (any order),
// reassembles and base64-decodes the original config bytes. Returns an
// error if any chunk is missing.
func Decode(chunks []string) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("backupqr: no chunks given")
	}
	var total int
	parts := make(map[int]string)
	for _, c := range chunks {
		var idx, tot int
		var payload string
		if _, err := fmt.Sscanf(c, "%d/%d:", &idx, &tot); err != nil {
			return nil, fmt.Errorf("backupqr: malformed chunk header: %w", err)
		}
		sep := indexByte(c, ':')
		if sep < 0 {
			return nil, fmt.Errorf("backupqr: malformed chunk: missing separator")
		}
		payload = c[sep+1:]
		total = tot
		parts[idx] = payload
	}
	var joined string
	for i := 1; i <= total; i++ {
		p, ok := parts[i]
		if !ok {
			return nil, fmt.Errorf("backupqr: missing chunk %d of %d", i, total)
		}
		joined += p
	}
	return base64.StdEncoding.DecodeString(joined)
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
