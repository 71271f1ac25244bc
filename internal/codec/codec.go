// Package codec converts vault contents to and from their stored text form.
//
// Three encodings exist on disk. Encode always writes the current one:
//
//	zs1:<base64(zstd(json payload))>   current, keeps the container size
//	lz:<base64(lzma(json slots))>      legacy v1
//	<base64(json slots)>               legacy v0
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz/lzma"

	"github.com/celerix-dev/celerix-vaults/pkg/inventory"
	"github.com/celerix-dev/celerix-vaults/pkg/schema"
)

const (
	currentPrefix = "zs1:"
	lzmaPrefix    = "lz:"

	// maxDecoded bounds the decompressed size of one vault.
	maxDecoded = 16 << 20

	// maxSlots bounds the slot count of one decoded vault.
	maxSlots = inventory.MaxSize
)

var (
	errTooLarge = errors.New("decoded contents exceed size limit")
	errBadSize  = errors.New("stored vault size out of range")
)

type payload struct {
	Size  int                 `json:"size"`
	Slots []*schema.SlotEntry `json:"slots"`
}

// Codec is safe for concurrent use.
type Codec struct {
	log     *logrus.Logger
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New builds a codec. A nil logger falls back to logrus.New().
func New(log *logrus.Logger) (*Codec, error) {
	if log == nil {
		log = logrus.New()
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecoded))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Codec{log: log, encoder: enc, decoder: dec}, nil
}

// Close releases the compression resources.
func (c *Codec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// Encode serializes every slot, empty ones included, in the current format.
func (c *Codec) Encode(slots []*schema.SlotEntry) (string, error) {
	raw, err := json.Marshal(payload{Size: len(slots), Slots: slots})
	if err != nil {
		return "", fmt.Errorf("marshal slots: %w", err)
	}
	compressed := c.encoder.EncodeAll(raw, nil)
	return currentPrefix + base64.StdEncoding.EncodeToString(compressed), nil
}

// Decode parses stored contents. It never fails: empty, malformed or
// foreign data is logged against the owner and yields nil.
func (c *Codec) Decode(data, owner string) []*schema.SlotEntry {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil
	}
	slots, err := c.decode(data)
	if err != nil {
		c.log.WithFields(logrus.Fields{"owner": owner}).WithError(err).Warn("Could not decode vault contents")
		return nil
	}
	return slots
}

func (c *Codec) decode(data string) ([]*schema.SlotEntry, error) {
	switch {
	case strings.HasPrefix(data, currentPrefix):
		raw, err := base64.StdEncoding.DecodeString(data[len(currentPrefix):])
		if err != nil {
			return nil, fmt.Errorf("base64: %w", err)
		}
		plain, err := c.decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		var p payload
		if err := json.Unmarshal(plain, &p); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
		if p.Size < 0 || p.Size > maxSlots || len(p.Slots) > maxSlots {
			return nil, fmt.Errorf("%w: size %d, %d slots", errBadSize, p.Size, len(p.Slots))
		}
		for len(p.Slots) < p.Size {
			p.Slots = append(p.Slots, nil)
		}
		return p.Slots, nil

	case strings.HasPrefix(data, lzmaPrefix):
		raw, err := base64.StdEncoding.DecodeString(data[len(lzmaPrefix):])
		if err != nil {
			return nil, fmt.Errorf("base64: %w", err)
		}
		r, err := lzma.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("lzma: %w", err)
		}
		plain, err := io.ReadAll(io.LimitReader(r, maxDecoded+1))
		if err != nil {
			return nil, fmt.Errorf("lzma: %w", err)
		}
		if len(plain) > maxDecoded {
			return nil, errTooLarge
		}
		return unmarshalSlots(plain)

	default:
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("base64: %w", err)
		}
		return unmarshalSlots(raw)
	}
}

func unmarshalSlots(raw []byte) ([]*schema.SlotEntry, error) {
	var slots []*schema.SlotEntry
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if len(slots) > maxSlots {
		return nil, fmt.Errorf("%w: %d slots", errBadSize, len(slots))
	}
	return slots, nil
}
