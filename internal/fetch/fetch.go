// Package fetch reads inverter registers over Modbus TCP in protocol-sized
// blocks and repacks them for frame decoding.
package fetch

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/sirupsen/logrus"

	"github.com/eg4tools/goeg4/internal/config"
)

// Block is one Modbus read request.
type Block struct {
	Start uint16
	Count uint16
}

// Blocks splits a register range into block-sized reads.
func Blocks(start, count, size uint16) []Block {
	if size == 0 {
		size = config.DefaultBlockSize
	}
	var out []Block
	for count > 0 {
		n := count
		if n > size {
			n = size
		}
		out = append(out, Block{Start: start, Count: n})
		start += n
		count -= n
	}
	return out
}

// Pack renders register words as a big-endian byte buffer for decoding.
func Pack(words []uint16) []byte {
	buf := make([]byte, len(words)*2)
	for i, w := range words {
		binary.BigEndian.PutUint16(buf[i*2:], w)
	}
	return buf
}

// Unpack splits a big-endian byte buffer back into register words. A
// trailing odd byte is dropped.
func Unpack(buf []byte) []uint16 {
	words := make([]uint16, 0, len(buf)/2)
	for i := 0; i+1 < len(buf); i += 2 {
		words = append(words, binary.BigEndian.Uint16(buf[i:]))
	}
	return words
}

// Fetcher reads registers from one inverter.
type Fetcher struct {
	client *modbus.ModbusClient
	block  uint16
	log    *logrus.Entry
}

// Open connects to the inverter described by cfg.
func Open(cfg config.Inverter) (*Fetcher, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port),
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("modbus client: %w", err)
	}
	if err := client.Open(); err != nil {
		return nil, fmt.Errorf("connect %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	if cfg.UnitID != 0 {
		if err := client.SetUnitId(cfg.UnitID); err != nil {
			client.Close()
			return nil, fmt.Errorf("set unit id %d: %w", cfg.UnitID, err)
		}
	}
	block := cfg.BlockSize
	if block == 0 {
		block = config.DefaultBlockSize
	}
	return &Fetcher{
		client: client,
		block:  block,
		log:    logrus.WithField("inverter", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
	}, nil
}

// Close releases the Modbus connection.
func (f *Fetcher) Close() error {
	return f.client.Close()
}

// ReadInputs reads count input registers from start and returns them as a
// big-endian byte buffer.
func (f *Fetcher) ReadInputs(start, count uint16) ([]byte, error) {
	return f.read(start, count, modbus.INPUT_REGISTER)
}

// ReadHolds reads count hold registers from start.
func (f *Fetcher) ReadHolds(start, count uint16) ([]byte, error) {
	return f.read(start, count, modbus.HOLDING_REGISTER)
}

// WriteHold writes one hold register and reads it back to confirm the
// inverter accepted the value.
func (f *Fetcher) WriteHold(reg, value uint16) error {
	if err := f.client.WriteRegister(reg, value); err != nil {
		return fmt.Errorf("write register %d: %w", reg, err)
	}
	got, err := f.client.ReadRegister(reg, modbus.HOLDING_REGISTER)
	if err != nil {
		return fmt.Errorf("read back register %d: %w", reg, err)
	}
	if got != value {
		return fmt.Errorf("failed to set register %d, got back value %d (wanted %d)", reg, got, value)
	}
	f.log.WithFields(logrus.Fields{"register": reg, "value": value}).Info("hold register written")
	return nil
}

func (f *Fetcher) read(start, count uint16, regType modbus.RegType) ([]byte, error) {
	buf := make([]byte, 0, int(count)*2)
	for _, blk := range Blocks(start, count, f.block) {
		words, err := f.client.ReadRegisters(blk.Start, blk.Count, regType)
		if err != nil {
			return nil, fmt.Errorf("read %d registers at %d: %w", blk.Count, blk.Start, err)
		}
		f.log.WithFields(logrus.Fields{"start": blk.Start, "count": blk.Count}).Debug("block read")
		buf = append(buf, Pack(words)...)
	}
	return buf, nil
}
