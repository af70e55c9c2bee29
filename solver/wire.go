package solver

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math"

	"github.com/calculquebec/cq-formation-ecoulement-chaleur/ctc"
)

// Cell rows travel as gob. Whole cells go over the wire, not just
// temperatures, matching the reference layout; ghost heat and conduction
// are immutable so the extra fields are redundant but keep every row
// self-describing.

func encodeCells(cells []ctc.Cell) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cells); err != nil {
		return nil, fmt.Errorf("solver: encoding %d cells: %w", len(cells), err)
	}
	return buf.Bytes(), nil
}

func decodeCells(body []byte) ([]ctc.Cell, error) {
	var cells []ctc.Cell
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&cells); err != nil {
		return nil, fmt.Errorf("solver: decoding cells: %w", err)
	}
	return cells, nil
}

// Delta sums travel as a fixed 4-byte big-endian float32.

func encodeFloat(v float32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func decodeFloat(b []byte) (float32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("solver: delta payload has %d bytes, want 4", len(b))
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}
