package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// Decode reads a state document. Empty input and a JSON null decode as an empty state.
func Decode(r io.Reader) (types.GlobalState, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read state document: %w", err)
	}

	state := types.GlobalState{}

	if len(bytes.TrimSpace(data)) == 0 {
		return state, nil
	}

	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state document: %w", err)
	}

	if state == nil {
		state = types.GlobalState{}
	}

	return state, nil
}

// Encode writes a state document as indented JSON.
func Encode(w io.Writer, state types.GlobalState) error {
	if state == nil {
		state = types.GlobalState{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(state); err != nil {
		return fmt.Errorf("failed to encode state document: %w", err)
	}

	return nil
}

// marshal encodes a state document into memory.
func marshal(state types.GlobalState) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, state); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
