package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadNetwork liest ein Netz im JSON-Format und validiert es.
func LoadNetwork(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var n Network
	if err := json.NewDecoder(f).Decode(&n); err != nil {
		return nil, fmt.Errorf("decode network %s: %w", path, err)
	}
	if n.Source == "" {
		n.Source = Native
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// SaveJSON schreibt das Netz im JSON-Format.
func (n *Network) SaveJSON(path string) error {
	b, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
