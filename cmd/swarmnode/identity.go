package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"

	"github.com/banyanmesh/core/model"
)

const identityFile = "identity.key"

// loadOrCreateIdentity reads dir/identity.key (a raw Ed25519 private
// key) if present, or generates and persists a fresh one. No teacher
// package manages keypairs, so this mesh's node identity is minted
// directly against the standard library (see DESIGN.md).
func loadOrCreateIdentity(dir string) (model.NodeId, error) {
	path := filepath.Join(dir, identityFile)
	b, err := os.ReadFile(path)
	if err == nil && len(b) == ed25519.PrivateKeySize {
		priv := ed25519.PrivateKey(b)
		return model.DeriveNodeId(priv.Public().(ed25519.PublicKey)), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return model.NodeId{}, err
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return model.NodeId{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.NodeId{}, err
	}
	if err := os.WriteFile(path, priv, 0o600); err != nil {
		return model.NodeId{}, err
	}
	return model.DeriveNodeId(priv.Public().(ed25519.PublicKey)), nil
}
