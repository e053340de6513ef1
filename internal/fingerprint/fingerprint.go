// Package fingerprint computes the identity of a filter step's output.
//
// A fingerprint is a digest over the filter identity, its effective settings
// and the canonical encoding of its input. Two steps with equal fingerprints
// produce the same output, so the fingerprint is the artifact cache key.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"maps"
	"slices"

	"git.home.luguber.info/inful/docpipe/internal/codec"
	"git.home.luguber.info/inful/docpipe/internal/sectioned"
)

// Inputs is everything that determines a step's output.
type Inputs struct {
	FilterAlias   string
	FilterVersion string
	Settings      map[string]any
	// InputName is the file name the step sees, e.g. "example.py".
	InputName string
	Input     sectioned.Data
	// Dependencies holds fingerprints of completed children the step may read.
	Dependencies map[string]string
}

// Fingerprint is a digest plus the algorithm that produced it.
type Fingerprint struct {
	Algorithm Algorithm
	Digest    string
}

// String returns the hex digest.
func (f Fingerprint) String() string { return f.Digest }

// Short returns an abbreviated digest for logs.
func (f Fingerprint) Short() string {
	if len(f.Digest) > 12 {
		return f.Digest[:12]
	}
	return f.Digest
}

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool { return f.Digest == "" }

type section struct {
	Name string `cbor:"n"`
	Data []byte `cbor:"d"`
}

type dependency struct {
	Key         string `cbor:"k"`
	Fingerprint string `cbor:"f"`
}

// canonicalInputs is the encoded preimage. The algorithm name is part of it
// so digests of different algorithms never coincide by accident.
type canonicalInputs struct {
	Algorithm     string         `cbor:"alg"`
	FilterAlias   string         `cbor:"filter"`
	FilterVersion string         `cbor:"version"`
	Settings      map[string]any `cbor:"settings"`
	InputName     string         `cbor:"name"`
	Sections      []section      `cbor:"sections"`
	Dependencies  []dependency   `cbor:"deps"`
}

// Canonical returns the deterministic encoding of in.
func Canonical(alg Algorithm, in Inputs) ([]byte, error) {
	c := canonicalInputs{
		Algorithm:     string(alg),
		FilterAlias:   in.FilterAlias,
		FilterVersion: in.FilterVersion,
		Settings:      in.Settings,
		InputName:     in.InputName,
		Sections:      make([]section, 0, in.Input.Len()),
		Dependencies:  make([]dependency, 0, len(in.Dependencies)),
	}
	if c.Settings == nil {
		c.Settings = map[string]any{}
	}
	for _, s := range in.Input.Sections() {
		c.Sections = append(c.Sections, section{Name: s.Name, Data: s.Data})
	}
	for _, k := range slices.Sorted(maps.Keys(in.Dependencies)) {
		c.Dependencies = append(c.Dependencies, dependency{Key: k, Fingerprint: in.Dependencies[k]})
	}

	data, err := codec.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fingerprint inputs: %w", err)
	}
	return data, nil
}

// Compute returns the fingerprint of in under alg.
func Compute(alg Algorithm, in Inputs) (Fingerprint, error) {
	data, err := Canonical(alg, in)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Algorithm: alg, Digest: Sum(alg, data)}, nil
}

// Sum returns the hex digest of data.
func Sum(alg Algorithm, data []byte) string {
	h := alg.New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
