// Package idgen generates short, URL-safe sequence IDs backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefix is prepended to every generated ID.
const Prefix = "seq-"

// Alphabet is the character set for the random portion of the ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Length is the number of random characters (excluding the prefix).
const Length = 8

// Generate returns a new sequence ID.
func Generate() (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return Prefix + id, nil
}

// MustGenerate returns a new sequence ID, or the bare prefix if the random
// source fails. Sequence IDs only correlate events, so a blank suffix is
// tolerable.
func MustGenerate() string {
	id, err := Generate()
	if err != nil {
		return Prefix
	}
	return id
}
