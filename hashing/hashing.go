// Package hashing fingerprints uploaded originals for duplicate detection
// and integrity checks.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"image"
	"io"
	"os"
	"strconv"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	"golang.org/x/crypto/blake2b"

	"github.com/camden-git/photopipeline/config"
)

// Fingerprint holds the two hashes of one original upload
type Fingerprint struct {
	// FileHash is 64 lowercase hex characters over the raw bytes
	FileHash string
	// ImageHash is a 64 bit perceptual hash as 16 lowercase hex characters
	ImageHash string
}

// HashComputationError reports a source that could not be fingerprinted
type HashComputationError struct {
	Path string
	Err  error
}

func (e *HashComputationError) Error() string {
	return fmt.Sprintf("failed to compute hashes for '%s': %v", e.Path, e.Err)
}

func (e *HashComputationError) Unwrap() error { return e.Err }

// Extractor computes fingerprints using the configured content hash
type Extractor struct {
	algorithm string
}

func NewExtractor(algorithm string) (*Extractor, error) {
	switch algorithm {
	case "", config.HashSHA256:
		algorithm = config.HashSHA256
	case config.HashBlake2b:
	default:
		return nil, fmt.Errorf("unsupported file hash algorithm '%s'", algorithm)
	}
	return &Extractor{algorithm: algorithm}, nil
}

func (e *Extractor) newHash() hash.Hash {
	if e.algorithm == config.HashBlake2b {
		// a nil key never fails
		h, _ := blake2b.New256(nil)
		return h
	}
	return sha256.New()
}

// Extract streams the file at path through the content hash and decodes it
// for the perceptual hash. Both values are returned or neither is.
func (e *Extractor) Extract(path string) (Fingerprint, error) {
	fileHash, err := e.FileHash(path)
	if err != nil {
		return Fingerprint{}, err
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return Fingerprint{}, &HashComputationError{Path: path, Err: err}
	}
	imageHash, err := ImageHash(img)
	if err != nil {
		return Fingerprint{}, &HashComputationError{Path: path, Err: err}
	}

	return Fingerprint{FileHash: fileHash, ImageHash: imageHash}, nil
}

// FileHash returns the hex content hash of the file at path
func (e *Extractor) FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &HashComputationError{Path: path, Err: err}
	}
	defer f.Close()

	h := e.newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", &HashComputationError{Path: path, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ImageHash returns the DCT perceptual hash of img
func ImageHash(img image.Image) (string, error) {
	ph, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("perceptual hash failed: %w", err)
	}
	return fmt.Sprintf("%016x", ph.GetHash()), nil
}

// Distance is the Hamming distance between two image hashes as produced by
// ImageHash. Near-duplicates land within a handful of bits.
func Distance(a, b string) (int, error) {
	ha, err := parseImageHash(a)
	if err != nil {
		return 0, err
	}
	hb, err := parseImageHash(b)
	if err != nil {
		return 0, err
	}
	return ha.Distance(hb)
}

func parseImageHash(s string) (*goimagehash.ImageHash, error) {
	if len(s) != 16 {
		return nil, fmt.Errorf("image hash '%s' must be 16 hex characters", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid image hash '%s': %w", s, err)
	}
	return goimagehash.NewImageHash(v, goimagehash.PHash), nil
}
