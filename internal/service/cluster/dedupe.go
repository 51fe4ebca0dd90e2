package cluster

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
)

const (
	signatureSize = 8
	bandSize      = 2
	matchHashes   = 6
)

// signature is a min-hash sketch of an article body's shingled content.
type signature [signatureSize]uint64

// DupResult is the outcome of checking one article body.
type DupResult struct {
	IsDuplicate bool   `json:"is_duplicate"`
	OriginalRef string `json:"original_ref,omitempty"`
}

// Deduper flags near-identical article bodies. Duplicates are not
// merged destructively: both copies are retained for audit, the flag
// points at the original, and only the original counts toward trend
// evidence.
type Deduper struct {
	mu          sync.Mutex
	shingleSize int
	sigs        map[string]signature
	bands       map[string][]string
}

// NewDeduper creates a new article duplicate detector.
func NewDeduper(shingleSize int) *Deduper {
	if shingleSize <= 0 {
		shingleSize = 4
	}
	return &Deduper{
		shingleSize: shingleSize,
		sigs:        make(map[string]signature),
		bands:       make(map[string][]string),
	}
}

// Check registers an article body under its reference and reports
// whether a near-identical body was already recorded. The first
// registration of a body is always the original; repeat calls with the
// same reference are no-ops.
func (d *Deduper) Check(ref, body string) DupResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sigs[ref]; ok {
		return DupResult{}
	}

	sig := d.signature(body)

	original := ""
	for _, candidate := range d.candidates(sig) {
		if candidate == ref {
			continue
		}
		if matching(sig, d.sigs[candidate]) >= matchHashes {
			original = candidate
			break
		}
	}

	// Retain the signature either way so later copies point at the
	// earliest registered article.
	d.sigs[ref] = sig
	if original == "" {
		d.index(ref, sig)
		return DupResult{}
	}

	return DupResult{IsDuplicate: true, OriginalRef: original}
}

// signature builds the min-hash sketch over token shingles.
func (d *Deduper) signature(body string) signature {
	tokens := Tokens(body)

	var sig signature
	for i := range sig {
		sig[i] = ^uint64(0)
	}
	if len(tokens) == 0 {
		return sig
	}

	n := len(tokens) - d.shingleSize + 1
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		end := i + d.shingleSize
		if end > len(tokens) {
			end = len(tokens)
		}
		shingle := strings.Join(tokens[i:end], " ")
		for seed := 0; seed < signatureSize; seed++ {
			h := fnv.New64a()
			fmt.Fprintf(h, "%d:%s", seed, shingle)
			if v := h.Sum64(); v < sig[seed] {
				sig[seed] = v
			}
		}
	}

	return sig
}

// candidates returns refs sharing at least one locality band with the
// signature, avoiding a scan over every recorded article.
func (d *Deduper) candidates(sig signature) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, band := range bandKeys(sig) {
		for _, ref := range d.bands[band] {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			out = append(out, ref)
		}
	}
	return out
}

func (d *Deduper) index(ref string, sig signature) {
	for _, band := range bandKeys(sig) {
		d.bands[band] = append(d.bands[band], ref)
	}
}

func bandKeys(sig signature) []string {
	keys := make([]string, 0, signatureSize/bandSize)
	for i := 0; i < signatureSize; i += bandSize {
		keys = append(keys, fmt.Sprintf("%d:%x:%x", i, sig[i], sig[i+1]))
	}
	return keys
}

func matching(a, b signature) int {
	n := 0
	for i := range a {
		if a[i] == b[i] {
			n++
		}
	}
	return n
}
