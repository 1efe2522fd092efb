// Package encoding implements content-encoding negotiation: given an
// Accept-Encoding header and an ordered set of candidate pre-compressed
// encodings, produce the preference-ordered list of encodings to attempt
// opening.
package encoding

import (
	"math"
	"sort"

	"github.com/sendstream-go/sendstream/header"
)

// Identity is the synthetic "no encoding" entry, always a fallback target
// unless explicitly excluded with "identity;q=0".
const Identity = "identity"

// Candidate is one entry in a backend's encoding map: a named encoding, its
// preference order (lower = more preferred), and an
// opaque template the caller uses to locate that encoding's bytes (a
// filesystem adapter uses it as a path-rewrite template; other backends may
// ignore it).
type Candidate struct {
	Name     string
	Order    int
	Template string
}

// sentinelWeight sorts below every real qvalue (which is in [0,1]) but is
// still preferred over "not present at all" — i.e., identity remains
// reachable as a fallback even when the client didn't mention it.
const sentinelWeight = -1

// Negotiate returns the preference-ordered list of candidates to attempt,
// given the raw Accept-Encoding header value (empty string if absent) and
// the backend's candidate set. A synthetic identity candidate is added if
// candidates doesn't already contain one.
func Negotiate(acceptEncoding string, candidates []Candidate) []Candidate {
	candidates = ensureIdentity(candidates)

	if acceptEncoding == "" {
		return []Candidate{identityOnly(candidates)}
	}

	codings, ok := header.ParseAcceptEncoding(acceptEncoding)
	if !ok {
		return []Candidate{identityOnly(candidates)}
	}

	weight := make(map[string]float64)
	explicit := make(map[string]bool)
	for _, c := range codings {
		if c.Name == "*" {
			for _, cand := range candidates {
				if !explicit[cand.Name] {
					if w, ok := weight[cand.Name]; !ok || c.Q > w {
						weight[cand.Name] = c.Q
					}
				}
			}
			continue
		}
		found := false
		for _, cand := range candidates {
			if cand.Name == c.Name {
				found = true
				break
			}
		}
		if !found {
			continue // unknown encoding: skip
		}
		weight[c.Name] = c.Q
		explicit[c.Name] = true
	}

	if _, ok := weight[Identity]; !ok {
		weight[Identity] = sentinelWeight
	}

	type scored struct {
		Candidate
		q float64
	}
	var result []scored
	for _, cand := range candidates {
		q, ok := weight[cand.Name]
		if !ok || q == 0 {
			continue
		}
		result = append(result, scored{cand, q})
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].q != result[j].q {
			return result[i].q > result[j].q
		}
		return result[i].Order < result[j].Order
	})

	out := make([]Candidate, len(result))
	for i, r := range result {
		out[i] = r.Candidate
	}
	return out
}

func identityOnly(candidates []Candidate) Candidate {
	for _, c := range candidates {
		if c.Name == Identity {
			return c
		}
	}
	return Candidate{Name: Identity, Order: math.MaxInt32, Template: "$&"}
}

// ensureIdentity returns candidates with a synthetic identity entry appended
// if one isn't already present.
func ensureIdentity(candidates []Candidate) []Candidate {
	for _, c := range candidates {
		if c.Name == Identity {
			return candidates
		}
	}
	out := make([]Candidate, len(candidates), len(candidates)+1)
	copy(out, candidates)
	return append(out, Candidate{Name: Identity, Order: len(candidates), Template: "$&"})
}
