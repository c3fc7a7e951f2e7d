// Package dispatcher decodes the CBOR transaction payload and routes it to
// the matching pkg/verbs handler (spec.md §4.7).
package dispatcher

import (
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
)

// Payload is the decoded shape of a transaction's CBOR body: a verb
// selector, its positional string parameters in order, and an optional
// extra field used by a few verbs (the "i" key, spec.md §4.7).
type Payload struct {
	Verb   string
	Params []string
	I      string
	HasI   bool
}

// Decode parses raw as a CBOR map and extracts "v", the ordered "p1","p2",...
// run, and the optional "i". Verb matching is case-insensitive.
func Decode(raw []byte) (*Payload, error) {
	var fields map[string]interface{}
	if err := cbor.Unmarshal(raw, &fields); err != nil {
		return nil, apperr.InvalidWrap(err, "malformed transaction payload")
	}

	v, ok := fields["v"].(string)
	if !ok || v == "" {
		return nil, apperr.Invalid("missing verb selector")
	}

	var params []string
	for n := 1; ; n++ {
		raw, present := fields["p"+strconv.Itoa(n)]
		if !present {
			break
		}
		s, ok := raw.(string)
		if !ok {
			return nil, apperr.Invalid("parameter p%d is not a string", n)
		}
		params = append(params, s)
	}

	p := &Payload{Verb: strings.ToUpper(v), Params: params}
	if iv, present := fields["i"]; present {
		s, ok := iv.(string)
		if !ok {
			return nil, apperr.Invalid("parameter i is not a string")
		}
		p.I = s
		p.HasI = true
	}
	return p, nil
}

// Arg returns the nth (0-indexed) positional parameter, or an error if the
// payload carries too few.
func (p *Payload) Arg(n int) (string, error) {
	if n < 0 || n >= len(p.Params) {
		return "", apperr.Invalid("verb %s: missing parameter p%d", p.Verb, n+1)
	}
	return p.Params[n], nil
}

// RequireArgs fails unless the payload carries exactly n positional
// parameters, matching the verb's fixed-arity contract (spec.md §4.5).
func (p *Payload) RequireArgs(n int) error {
	if len(p.Params) != n {
		return apperr.Invalid("verb %s: expected %d parameters, got %d", p.Verb, n, len(p.Params))
	}
	return nil
}
