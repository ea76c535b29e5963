// Package masking hides sensitive account identifiers from logs and
// reports without touching the durable progress file's own values
// (spec §6).
package masking

import (
	"log/slog"
	"regexp"
)

var (
	phonePattern = regexp.MustCompile(`^\+(\d{3})(\d+)$`)
	hexHashRe    = regexp.MustCompile(`^[0-9a-fA-F]{32,}$`)
)

// Phone masks an international phone number "+CCCnnnnnnnnnn" into
// "+CCC****nnnn", keeping the country code and last four digits.
// Strings that do not match the expected shape are returned unchanged.
func Phone(s string) string {
	m := phonePattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	country, rest := m[1], m[2]
	if len(rest) <= 4 {
		return "+" + country + "****" + rest
	}
	return "+" + country + "****" + rest[len(rest)-4:]
}

// HexHash masks a hex string of length >= 32 (e.g. an API hash) into
// "xxxx****xxxx", keeping the first and last four characters.
func HexHash(s string) string {
	if !hexHashRe.MatchString(s) {
		return s
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// Value wraps a raw string so it is masked only when it reaches a
// slog handler, not when stored or compared in memory (spec §6: "the
// unmasked values never appear in persisted progress files" — here,
// never appear in logs either).
type Value struct {
	Raw  string
	Kind Kind
}

// Kind selects which masking rule Value.LogValue applies.
type Kind int

const (
	KindPhone Kind = iota
	KindHexHash
)

// PhoneValue returns a Value that masks raw as a phone number when logged.
func PhoneValue(raw string) Value { return Value{Raw: raw, Kind: KindPhone} }

// HexHashValue returns a Value that masks raw as a hex hash when logged.
func HexHashValue(raw string) Value { return Value{Raw: raw, Kind: KindHexHash} }

// LogValue implements slog.LogValuer, masking Raw at the point slog
// serializes the attribute.
func (v Value) LogValue() slog.Value {
	switch v.Kind {
	case KindHexHash:
		return slog.StringValue(HexHash(v.Raw))
	default:
		return slog.StringValue(Phone(v.Raw))
	}
}

// String satisfies fmt.Stringer with the same masking, for callers
// that format outside of slog (e.g. report text).
func (v Value) String() string {
	return v.LogValue().String()
}
