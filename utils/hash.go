package utils

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson"
)

// CanonicalFormat names the serialization HashDocument digests. Changing any
// rule below makes previously stored hashes unverifiable, so bump it instead.
//
// canonical-v1: relaxed MongoDB Extended JSON, object keys sorted by byte
// order at every depth, number literals kept as written by the BSON encoder,
// no whitespace, no HTML escaping. Every key and string value must be valid
// UTF-8; documents carrying other bytes are rejected rather than hashed.
const CanonicalFormat = "canonical-v1"

var ErrInvalidUTF8 = errors.New("invalid utf-8")

// CanonicalJSON renders doc (a struct, bson.M, bson.D or map) in the
// canonical-v1 form.
func CanonicalJSON(doc any) ([]byte, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal bson: %w", err)
	}
	if err := checkUTF8(raw, ""); err != nil {
		return nil, err
	}

	ext, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("marshal extended json: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(ext))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode extended json: %w", err)
	}

	// encoding/json writes map keys in sorted order.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode canonical json: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// HashDocument returns the lowercase hex SHA-256 of doc's canonical form.
// Values are hashed as serialized: a timestamp that changes representation
// changes the hash even if it denotes the same instant.
func HashDocument(doc any) (string, error) {
	canonical, err := CanonicalJSON(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// checkUTF8 walks every key and string of a BSON document. JSON decoding
// would replace bad bytes with U+FFFD, making distinct documents collide.
func checkUTF8(doc bson.Raw, path string) error {
	elems, err := doc.Elements()
	if err != nil {
		return fmt.Errorf("read bson: %w", err)
	}
	for _, el := range elems {
		key := el.Key()
		if !utf8.ValidString(key) {
			return fmt.Errorf("key under %q: %w", path, ErrInvalidUTF8)
		}
		field := key
		if path != "" {
			field = path + "." + key
		}

		v := el.Value()
		switch v.Type {
		case bson.TypeString:
			if !utf8.ValidString(v.StringValue()) {
				return fmt.Errorf("field %q: %w", field, ErrInvalidUTF8)
			}
		case bson.TypeEmbeddedDocument:
			if err := checkUTF8(v.Document(), field); err != nil {
				return err
			}
		case bson.TypeArray:
			if err := checkUTF8(v.Array(), field); err != nil {
				return err
			}
		}
	}
	return nil
}
