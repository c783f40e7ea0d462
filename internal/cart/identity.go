package cart

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
)

// AttributesHash is the attribute part of an item identity. Keys are sorted
// and each pair is length-prefixed so no two maps share a digest. A nil and
// an empty map hash the same.
func AttributesHash(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		writeField(h, k)
		writeField(h, attrs[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(w io.Writer, s string) {
	_, _ = w.Write([]byte(strconv.Itoa(len(s))))
	_, _ = w.Write([]byte{':'})
	_, _ = w.Write([]byte(s))
}

// normalizeAttributes trims keys and rejects empty or oversized entries.
func normalizeAttributes(attrs map[string]string) (map[string]string, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	if len(attrs) > maxAttributes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many custom attributes").
			WithDetails(map[string]any{"max": maxAttributes})
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "custom attribute keys must not be empty")
		}
		if _, dup := out[key]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate custom attribute key").
				WithDetails(map[string]any{"key": key})
		}
		if len(key) > maxAttributeLen || len(v) > maxAttributeLen {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "custom attribute too long").
				WithDetails(map[string]any{"key": key, "max": maxAttributeLen})
		}
		out[key] = v
	}
	return out, nil
}
