package crawler

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// identifierKeys are probed in priority order when deriving an item's dedup
// key. The list covers every identifier field name the site has shipped.
var identifierKeys = []string{
	"id",
	"idFormation",
	"numeroFormation",
	"idAction",
	"externalId",
	"detailUrl",
	"url",
	"lien",
}

// ItemKey reduces a raw item to a stable key used to skip re-surfaced items
// within one query run. When no identifier field resolves, a structural hash
// of the serialized item stands in, so even id-less shapes deduplicate.
func ItemKey(raw RawItem) string {
	for _, key := range identifierKeys {
		switch v := raw[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return key + ":" + s
			}
		case float64:
			return key + ":" + strings.TrimSuffix(fmt.Sprintf("%f", v), ".000000")
		}
	}
	return "hash:" + structuralHash(raw)
}

// structuralHash serializes the item with sorted keys so the hash is stable
// across map iteration order.
func structuralHash(raw RawItem) string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha1.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		if b, err := json.Marshal(raw[k]); err == nil {
			h.Write(b)
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
