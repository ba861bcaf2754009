package ledger

import (
	"encoding/json"
	"strings"
)

// Block is a decoded ledger block reduced to what verification needs.
type Block struct {
	Hash           string
	Height         int64
	TransactionIDs []string
}

// The public ledger nodes do not all agree on where a block keeps its
// transaction id list. These extractors encode the shapes observed in the
// wild, tried in fixed precedence order with the first non-empty result
// winning. This list documents upstream quirks, not a stable contract.
var extractors = []func(map[string]any) []string{
	extractVerboseIDs,       // {"verboseData":{"transactionIds":[...]}}
	extractTopLevelIDs,      // {"transactionIds":[...]}
	extractTransactionLists, // {"transactions":[{"verboseData":{"transactionId":..}} ...]}
}

// parseBlock decodes one raw block payload, tolerating the shape
// variations across upstream nodes.
func parseBlock(raw json.RawMessage) Block {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Block{}
	}

	var blk Block

	if hash, ok := obj["hash"].(string); ok {
		blk.Hash = hash
	}

	if vd, ok := obj["verboseData"].(map[string]any); ok {
		if height, ok := vd["blockHeight"].(float64); ok {
			blk.Height = int64(height)
		}
	}

	for _, extract := range extractors {
		if ids := extract(obj); len(ids) > 0 {
			blk.TransactionIDs = ids
			break
		}
	}

	return blk
}

func extractVerboseIDs(obj map[string]any) []string {
	vd, ok := obj["verboseData"].(map[string]any)
	if !ok {
		return nil
	}
	return stringSlice(vd["transactionIds"])
}

func extractTopLevelIDs(obj map[string]any) []string {
	return stringSlice(obj["transactionIds"])
}

func extractTransactionLists(obj map[string]any) []string {
	txs, ok := obj["transactions"].([]any)
	if !ok {
		return nil
	}

	var ids []string
	for _, tx := range txs {
		txObj, ok := tx.(map[string]any)
		if !ok {
			continue
		}

		if vd, ok := txObj["verboseData"].(map[string]any); ok {
			if id, ok := vd["transactionId"].(string); ok {
				ids = append(ids, id)
				continue
			}
		}

		if id, ok := txObj["transactionId"].(string); ok {
			ids = append(ids, id)
		}
	}

	return ids
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	var ss []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			ss = append(ss, s)
		}
	}

	return ss
}

// matchID reports whether the target id appears in the list. The upstream
// id format has been seen varying in casing and framing, so matching is
// attempted in order: exact, case-insensitive, then the target as a
// substring of a listed id.
func matchID(ids []string, target string) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}

	for _, id := range ids {
		if strings.EqualFold(id, target) {
			return true
		}
	}

	for _, id := range ids {
		if strings.Contains(id, target) {
			return true
		}
	}

	return false
}

// NormalizeID canonicalizes a transaction id that may arrive wrapped in
// quotes, whitespace, or serialized objects. Upstream callers reach this
// API through several independent paths with inconsistent encoding, so
// the id is cleaned once here at the boundary.
func NormalizeID(raw string) string {
	id := strings.TrimSpace(raw)
	id = strings.Trim(id, `"'`)
	id = strings.TrimSpace(id)

	if strings.HasPrefix(id, "{") && strings.HasSuffix(id, "}") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(id), &obj); err != nil {
			return id
		}

		for _, field := range []string{"id", "transactionId"} {
			raw, exists := obj[field]
			if !exists {
				continue
			}

			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				return NormalizeID(s)
			}

			// Wrapped again. Recurse on the nested object.
			return NormalizeID(string(raw))
		}
	}

	return id
}
