package ingest

import (
	"encoding/json"
	"strconv"
	"strings"

	"pmwatch/internal/domain"
)

// The public APIs are loose with types: numbers arrive as floats or
// strings, list fields arrive JSON-encoded inside strings. Parsing is
// tolerant field by field; a missing field is a zero value, never an error.

func parseTrade(item map[string]any) domain.Trade {
	t := domain.Trade{
		ProxyWallet:     asString(item["proxyWallet"]),
		Side:            domain.Side(strings.ToUpper(asString(item["side"]))),
		Asset:           asString(item["asset"]),
		ConditionID:     asString(item["conditionId"]),
		Size:            asFloat(item["size"]),
		Price:           asFloat(item["price"]),
		Timestamp:       asInt(item["timestamp"]),
		Title:           asString(item["title"]),
		Slug:            asString(item["slug"]),
		EventSlug:       asString(item["eventSlug"]),
		Outcome:         asString(item["outcome"]),
		OutcomeIndex:    int(asInt(item["outcomeIndex"])),
		TransactionHash: asString(item["transactionHash"]),
		Name:            asString(item["name"]),
		Pseudonym:       asString(item["pseudonym"]),
	}
	if _, ok := item["outcomeIndex"]; !ok {
		t.OutcomeIndex = -1
	}
	t.ID = domain.StableTradeID(t.TransactionHash, t.Asset, t.OutcomeIndex, string(t.Side), t.ProxyWallet, t.Timestamp)
	return t
}

func parseMarket(item map[string]any, conditionID string) *domain.Market {
	m := &domain.Market{
		ConditionID:  asString(item["conditionId"]),
		Question:     asString(item["question"]),
		Slug:         asString(item["slug"]),
		LiquidityNum: maybeFloat(item["liquidityNum"]),
		Volume24hr:   maybeFloat(item["volume24hr"]),
	}
	if m.ConditionID == "" {
		m.ConditionID = conditionID
	}

	for _, s := range asStringList(item["outcomes"]) {
		m.Outcomes = append(m.Outcomes, s)
	}
	for _, s := range asStringList(item["outcomePrices"]) {
		m.OutcomePrices = append(m.OutcomePrices, parseFloatString(s))
	}
	return m
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		return parseFloatString(x)
	case json.Number:
		f, _ := x.Float64()
		return f
	default:
		return 0
	}
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case float64:
		return int64(x)
	case string:
		return int64(parseFloatString(x))
	case json.Number:
		i, err := x.Int64()
		if err == nil {
			return i
		}
		f, _ := x.Float64()
		return int64(f)
	default:
		return 0
	}
}

// maybeFloat keeps "absent" distinct from zero: heuristics must skip
// markets whose liquidity/volume the API did not report.
func maybeFloat(v any) *float64 {
	if v == nil {
		return nil
	}
	switch x := v.(type) {
	case float64:
		return &x
	case string:
		if x == "" {
			return nil
		}
		f := parseFloatString(x)
		return &f
	default:
		return nil
	}
}

// asStringList handles both a JSON array and an array JSON-encoded inside
// a string, which is how gamma returns outcome lists.
func asStringList(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, asString(e))
		}
		return out
	case string:
		var decoded []any
		if err := json.Unmarshal([]byte(x), &decoded); err != nil {
			return nil
		}
		out := make([]string, 0, len(decoded))
		for _, e := range decoded {
			switch ev := e.(type) {
			case string:
				out = append(out, ev)
			case float64:
				out = append(out, strconv.FormatFloat(ev, 'f', -1, 64))
			}
		}
		return out
	default:
		return nil
	}
}

func parseFloatString(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
