package stocksync

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/olegsm/retaildesk/pkg/models"
)

// Signal holds the values extracted from one query record. Symbol is empty
// when no ticker could be resolved; Sentiment and Volume are nil when no
// finite number was found at any known location.
type Signal struct {
	Symbol    string
	Sentiment *float64
	Volume    *float64
}

// The prototype services that wrote query records disagreed about where the
// symbol, sentiment and volume live: sometimes a dedicated column, sometimes
// a key in the metadata document, sometimes a nested meta/metrics/payload
// object. Each location is one strategy in an ordered chain; the first hit
// wins, so precedence is explicit rather than incidental.

type symbolSource struct {
	name string
	get  func(rec *models.QueryRecord) (string, bool)
}

type numberSource struct {
	name string
	get  func(rec *models.QueryRecord) (float64, bool)
}

var symbolSources = []symbolSource{
	{"stock_symbol column", func(rec *models.QueryRecord) (string, bool) {
		return stringField(rec.StockSymbol)
	}},
	{"symbol column", func(rec *models.QueryRecord) (string, bool) {
		return stringField(rec.Symbol)
	}},
	{"metadata stockSymbol", func(rec *models.QueryRecord) (string, bool) {
		return metadataString(rec.Metadata, "stockSymbol")
	}},
	{"metadata symbol", func(rec *models.QueryRecord) (string, bool) {
		return metadataString(rec.Metadata, "symbol")
	}},
}

var sentimentSources = []numberSource{
	{"sentiment column", func(rec *models.QueryRecord) (float64, bool) {
		return numberField(rec.Sentiment)
	}},
	{"sentiment_score column", func(rec *models.QueryRecord) (float64, bool) {
		return numberField(rec.SentimentScore)
	}},
	{"sentiment_index column", func(rec *models.QueryRecord) (float64, bool) {
		return numberField(rec.SentimentIndex)
	}},
	{"metrics.sentiment", childNumber("metrics", "sentiment")},
	{"metrics.sentimentScore", childNumber("metrics", "sentimentScore")},
	{"meta.sentiment", childNumber("meta", "sentiment")},
	{"meta.sentimentScore", childNumber("meta", "sentimentScore")},
	{"metadata.sentiment", topNumber("sentiment")},
	{"metadata.sentimentScore", topNumber("sentimentScore")},
}

var volumeSources = []numberSource{
	{"volume column", func(rec *models.QueryRecord) (float64, bool) {
		return numberField(rec.Volume)
	}},
	{"trade_volume column", func(rec *models.QueryRecord) (float64, bool) {
		return numberField(rec.TradeVolume)
	}},
	{"metrics.volume", childNumber("metrics", "volume")},
	{"metadata.volume", topNumber("volume")},
	{"meta.volume", childNumber("meta", "volume")},
}

// Extract resolves the symbol, sentiment and volume signals from one record.
// Pure and total: malformed or missing fields degrade to empty/nil.
func Extract(rec *models.QueryRecord) Signal {
	var sig Signal

	for _, src := range symbolSources {
		if sym, ok := src.get(rec); ok {
			sig.Symbol = strings.ToUpper(strings.TrimSpace(sym))
			break
		}
	}

	for _, src := range sentimentSources {
		if v, ok := src.get(rec); ok {
			sig.Sentiment = &v
			break
		}
	}

	for _, src := range volumeSources {
		if v, ok := src.get(rec); ok {
			sig.Volume = &v
			break
		}
	}

	return sig
}

func stringField(p *string) (string, bool) {
	if p == nil || strings.TrimSpace(*p) == "" {
		return "", false
	}
	return *p, true
}

func numberField(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0, false
	}
	return *p, true
}

// metadataString probes the metadata document for a non-empty string at key,
// checking the document itself first and then its meta/payload children.
func metadataString(meta models.Metadata, key string) (string, bool) {
	for _, m := range []models.Metadata{meta, meta.Child("meta"), meta.Child("payload")} {
		if m == nil {
			continue
		}
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

func topNumber(key string) func(rec *models.QueryRecord) (float64, bool) {
	return func(rec *models.QueryRecord) (float64, bool) {
		return finiteNumber(rec.Metadata[key])
	}
}

func childNumber(child, key string) func(rec *models.QueryRecord) (float64, bool) {
	return func(rec *models.QueryRecord) (float64, bool) {
		m := rec.Metadata.Child(child)
		if m == nil {
			return 0, false
		}
		return finiteNumber(m[key])
	}
}

// finiteNumber accepts the numeric shapes a JSONB document can decode to
// and rejects anything non-finite.
func finiteNumber(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
