package helper

import (
	"strings"
	"time"
)

const instSuffix = "-USDT-SWAP"

// InstID переводит монету в instId OKX: BTC -> BTC-USDT-SWAP. Готовый instId не трогает.
func InstID(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" || strings.HasSuffix(s, instSuffix) {
		return s
	}
	return s + instSuffix
}

// SymbolFromInstID: обратное к InstID: BTC-USDT-SWAP -> BTC.
func SymbolFromInstID(instID string) string {
	s := strings.ToUpper(strings.TrimSpace(instID))
	if i := strings.IndexByte(s, '-'); i > 0 {
		return s[:i]
	}
	return s
}

// NormTF приводит таймфрейм к нижнему регистру без префикса candle: "1H" -> "1h".
func NormTF(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "60m", "1h":
		return "1h"
	case "120m", "2h":
		return "2h"
	case "240m", "4h":
		return "4h"
	case "1d", "24h":
		return "1d"
	case "1w", "7d":
		return "1w"
	default:
		return s
	}
}

// OKXBar: таймфрейм в формате параметра bar у OKX (часы и выше с заглавной буквой).
func OKXBar(tf string) string {
	s := NormTF(tf)
	switch {
	case strings.HasSuffix(s, "h"), strings.HasSuffix(s, "d"), strings.HasSuffix(s, "w"):
		return strings.ToUpper(s)
	}
	return s
}

// CandleTTL: сколько держать свечи в кеше. Чем крупнее таймфрейм, тем дольше.
func CandleTTL(tf string) time.Duration {
	switch NormTF(tf) {
	case "1w", "1d", "4h":
		return 300 * time.Second
	case "1h", "2h":
		return 180 * time.Second
	case "30m":
		return 120 * time.Second
	case "15m":
		return 90 * time.Second
	case "5m":
		return 60 * time.Second
	case "1m", "3m":
		return 30 * time.Second
	default:
		return 60 * time.Second
	}
}
