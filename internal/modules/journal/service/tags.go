package service

import (
	"agent_trader/internal/models"
	"strings"
)

// Пороги тегов. Теги, описание входа для статистики, на решения не влияют.
const (
	confHigh = 0.75
	confMid  = 0.5

	fundingExtreme = 0.0005 // 0.05% за период

	volumeHigh = 1.5
	volumeLow  = 0.5

	rsiOverbought = 70.0
	rsiOversold   = 30.0

	TagApproxExit = "approx_exit"
)

// DeriveTags строит теги по уверенности и снимку рынка на входе. Детерминирована.
func DeriveTags(confidence float64, m *models.MarketSnapshot) []string {
	tags := make([]string, 0, 5)

	// уверенность бывает и в процентах
	if confidence > 1 {
		confidence /= 100
	}
	switch {
	case confidence >= confHigh:
		tags = append(tags, "conf_high")
	case confidence >= confMid:
		tags = append(tags, "conf_mid")
	default:
		tags = append(tags, "conf_low")
	}

	if m == nil {
		return tags
	}

	switch {
	case m.FundingRate >= fundingExtreme:
		tags = append(tags, "funding_extreme_long")
	case m.FundingRate <= -fundingExtreme:
		tags = append(tags, "funding_extreme_short")
	}

	if m.RelVolume > 0 {
		switch {
		case m.RelVolume >= volumeHigh:
			tags = append(tags, "volume_high")
		case m.RelVolume <= volumeLow:
			tags = append(tags, "volume_low")
		}
	}

	if m.RSI > 0 {
		switch {
		case m.RSI >= rsiOverbought:
			tags = append(tags, "rsi_overbought")
		case m.RSI <= rsiOversold:
			tags = append(tags, "rsi_oversold")
		}
	}

	if s := strings.TrimSpace(m.Structure); s != "" {
		s = strings.ToLower(strings.ReplaceAll(s, " ", "_"))
		tags = append(tags, "structure_"+s)
	}
	return tags
}
