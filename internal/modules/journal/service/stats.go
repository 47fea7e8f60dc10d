package service

import "agent_trader/internal/models"

// TagStats: результат по одному тегу.
type TagStats struct {
	Count  int     `json:"count"`
	Wins   int     `json:"wins"`
	PnLUSD float64 `json:"pnl_usd"`
}

// Stats: агрегаты по журналу. REPLACED входят в закрытые.
type Stats struct {
	Total          int                        `json:"total"`
	Open           int                        `json:"open"`
	Closed         int                        `json:"closed"`
	Wins           int                        `json:"wins"`
	Losses         int                        `json:"losses"`
	WinRate        float64                    `json:"win_rate"`
	TotalPnLUSD    float64                    `json:"total_pnl_usd"`
	AvgPnLUSD      float64                    `json:"avg_pnl_usd"`
	AvgPnLPct      float64                    `json:"avg_pnl_pct"`
	AvgDurationMin float64                    `json:"avg_duration_min"`
	Approximated   int                        `json:"approximated"`
	ByStatus       map[models.TradeStatus]int `json:"by_status"`
	ByTag          map[string]TagStats        `json:"by_tag"`
}

// Stats считает агрегаты по текущему состоянию журнала.
func (j *Journal) Stats() Stats {
	return ComputeStats(j.Trades())
}

// ComputeStats: чистая функция над списком сделок.
func ComputeStats(trades []*models.Trade) Stats {
	s := Stats{
		ByStatus: map[models.TradeStatus]int{},
		ByTag:    map[string]TagStats{},
	}
	var pctSum, durSum float64

	for _, t := range trades {
		s.Total++
		s.ByStatus[t.Status]++
		if t.IsOpen() || t.Result == nil {
			s.Open++
			continue
		}

		s.Closed++
		r := t.Result
		if r.Win {
			s.Wins++
		} else {
			s.Losses++
		}
		s.TotalPnLUSD += r.PnLUSD
		pctSum += r.PnLPct
		durSum += r.DurationMinutes
		if hasTag(t.Tags, TagApproxExit) {
			s.Approximated++
		}

		for _, tag := range t.Tags {
			ts := s.ByTag[tag]
			ts.Count++
			if r.Win {
				ts.Wins++
			}
			ts.PnLUSD = round(ts.PnLUSD+r.PnLUSD, 6)
			s.ByTag[tag] = ts
		}
	}

	if s.Closed > 0 {
		n := float64(s.Closed)
		s.WinRate = round(float64(s.Wins)/n*100, 2)
		s.AvgPnLUSD = round(s.TotalPnLUSD/n, 6)
		s.AvgPnLPct = round(pctSum/n, 6)
		s.AvgDurationMin = round(durSum/n, 2)
	}
	s.TotalPnLUSD = round(s.TotalPnLUSD, 6)
	return s
}
