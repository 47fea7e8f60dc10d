package service

import (
	"agent_trader/internal/models"
	"strings"
	"testing"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name    string
		cmd     string
		args    string
		want    models.OrderIntent
		wantErr string
	}{
		{
			name: "long with leverage",
			cmd:  "long",
			args: "btc 100 5",
			want: models.OrderIntent{Type: models.IntentPlaceOrder, Symbol: "BTC", Side: models.SideLong, SizeUSD: 100, Leverage: 5},
		},
		{
			name: "short decimal comma",
			cmd:  "short",
			args: "eth 50,5",
			want: models.OrderIntent{Type: models.IntentPlaceOrder, Symbol: "ETH", Side: models.SideShort, SizeUSD: 50.5},
		},
		{
			name: "close",
			cmd:  "close",
			args: "sol",
			want: models.OrderIntent{Type: models.IntentClosePosition, Symbol: "SOL"},
		},
		{
			name: "partial size",
			cmd:  "partial",
			args: "btc 0.01",
			want: models.OrderIntent{Type: models.IntentClosePartial, Symbol: "BTC", Size: 0.01},
		},
		{
			name: "partial percent",
			cmd:  "partial",
			args: "btc 25%",
			want: models.OrderIntent{Type: models.IntentClosePartial, Symbol: "BTC", Fraction: 0.25},
		},
		{
			name: "stop loss",
			cmd:  "sl",
			args: "eth 2990",
			want: models.OrderIntent{Type: models.IntentSetStopLoss, Symbol: "ETH", Price: 2990},
		},
		{
			name: "take profit",
			cmd:  "tp",
			args: "eth 3300",
			want: models.OrderIntent{Type: models.IntentSetTakeProfit, Symbol: "ETH", Price: 3300},
		},
		{
			name: "breakeven",
			cmd:  "be",
			args: "eth",
			want: models.OrderIntent{Type: models.IntentMoveToBreakeven, Symbol: "ETH"},
		},
		{
			name: "cancel by id",
			cmd:  "cancel",
			args: "btc 123",
			want: models.OrderIntent{Type: models.IntentCancelOrder, Symbol: "BTC", OrderID: "123"},
		},
		{
			name: "leverage",
			cmd:  "lev",
			args: "btc 20",
			want: models.OrderIntent{Type: models.IntentSetLeverage, Symbol: "BTC", Leverage: 20},
		},
		{name: "no symbol", cmd: "close", args: "", wantErr: "usage"},
		{name: "missing size", cmd: "long", args: "btc", wantErr: "usage"},
		{name: "bad price", cmd: "sl", args: "eth abc", wantErr: "не число"},
		{name: "negative", cmd: "tp", args: "eth -5", wantErr: "> 0"},
		{name: "fraction over 100", cmd: "partial", args: "btc 150%", wantErr: "доля"},
		{name: "unknown", cmd: "moon", args: "btc", wantErr: "неизвестная"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIntent(tt.cmd, strings.Fields(tt.args))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Source != intentSource {
				t.Fatalf("source = %q", got.Source)
			}
			got.Source, got.Reasoning = "", ""
			if got != tt.want {
				t.Fatalf("got %+v\nwant %+v", got, tt.want)
			}
		})
	}
}
