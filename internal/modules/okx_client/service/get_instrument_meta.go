package service

import (
	"agent_trader/internal/helper"
	"agent_trader/internal/models"
	"agent_trader/pkg/logger"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Constraints: ограничения инструмента (кеш 300s). При ошибке, нулевые, Valid() == false.
func (c *Client) Constraints(ctx context.Context, symbol string) models.SymbolConstraints {
	symbol = strings.ToUpper(symbol)
	sc, _ := c.constraints.GetOrFetch(symbol, func() (models.SymbolConstraints, error) {
		return c.fetchConstraints(ctx, symbol)
	})
	return sc
}

func (c *Client) fetchConstraints(ctx context.Context, symbol string) (models.SymbolConstraints, error) {
	instID := helper.InstID(symbol)
	data, err := call[wireInstrument](ctx, c, request{
		op:     "instruments",
		method: http.MethodGet,
		path:   "/api/v5/public/instruments",
		query:  url.Values{"instType": {"SWAP"}, "instId": {instID}},
	})
	if err != nil {
		return models.SymbolConstraints{}, err
	}
	if len(data) == 0 {
		return models.SymbolConstraints{}, &CallError{Kind: KindMalformed, Op: "instruments", Msg: "instrument " + instID + " not found"}
	}

	inst := data[0]
	if inst.State != "" && inst.State != "live" {
		logger.Warn("[OKX] instrument %s not live: state=%s", instID, inst.State)
	}

	tick := pdec(inst.TickSz)
	lot := pdec(inst.LotSz)
	minSz := pdec(inst.MinSz)
	ctVal := pdec(inst.CtVal)
	if !tick.IsPositive() || !lot.IsPositive() || !ctVal.IsPositive() {
		return models.SymbolConstraints{}, &CallError{
			Kind: KindMalformed,
			Op:   "instruments",
			Msg:  fmt.Sprintf("bad meta %s: tickSz=%q lotSz=%q ctVal=%q", instID, inst.TickSz, inst.LotSz, inst.CtVal),
		}
	}
	// эффективный размер контракта в базовой монете
	if mult := pdec(inst.CtMult); mult.IsPositive() {
		ctVal = ctVal.Mul(mult)
	}

	lotBase := lot.Mul(ctVal)
	return models.SymbolConstraints{
		Symbol:        symbol,
		InstID:        instID,
		SizeDecimals:  models.StepDecimals(lotBase),
		LotStep:       lotBase,
		MinSize:       minSz.Mul(ctVal),
		TickSize:      tick,
		ContractValue: ctVal,
		MaxLeverage:   pf(inst.Lever),
		IsolatedOnly:  c.isolatedOnly != nil && c.isolatedOnly(symbol),
		FetchedAt:     c.now(),
	}, nil
}

// toContracts: базовая монета в контракты, вниз к лоту. Строка уже в формате биржи.
func toContracts(size float64, sc models.SymbolConstraints) (string, error) {
	if !sc.ContractValue.IsPositive() {
		return "", fmt.Errorf("no contract value for %s", sc.Symbol)
	}
	base := helper.RoundDownToStep(decimal.NewFromFloat(size), sc.Step())
	lot := sc.Step().Div(sc.ContractValue)
	contracts := helper.RoundDownToStep(base.Div(sc.ContractValue), lot)
	if !contracts.IsPositive() {
		return "", fmt.Errorf("size %v below one lot (%s base)", size, sc.Step())
	}
	return helper.FormatDec(contracts, models.StepDecimals(lot)), nil
}

// toBase: контракты в базовую монету.
func toBase(contracts string, sc models.SymbolConstraints) float64 {
	n := pdec(contracts).Abs()
	if !sc.ContractValue.IsPositive() {
		return n.InexactFloat64()
	}
	return n.Mul(sc.ContractValue).InexactFloat64()
}
