package service

import (
	"agent_trader/internal/models"
	"strings"

	"github.com/pkg/errors"
)

const intentSource = "telegram"

var errUsage = errors.New("usage")

// parseIntent разбирает торговую команду. Символ, голая монета: /long btc 100 5.
func parseIntent(cmd string, args []string) (models.OrderIntent, error) {
	in := models.OrderIntent{Source: intentSource, Reasoning: "manual /" + cmd}
	if len(args) == 0 {
		return in, errUsage
	}
	in.Symbol = strings.ToUpper(args[0])
	rest := args[1:]

	num := func(i int) (float64, error) {
		if i >= len(rest) {
			return 0, errUsage
		}
		return parseNum(rest[i])
	}

	var err error
	switch cmd {
	case "long", "short":
		in.Type = models.IntentPlaceOrder
		in.Side = models.SideLong
		if cmd == "short" {
			in.Side = models.SideShort
		}
		if in.SizeUSD, err = num(0); err != nil {
			return in, err
		}
		if len(rest) > 1 {
			if in.Leverage, err = num(1); err != nil {
				return in, err
			}
		}
	case "close":
		in.Type = models.IntentClosePosition
	case "partial":
		in.Type = models.IntentClosePartial
		if len(rest) == 0 {
			return in, errUsage
		}
		// 50%, доля позиции, иначе размер в монете
		if pct, ok := strings.CutSuffix(rest[0], "%"); ok {
			v, perr := parseNum(pct)
			if perr != nil || v > 100 {
				return in, errors.Errorf("доля должна быть в (0, 100]: %q", rest[0])
			}
			in.Fraction = v / 100
		} else if in.Size, err = num(0); err != nil {
			return in, err
		}
	case "sl", "tp":
		in.Type = models.IntentSetStopLoss
		if cmd == "tp" {
			in.Type = models.IntentSetTakeProfit
		}
		if in.Price, err = num(0); err != nil {
			return in, err
		}
	case "be":
		in.Type = models.IntentMoveToBreakeven
	case "cancel":
		in.Type = models.IntentCancelOrder
		if len(rest) > 0 {
			in.OrderID = rest[0]
		}
	case "lev":
		in.Type = models.IntentSetLeverage
		if in.Leverage, err = num(0); err != nil {
			return in, err
		}
	default:
		return in, errors.Errorf("неизвестная команда /%s", cmd)
	}
	return in, nil
}

var usage = map[string]string{
	"long":    "/long SYM USD [LEV]",
	"short":   "/short SYM USD [LEV]",
	"close":   "/close SYM",
	"partial": "/partial SYM SIZE|PCT%",
	"sl":      "/sl SYM PRICE",
	"tp":      "/tp SYM PRICE",
	"be":      "/be SYM",
	"cancel":  "/cancel SYM [ORDER_ID]",
	"lev":     "/lev SYM X",
}

const helpText = "Команды:\n" +
	"/positions — позиции и защита BE\n" +
	"/stats — статистика журнала\n" +
	"/rejects, /errors — последние отказы и ошибки\n" +
	"/long SYM USD [LEV], /short SYM USD [LEV]\n" +
	"/close SYM, /partial SYM SIZE|PCT%\n" +
	"/sl SYM PRICE, /tp SYM PRICE, /be SYM\n" +
	"/cancel SYM [ORDER_ID], /lev SYM X\n" +
	"Торговые команды исполняются на ближайшем тике."
