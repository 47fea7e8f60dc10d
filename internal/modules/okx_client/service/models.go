package service

// Сырые структуры ответов OKX. Дальше пакета не уходят.

type wirePosition struct {
	InstID   string `json:"instId"`
	InstType string `json:"instType"`
	MgnMode  string `json:"mgnMode"`
	PosSide  string `json:"posSide"` // net | long | short
	Pos      string `json:"pos"`     // в контрактах, в net-режиме со знаком
	AvgPx    string `json:"avgPx"`
	MarkPx   string `json:"markPx"`
	Lever    string `json:"lever"`
	Upl      string `json:"upl"`
	CTime    string `json:"cTime"`
}

type wireInstrument struct {
	InstID string `json:"instId"`
	TickSz string `json:"tickSz"`
	LotSz  string `json:"lotSz"`
	MinSz  string `json:"minSz"`
	CtVal  string `json:"ctVal"`
	CtMult string `json:"ctMult"`
	Lever  string `json:"lever"`
	State  string `json:"state"`
	CtType string `json:"ctType"`
}

type wireBalance struct {
	TotalEq string `json:"totalEq"`
	Imr     string `json:"imr"`
	Upl     string `json:"upl"`
	Details []struct {
		Ccy      string `json:"ccy"`
		AvailEq  string `json:"availEq"`
		AvailBal string `json:"availBal"`
		Eq       string `json:"eq"`
	} `json:"details"`
}

type wireTicker struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	BidPx  string `json:"bidPx"`
	AskPx  string `json:"askPx"`
	TS     string `json:"ts"`
}

type wireBook struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	TS   string     `json:"ts"`
}

type wireFunding struct {
	InstID          string `json:"instId"`
	FundingRate     string `json:"fundingRate"`
	NextFundingRate string `json:"nextFundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
}

type wireOpenInterest struct {
	InstID string `json:"instId"`
	OI     string `json:"oi"`
	OICcy  string `json:"oiCcy"`
}

type wireOrder struct {
	InstID     string `json:"instId"`
	OrdID      string `json:"ordId"`
	Side       string `json:"side"`
	OrdType    string `json:"ordType"`
	Sz         string `json:"sz"`
	Px         string `json:"px"`
	ReduceOnly string `json:"reduceOnly"`
	CTime      string `json:"cTime"`
}

type wireAlgoOrder struct {
	InstID      string `json:"instId"`
	AlgoID      string `json:"algoId"`
	Side        string `json:"side"`
	OrdType     string `json:"ordType"`
	Sz          string `json:"sz"`
	SlTriggerPx string `json:"slTriggerPx"`
	TpTriggerPx string `json:"tpTriggerPx"`
	ReduceOnly  string `json:"reduceOnly"`
	CTime       string `json:"cTime"`
}

type wireFill struct {
	InstID  string `json:"instId"`
	OrdID   string `json:"ordId"`
	Side    string `json:"side"`
	FillPx  string `json:"fillPx"`
	FillSz  string `json:"fillSz"`
	Fee     string `json:"fee"`
	FillPnl string `json:"fillPnl"`
	TS      string `json:"ts"`
}

type wirePositionHistory struct {
	InstID      string `json:"instId"`
	RealizedPnl string `json:"realizedPnl"`
	UTime       string `json:"uTime"`
}

// wireAck: ответ на запись: ordId или algoId плюс статус по элементу.
type wireAck struct {
	OrdID  string `json:"ordId"`
	AlgoID string `json:"algoId"`
	SCode  string `json:"sCode"`
	SMsg   string `json:"sMsg"`
}

type wireLeverage struct {
	InstID  string `json:"instId"`
	Lever   string `json:"lever"`
	MgnMode string `json:"mgnMode"`
}
