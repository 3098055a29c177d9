package tws

import "fmt"

// Contract identifies a tradable instrument on the upstream terminal API.
// ConID is the stable integer identity; everything else is descriptive.
type Contract struct {
	ConID           int64
	Symbol          string
	SecType         string
	Currency        string
	Exchange        string
	PrimaryExchange string
	LocalSymbol     string
}

func (c Contract) String() string {
	return fmt.Sprintf("%s(%d)/%s@%s", c.Symbol, c.ConID, c.Currency, c.Exchange)
}

// ContractDetails is the metadata payload returned for a contract details
// request. The hours fields are schedule strings in the terminal's
// day-segmented format.
type ContractDetails struct {
	Contract     Contract
	TimeZoneID   string
	LiquidHours  string
	TradingHours string
}

// FXContract builds the cash-pair descriptor used to stream a currency's
// rate against the base currency, e.g. FXContract("EUR", "USD") quotes
// EUR.USD so the mid price is the rate to base.
func FXContract(symbol, base string) Contract {
	return Contract{
		Symbol:   symbol,
		SecType:  "CASH",
		Currency: base,
		Exchange: "IDEALPRO",
	}
}
