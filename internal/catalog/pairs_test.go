package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	eur := Options(ModeEURCrypto)
	crypto := Options(ModeCryptoCrypto)

	require.Len(t, eur, 10)
	require.Len(t, crypto, 10)
	assert.Equal(t, "BTC_EUR", eur[0].ID)
	assert.Equal(t, "BTC_USDT", crypto[0].ID)
	assert.Len(t, All(), 20)

	for _, p := range eur {
		assert.Equal(t, ModeEURCrypto, p.Mode, p.ID)
	}

	// callers cannot mutate the catalog
	eur[0].Symbol = "XXX"
	assert.Equal(t, "BTC/EUR", Options(ModeEURCrypto)[0].Symbol)
}

func TestResolve(t *testing.T) {
	p, err := Resolve(Selection{Mode: ModeEURCrypto, PairID: "ETH_EUR"})
	require.NoError(t, err)
	assert.Equal(t, "ETH/EUR", p.Symbol)

	// pair from the other mode falls back to the first pair of the mode
	p, err = Resolve(Selection{Mode: ModeEURCrypto, PairID: "BTC_USDT"})
	require.NoError(t, err)
	assert.Equal(t, "BTC_EUR", p.ID)

	_, err = Resolve(Selection{Mode: "FX", PairID: "BTC_EUR"})
	assert.ErrorIs(t, err, ErrUnknownPair)
}

func TestSymbols(t *testing.T) {
	p, ok := Lookup("BTC_EUR")
	require.True(t, ok)
	assert.Equal(t, "EUR", p.QuoteSymbol())
	assert.Equal(t, "BTC", p.BaseSymbol())

	p, _ = Lookup("BTC_ETH")
	assert.Equal(t, "BTC", p.QuoteSymbol())
	assert.Equal(t, "ETH", p.BaseSymbol())

	assert.Empty(t, Pair{Label: "BTCEUR"}.BaseSymbol())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("eur_crypto")
	require.NoError(t, err)
	assert.Equal(t, ModeEURCrypto, m)

	_, err = ParseMode("stocks")
	assert.Error(t, err)
}
