package guardrail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/meanrev-lab/pairtrader/internal/config"
	"github.com/meanrev-lab/pairtrader/internal/logger"
	"github.com/meanrev-lab/pairtrader/internal/strategy"
	"github.com/meanrev-lab/pairtrader/internal/types"
)

// fakeView is a canned LedgerView for validation tests.
type fakeView struct {
	state    types.PositionState
	position types.PairPosition
	cash     float64
	frozen   bool
}

func (v *fakeView) State() types.PositionState { return v.state }

func (v *fakeView) Position() (types.PairPosition, bool) {
	if v.state == types.PositionFlat {
		return types.PairPosition{}, false
	}

	return v.position, true
}

func (v *fakeView) Cash() float64 { return v.cash }
func (v *fakeView) Frozen() bool  { return v.frozen }

type GuardRailTestSuite struct {
	suite.Suite
	risk  config.RiskConfig
	pair  config.PairConfig
	bands strategy.Bands
}

func TestGuardRailSuite(t *testing.T) {
	suite.Run(t, new(GuardRailTestSuite))
}

func (suite *GuardRailTestSuite) SetupTest() {
	suite.pair = config.PairConfig{SymbolA: "PHILIPS_A", SymbolB: "PHILIPS_B"}
	suite.risk = config.RiskConfig{
		MaxPositionSize:   10,
		MaxBidAskWidthA:   1.0,
		MaxBidAskWidthB:   1.0,
		MinLiquidityRatio: 1.0,
		MarginFactor:      2.0,
		FrontRunTolerance: 0.001,
		DeltaTolerance:    0,
		TradingDisabled:   false,
		PartialFillPolicy: config.PartialFillCompensate,
	}
	suite.bands = strategy.Bands{
		UpperEntry: 1.02,
		LowerEntry: 0.98,
		UpperExit:  1.002,
		LowerExit:  0.998,
	}
}

func (suite *GuardRailTestSuite) newGuard() *GuardRail {
	return New(suite.pair, suite.risk, logger.NewNopLogger())
}

func flatView() *fakeView {
	return &fakeView{state: types.PositionFlat, position: types.PairPosition{}, cash: 1000, frozen: false}
}

func openShortSignal(spread float64) types.Signal {
	return types.Signal{
		Time:   time.Now(),
		Type:   types.SignalTypeOpenShortPair,
		Reason: "test",
		Spread: spread,
		Volume: 10,
	}
}

func closeSignal() types.Signal {
	return types.Signal{
		Time:   time.Now(),
		Type:   types.SignalTypeClosePosition,
		Reason: "reverted_to_mean",
		Spread: 1.0,
		Volume: 0,
	}
}

// Books wide enough, liquid enough, and priced so an open-short still
// crosses the entry band at execution prices.
func (suite *GuardRailTestSuite) goodBooks() (types.Quote, types.Quote) {
	now := time.Now()
	quoteA := types.NewQuote("PHILIPS_A", now, 102.5, 100, 102.7, 100)
	quoteB := types.NewQuote("PHILIPS_B", now, 99.8, 100, 100.0, 100)

	return quoteA, quoteB
}

func (suite *GuardRailTestSuite) TestOpenShortPasses() {
	quoteA, quoteB := suite.goodBooks()

	intent, err := suite.newGuard().Validate(openShortSignal(1.025), quoteA, quoteB, suite.bands, flatView())

	suite.Require().NoError(err)
	suite.Equal(types.SignalTypeOpenShortPair, intent.Signal)
	suite.Equal(types.SideSell, intent.LegA.Side)
	suite.Equal(types.SideBuy, intent.LegB.Side)
	suite.Equal(102.5, intent.LegA.Price)
	suite.Equal(100.0, intent.LegB.Price)
	suite.Equal(10.0, intent.LegA.Volume)
	suite.Equal(10.0, intent.LegB.Volume)
	suite.InDelta(1.025, intent.ExecutionSpread, 1e-9)
}

func (suite *GuardRailTestSuite) TestTradingHalted() {
	suite.risk.TradingDisabled = true
	quoteA, quoteB := suite.goodBooks()

	_, err := suite.newGuard().Validate(openShortSignal(1.025), quoteA, quoteB, suite.bands, flatView())

	rejection, ok := AsRejection(err)
	suite.Require().True(ok)
	suite.Equal(RejectTradingHalted, rejection.Code)
}

func (suite *GuardRailTestSuite) TestHaltWinsOverOtherChecks() {
	// The kill switch is checked first, even when later checks would also fail.
	suite.risk.TradingDisabled = true
	quoteA, quoteB := suite.goodBooks()
	view := &fakeView{state: types.PositionShortPair, position: types.PairPosition{State: types.PositionShortPair, Volume: 10}, cash: 0, frozen: true}

	_, err := suite.newGuard().Validate(openShortSignal(1.025), quoteA, quoteB, suite.bands, view)

	rejection, ok := AsRejection(err)
	suite.Require().True(ok)
	suite.Equal(RejectTradingHalted, rejection.Code)
}

func (suite *GuardRailTestSuite) TestFrozenBlocksOpen() {
	quoteA, quoteB := suite.goodBooks()
	view := flatView()
	view.frozen = true

	_, err := suite.newGuard().Validate(openShortSignal(1.025), quoteA, quoteB, suite.bands, view)

	rejection, ok := AsRejection(err)
	suite.Require().True(ok)
	suite.Equal(RejectFrozen, rejection.Code)
}

func (suite *GuardRailTestSuite) TestFrozenAllowsClose() {
	now := time.Now()
	// Short pair closes by buying A at the ask and selling B at the bid.
	// Execution spread askA/bidB must sit at or below the upper exit band.
	quoteA := types.NewQuote("PHILIPS_A", now, 99.9, 100, 100.1, 100)
	quoteB := types.NewQuote("PHILIPS_B", now, 100.0, 100, 100.2, 100)
	view := &fakeView{
		state: types.PositionShortPair,
		position: types.PairPosition{
			State:       types.PositionShortPair,
			Volume:      7,
			EntrySpread: 1.03,
			EntryPriceA: 103,
			EntryPriceB: 100,
			OpenedAt:    now,
		},
		cash:   1000,
		frozen: true,
	}

	intent, err := suite.newGuard().Validate(closeSignal(), quoteA, quoteB, suite.bands, view)

	suite.Require().NoError(err)
	suite.Equal(types.SideBuy, intent.LegA.Side)
	suite.Equal(types.SideSell, intent.LegB.Side)
	suite.Equal(7.0, intent.LegA.Volume)
	suite.Equal(7.0, intent.LegB.Volume)
}

func (suite *GuardRailTestSuite) TestOpenWhilePositioned() {
	quoteA, quoteB := suite.goodBooks()
	view := &fakeView{
		state:    types.PositionShortPair,
		position: types.PairPosition{State: types.PositionShortPair, Volume: 10},
		cash:     1000,
		frozen:   false,
	}

	_, err := suite.newGuard().Validate(openShortSignal(1.025), quoteA, quoteB, suite.bands, view)

	rejection, ok := AsRejection(err)
	suite.Require().True(ok)
	suite.Equal(RejectAlreadyInPosition, rejection.Code)
}

func (suite *GuardRailTestSuite) TestCloseWhileFlat() {
	quoteA, quoteB := suite.goodBooks()

	_, err := suite.newGuard().Validate(closeSignal(), quoteA, quoteB, suite.bands, flatView())

	rejection, ok := AsRejection(err)
	suite.Require().True(ok)
	suite.Equal(RejectNoPositionToClose, rejection.Code)
}

func (suite *GuardRailTestSuite) TestInsufficientMargin() {
	quoteA, quoteB := suite.goodBooks()
	view := flatView()
	view.cash = 15 // need 10 * 2.0 = 20

	_, err := suite.newGuard().Validate(openShortSignal(1.025), quoteA, quoteB, suite.bands, view)

	rejection, ok := AsRejection(err)
	suite.Require().True(ok)
	suite.Equal(RejectInsufficientMargin, rejection.Code)
}

func (suite *GuardRailTestSuite) TestVolumeLocked() {
	now := time.Now()
	// Only 4 units on the bid of A against a requested 10.
	quoteA := types.NewQuote("PHILIPS_A", now, 102.5, 4, 102.7, 100)
	quoteB := types.NewQuote("PHILIPS_B", now, 99.8, 100, 100.0, 100)

	_, err := suite.newGuard().Validate(openShortSignal(1.025), quoteA, quoteB, suite.bands, flatView())

	rejection, ok := AsRejection(err)
	suite.Require().True(ok)
	suite.Equal(RejectVolumeLocked, rejection.Code)
	suite.Equal("volume_locked:PHILIPS_A", rejection.Tag())
}

func (suite *GuardRailTestSuite) TestEmptyBookSideIsVolumeLocked() {
	now := time.Now()
	// No bid on A at all: the sell leg has zero available volume.
	quoteA := types.NewQuoteWithEmptySides("PHILIPS_A", now, 0, 0, 102.7, 100)
	quoteB := types.NewQuote("PHILIPS_B", now, 99.8, 100, 100.0, 100)

	_, err := suite.newGuard().Validate(openShortSignal(1.025), quoteA, quoteB, suite.bands, flatView())

	rejection, ok := AsRejection(err)
	suite.Require().True(ok)
	suite.Equal(RejectVolumeLocked, rejection.Code)
}

func (suite *GuardRailTestSuite) TestSlippageRisk() {
	now := time.Now()
	// Width of B is 2.0 against a maximum of 1.0.
	quoteA := types.NewQuote("PHILIPS_A", now, 102.5, 100, 102.7, 100)
	quoteB := types.NewQuote("PHILIPS_B", now, 99.0, 100, 101.0, 100)

	_, err := suite.newGuard().Validate(openShortSignal(1.025), quoteA, quoteB, suite.bands, flatView())

	rejection, ok := AsRejection(err)
	suite.Require().True(ok)
	suite.Equal(RejectSlippageRisk, rejection.Code)
	suite.Equal("PHILIPS_B", rejection.Symbol)
}

func (suite *GuardRailTestSuite) TestOneSidedBookIsSlippageRisk() {
	now := time.Now()
	// The sell leg executes against A's bid, so the missing ask does not
	// starve the liquidity check. The width is still unmeasurable and the
	// pair must be vetoed rather than traded against a one-sided book.
	quoteA := types.NewQuoteWithEmptySides("PHILIPS_A", now, 103.0, 100, 0, 0)
	quoteB := types.NewQuote("PHILIPS_B", now, 99.8, 100, 100.0, 100)

	_, err := suite.newGuard().Validate(openShortSignal(1.025), quoteA, quoteB, suite.bands, flatView())

	rejection, ok := AsRejection(err)
	suite.Require().True(ok)
	suite.Equal(RejectSlippageRisk, rejection.Code)
	suite.Equal("PHILIPS_A", rejection.Symbol)
}

func (suite *GuardRailTestSuite) TestStaleSignal() {
	now := time.Now()
	// Mids crossed the band but the executable prices no longer do:
	// bidA/askB = 101.0/100.0 = 1.01 < 1.02 - 0.001.
	quoteA := types.NewQuote("PHILIPS_A", now, 101.0, 100, 101.2, 100)
	quoteB := types.NewQuote("PHILIPS_B", now, 99.8, 100, 100.0, 100)

	_, err := suite.newGuard().Validate(openShortSignal(1.025), quoteA, quoteB, suite.bands, flatView())

	rejection, ok := AsRejection(err)
	suite.Require().True(ok)
	suite.Equal(RejectStaleSignal, rejection.Code)
}

func (suite *GuardRailTestSuite) TestToleranceAbsorbsSmallMoves() {
	now := time.Now()
	// bidA/askB = 1.0195, within 0.001 of the 1.02 entry band.
	quoteA := types.NewQuote("PHILIPS_A", now, 101.95, 100, 102.2, 100)
	quoteB := types.NewQuote("PHILIPS_B", now, 99.8, 100, 100.0, 100)

	intent, err := suite.newGuard().Validate(openShortSignal(1.025), quoteA, quoteB, suite.bands, flatView())

	suite.Require().NoError(err)
	suite.InDelta(1.0195, intent.ExecutionSpread, 1e-9)
}
