package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/meanrev-lab/pairtrader/internal/config"
	"github.com/meanrev-lab/pairtrader/internal/logger"
	"github.com/meanrev-lab/pairtrader/internal/market"
	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

type LedgerTestSuite struct {
	suite.Suite
	ledger *Ledger
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}

func (suite *LedgerTestSuite) SetupTest() {
	pair := config.PairConfig{SymbolA: "PHILIPS_A", SymbolB: "PHILIPS_B"}
	risk := config.RiskConfig{
		MaxPositionSize:   10,
		MaxBidAskWidthA:   1,
		MaxBidAskWidthB:   1,
		MinLiquidityRatio: 1,
		MarginFactor:      2,
		FrontRunTolerance: 0.001,
		DeltaTolerance:    0.5,
		TradingDisabled:   false,
		PartialFillPolicy: config.PartialFillCompensate,
	}
	suite.ledger = New(pair, risk, logger.NewNopLogger())
	suite.ledger.SetCash(1000)
}

func openShortOutcome() types.ExecutionOutcome {
	now := time.Now()

	return types.ExecutionOutcome{
		Status: types.OutcomeFilled,
		Intent: types.TradeIntent{
			Signal:          types.SignalTypeOpenShortPair,
			Reason:          "test",
			LegA:            types.LegOrder{},
			LegB:            types.LegOrder{},
			ExecutionSpread: 1.025,
			CreatedAt:       now,
		},
		LegA:       types.LegFill{Symbol: "PHILIPS_A", Side: types.SideSell, Filled: true, FillPrice: 102.5, FillVolume: 10},
		LegB:       types.LegFill{Symbol: "PHILIPS_B", Side: types.SideBuy, Filled: true, FillPrice: 100.0, FillVolume: 10},
		ExecutedAt: now,
	}
}

func closeShortOutcome() types.ExecutionOutcome {
	now := time.Now()

	return types.ExecutionOutcome{
		Status: types.OutcomeFilled,
		Intent: types.TradeIntent{
			Signal:          types.SignalTypeClosePosition,
			Reason:          "reverted_to_mean",
			LegA:            types.LegOrder{},
			LegB:            types.LegOrder{},
			ExecutionSpread: 1.001,
			CreatedAt:       now,
		},
		LegA:       types.LegFill{Symbol: "PHILIPS_A", Side: types.SideBuy, Filled: true, FillPrice: 100.1, FillVolume: 10},
		LegB:       types.LegFill{Symbol: "PHILIPS_B", Side: types.SideSell, Filled: true, FillPrice: 100.0, FillVolume: 10},
		ExecutedAt: now,
	}
}

func (suite *LedgerTestSuite) TestStartsFlat() {
	suite.Equal(types.PositionFlat, suite.ledger.State())
	suite.Zero(suite.ledger.Delta())
	suite.False(suite.ledger.Frozen())

	_, ok := suite.ledger.Position()
	suite.False(ok)
}

func (suite *LedgerTestSuite) TestApplyOpenShort() {
	suite.Require().NoError(suite.ledger.Apply(openShortOutcome()))

	suite.Equal(types.PositionShortPair, suite.ledger.State())

	position, ok := suite.ledger.Position()
	suite.Require().True(ok)
	suite.Equal(10.0, position.Volume)
	suite.InDelta(1.025, position.EntrySpread, 1e-9)

	// Sold A for 1025, bought B for 1000.
	suite.InDelta(1025.0, suite.ledger.Cash(), 1e-9)

	qtyA, qtyB := suite.ledger.Quantities()
	suite.Equal(-10.0, qtyA)
	suite.Equal(10.0, qtyB)
	suite.Zero(suite.ledger.Delta())
}

func (suite *LedgerTestSuite) TestRoundTripRealizesPnL() {
	suite.Require().NoError(suite.ledger.Apply(openShortOutcome()))
	suite.Require().NoError(suite.ledger.Apply(closeShortOutcome()))

	suite.Equal(types.PositionFlat, suite.ledger.State())
	// Short A earned 102.5-100.1 per unit, B leg washed out.
	suite.InDelta(24.0, suite.ledger.RealizedPnL(), 1e-9)
	suite.InDelta(1024.0, suite.ledger.Cash(), 1e-9)
	suite.Zero(suite.ledger.Delta())
}

func (suite *LedgerTestSuite) TestApplyRejectsPartialOutcome() {
	outcome := openShortOutcome()
	outcome.Status = types.OutcomePartial
	outcome.LegB.Filled = false

	err := suite.ledger.Apply(outcome)

	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *LedgerTestSuite) TestApplyLegFillTracksExposure() {
	fill := types.LegFill{Symbol: "PHILIPS_A", Side: types.SideSell, Filled: true, FillPrice: 102.5, FillVolume: 10}

	suite.ledger.ApplyLegFill(fill)

	suite.InDelta(-10.0, suite.ledger.Delta(), 1e-9)
	suite.Require().Error(suite.ledger.CheckDelta())
	suite.True(errors.HasCode(suite.ledger.CheckDelta(), errors.ErrCodeDeltaOutOfTolerance))
}

func (suite *LedgerTestSuite) TestDeltaWithinTolerance() {
	suite.Require().NoError(suite.ledger.Apply(openShortOutcome()))
	suite.NoError(suite.ledger.CheckDelta())
}

func (suite *LedgerTestSuite) TestFreezeAndUnfreeze() {
	suite.ledger.Freeze("partial fill on PHILIPS_A")
	suite.True(suite.ledger.Frozen())

	suite.ledger.Unfreeze()
	suite.False(suite.ledger.Frozen())
}

func (suite *LedgerTestSuite) TestClassifyHoldings() {
	cases := []struct {
		qtyA, qtyB float64
		want       types.ReconcileOutcome
	}{
		{0, 0, types.ReconcileFlat},
		{10, -10, types.ReconcileLongPair},
		{-10, 10, types.ReconcileShortPair},
		{10, 10, types.ReconcileUnbalanced},
		{-10, -10, types.ReconcileUnbalanced},
		{10, 0, types.ReconcileUnbalanced},
		{0, -10, types.ReconcileUnbalanced},
		{10, -5, types.ReconcileLongPair},
	}

	for _, c := range cases {
		suite.Equal(c.want, types.ClassifyHoldings(c.qtyA, c.qtyB), "qtyA=%f qtyB=%f", c.qtyA, c.qtyB)
	}
}

func (suite *LedgerTestSuite) paperWithBooks() *market.PaperExchange {
	paper := market.NewPaperExchange(5000)
	now := time.Now()
	paper.SetBook(types.NewQuote("PHILIPS_A", now, 102.0, 100, 102.4, 100))
	paper.SetBook(types.NewQuote("PHILIPS_B", now, 99.8, 100, 100.2, 100))

	return paper
}

func (suite *LedgerTestSuite) TestReconcileFlat() {
	paper := suite.paperWithBooks()

	outcome, err := suite.ledger.Reconcile(context.Background(), paper, AbortOnUnbalanced)

	suite.Require().NoError(err)
	suite.Equal(types.ReconcileFlat, outcome)
	suite.Equal(types.PositionFlat, suite.ledger.State())
	suite.InDelta(5000.0, suite.ledger.Cash(), 1e-9)
}

func (suite *LedgerTestSuite) TestReconcileAdoptsLongPair() {
	paper := suite.paperWithBooks()
	paper.SetPosition("PHILIPS_A", 10)
	paper.SetPosition("PHILIPS_B", -10)

	outcome, err := suite.ledger.Reconcile(context.Background(), paper, AbortOnUnbalanced)

	suite.Require().NoError(err)
	suite.Equal(types.ReconcileLongPair, outcome)
	suite.Equal(types.PositionLongPair, suite.ledger.State())

	position, ok := suite.ledger.Position()
	suite.Require().True(ok)
	suite.Equal(10.0, position.Volume)
	// Synthetic entry adopted from the live mids: 102.2 / 100.0.
	suite.InDelta(1.022, position.EntrySpread, 1e-9)
}

func (suite *LedgerTestSuite) TestReconcileUnbalancedAborts() {
	paper := suite.paperWithBooks()
	paper.SetPosition("PHILIPS_A", 10)
	paper.SetPosition("PHILIPS_B", 3)

	outcome, err := suite.ledger.Reconcile(context.Background(), paper, AbortOnUnbalanced)

	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeReconcileAborted))
	suite.Equal(types.ReconcileUnbalanced, outcome)
}

func (suite *LedgerTestSuite) TestReconcileUnbalancedFreezes() {
	paper := suite.paperWithBooks()
	paper.SetPosition("PHILIPS_A", 10)
	paper.SetPosition("PHILIPS_B", 3)

	freeze := func(qtyA, qtyB float64) (UnbalancedAction, error) {
		return UnbalancedFreeze, nil
	}

	outcome, err := suite.ledger.Reconcile(context.Background(), paper, freeze)

	suite.Require().NoError(err)
	suite.Equal(types.ReconcileUnbalanced, outcome)
	suite.True(suite.ledger.Frozen())
}

func (suite *LedgerTestSuite) TestReconcileFatalWhenOffline() {
	paper := suite.paperWithBooks()
	paper.Offline = true

	_, err := suite.ledger.Reconcile(context.Background(), paper, AbortOnUnbalanced)

	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeProviderUnavailable))
}
