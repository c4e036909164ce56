package executor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/meanrev-lab/pairtrader/internal/logger"
	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/mocks"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

type ExecutorTestSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	exchange *mocks.MockExchange
	executor *PairedOrderExecutor
}

func TestExecutorSuite(t *testing.T) {
	suite.Run(t, new(ExecutorTestSuite))
}

func (suite *ExecutorTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.exchange = mocks.NewMockExchange(suite.ctrl)
	suite.executor = New(suite.exchange, logger.NewNopLogger())
}

func (suite *ExecutorTestSuite) TearDownTest() {
	suite.ctrl.Finish()
}

func (suite *ExecutorTestSuite) intent() types.TradeIntent {
	return types.TradeIntent{
		Signal: types.SignalTypeOpenShortPair,
		Reason: "test",
		LegA: types.LegOrder{
			ID:     uuid.NewString(),
			Symbol: "PHILIPS_A",
			Side:   types.SideSell,
			Kind:   types.OrderKindImmediate,
			Price:  102.5,
			Volume: 10,
		},
		LegB: types.LegOrder{
			ID:     uuid.NewString(),
			Symbol: "PHILIPS_B",
			Side:   types.SideBuy,
			Kind:   types.OrderKindImmediate,
			Price:  100.0,
			Volume: 10,
		},
		ExecutionSpread: 1.025,
		CreatedAt:       time.Now(),
	}
}

func fullFill(order types.LegOrder) types.LegFill {
	return types.LegFill{
		Symbol:     order.Symbol,
		Side:       order.Side,
		Filled:     true,
		FillPrice:  order.Price,
		FillVolume: order.Volume,
		Err:        "",
	}
}

func noFill(order types.LegOrder) types.LegFill {
	return types.LegFill{
		Symbol:     order.Symbol,
		Side:       order.Side,
		Filled:     false,
		FillPrice:  0,
		FillVolume: 0,
		Err:        "",
	}
}

func (suite *ExecutorTestSuite) TestBothLegsFill() {
	intent := suite.intent()

	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegA).Return(fullFill(intent.LegA), nil)
	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegB).Return(fullFill(intent.LegB), nil)

	outcome, err := suite.executor.Execute(context.Background(), intent)

	suite.Require().NoError(err)
	suite.Equal(types.OutcomeFilled, outcome.Status)
	suite.True(outcome.LegA.Filled)
	suite.True(outcome.LegB.Filled)
}

func (suite *ExecutorTestSuite) TestBothLegsMiss() {
	intent := suite.intent()

	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegA).Return(noFill(intent.LegA), nil)
	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegB).Return(noFill(intent.LegB), nil)

	outcome, err := suite.executor.Execute(context.Background(), intent)

	suite.Require().NoError(err)
	suite.Equal(types.OutcomeUnfilled, outcome.Status)
}

func (suite *ExecutorTestSuite) TestPartialFill() {
	intent := suite.intent()

	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegA).Return(fullFill(intent.LegA), nil)
	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegB).Return(noFill(intent.LegB), nil)

	outcome, err := suite.executor.Execute(context.Background(), intent)

	suite.Require().NoError(err)
	suite.Equal(types.OutcomePartial, outcome.Status)

	filled, ok := outcome.FilledLeg()
	suite.Require().True(ok)
	suite.Equal("PHILIPS_A", filled.Symbol)
}

func (suite *ExecutorTestSuite) TestLegErrorBecomesUnfilledLeg() {
	intent := suite.intent()

	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegA).Return(fullFill(intent.LegA), nil)
	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegB).
		Return(types.LegFill{}, errors.New(errors.ErrCodeOrderRejected, "rejected by venue"))

	outcome, err := suite.executor.Execute(context.Background(), intent)

	suite.Require().NoError(err)
	suite.Equal(types.OutcomePartial, outcome.Status)
	suite.Contains(outcome.LegB.Err, "rejected by venue")
}

func (suite *ExecutorTestSuite) TestTransportFailureWithoutFillIsFatal() {
	intent := suite.intent()

	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegA).Return(noFill(intent.LegA), nil)
	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegB).
		Return(types.LegFill{}, errors.New(errors.ErrCodeProviderUnavailable, "connection lost"))

	_, err := suite.executor.Execute(context.Background(), intent)

	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeProviderUnavailable))
}

func (suite *ExecutorTestSuite) TestTransportFailureOnBothLegsIsFatal() {
	intent := suite.intent()

	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegA).
		Return(types.LegFill{}, errors.New(errors.ErrCodeProviderUnavailable, "connection lost"))
	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegB).
		Return(types.LegFill{}, errors.New(errors.ErrCodeProviderUnavailable, "connection lost"))

	_, err := suite.executor.Execute(context.Background(), intent)

	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeProviderUnavailable))
}

func (suite *ExecutorTestSuite) TestTransportFailureOnOneLegKeepsTheFill() {
	intent := suite.intent()

	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegA).Return(fullFill(intent.LegA), nil)
	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), intent.LegB).
		Return(types.LegFill{}, errors.New(errors.ErrCodeProviderUnavailable, "connection lost"))

	outcome, err := suite.executor.Execute(context.Background(), intent)

	suite.Require().NoError(err)
	suite.Equal(types.OutcomePartial, outcome.Status)
	suite.Contains(outcome.LegB.Err, "connection lost")

	filled, ok := outcome.FilledLeg()
	suite.Require().True(ok)
	suite.Equal("PHILIPS_A", filled.Symbol)
	suite.Equal(102.5, filled.FillPrice)
}

func (suite *ExecutorTestSuite) TestCompensateReversesFilledLeg() {
	intent := suite.intent()
	outcome := types.ExecutionOutcome{
		Status:     types.OutcomePartial,
		Intent:     intent,
		LegA:       fullFill(intent.LegA), // sold 10 A at 102.5
		LegB:       noFill(intent.LegB),
		ExecutedAt: time.Now(),
	}

	quoteA := types.NewQuote("PHILIPS_A", time.Now(), 102.3, 100, 102.6, 100)
	suite.exchange.EXPECT().GetQuote(gomock.Any(), "PHILIPS_A").Return(quoteA, nil)
	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, order types.LegOrder) (types.LegFill, error) {
			suite.Equal("PHILIPS_A", order.Symbol)
			suite.Equal(types.SideBuy, order.Side)
			suite.Equal(102.6, order.Price)
			suite.Equal(10.0, order.Volume)

			return fullFill(order), nil
		})

	fill, err := suite.executor.Compensate(context.Background(), outcome)

	suite.Require().NoError(err)
	suite.True(fill.Filled)
	suite.Equal(types.SideBuy, fill.Side)
}

func (suite *ExecutorTestSuite) TestCompensateFailsWhenUnfilled() {
	intent := suite.intent()
	outcome := types.ExecutionOutcome{
		Status:     types.OutcomePartial,
		Intent:     intent,
		LegA:       fullFill(intent.LegA),
		LegB:       noFill(intent.LegB),
		ExecutedAt: time.Now(),
	}

	quoteA := types.NewQuote("PHILIPS_A", time.Now(), 102.3, 100, 102.6, 100)
	suite.exchange.EXPECT().GetQuote(gomock.Any(), "PHILIPS_A").Return(quoteA, nil)
	suite.exchange.EXPECT().SubmitOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, order types.LegOrder) (types.LegFill, error) {
			return noFill(order), nil
		})

	_, err := suite.executor.Compensate(context.Background(), outcome)

	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeCompensateFailed))
}

func (suite *ExecutorTestSuite) TestCompensateRequiresPartialOutcome() {
	intent := suite.intent()
	outcome := types.ExecutionOutcome{
		Status:     types.OutcomeFilled,
		Intent:     intent,
		LegA:       fullFill(intent.LegA),
		LegB:       fullFill(intent.LegB),
		ExecutedAt: time.Now(),
	}

	_, err := suite.executor.Compensate(context.Background(), outcome)

	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}
