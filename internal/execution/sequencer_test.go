package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradectl/internal/errs"
	"tradectl/internal/journal"
	"tradectl/internal/model"
	"tradectl/internal/position"
	"tradectl/internal/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const symbol = "BTC-USDT-SWAP"

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) GetPosition(ctx context.Context, symbol string) (*model.Position, error) {
	args := m.Called(ctx, symbol)
	pos, _ := args.Get(0).(*model.Position)
	return pos, args.Error(1)
}

func (m *mockGateway) GetBalance(ctx context.Context) (model.Balance, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.Balance), args.Error(1)
}

func (m *mockGateway) PlaceOrder(ctx context.Context, order *model.Order) (*model.OrderResponse, error) {
	args := m.Called(ctx, order)
	resp, _ := args.Get(0).(*model.OrderResponse)
	return resp, args.Error(1)
}

func (m *mockGateway) SetProtectiveStop(ctx context.Context, symbol string, side model.Side, qty, distance float64) error {
	return m.Called(ctx, symbol, side, qty, distance).Error(0)
}

func (m *mockGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return m.Called(ctx, symbol, leverage).Error(0)
}

type memSink struct {
	events []journal.Event
}

func (s *memSink) Record(_ context.Context, e journal.Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *memSink) types() []journal.EventType {
	var out []journal.EventType
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

// flatWindow 每根K线真实波幅为 2，ATR(14)=2，默认倍数下止损距离为 4
func flatWindow(n int, price float64) []model.Candle {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	for i := range out {
		open := start.Add(time.Duration(i) * 5 * time.Minute)
		out[i] = model.Candle{
			OpenTime:  open,
			CloseTime: open.Add(5 * time.Minute),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Confirmed: true,
		}
	}
	return out
}

func newSequencer(t *testing.T, gw *mockGateway) (*Sequencer, *memSink) {
	t.Helper()
	stop, err := risk.NewTrailingStop(nil)
	require.NoError(t, err)
	sink := &memSink{}
	seq := NewSequencer(
		Config{Symbol: symbol, Leverage: 1, MgnMode: model.OrderMgnModeCross, Strategy: "IFRStrategy"},
		gw,
		stop,
		risk.NewSizer(risk.DefaultSizerConfig()),
		position.NewReconciler(symbol),
		sink,
	)
	return seq, sink
}

func signal(sig model.Signal, price float64) model.SignalResult {
	return model.SignalResult{Signal: sig, ReferencePrice: price}
}

func isOpen(side model.Side, qty float64) interface{} {
	return mock.MatchedBy(func(o *model.Order) bool {
		return !o.ReduceOnly && o.PosSide == side && o.Side == model.OpenSide(side) && o.Quantity == qty && o.OrderType == model.Market
	})
}

func isClose(side model.Side, qty float64) interface{} {
	return mock.MatchedBy(func(o *model.Order) bool {
		return o.ReduceOnly && o.PosSide == side && o.Side == model.CloseSide(side) && o.Quantity == qty
	})
}

func longPosition(size, entry float64) *model.Position {
	return &model.Position{Symbol: symbol, Side: model.Long, Size: size, EntryPrice: entry}
}

func TestCycleOpensLongAndSetsStop(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	seq, sink := newSequencer(t, gw)
	window := flatWindow(30, 100)

	gw.On("GetPosition", ctx, symbol).Return(nil, nil).Once()
	gw.On("GetBalance", ctx).Return(model.Balance{AvailableCapital: 1000, WalletBalance: 1000}, nil).Once()
	gw.On("PlaceOrder", ctx, isOpen(model.Long, 1.0)).Return(&model.OrderResponse{OrderId: "1"}, nil).Once()
	gw.On("SetProtectiveStop", ctx, symbol, model.Long, 1.0, 4.0).Return(nil).Once()

	rep, err := seq.Cycle(ctx, signal(model.SignalLong, 100), window)
	require.NoError(t, err)
	assert.Equal(t, ActionOpen, rep.Action)
	assert.Equal(t, 1.0, rep.Quantity)
	assert.Equal(t, 96.0, rep.StopPrice)

	assert.True(t, seq.Stop().Active())
	side, tracked := seq.Reconciler().Tracked()
	assert.True(t, tracked)
	assert.Equal(t, model.Long, side)
	assert.Equal(t, []journal.EventType{journal.EventOpen, journal.EventProtectiveStop}, sink.types())
	gw.AssertExpectations(t)

	// 重复的 LONG 信号且交易所已有多仓：不再下单
	gw.On("GetPosition", ctx, symbol).Return(longPosition(1, 100), nil).Once()
	rep, err = seq.Cycle(ctx, signal(model.SignalLong, 100), window)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, rep.Action)
	gw.AssertNumberOfCalls(t, "PlaceOrder", 1)
}

func TestCycleSuppressesWhileRemoteNotVisible(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	seq, _ := newSequencer(t, gw)
	seq.recon.WithGrace(time.Minute)
	window := flatWindow(30, 100)

	gw.On("GetPosition", ctx, symbol).Return(nil, nil)
	gw.On("GetBalance", ctx).Return(model.Balance{AvailableCapital: 1000}, nil).Once()
	gw.On("PlaceOrder", ctx, isOpen(model.Long, 1.0)).Return(&model.OrderResponse{OrderId: "1"}, nil).Once()
	gw.On("SetProtectiveStop", ctx, symbol, model.Long, 1.0, 4.0).Return(nil).Once()

	_, err := seq.Cycle(ctx, signal(model.SignalLong, 100), window)
	require.NoError(t, err)
	rep, err := seq.Cycle(ctx, signal(model.SignalLong, 100), window)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, rep.Action)
	gw.AssertNumberOfCalls(t, "PlaceOrder", 1)
}

func TestCycleOppositeSignalWhileRemoteNotVisible(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	seq, _ := newSequencer(t, gw)
	seq.recon.WithGrace(time.Minute)
	window := flatWindow(30, 100)

	gw.On("GetPosition", ctx, symbol).Return(nil, nil)
	gw.On("GetBalance", ctx).Return(model.Balance{AvailableCapital: 1000}, nil).Once()
	gw.On("PlaceOrder", ctx, isOpen(model.Long, 1.0)).Return(&model.OrderResponse{OrderId: "1"}, nil).Once()
	gw.On("SetProtectiveStop", ctx, symbol, model.Long, 1.0, 4.0).Return(nil).Once()

	_, err := seq.Cycle(ctx, signal(model.SignalLong, 100), window)
	require.NoError(t, err)

	// 多单尚未可见，空头信号不能再开一个仓位
	rep, err := seq.Cycle(ctx, signal(model.SignalShort, 100), window)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, rep.Action)
	assert.Equal(t, "pending long position", rep.Reason)
	gw.AssertNumberOfCalls(t, "PlaceOrder", 1)
	gw.AssertNumberOfCalls(t, "GetBalance", 1)
	side, tracked := seq.Reconciler().Tracked()
	assert.True(t, tracked)
	assert.Equal(t, model.Long, side)
}

func TestCycleStopBreachClosesBeforeSignal(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	seq, sink := newSequencer(t, gw)
	window := flatWindow(30, 100)
	seq.Stop().Activate(100, model.Long, window)
	seq.Reconciler().Track(model.Long)

	gw.On("GetPosition", ctx, symbol).Return(longPosition(1, 100), nil).Twice()
	gw.On("PlaceOrder", ctx, isClose(model.Long, 1.0)).Return(&model.OrderResponse{OrderId: "2"}, nil).Once()

	// 价格跌破 96，同时出现 LONG 信号：止损优先
	rep, err := seq.Cycle(ctx, signal(model.SignalLong, 95), window)
	require.NoError(t, err)
	assert.Equal(t, ActionStopBreach, rep.Action)
	assert.Equal(t, 96.0, rep.StopPrice)
	assert.False(t, seq.Stop().Active())
	_, tracked := seq.Reconciler().Tracked()
	assert.False(t, tracked)
	assert.Equal(t, []journal.EventType{journal.EventStopBreach}, sink.types())
	gw.AssertExpectations(t)
}

func TestCycleCloseSignal(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	seq, _ := newSequencer(t, gw)
	window := flatWindow(30, 100)

	gw.On("GetPosition", ctx, symbol).Return(longPosition(0.5, 100), nil).Twice()
	gw.On("PlaceOrder", ctx, isClose(model.Long, 0.5)).Return(&model.OrderResponse{OrderId: "3"}, nil).Once()

	rep, err := seq.Cycle(ctx, signal(model.SignalCloseLong, 101), window)
	require.NoError(t, err)
	assert.Equal(t, ActionClose, rep.Action)
	assert.False(t, seq.Stop().Active())
	gw.AssertExpectations(t)
}

func TestCycleCloseSignalTimeoutAssumesClosed(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	seq, sink := newSequencer(t, gw)
	window := flatWindow(30, 100)
	seq.Stop().Activate(100, model.Short, window)
	seq.Reconciler().Track(model.Short)

	gw.On("GetPosition", ctx, symbol).Return(nil, errs.Transient("get position", context.DeadlineExceeded)).Once()

	rep, err := seq.Cycle(ctx, signal(model.SignalCloseShort, 99), window)
	require.NoError(t, err)
	assert.Equal(t, ActionClose, rep.Action)
	assert.Equal(t, model.Short, rep.Side)
	assert.False(t, seq.Stop().Active())
	_, tracked := seq.Reconciler().Tracked()
	assert.False(t, tracked)
	assert.Equal(t, []journal.EventType{journal.EventClose}, sink.types())
	gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestCycleFetchErrorLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	seq, _ := newSequencer(t, gw)
	window := flatWindow(30, 100)
	seq.Stop().Activate(100, model.Long, window)
	seq.Reconciler().Track(model.Long)

	gw.On("GetPosition", ctx, symbol).Return(nil, errs.Transient("get position", context.DeadlineExceeded)).Once()
	_, err := seq.Cycle(ctx, signal(model.SignalShort, 100), window)
	assert.True(t, errs.Is(err, errs.KindTransient))

	gw.On("GetPosition", ctx, symbol).Return(nil, errors.New("boom")).Once()
	_, err = seq.Cycle(ctx, signal(model.SignalNeutral, 100), window)
	assert.Error(t, err)

	assert.True(t, seq.Stop().Active())
	side, tracked := seq.Reconciler().Tracked()
	assert.True(t, tracked)
	assert.Equal(t, model.Long, side)
}

func TestCycleOrderRejection(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	seq, sink := newSequencer(t, gw)
	window := flatWindow(30, 100)

	gw.On("GetPosition", ctx, symbol).Return(nil, nil).Once()
	gw.On("GetBalance", ctx).Return(model.Balance{AvailableCapital: 1000}, nil).Once()
	gw.On("PlaceOrder", ctx, mock.Anything).Return(nil, errs.OrderRejection("place order", errors.New("51008 insufficient margin"))).Once()

	_, err := seq.Cycle(ctx, signal(model.SignalShort, 100), window)
	assert.True(t, errs.Is(err, errs.KindOrderRejection))
	assert.False(t, seq.Stop().Active())
	_, tracked := seq.Reconciler().Tracked()
	assert.False(t, tracked)
	assert.Equal(t, []journal.EventType{journal.EventRejected}, sink.types())
}

func TestCycleZeroSizeSkips(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	seq, _ := newSequencer(t, gw)

	gw.On("GetPosition", ctx, symbol).Return(nil, nil).Once()
	gw.On("GetBalance", ctx).Return(model.Balance{}, nil).Once()

	rep, err := seq.Cycle(ctx, signal(model.SignalLong, 100), flatWindow(30, 100))
	require.NoError(t, err)
	assert.Equal(t, ActionSkipped, rep.Action)
	gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestCycleProtectiveStopFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	seq, sink := newSequencer(t, gw)

	gw.On("GetPosition", ctx, symbol).Return(nil, nil).Once()
	gw.On("GetBalance", ctx).Return(model.Balance{AvailableCapital: 1000}, nil).Once()
	gw.On("PlaceOrder", ctx, isOpen(model.Short, 1.0)).Return(&model.OrderResponse{OrderId: "4"}, nil).Once()
	gw.On("SetProtectiveStop", ctx, symbol, model.Short, 1.0, 4.0).Return(errors.New("algo rejected")).Once()

	rep, err := seq.Cycle(ctx, signal(model.SignalShort, 100), flatWindow(30, 100))
	require.NoError(t, err)
	assert.Equal(t, ActionOpen, rep.Action)
	assert.Equal(t, 104.0, rep.StopPrice)
	assert.True(t, seq.Stop().Active())
	assert.Equal(t, []journal.EventType{journal.EventOpen, journal.EventStopFailed}, sink.types())
}

func TestCycleStaleStopDeactivated(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	seq, _ := newSequencer(t, gw)
	window := flatWindow(30, 100)
	seq.Stop().Activate(100, model.Long, window)
	seq.Reconciler().Track(model.Long)

	gw.On("GetPosition", ctx, symbol).Return(nil, nil).Once()
	rep, err := seq.Cycle(ctx, signal(model.SignalNeutral, 100), window)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, rep.Action)
	assert.False(t, seq.Stop().Active())
}

func TestCycleAdoptsExistingPositionAndNeverFlips(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	seq, sink := newSequencer(t, gw)
	window := flatWindow(30, 100)

	gw.On("GetPosition", ctx, symbol).Return(longPosition(2, 100), nil).Once()
	rep, err := seq.Cycle(ctx, signal(model.SignalShort, 100), window)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, rep.Action)
	assert.Equal(t, "opposite position open", rep.Reason)

	st := seq.Stop().State()
	require.NotNil(t, st)
	assert.Equal(t, model.Long, st.Side)
	assert.Equal(t, 96.0, st.CurrentStop)
	side, _ := seq.Reconciler().Tracked()
	assert.Equal(t, model.Long, side)
	assert.Equal(t, []journal.EventType{journal.EventAdopted}, sink.types())
	gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}
