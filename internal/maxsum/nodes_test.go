package maxsum

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planes_maxsum/internal/domain"
)

func TestSelectorConvergesOnCheapestPlane(t *testing.T) {
	net := newNetwork()
	cost := costTable(map[domain.PlaneID]float64{"p1": 10, "p2": 4, "p3": 7})
	for _, id := range []domain.PlaneID{"p1", "p2", "p3"} {
		net.addPlane(id, cost)
	}
	task := net.addTask("p1", domain.Task{ID: "x"})
	net.connect()

	_, decided, err := task.MakeDecision()
	require.NoError(t, err)
	assert.False(t, decided, "no plane has reported yet")

	for i := 0; i < 4; i++ {
		require.NoError(t, net.round())
	}
	require.NoError(t, net.deliver())

	for i := 0; i < 3; i++ {
		choice, decided, err := task.MakeDecision()
		require.NoError(t, err)
		require.True(t, decided)
		assert.Equal(t, domain.PlaneID("p2"), choice)
	}
}

func TestSelectorTieBreakIsDeterministic(t *testing.T) {
	decide := func() domain.PlaneID {
		net := newNetwork()
		cost := costTable(map[domain.PlaneID]float64{"a": 5, "b": 3, "c": 3})
		for _, id := range []domain.PlaneID{"a", "b", "c"} {
			net.addPlane(id, cost)
		}
		task := net.addTask("a", domain.Task{ID: "x"})
		net.connect()
		for i := 0; i < 3; i++ {
			require.NoError(t, net.round())
		}
		choice, decided, err := task.MakeDecision()
		require.NoError(t, err)
		require.True(t, decided)
		return choice
	}

	first := decide()
	assert.Equal(t, domain.PlaneID("b"), first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, decide())
	}
}

func TestSelectorSendsComplementaryMinimum(t *testing.T) {
	net := newNetwork()
	cost := costTable(map[domain.PlaneID]float64{"p1": 10, "p2": 4, "p3": 7})
	for _, id := range []domain.PlaneID{"p1", "p2", "p3"} {
		net.addPlane(id, cost)
	}
	task := net.addTask("p1", domain.Task{ID: "x"})
	net.connect()

	for _, id := range net.order {
		require.NoError(t, net.planes[id].Run())
	}
	require.NoError(t, net.deliver())

	require.NoError(t, task.Run())
	got := make(map[domain.PlaneID]float64)
	for _, env := range net.box.take() {
		msg, ok := env.Payload.(TaskToPlane)
		require.True(t, ok)
		assert.Equal(t, domain.TaskID("x"), msg.Sender)
		assert.Equal(t, domain.PlaneID("p1"), env.From, "task node is hosted on p1")
		assert.Equal(t, msg.Recipient, env.To)
		got[msg.Recipient] = msg.Value
	}
	assert.Equal(t, map[domain.PlaneID]float64{"p1": 4, "p2": 7, "p3": 4}, got)
}

func TestPlaneNodeSendsPotentials(t *testing.T) {
	box := &outbox{}
	clock := &manualClock{now: 42}
	node := NewPlaneNode("p1", func(_ domain.PlaneID, task domain.Task) float64 {
		return task.Location.X
	}, box, clock, nil)

	node.AddNeighbor(domain.Task{ID: "t1", Location: domain.Location{X: 3}}, "p1")
	node.AddNeighbor(domain.Task{ID: "t2", Location: domain.Location{X: 8}}, "p2")
	require.NoError(t, node.Run())

	require.Len(t, box.sent, 2)
	assert.Equal(t, domain.PlaneID("p1"), box.sent[0].To)
	assert.Equal(t, PlaneToTask{Sender: "p1", Recipient: "t1", Value: 3}, box.sent[0].Payload)
	assert.Equal(t, domain.PlaneID("p2"), box.sent[1].To)
	assert.Equal(t, PlaneToTask{Sender: "p1", Recipient: "t2", Value: 8}, box.sent[1].Payload)
	assert.Equal(t, int64(42), box.sent[1].Tick)
	assert.NotEmpty(t, box.sent[0].ID)
}

func TestPlaneNodeRemoveNeighbor(t *testing.T) {
	box := &outbox{}
	node := NewPlaneNode("p1", func(domain.PlaneID, domain.Task) float64 { return 1 }, box, &manualClock{}, nil)
	node.AddNeighbor(domain.Task{ID: "t1"}, "p1")
	node.AddNeighbor(domain.Task{ID: "t2"}, "p2")

	require.True(t, node.RemoveNeighbor("t1"))
	assert.False(t, node.RemoveNeighbor("t1"))
	assert.Equal(t, []domain.TaskID{"t2"}, node.Neighbors())
	assert.Len(t, node.Factor().Neighbors(), 1)

	require.NoError(t, node.Run())
	require.Len(t, box.sent, 1)
	assert.Equal(t, domain.TaskID("t2"), box.sent[0].Payload.(PlaneToTask).Recipient)

	err := node.Receive(TaskToPlane{Sender: "t1", Recipient: "p1", Value: 1})
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestPlaneNodeReaddMovesProxy(t *testing.T) {
	box := &outbox{}
	node := NewPlaneNode("p1", func(domain.PlaneID, domain.Task) float64 { return 2 }, box, &manualClock{}, nil)
	node.AddNeighbor(domain.Task{ID: "t1"}, "p1")
	node.AddNeighbor(domain.Task{ID: "t1"}, "p3")

	host, ok := node.Neighbor("t1")
	require.True(t, ok)
	assert.Equal(t, domain.PlaneID("p3"), host)
	assert.Len(t, node.Factor().Neighbors(), 1)

	require.NoError(t, node.Run())
	require.Len(t, box.sent, 1)
	assert.Equal(t, domain.PlaneID("p3"), box.sent[0].To)
}

func TestClearNeighborsFaultsLateMessages(t *testing.T) {
	net := newNetwork()
	cost := costTable(map[domain.PlaneID]float64{"p1": 1, "p2": 2})
	net.addPlane("p1", cost)
	net.addPlane("p2", cost)
	task := net.addTask("p1", domain.Task{ID: "x"})
	net.connect()
	require.NoError(t, net.round())
	require.NoError(t, net.round())

	task.ClearNeighbors()
	net.planes["p2"].ClearNeighbors()

	assert.Empty(t, task.Neighbors())
	assert.Empty(t, task.Factor().Neighbors())
	assert.Empty(t, net.planes["p2"].Factor().Neighbors())
	_, ok := net.planes["p2"].Factor().Potential(nil)
	assert.False(t, ok)

	err := task.Receive(PlaneToTask{Sender: "p1", Recipient: "x", Value: 1})
	assert.True(t, errors.Is(err, ErrInconsistent))
	err = net.planes["p2"].Receive(TaskToPlane{Sender: "x", Recipient: "p2", Value: 1})
	assert.True(t, errors.Is(err, ErrInconsistent))

	_, decided, err := task.MakeDecision()
	require.NoError(t, err)
	assert.False(t, decided)
}

func TestCostFactorMissingPotentialIsFatal(t *testing.T) {
	box := &outbox{}
	f := NewCostFactor(nil)
	proxy := NewProxyFactor[domain.PlaneID, domain.TaskID]("p1", "t1", "p1", "p2", Factor(f), box, nil)
	f.AddNeighbor(proxy)

	err := f.Run()
	assert.ErrorIs(t, err, ErrInconsistent)
	assert.Empty(t, box.sent)
}

func TestFactorRejectsForeignSender(t *testing.T) {
	f := NewSelectorFactor(nil)
	stranger := NewCostFactor(nil)

	err := f.Receive(1, stranger)
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestProxyRoundTripsLogicalSender(t *testing.T) {
	box := &outbox{}
	selector := NewSelectorFactor(nil)
	proxy := NewProxyFactor[domain.TaskID, domain.PlaneID]("t1", "p2", "p1", "p2", Factor(selector), box, nil)
	selector.AddNeighbor(proxy)

	require.NoError(t, proxy.Deliver(PlaneToTask{Sender: "p2", Recipient: "t1", Value: 6}))
	assert.Equal(t, Factor(proxy), selector.Select())

	err := proxy.Deliver(PlaneToTask{Sender: "p9", Recipient: "t1", Value: 6})
	assert.ErrorIs(t, err, ErrInconsistent)

	selector.Tick()
	require.NoError(t, selector.Run())
	require.Len(t, box.sent, 1)
	assert.Equal(t, domain.PlaneID("p1"), box.sent[0].From)
	assert.Equal(t, domain.PlaneID("p2"), box.sent[0].To)
	assert.Equal(t, TaskToPlane{Sender: "t1", Recipient: "p2", Value: 0}, box.sent[0].Payload)
}

func TestProxySendFailurePropagates(t *testing.T) {
	box := &outbox{err: errors.New("queue full")}
	node := NewPlaneNode("p1", func(domain.PlaneID, domain.Task) float64 { return 1 }, box, &manualClock{}, nil)
	node.AddNeighbor(domain.Task{ID: "t1"}, "p2")

	err := node.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
	assert.NotErrorIs(t, err, ErrInconsistent)
}

func TestMakeDecisionRejectsNonProxyChoice(t *testing.T) {
	node := NewTaskNode("p1", domain.Task{ID: "x"}, &outbox{}, &manualClock{}, nil)
	rogue := NewCostFactor(nil)
	node.factor.AddNeighbor(rogue)
	require.NoError(t, node.factor.Receive(1, rogue))

	_, _, err := node.MakeDecision()
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestCostFactorSelectPrefersWidestMargin(t *testing.T) {
	box := &outbox{}
	node := NewPlaneNode("p1", func(_ domain.PlaneID, task domain.Task) float64 {
		return task.Location.X
	}, box, &manualClock{}, nil)
	node.AddNeighbor(domain.Task{ID: "t1", Location: domain.Location{X: 5}}, "p1")
	node.AddNeighbor(domain.Task{ID: "t2", Location: domain.Location{X: 2}}, "p2")

	_, ok := node.Preferred()
	assert.False(t, ok)

	require.NoError(t, node.Receive(TaskToPlane{Sender: "t1", Recipient: "p1", Value: 6}))
	require.NoError(t, node.Receive(TaskToPlane{Sender: "t2", Recipient: "p1", Value: 9}))

	task, ok := node.Preferred()
	require.True(t, ok)
	assert.Equal(t, domain.TaskID("t2"), task)
}
