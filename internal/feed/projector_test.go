package feed

import (
	"context"
	"testing"
	"time"

	"chatsync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticSub wraps a pre-filled channel as a Subscription for tests.
func staticSub[T any](snaps ...[]T) (*Subscription[T], chan []T) {
	ch := make(chan []T, len(snaps)+8)
	for _, s := range snaps {
		ch <- s
	}
	return &Subscription[T]{C: ch, cancel: func() {}}, ch
}

func recvView(t *testing.T, ch <-chan []Candidate) []Candidate {
	t.Helper()
	select {
	case view, ok := <-ch:
		require.True(t, ok, "snapshots channel closed early")
		return view
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for projected view")
		return nil
	}
}

func statusOf(view []Candidate, userID string) Status {
	for _, c := range view {
		if c.User.ID == userID {
			return c.Status
		}
	}
	return ""
}

func TestProjectorDerivesStatusPerUser(t *testing.T) {
	users, _ := staticSub([]model.User{
		{ID: "bob", Email: "bob@example.com"},
		{ID: "carol", Email: "carol@example.com"},
		{ID: "dave", Email: "dave@example.com"},
	})
	outgoing, outC := staticSub[model.FriendRequest]()
	incoming, inC := staticSub[model.FriendRequest]()
	edges, edgeC := staticSub[model.FriendEdge]()

	p := NewProjector("alice", users, outgoing, incoming, edges)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	recvView(t, p.Snapshots()) // users arrive, no requests yet

	outC <- []model.FriendRequest{
		{ID: "r1", FromID: "alice", ToID: "bob", Status: model.RequestStatusPending},
	}
	view := recvView(t, p.Snapshots())
	assert.Equal(t, StatusOutgoing, statusOf(view, "bob"))
	assert.Equal(t, StatusNone, statusOf(view, "carol"))

	inC <- []model.FriendRequest{
		{ID: "r2", FromID: "carol", ToID: "alice", Status: model.RequestStatusPending},
	}
	edgeC <- []model.FriendEdge{
		{OwnerID: "alice", PeerID: "dave", Status: model.EdgeStatusAccepted},
	}
	view = recvView(t, p.Snapshots())
	view = recvView(t, p.Snapshots())
	assert.Equal(t, StatusOutgoing, statusOf(view, "bob"))
	assert.Equal(t, StatusIncoming, statusOf(view, "carol"))
	assert.Equal(t, StatusAccepted, statusOf(view, "dave"))
}

func TestProjectorAcceptedComesFromEdgesNotLedger(t *testing.T) {
	users, _ := staticSub([]model.User{{ID: "bob", Email: "bob@example.com"}})
	// The ledger still holds the accepted row from the original request.
	// Without an edge the pair is not friends anymore, so the row alone
	// must not light the candidate up as accepted.
	outgoing, _ := staticSub([]model.FriendRequest{
		{ID: "r1", FromID: "alice", ToID: "bob", Status: model.RequestStatusAccepted},
	})
	incoming, _ := staticSub[model.FriendRequest]()
	edges, _ := staticSub[model.FriendEdge]()

	p := NewProjector("alice", users, outgoing, incoming, edges)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	var view []Candidate
	for i := 0; i < 2; i++ {
		view = recvView(t, p.Snapshots())
	}
	assert.Equal(t, StatusNone, statusOf(view, "bob"))
}

func TestProjectorDowngradesAfterUnfriend(t *testing.T) {
	users, _ := staticSub([]model.User{{ID: "bob", Email: "bob@example.com"}})
	outgoing, _ := staticSub([]model.FriendRequest{
		{ID: "r1", FromID: "alice", ToID: "bob", Status: model.RequestStatusAccepted},
	})
	incoming, _ := staticSub[model.FriendRequest]()
	edges, edgeC := staticSub([]model.FriendEdge{
		{OwnerID: "alice", PeerID: "bob", Status: model.EdgeStatusAccepted},
	})

	p := NewProjector("alice", users, outgoing, incoming, edges)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	var view []Candidate
	for i := 0; i < 3; i++ {
		view = recvView(t, p.Snapshots())
	}
	assert.Equal(t, StatusAccepted, statusOf(view, "bob"))

	// Unfriending removes the edges; the next edge snapshot is empty and
	// the view drops back to none even though the ledger row survives.
	edgeC <- []model.FriendEdge{}
	view = recvView(t, p.Snapshots())
	assert.Equal(t, StatusNone, statusOf(view, "bob"))
}

func TestProjectorAcceptedWinsOverPending(t *testing.T) {
	users, _ := staticSub([]model.User{{ID: "bob", Email: "bob@example.com"}})
	// A pending row and an accepted edge for the same peer; the edge
	// must win regardless of what the ledger streams say.
	outgoing, _ := staticSub([]model.FriendRequest{
		{ID: "r1", FromID: "alice", ToID: "bob", Status: model.RequestStatusPending},
	})
	incoming, _ := staticSub[model.FriendRequest]()
	edges, _ := staticSub([]model.FriendEdge{
		{OwnerID: "alice", PeerID: "bob", Status: model.EdgeStatusAccepted},
	})

	p := NewProjector("alice", users, outgoing, incoming, edges)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	var view []Candidate
	for i := 0; i < 3; i++ {
		view = recvView(t, p.Snapshots())
	}
	assert.Equal(t, StatusAccepted, statusOf(view, "bob"))
}

func TestProjectorExcludesViewer(t *testing.T) {
	users, _ := staticSub([]model.User{
		{ID: "alice", Email: "alice@example.com"},
		{ID: "bob", Email: "bob@example.com"},
	})
	outgoing, _ := staticSub[model.FriendRequest]()
	incoming, _ := staticSub[model.FriendRequest]()
	edges, _ := staticSub[model.FriendEdge]()

	p := NewProjector("alice", users, outgoing, incoming, edges)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	view := recvView(t, p.Snapshots())
	require.Len(t, view, 1)
	assert.Equal(t, "bob", view[0].User.ID)
}

func TestProjectorResultIndependentOfInterleaving(t *testing.T) {
	userSnap := []model.User{
		{ID: "bob", Email: "bob@example.com"},
		{ID: "carol", Email: "carol@example.com"},
	}
	sentSnap := []model.FriendRequest{
		{ID: "r1", FromID: "alice", ToID: "bob", Status: model.RequestStatusPending},
	}
	receivedSnap := []model.FriendRequest{
		{ID: "r2", FromID: "carol", ToID: "alice", Status: model.RequestStatusPending},
	}
	edgeSnap := []model.FriendEdge{
		{OwnerID: "alice", PeerID: "carol", Status: model.EdgeStatusAccepted},
	}

	// Feed the same four snapshots in two different orders; the final
	// view must be identical because each emission replaces that
	// stream's state wholesale.
	run := func(order func(u chan []model.User, s, r chan []model.FriendRequest, e chan []model.FriendEdge)) []Candidate {
		users, uC := staticSub[model.User]()
		outgoing, sC := staticSub[model.FriendRequest]()
		incoming, rC := staticSub[model.FriendRequest]()
		edges, eC := staticSub[model.FriendEdge]()

		p := NewProjector("alice", users, outgoing, incoming, edges)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go p.Run(ctx)

		order(uC, sC, rC, eC)

		var view []Candidate
		for i := 0; i < 4; i++ {
			view = recvView(t, p.Snapshots())
		}
		return view
	}

	a := run(func(u chan []model.User, s, r chan []model.FriendRequest, e chan []model.FriendEdge) {
		u <- userSnap
		s <- sentSnap
		r <- receivedSnap
		e <- edgeSnap
	})
	b := run(func(u chan []model.User, s, r chan []model.FriendRequest, e chan []model.FriendEdge) {
		e <- edgeSnap
		r <- receivedSnap
		s <- sentSnap
		u <- userSnap
	})

	assert.Equal(t, a, b)
}

func TestProjectorStopsOnContextCancel(t *testing.T) {
	users, _ := staticSub([]model.User{{ID: "bob", Email: "bob@example.com"}})
	outgoing, _ := staticSub[model.FriendRequest]()
	incoming, _ := staticSub[model.FriendRequest]()
	edges, _ := staticSub[model.FriendEdge]()

	p := NewProjector("alice", users, outgoing, incoming, edges)
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	recvView(t, p.Snapshots())
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-p.Snapshots():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
