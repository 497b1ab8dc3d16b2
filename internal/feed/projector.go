package feed

import (
	"context"

	"chatsync/internal/model"
)

// Status is the relationship a viewer has toward a candidate user,
// derived from the friend graph and the request ledger.
type Status string

const (
	StatusNone     Status = "none"
	StatusOutgoing Status = "outgoing"
	StatusIncoming Status = "incoming"
	StatusAccepted Status = "accepted"
)

// Candidate pairs a user with the viewer's derived status toward them.
type Candidate struct {
	User   model.User `json:"user"`
	Status Status     `json:"status"`
}

// Projector merges four live streams - all users except the viewer,
// requests the viewer sent, requests the viewer received, and the
// viewer's accepted graph edges - into one status-per-user view. Each
// input emission is a self-consistent full snapshot, so the merge is
// correct no matter how the streams interleave: every emission replaces
// that stream's state and the whole view is recomputed.
type Projector struct {
	viewerID string
	users    *Subscription[model.User]
	outgoing *Subscription[model.FriendRequest]
	incoming *Subscription[model.FriendRequest]
	edges    *Subscription[model.FriendEdge]
	out      chan []Candidate
}

func NewProjector(
	viewerID string,
	users *Subscription[model.User],
	outgoing *Subscription[model.FriendRequest],
	incoming *Subscription[model.FriendRequest],
	edges *Subscription[model.FriendEdge],
) *Projector {
	return &Projector{
		viewerID: viewerID,
		users:    users,
		outgoing: outgoing,
		incoming: incoming,
		edges:    edges,
		out:      make(chan []Candidate, 1),
	}
}

// Snapshots delivers the recomputed view after every input emission.
// Closed when Run returns.
func (p *Projector) Snapshots() <-chan []Candidate {
	return p.out
}

// Run consumes the input streams until ctx is cancelled or all inputs
// close. It does not cancel the input subscriptions; their owner does.
func (p *Projector) Run(ctx context.Context) {
	defer close(p.out)

	var (
		users    []model.User
		sent     []model.FriendRequest
		received []model.FriendRequest
		edges    []model.FriendEdge
	)

	usersC := p.users.C
	sentC := p.outgoing.C
	receivedC := p.incoming.C
	edgesC := p.edges.C

	for usersC != nil || sentC != nil || receivedC != nil || edgesC != nil {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-usersC:
			if !ok {
				usersC = nil
				continue
			}
			users = snap
		case snap, ok := <-sentC:
			if !ok {
				sentC = nil
				continue
			}
			sent = snap
		case snap, ok := <-receivedC:
			if !ok {
				receivedC = nil
				continue
			}
			received = snap
		case snap, ok := <-edgesC:
			if !ok {
				edgesC = nil
				continue
			}
			edges = snap
		}

		view := p.project(users, sent, received, edges)
		select {
		case p.out <- view:
		case <-ctx.Done():
			return
		}
	}
}

// project recomputes status per candidate with precedence
// accepted > incoming > outgoing > none. Accepted is derived from the
// graph: an accepted edge owned by the viewer. Ledger rows contribute
// only the pending directions - a terminal accepted row says a request
// was once accepted, not that the friendship still stands, and deleting
// the edges (unfriending) must downgrade the view.
func (p *Projector) project(users []model.User, sent, received []model.FriendRequest, edges []model.FriendEdge) []Candidate {
	status := make(map[string]Status, len(sent)+len(received)+len(edges))

	upgrade := func(userID string, s Status) {
		if rank(s) > rank(status[userID]) {
			status[userID] = s
		}
	}

	for _, e := range edges {
		if e.Status == model.EdgeStatusAccepted {
			upgrade(e.PeerID, StatusAccepted)
		}
	}
	for _, r := range sent {
		if r.Status == model.RequestStatusPending {
			upgrade(r.ToID, StatusOutgoing)
		}
	}
	for _, r := range received {
		if r.Status == model.RequestStatusPending {
			upgrade(r.FromID, StatusIncoming)
		}
	}

	view := make([]Candidate, 0, len(users))
	for _, u := range users {
		if u.ID == p.viewerID {
			continue
		}
		s, ok := status[u.ID]
		if !ok {
			s = StatusNone
		}
		view = append(view, Candidate{User: u, Status: s})
	}
	return view
}

func rank(s Status) int {
	switch s {
	case StatusAccepted:
		return 3
	case StatusIncoming:
		return 2
	case StatusOutgoing:
		return 1
	default:
		return 0
	}
}
