package assistance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/kernel"
	"github.com/acip-dev/fck/internal/manifest"
)

type stubFederationClient struct {
	result kernel.FederationResult
	err    error
	calls  int
}

func (s *stubFederationClient) Request(_ context.Context, _ kernel.FederationRequest) (kernel.FederationResult, error) {
	s.calls++
	return s.result, s.err
}

type stubPeer struct {
	id       string
	response string
	err      error
}

func (p *stubPeer) PeerID() string { return p.id }
func (p *stubPeer) Ask(_ context.Context, _, _ string) (string, error) {
	return p.response, p.err
}

type stubHuman struct {
	called bool
	err    error
}

func (h *stubHuman) Escalate(_ context.Context, _, _, _ string) error {
	h.called = true
	return h.err
}

func TestBrokerPrefersFederationRoute(t *testing.T) {
	fed := &stubFederationClient{result: kernel.FederationResult{
		OK:     true,
		Result: map[string]frame.Scalar{"response": frame.StringScalar("answered by federation")},
	}}
	b := NewBroker(RouteConfig{Order: []manifest.AssistanceRoute{manifest.RouteFederation, manifest.RouteHumanEscalation}}, fed, nil, &stubHuman{}, nil)

	res, err := b.RequestAssistance(context.Background(), kernel.AssistanceRequest{
		TraceID: "t1", Query: "help",
		AllowedRoutes: []manifest.AssistanceRoute{manifest.RouteFederation, manifest.RouteHumanEscalation},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK || res.RouteUsed != manifest.RouteFederation || res.Response != "answered by federation" {
		t.Fatalf("expected federation route to succeed, got %+v", res)
	}
}

func TestBrokerFallsBackToPeerAgentWhenFederationFails(t *testing.T) {
	fed := &stubFederationClient{result: kernel.FederationResult{OK: false, Error: "DOWN"}}
	peers := []PeerClient{
		&stubPeer{id: "p1", response: "agreed"},
		&stubPeer{id: "p2", response: "agreed"},
	}
	b := NewBroker(RouteConfig{
		Order:      []manifest.AssistanceRoute{manifest.RouteFederation, manifest.RoutePeerAgent},
		PeerQuorum: NewPeerQuorum(2, 30*time.Second),
	}, fed, peers, nil, nil)

	res, err := b.RequestAssistance(context.Background(), kernel.AssistanceRequest{
		TraceID: "t1", Query: "help",
		AllowedRoutes: []manifest.AssistanceRoute{manifest.RouteFederation, manifest.RoutePeerAgent},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK || res.RouteUsed != manifest.RoutePeerAgent || res.Response != "agreed" {
		t.Fatalf("expected peer_agent route to confirm via quorum, got %+v", res)
	}
}

func TestBrokerFallsBackToHumanEscalationWhenAllElseFails(t *testing.T) {
	fed := &stubFederationClient{result: kernel.FederationResult{OK: false, Error: "DOWN"}}
	peers := []PeerClient{&stubPeer{id: "p1", err: errors.New("unreachable")}}
	human := &stubHuman{}
	b := NewBroker(RouteConfig{
		Order: []manifest.AssistanceRoute{manifest.RouteFederation, manifest.RoutePeerAgent, manifest.RouteHumanEscalation},
	}, fed, peers, human, nil)

	res, err := b.RequestAssistance(context.Background(), kernel.AssistanceRequest{
		TraceID: "t1", Query: "help",
		AllowedRoutes: []manifest.AssistanceRoute{manifest.RouteFederation, manifest.RoutePeerAgent, manifest.RouteHumanEscalation},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK || res.RouteUsed != manifest.RouteHumanEscalation || !human.called {
		t.Fatalf("expected human escalation fallback, got %+v", res)
	}
}

func TestBrokerReturnsErrorWhenNoRouteAvailable(t *testing.T) {
	b := NewBroker(RouteConfig{Order: []manifest.AssistanceRoute{manifest.RouteFederation}}, nil, nil, nil, nil)

	res, err := b.RequestAssistance(context.Background(), kernel.AssistanceRequest{
		TraceID: "t1", Query: "help",
		AllowedRoutes: []manifest.AssistanceRoute{manifest.RouteFederation},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK {
		t.Fatal("expected failure when no route backend is wired")
	}
}

// TestBrokerRefusesRouteAbsentFromAllowedRoutes proves the manifest's
// assistance.routes gate is enforced by the broker even when
// RouteConfig.Order lists a route the manifest doesn't permit: the
// kernel is the only source of AllowedRoutes, so a broker instance
// wired with a wider Order than the manifest allows must still refuse.
func TestBrokerRefusesRouteAbsentFromAllowedRoutes(t *testing.T) {
	fed := &stubFederationClient{result: kernel.FederationResult{
		OK:     true,
		Result: map[string]frame.Scalar{"response": frame.StringScalar("answered by federation")},
	}}
	human := &stubHuman{}
	b := NewBroker(RouteConfig{
		Order: []manifest.AssistanceRoute{manifest.RouteFederation, manifest.RouteHumanEscalation},
	}, fed, nil, human, nil)

	res, err := b.RequestAssistance(context.Background(), kernel.AssistanceRequest{
		TraceID: "t1", Query: "help",
		AllowedRoutes: []manifest.AssistanceRoute{manifest.RouteHumanEscalation},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RouteUsed != manifest.RouteHumanEscalation {
		t.Fatalf("expected the manifest-disallowed FEDERATION route to be skipped in favor of HUMAN_ESCALATION, got %+v", res)
	}
	if fed.calls != 0 {
		t.Errorf("federation must not be called for a route absent from AllowedRoutes, got %d calls", fed.calls)
	}
	if !human.called {
		t.Error("expected human escalation to be attempted since it is in AllowedRoutes")
	}
}
