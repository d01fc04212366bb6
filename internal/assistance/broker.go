package assistance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/kernel"
	"github.com/acip-dev/fck/internal/manifest"
)

// PeerClient queries a single peer agent for an assistance response. It
// is the PEER_AGENT route's transport; implementations typically wrap a
// federation.Client pointed at a peer's Dispatch RPC, or an in-process
// stand-in for tests.
type PeerClient interface {
	PeerID() string
	Ask(ctx context.Context, traceID, query string) (response string, err error)
}

// HumanEscalationSink delivers a query to a human operator channel
// (operator socket subscribers, a paging system, etc.) and returns
// immediately; HUMAN_ESCALATION never blocks on a human's reply inside
// the kernel's critical section.
type HumanEscalationSink interface {
	Escalate(ctx context.Context, traceID, agentID, query string) error
}

// RouteConfig orders which routes the Broker will attempt and with what
// parameters. This is the broker's own operating configuration, held
// separately from the agent's CapabilityManifest: the manifest says
// which routes an agent is *permitted* to use, and the kernel passes
// that list on every request as AssistanceRequest.AllowedRoutes, which
// RequestAssistance enforces by skipping any route absent from it;
// RouteConfig says how this particular broker instance is wired to
// reach them.
type RouteConfig struct {
	Order      []manifest.AssistanceRoute
	PeerQuorum *PeerQuorum
}

// Broker implements kernel.AssistanceBroker, trying routes in the order
// given by RouteConfig and returning the first that succeeds.
type Broker struct {
	cfg        RouteConfig
	federation kernel.FederationClient
	peers      []PeerClient
	human      HumanEscalationSink
	log        *zap.Logger
}

// NewBroker constructs a Broker. federation may be nil if the
// FEDERATION route is never configured; peers may be empty if
// PEER_AGENT is never configured; human may be nil if
// HUMAN_ESCALATION is never configured. A route listed in cfg.Order
// whose backend is nil/empty is skipped rather than erroring, so a
// partially wired broker degrades gracefully to its next route.
func NewBroker(cfg RouteConfig, federation kernel.FederationClient, peers []PeerClient, human HumanEscalationSink, log *zap.Logger) *Broker {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PeerQuorum == nil {
		cfg.PeerQuorum = NewPeerQuorum(1, 30*time.Second)
	}
	return &Broker{cfg: cfg, federation: federation, peers: peers, human: human, log: log}
}

// RequestAssistance implements kernel.AssistanceBroker.
func (b *Broker) RequestAssistance(ctx context.Context, req kernel.AssistanceRequest) (kernel.AssistanceResult, error) {
	var lastErr string
	for _, route := range b.cfg.Order {
		if !routeAllowed(route, req.AllowedRoutes) {
			continue
		}
		switch route {
		case manifest.RouteFederation:
			if b.federation == nil {
				continue
			}
			res, err := b.federation.Request(ctx, kernel.FederationRequest{
				TraceID:   req.TraceID,
				AgentID:   req.AgentID,
				Operation: "assistance.query",
				Payload:   map[string]frame.Scalar{"query": frame.StringScalar(req.Query)},
				RiskTier:  req.RiskTier,
			})
			if err != nil {
				return kernel.AssistanceResult{}, err
			}
			if !res.OK {
				lastErr = res.Error
				continue
			}
			return kernel.AssistanceResult{OK: true, Response: res.Result["response"].AsString(), RouteUsed: manifest.RouteFederation}, nil

		case manifest.RoutePeerAgent:
			if len(b.peers) == 0 {
				continue
			}
			response, ok, err := b.askPeers(ctx, req)
			if err != nil {
				return kernel.AssistanceResult{}, err
			}
			if !ok {
				lastErr = "PEER_QUORUM_NOT_REACHED"
				continue
			}
			return kernel.AssistanceResult{OK: true, Response: response, RouteUsed: manifest.RoutePeerAgent}, nil

		case manifest.RouteHumanEscalation:
			if b.human == nil {
				continue
			}
			if err := b.human.Escalate(ctx, req.TraceID, req.AgentID, req.Query); err != nil {
				lastErr = err.Error()
				continue
			}
			return kernel.AssistanceResult{OK: true, Response: "escalated to human operator", RouteUsed: manifest.RouteHumanEscalation}, nil

		default:
			b.log.Warn("assistance broker: unknown route in RouteConfig.Order", zap.String("route", string(route)))
		}
	}
	if lastErr == "" {
		lastErr = "NO_ROUTE_AVAILABLE"
	}
	return kernel.AssistanceResult{OK: false, Error: lastErr}, nil
}

// routeAllowed reports whether route may be attempted given the
// manifest's assistance.routes, as carried on the request by the
// kernel. Fail-closed: a route absent from allowed is refused even if
// RouteConfig.Order lists it.
func routeAllowed(route manifest.AssistanceRoute, allowed []manifest.AssistanceRoute) bool {
	for _, r := range allowed {
		if r == route {
			return true
		}
	}
	return false
}

// askPeers fans the query out to every configured peer, records each
// answer into the PeerQuorum, and waits only as long as ctx allows for
// a quorum-confirmed response to emerge.
func (b *Broker) askPeers(ctx context.Context, req kernel.AssistanceRequest) (string, bool, error) {
	b.cfg.PeerQuorum.UpdatePeerReachability(len(b.peers))

	type answer struct {
		peerID   string
		response string
		err      error
	}
	results := make(chan answer, len(b.peers))
	for _, p := range b.peers {
		p := p
		go func() {
			resp, err := p.Ask(ctx, req.TraceID, req.Query)
			results <- answer{peerID: p.PeerID(), response: resp, err: err}
		}()
	}

	for range b.peers {
		select {
		case a := <-results:
			if a.err != nil {
				b.log.Debug("assistance peer query failed", zap.String("peer", a.peerID), zap.Error(a.err))
				continue
			}
			b.cfg.PeerQuorum.Record(req.TraceID, a.peerID, a.response)
			if resp, confirmed := b.cfg.PeerQuorum.Confirm(req.TraceID); confirmed {
				return resp, true, nil
			}
		case <-ctx.Done():
			return "", false, fmt.Errorf("assistance: peer quorum wait: %w", ctx.Err())
		}
	}
	return "", false, nil
}
