// Package federation implements the FederationClient collaborator's
// gRPC mTLS transport: a client that dispatches governed_federation_call
// operations to a remote federation peer, a server implementation any
// peer can run to receive such calls, and a reduced manifest-drift
// gossip protocol (manifest_sync.go) replacing the teacher's full
// statistical baseline exchange.
//
// Transport security:
//   - TLS 1.3 only (tls.VersionTLS13).
//   - Mutual TLS: peer must present a certificate signed by the
//     configured CA.
//   - Certificate type: Ed25519.
package federation

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/acip-dev/fck/internal/federation/federationpb"
	"github.com/acip-dev/fck/internal/frame"
)

// Dispatcher executes a federation operation locally on behalf of a
// remote caller, after the server's own envelope checks pass. It is
// injected so the transport layer never embeds domain logic.
type Dispatcher interface {
	Dispatch(ctx context.Context, traceID, agentID, operation string, payload map[string]frame.Scalar, riskTier string) (ok bool, result map[string]frame.Scalar, errTag, source string)
}

// DriftSink receives observed peer manifest digests for drift detection.
type DriftSink interface {
	Observe(agentID, manifestHash string, monotonicCounter uint64)
}

// Server implements federationpb.FederationServiceServer.
type Server struct {
	federationpb.UnimplementedFederationServiceServer

	nodeID       string
	trustedPeers map[string]ed25519.PublicKey
	envelopeTTL  time.Duration
	dispatcher   Dispatcher
	drift        DriftSink
	log          *zap.Logger
	startTime    time.Time
}

// NewServer constructs a federation server. trustedPeers maps a peer's
// node_id to its Ed25519 public key, used to verify gossiped manifest
// digests.
func NewServer(nodeID string, trustedPeers map[string]ed25519.PublicKey, envelopeTTL time.Duration, dispatcher Dispatcher, drift DriftSink, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		nodeID:       nodeID,
		trustedPeers: trustedPeers,
		envelopeTTL:  envelopeTTL,
		dispatcher:   dispatcher,
		drift:        drift,
		log:          log,
		startTime:    time.Now(),
	}
}

// Dispatch implements FederationService.Dispatch: decodes the
// OperationRequest's payload_json, invokes the injected Dispatcher, and
// re-encodes the result.
func (s *Server) Dispatch(ctx context.Context, req *federationpb.OperationRequest) (*federationpb.OperationResponse, error) {
	payload, err := decodeScalarMap(req.PayloadJson)
	if err != nil {
		return &federationpb.OperationResponse{Ok: false, Error: "FEDERATION_ERROR:MALFORMED_PAYLOAD"}, nil
	}

	ok, result, errTag, source := s.dispatcher.Dispatch(ctx, req.TraceId, req.AgentId, req.Operation, payload, req.RiskTier)

	resp := &federationpb.OperationResponse{Ok: ok, Error: errTag, Source: source}
	if ok {
		encoded, err := encodeScalarMap(result)
		if err != nil {
			return &federationpb.OperationResponse{Ok: false, Error: "FEDERATION_ERROR:MALFORMED_RESULT"}, nil
		}
		resp.ResultJson = encoded
	}

	s.log.Debug("federation dispatch handled",
		zap.String("trace_id", req.TraceId),
		zap.String("operation", req.Operation),
		zap.Bool("ok", ok),
	)
	return resp, nil
}

// Gossip implements FederationService.Gossip: verifies the envelope per
// §9's reduced manifest-drift protocol and forwards accepted digests to
// the drift sink.
func (s *Server) Gossip(_ context.Context, env *federationpb.ManifestDigest) (*federationpb.DigestAck, error) {
	envTime := time.Unix(0, env.TimestampUnixNs)
	age := time.Since(envTime)
	if age > s.envelopeTTL || age < -5*time.Second {
		s.log.Warn("manifest digest rejected: stale timestamp",
			zap.String("agent_id", env.AgentId), zap.Duration("age", age))
		return &federationpb.DigestAck{Accepted: false, RejectionReason: "timestamp_stale"}, nil
	}

	pubKey, trusted := s.trustedPeers[env.AgentId]
	if !trusted {
		s.log.Warn("manifest digest rejected: unknown peer", zap.String("agent_id", env.AgentId))
		return &federationpb.DigestAck{Accepted: false, RejectionReason: "peer_unknown"}, nil
	}

	if !ed25519.Verify(pubKey, digestSignatureMessage(env), env.Signature) {
		s.log.Warn("manifest digest rejected: invalid signature", zap.String("agent_id", env.AgentId))
		return &federationpb.DigestAck{Accepted: false, RejectionReason: "signature_invalid"}, nil
	}

	s.drift.Observe(env.AgentId, env.ManifestHash, env.MonotonicCounter)

	return &federationpb.DigestAck{Accepted: true}, nil
}

// HealthCheck implements FederationService.HealthCheck.
func (s *Server) HealthCheck(_ context.Context, _ *federationpb.HealthRequest) (*federationpb.HealthResponse, error) {
	return &federationpb.HealthResponse{
		NodeId:        s.nodeID,
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}, nil
}

// digestSignatureMessage constructs the canonical byte sequence signed
// by the sender: agent_id || manifest_hash || monotonic_counter (8 LE) ||
// timestamp_unix_ns (8 LE).
func digestSignatureMessage(env *federationpb.ManifestDigest) []byte {
	var buf []byte
	buf = append(buf, []byte(env.AgentId)...)
	buf = append(buf, []byte(env.ManifestHash)...)
	mc := make([]byte, 8)
	binary.LittleEndian.PutUint64(mc, env.MonotonicCounter)
	buf = append(buf, mc...)
	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, uint64(env.TimestampUnixNs))
	buf = append(buf, ts...)
	return buf
}

// SignDigest signs a digest with the sender's Ed25519 private key,
// producing the Signature field value.
func SignDigest(priv ed25519.PrivateKey, env *federationpb.ManifestDigest) []byte {
	return ed25519.Sign(priv, digestSignatureMessage(env))
}

func decodeScalarMap(js string) (map[string]frame.Scalar, error) {
	if js == "" {
		return nil, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(js), &raw); err != nil {
		return nil, err
	}
	out := make(map[string]frame.Scalar, len(raw))
	for k, v := range raw {
		switch vv := v.(type) {
		case string:
			out[k] = frame.StringScalar(vv)
		case bool:
			out[k] = frame.BoolScalar(vv)
		case float64:
			out[k] = frame.IntScalar(int64(vv))
		default:
			return nil, fmt.Errorf("federation: unsupported scalar type for key %q", k)
		}
	}
	return out, nil
}

func encodeScalarMap(m map[string]frame.Scalar) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	raw := make(map[string]interface{}, len(m))
	for k, v := range m {
		raw[k] = v
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ListenAndServe starts the gRPC mTLS server on addr. Blocks until ctx
// is cancelled.
func ListenAndServe(ctx context.Context, addr string, certFile, keyFile, caFile string, srv *Server, log *zap.Logger) error {
	tlsCfg, err := buildServerTLS(certFile, keyFile, caFile)
	if err != nil {
		return fmt.Errorf("federation TLS config: %w", err)
	}

	creds := credentials.NewTLS(tlsCfg)
	grpcSrv := grpc.NewServer(
		grpc.Creds(creds),
		grpc.MaxRecvMsgSize(256*1024),
		grpc.MaxSendMsgSize(256*1024),
	)
	federationpb.RegisterFederationServiceServer(grpcSrv, srv)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("federation listen %s: %w", addr, err)
	}

	log.Info("federation server listening", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		grpcSrv.GracefulStop()
	}()

	if err := grpcSrv.Serve(lis); err != nil {
		return fmt.Errorf("federation grpc serve: %w", err)
	}
	return nil
}

func buildServerTLS(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load server cert/key: %w", err)
	}

	caData, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file %q: %w", caFile, err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caData) {
		return nil, fmt.Errorf("failed to parse CA certificate from %q", caFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    caPool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
