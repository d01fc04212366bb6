// Package operator — server.go
//
// Unix domain socket server exposing the kernel's entrypoints to a
// privileged local operator CLI.
//
// Protocol: newline-delimited JSON over a Unix domain socket.
// Socket path: /run/fck/operator.sock (configurable).
// Permissions: 0600. Only the owning user can connect.
//
// Commands (JSON request → JSON response):
//
//	{"cmd":"boot"}
//	  → Re-runs Boot with the daemon's configured default manifest.
//	  → Response: {"ok":true,"monotonic_counter":7}
//
//	{"cmd":"get_manifest"}
//	  → Returns the currently loaded CapabilityManifest.
//	  → Response: {"ok":true,"manifest":{...}}
//
//	{"cmd":"federation_call","trace_id":"t1","operation":"lookup","risk_tier":"T1_STANDARD","payload":{"key":"v"}}
//	  → Runs GovernedFederationCall.
//	  → Response: {"ok":true,"result":{...},"input_frame_hash":"...","uva_hash":"..."}
//
//	{"cmd":"request_assistance","trace_id":"t1","query":"...","risk_tier":"T1_STANDARD"}
//	  → Runs RequestAssistance.
//	  → Response: {"ok":true,"response":"...","route_used":"FEDERATION"}
//
//	{"cmd":"apply_update","package_id":"p1","channel":"CONFIG_BUNDLE","version":"1","payload_b64":"...","risk_tier":"T2_HIGH_STAKES"}
//	  → Runs ApplyUpdatePackage.
//	  → Response: {"ok":true,"last_manifest_hash":"..."}
//
//	{"cmd":"ledger_tail","limit":50}
//	  → Returns the most recent ledger entries.
//	  → Response: {"ok":true,"entries":[...]}
//
// Security:
//   - Socket is created with 0600 permissions.
//   - Each connection is handled in a separate goroutine.
//   - Max concurrent connections: 4 (operator use only, not high-throughput).
//   - Max request size: 65536 bytes.
//   - Connection timeout: 10s read, 10s write.
//   - Neither this package nor the Kernel's entrypoints write to the
//     audit ledger; ledger_tail only reads entries that were written
//     through storage.DB.AppendLedger.
package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/acip-dev/fck/internal/frame"
	"github.com/acip-dev/fck/internal/kernel"
	"github.com/acip-dev/fck/internal/manifest"
	"github.com/acip-dev/fck/internal/storage"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 65536
	connTimeout        = 10 * time.Second
)

// KernelFacade is the subset of *kernel.Kernel the operator socket
// drives. Declared as an interface here (rather than depending on the
// concrete type directly in Server's field) so the operator package can
// be tested against a stub without booting a real kernel.
type KernelFacade interface {
	Boot(ctx context.Context, defaultManifest manifest.CapabilityManifest) error
	GetManifest() (manifest.CapabilityManifest, bool)
	MonotonicCounter() uint64
	GovernedFederationCall(ctx context.Context, traceID, operation string, payload map[string]frame.Scalar, riskTier manifest.RiskTier) (kernel.FederationCallResult, error)
	RequestAssistance(ctx context.Context, traceID, query string, riskTier manifest.RiskTier) (kernel.AssistanceResultExternal, error)
	ApplyUpdatePackage(ctx context.Context, pkg manifest.UpdatePackage, riskTier manifest.RiskTier) (kernel.UpdateResult, error)
}

// LedgerReader returns the most recent ledger entries, newest last.
// *storage.DB implements this directly.
type LedgerReader interface {
	ReadLedger() ([]storage.LedgerEntry, error)
}

// DefaultManifestSource supplies Boot with the daemon's configured
// default manifest (loaded once at daemon startup from manifest_path).
type DefaultManifestSource func() manifest.CapabilityManifest

// Request is the JSON structure for operator commands.
type Request struct {
	Cmd         string                   `json:"cmd"`
	TraceID     string                   `json:"trace_id,omitempty"`
	Operation   string                   `json:"operation,omitempty"`
	Query       string                   `json:"query,omitempty"`
	RiskTier    manifest.RiskTier        `json:"risk_tier,omitempty"`
	Payload     map[string]interface{}   `json:"payload,omitempty"`
	PackageID   string                   `json:"package_id,omitempty"`
	Channel     manifest.UpdateChannel   `json:"channel,omitempty"`
	Version     string                   `json:"version,omitempty"`
	PayloadB64  string                   `json:"payload_b64,omitempty"`
	SignatureB64 string                  `json:"signature_b64,omitempty"`
	SignerID    string                   `json:"signer_id,omitempty"`
	Limit       int                      `json:"limit,omitempty"`
}

// Response is the JSON structure for operator command responses.
type Response struct {
	OK               bool                     `json:"ok"`
	Error            string                   `json:"error,omitempty"`
	MonotonicCounter uint64                   `json:"monotonic_counter,omitempty"`
	Manifest         *manifest.CapabilityManifest `json:"manifest,omitempty"`
	Result           map[string]interface{}   `json:"result,omitempty"`
	InputFrameHash   string                   `json:"input_frame_hash,omitempty"`
	UVAHash          string                   `json:"uva_hash,omitempty"`
	ResponseText     string                   `json:"response,omitempty"`
	RouteUsed        manifest.AssistanceRoute `json:"route_used,omitempty"`
	LastManifestHash string                   `json:"last_manifest_hash,omitempty"`
	Entries          []storage.LedgerEntry    `json:"entries,omitempty"`
}

// Server is the operator Unix domain socket server.
type Server struct {
	socketPath     string
	kernel         KernelFacade
	ledger         LedgerReader
	defaultManifest DefaultManifestSource
	log            *zap.Logger
	sem            chan struct{}
}

// NewServer creates an operator Server.
func NewServer(socketPath string, k KernelFacade, ledger LedgerReader, defaultManifest DefaultManifestSource, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		socketPath:      socketPath,
		kernel:          k,
		ledger:          ledger,
		defaultManifest: defaultManifest,
		log:             log,
		sem:             make(chan struct{}, maxConcurrentConns),
	}
}

// ListenAndServe starts the operator socket server. Removes any stale
// socket file before binding. Blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("operator: remove stale socket %q: %w", s.socketPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("operator: mkdir %q: %w", filepath.Dir(s.socketPath), err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("operator: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("operator: chmod %q: %w", s.socketPath, err)
	}

	s.log.Info("operator socket listening", zap.String("path", s.socketPath))

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("operator: accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("operator: max connections reached, rejecting")
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(ctx, c)
		}(conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		s.log.Warn("operator: read error", zap.Error(err))
		return
	}

	var req Request
	if err := json.Unmarshal(buf[:n], &req); err != nil {
		s.writeResponse(conn, Response{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}

	resp := s.dispatch(ctx, req)
	s.writeResponse(conn, resp)
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Cmd {
	case "boot":
		return s.cmdBoot(ctx)
	case "get_manifest":
		return s.cmdGetManifest()
	case "federation_call":
		return s.cmdFederationCall(ctx, req)
	case "request_assistance":
		return s.cmdRequestAssistance(ctx, req)
	case "apply_update":
		return s.cmdApplyUpdate(ctx, req)
	case "ledger_tail":
		return s.cmdLedgerTail(req)
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (s *Server) cmdBoot(ctx context.Context) Response {
	if s.defaultManifest == nil {
		return Response{OK: false, Error: "operator: no default manifest source configured"}
	}
	if err := s.kernel.Boot(ctx, s.defaultManifest()); err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	m, _ := s.kernel.GetManifest()
	counter := s.kernel.MonotonicCounter()
	s.log.Info("operator: boot invoked", zap.String("agent_id", m.AgentID), zap.Uint64("monotonic_counter", counter))
	return Response{OK: true, MonotonicCounter: counter}
}

func (s *Server) cmdGetManifest() Response {
	m, ok := s.kernel.GetManifest()
	if !ok {
		return Response{OK: false, Error: "kernel not booted"}
	}
	return Response{OK: true, Manifest: &m}
}

func (s *Server) cmdFederationCall(ctx context.Context, req Request) Response {
	if req.TraceID == "" || req.Operation == "" {
		return Response{OK: false, Error: "trace_id and operation are required for federation_call"}
	}
	payload, err := decodeScalarMap(req.Payload)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	res, err := s.kernel.GovernedFederationCall(ctx, req.TraceID, req.Operation, payload, req.RiskTier)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{
		OK:             res.OK,
		Error:          res.Error,
		Result:         encodeScalarMap(res.Result),
		InputFrameHash: res.InputFrameHash,
		UVAHash:        res.UVAHash,
	}
}

func (s *Server) cmdRequestAssistance(ctx context.Context, req Request) Response {
	if req.TraceID == "" || req.Query == "" {
		return Response{OK: false, Error: "trace_id and query are required for request_assistance"}
	}
	res, err := s.kernel.RequestAssistance(ctx, req.TraceID, req.Query, req.RiskTier)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{
		OK:             res.OK,
		Error:          res.Error,
		ResponseText:   res.Response,
		RouteUsed:      res.RouteUsed,
		InputFrameHash: res.InputFrameHash,
		UVAHash:        res.UVAHash,
	}
}

func (s *Server) cmdApplyUpdate(ctx context.Context, req Request) Response {
	if req.PackageID == "" || req.Channel == "" {
		return Response{OK: false, Error: "package_id and channel are required for apply_update"}
	}
	pkg := manifest.UpdatePackage{
		PackageID:    req.PackageID,
		Channel:      req.Channel,
		Version:      req.Version,
		CreatedUTC:   manifest.NowUTC(),
		PayloadB64:   req.PayloadB64,
		SignatureB64: req.SignatureB64,
		SignerID:     req.SignerID,
	}
	res, err := s.kernel.ApplyUpdatePackage(ctx, pkg, req.RiskTier)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{
		OK:               res.OK,
		Error:            res.Error,
		InputFrameHash:   res.InputFrameHash,
		UVAHash:          res.UVAHash,
		LastManifestHash: res.LastManifestHash,
	}
}

func (s *Server) cmdLedgerTail(req Request) Response {
	if s.ledger == nil {
		return Response{OK: false, Error: "operator: ledger not configured"}
	}
	entries, err := s.ledger.ReadLedger()
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	limit := req.Limit
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	return Response{OK: true, Entries: entries[len(entries)-limit:]}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

// decodeScalarMap converts operator-supplied raw JSON values into
// frame.Scalar, rejecting floats per the frame's no-float invariant.
func decodeScalarMap(raw map[string]interface{}) (map[string]frame.Scalar, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]frame.Scalar, len(raw))
	for k, v := range raw {
		switch vv := v.(type) {
		case string:
			out[k] = frame.StringScalar(vv)
		case bool:
			out[k] = frame.BoolScalar(vv)
		case float64:
			if vv != float64(int64(vv)) {
				return nil, fmt.Errorf("operator: payload key %q must be an integer, string, or bool (frames never carry floats)", k)
			}
			out[k] = frame.IntScalar(int64(vv))
		default:
			return nil, fmt.Errorf("operator: unsupported payload value type for key %q", k)
		}
	}
	return out, nil
}

// encodeScalarMap renders a frame.Scalar map back to plain JSON values
// for the operator response.
func encodeScalarMap(m map[string]frame.Scalar) map[string]interface{} {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v.AsString()
	}
	return out
}
