package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/wellsgz/fwledger/api"
	"github.com/wellsgz/fwledger/internal/config"
	"github.com/wellsgz/fwledger/internal/firewall"
	"github.com/wellsgz/fwledger/internal/ledger"
	"github.com/wellsgz/fwledger/internal/storage"
	"github.com/wellsgz/fwledger/internal/types"
)

// Server handles IPC requests from clients.
type Server struct {
	socketPath string
	listener   net.Listener
	fw         *firewall.Firewall
	db         *storage.DB
	persister  *Persister
	config     *config.Config
	startTime  time.Time

	mu      sync.Mutex
	clients map[net.Conn]struct{}
}

// NewServer creates a new IPC server.
func NewServer(socketPath string, fw *firewall.Firewall, db *storage.DB, persister *Persister, cfg *config.Config) *Server {
	return &Server{
		socketPath: socketPath,
		fw:         fw,
		db:         db,
		persister:  persister,
		config:     cfg,
		startTime:  time.Now(),
		clients:    make(map[net.Conn]struct{}),
	}
}

// Serve starts the IPC server.
func (s *Server) Serve(ctx context.Context) error {
	// Remove existing socket file
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("creating unix socket: %w", err)
	}
	s.listener = listener

	// Make socket accessible to non-root users
	if err := os.Chmod(s.socketPath, 0666); err != nil {
		slog.Warn("failed to chmod socket", "error", err)
	}

	slog.Info("IPC server started", "socket", s.socketPath)

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("accept error", "error", err)
			continue
		}

		s.mu.Lock()
		if s.clients == nil {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		go s.handleClient(conn)
	}
}

// Close shuts down the server.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		conn.Close()
	}
	s.clients = nil

	if s.listener != nil {
		s.listener.Close()
	}

	os.Remove(s.socketPath)
	slog.Info("IPC server stopped")
	return nil
}

func (s *Server) handleClient(conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), api.MaxMessageSize)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()

		var req api.Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.sendError(encoder, 0, api.ErrCodeInvalidRequest, "invalid JSON")
			continue
		}

		resp := s.handleRequest(&req)
		if err := encoder.Encode(resp); err != nil {
			slog.Error("failed to send response", "error", err)
			return
		}
	}
}

func (s *Server) handleRequest(req *api.Request) *api.Response {
	switch req.Method {
	case api.MethodProcessPacket:
		return s.handleProcessPacket(req)
	case api.MethodGetStats:
		return s.handleGetStats(req)
	case api.MethodGetTop:
		return s.handleGetTop(req)
	case api.MethodGetChain:
		return s.handleGetChain(req)
	case api.MethodVerifyChain:
		return s.handleVerifyChain(req)
	case api.MethodGetStatus:
		return s.handleGetStatus(req)
	case api.MethodClearChain:
		return s.handleClearChain(req)
	case api.MethodResetStats:
		return s.handleResetStats(req)
	case api.MethodFlush:
		return s.handleFlush(req)
	case api.MethodGetHistory:
		return s.handleGetHistory(req)
	default:
		return s.errorResponse(req.ID, api.ErrCodeMethodNotFound, "method not found")
	}
}

// decodeParams unmarshals optional params; absent params leave v untouched.
func decodeParams(req *api.Request, v any) error {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return nil
	}
	return json.Unmarshal(req.Params, v)
}

func (s *Server) handleProcessPacket(req *api.Request) *api.Response {
	var params api.ProcessParams
	if err := decodeParams(req, &params); err != nil || len(params.Packets) == 0 {
		return s.errorResponse(req.ID, api.ErrCodeInvalidParams, "invalid params: at least one packet is required")
	}

	eng := s.fw.Engine()
	var result api.ProcessResult

	if params.Batch {
		packets := make([]types.Packet, 0, len(params.Packets))
		for i, spec := range params.Packets {
			p, err := spec.Build()
			if err != nil {
				return s.errorResponse(req.ID, api.ErrCodeInvalidParams, fmt.Sprintf("packet %d: %v", i, err))
			}
			packets = append(packets, p)
		}
		decisions, block, err := s.fw.ProcessBatch(packets)
		if err != nil {
			return s.errorResponse(req.ID, api.ErrCodeInternal, err.Error())
		}
		for i := range decisions {
			result.Results = append(result.Results, api.ProcessedPacket{
				Decision:   &decisions[i],
				RiskLevel:  eng.EvaluateRiskLevel(decisions[i].TotalScore).String(),
				BlockIndex: block.Index,
				BlockHash:  block.Hash,
			})
		}
		return s.successResponse(req.ID, result)
	}

	for _, spec := range params.Packets {
		p, err := spec.Build()
		if err != nil {
			result.Results = append(result.Results, api.ProcessedPacket{BlockIndex: -1, Error: err.Error()})
			continue
		}
		d, block, err := s.fw.Process(p)
		if err != nil {
			result.Results = append(result.Results, api.ProcessedPacket{BlockIndex: -1, Error: err.Error()})
			continue
		}
		result.Results = append(result.Results, api.ProcessedPacket{
			Decision:   &d,
			RiskLevel:  eng.EvaluateRiskLevel(d.TotalScore).String(),
			BlockIndex: block.Index,
			BlockHash:  block.Hash,
		})
	}

	return s.successResponse(req.ID, result)
}

func (s *Server) handleGetStats(req *api.Request) *api.Response {
	params := api.LimitParams{Limit: 10}
	if err := decodeParams(req, &params); err != nil {
		return s.errorResponse(req.ID, api.ErrCodeInvalidParams, "invalid params")
	}

	st := s.fw.Stats()
	return s.successResponse(req.ID, api.StatsResult{
		Stats:  st.Snapshot(),
		Recent: st.Recent(params.Limit),
	})
}

func (s *Server) handleGetTop(req *api.Request) *api.Response {
	params := api.LimitParams{Limit: 10}
	if err := decodeParams(req, &params); err != nil {
		return s.errorResponse(req.ID, api.ErrCodeInvalidParams, "invalid params")
	}

	st := s.fw.Stats()
	return s.successResponse(req.ID, api.TopResult{
		Sources:   st.TopSources(params.Limit),
		Protocols: st.TopProtocols(params.Limit),
	})
}

func (s *Server) handleGetChain(req *api.Request) *api.Response {
	var params api.ChainParams
	if err := decodeParams(req, &params); err != nil {
		return s.errorResponse(req.ID, api.ErrCodeInvalidParams, "invalid params")
	}

	l := s.fw.Ledger()
	blocks := l.BlocksSince(params.Since)
	if params.Limit > 0 && len(blocks) > params.Limit {
		blocks = blocks[len(blocks)-params.Limit:]
	}
	if !params.Decisions {
		for i := range blocks {
			blocks[i].Decisions = nil
		}
	}
	if blocks == nil {
		blocks = []types.Block{}
	}

	return s.successResponse(req.ID, api.ChainResult{
		Blocks: blocks,
		Total:  l.Size(),
		Valid:  l.IsValid(),
	})
}

func (s *Server) handleVerifyChain(req *api.Request) *api.Response {
	report := s.fw.Verify()

	result := api.VerifyResult{Report: report}
	var ie *ledger.IntegrityError
	if errors.As(report.Err(), &ie) {
		result.Indices = ie.Indices
		slog.Warn("chain verification failed", "indices", ie.Indices)
	}

	return s.successResponse(req.ID, result)
}

func (s *Server) handleGetStatus(req *api.Request) *api.Response {
	uptime := time.Since(s.startTime)
	l := s.fw.Ledger()

	result := api.StatusResult{
		Running:         true,
		Uptime:          formatDuration(uptime),
		StartTime:       s.startTime.Format(time.RFC3339),
		BlockThreshold:  s.config.BlockThreshold,
		AlertThreshold:  s.config.AlertThreshold,
		Detectors:       s.fw.Analyzer().Detectors(),
		MonitoredPorts:  s.config.MonitoredPorts,
		BlacklistedIPs:  s.config.BlacklistedIPs,
		ChainBlocks:     l.Size(),
		LastIndex:       -1,
		PersistedIndex:  s.fw.Persisted(),
		DataDir:         s.config.ResolveDataDir(),
		SocketPath:      s.socketPath,
		MetricsListen:   s.config.MetricsListen,
		PersistInterval: s.config.PersistInterval.String(),
		Version:         Version,
	}
	if tail, ok := l.LastBlock(); ok {
		result.LastIndex = tail.Index
		result.LastHash = tail.Hash
	}

	return s.successResponse(req.ID, result)
}

func (s *Server) handleClearChain(req *api.Request) *api.Response {
	g, err := s.fw.Clear(s.db)
	if err != nil {
		return s.errorResponse(req.ID, api.ErrCodeInternal, err.Error())
	}
	slog.Warn("chain cleared by client", "genesis", g.Hash)
	return s.successResponse(req.ID, api.ClearResult{Genesis: g})
}

func (s *Server) handleResetStats(req *api.Request) *api.Response {
	s.fw.ResetStats()
	return s.successResponse(req.ID, api.SuccessResult{
		Success: true,
		Message: "statistics reset",
	})
}

func (s *Server) handleFlush(req *api.Request) *api.Response {
	n, err := s.persister.Flush()
	if err != nil {
		return s.errorResponse(req.ID, api.ErrCodeInternal, err.Error())
	}
	return s.successResponse(req.ID, api.FlushResult{Written: n})
}

func (s *Server) handleGetHistory(req *api.Request) *api.Response {
	params := api.HistoryParams{Limit: 20}
	if err := decodeParams(req, &params); err != nil {
		return s.errorResponse(req.ID, api.ErrCodeInvalidParams, "invalid params")
	}

	start, end, err := storage.ParseRange(params.Range, time.Now())
	if err != nil {
		return s.errorResponse(req.ID, api.ErrCodeInvalidParams, err.Error())
	}

	// Pending blocks would otherwise be missing from the query
	if _, err := s.persister.Flush(); err != nil {
		slog.Warn("flush before history query failed", "error", err)
	}

	counts, err := s.db.CountDecisionsByAction(start, end)
	if err != nil {
		return s.errorResponse(req.ID, api.ErrCodeInternal, err.Error())
	}
	decisions, err := s.db.QueryDecisions(start, end, params.Limit)
	if err != nil {
		return s.errorResponse(req.ID, api.ErrCodeInternal, err.Error())
	}

	startDate, endDate := storage.FormatDateRange(start, end)
	return s.successResponse(req.ID, api.HistoryResult{
		StartDate: startDate,
		EndDate:   endDate,
		Counts:    counts,
		Decisions: decisions,
	})
}

func (s *Server) successResponse(id int, result any) *api.Response {
	data, _ := json.Marshal(result)
	return &api.Response{
		Result: data,
		ID:     id,
	}
}

func (s *Server) errorResponse(id, code int, message string) *api.Response {
	return &api.Response{
		Error: &api.Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

func (s *Server) sendError(encoder *json.Encoder, id, code int, message string) {
	encoder.Encode(s.errorResponse(id, code, message))
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, hours, mins, secs)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hours, mins, secs)
}
