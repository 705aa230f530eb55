// Package mcp exposes the PK/DDI simulation engine as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pkddi-mcp-server/internal/domain"
	"github.com/pkddi-mcp-server/internal/store"
)

// CreatedBy is recorded on every run persisted from a tool call
const CreatedBy = "mcp"

// Server represents the PK/DDI MCP server implementation
type Server struct {
	info      domain.ServerConfig
	mcpServer *mcp.Server
	services  *Services
	store     store.Store
	logger    *logrus.Logger
}

// ServerOption is a functional option for Server.
type ServerOption func(*Server)

// WithStore persists every successful tool result to runs.
func WithStore(runs store.Store) ServerOption {
	return func(s *Server) {
		s.store = runs
	}
}

// NewServer creates a new MCP server instance with all tools registered
func NewServer(info domain.ServerConfig, services *Services, logger *logrus.Logger, opts ...ServerOption) (*Server, error) {
	if services == nil {
		return nil, fmt.Errorf("services are required")
	}

	server := &Server{
		info:     info,
		services: services,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    info.Name,
		Version: info.Version,
	}, nil)

	server.registerTools()

	return server, nil
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"name":    s.info.Name,
		"version": s.info.Version,
		"store":   s.store != nil,
	}).Info("Starting PK/DDI MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close releases the run store
func (s *Server) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close run store")
			return err
		}
	}
	return nil
}

// registerTools registers every simulation tool, plus the run history tools when a store is set
func (s *Server) registerTools() {
	addTool(s, &mcp.Tool{
		Name:        ToolSimulatePK,
		Description: "Simulate one-compartment oral pharmacokinetics (Cmax, Tmax, AUC, clearance, half-life, steady-state concentration) for a patient, drug and dose, adjusted for age, CYP2D6/CYP3A4 status and BMI.",
	}, s.simulatePK)

	addTool(s, &mcp.Tool{
		Name:        ToolCheckInteractions,
		Description: "Check all pairs of the given drugs for drug-drug interactions. Returns interactions of minor severity or above and the pairs that could not be checked.",
	}, s.checkInteractions)

	addTool(s, &mcp.Tool{
		Name:        ToolOptimizeDose,
		Description: "Recommend a practical dose of a catalog drug that reaches a target concentration for the patient.",
	}, s.optimizeDose)

	addTool(s, &mcp.Tool{
		Name:        ToolPredictAdverseEvents,
		Description: "Predict adverse events with probability, onset, duration and seriousness for one or more patients taking a drug.",
	}, s.predictAdverseEvents)

	addTool(s, &mcp.Tool{
		Name:        ToolGenerateSafetyReport,
		Description: "Aggregate adverse events for a trial population into incidence, category and severity counts, safety signals and an overall assessment. Events are predicted when none are given.",
	}, s.generateSafetyReport)

	addTool(s, &mcp.Tool{
		Name:        ToolSimulatePatient,
		Description: "Run PK simulation and interaction checks for a patient on a drug plus concomitant and current medications, flagging when a dose adjustment is needed.",
	}, s.simulatePatient)

	addTool(s, &mcp.Tool{
		Name:        ToolSummarizePopulation,
		Description: "Summarize a patient population by age, gender and CYP2D6 metabolizer status.",
	}, s.summarizePopulation)

	addTool(s, &mcp.Tool{
		Name:        ToolListDrugs,
		Description: "List the drugs in the reference catalog with their pharmacological properties.",
	}, s.listDrugs)

	if s.store != nil {
		addTool(s, &mcp.Tool{
			Name:        ToolListRuns,
			Description: "List persisted simulation runs, newest first.",
		}, s.listRuns)

		addTool(s, &mcp.Tool{
			Name:        ToolGetRun,
			Description: "Fetch a persisted simulation run by id.",
		}, s.getRun)
	}

	s.logger.Info("Registered MCP tools")
}
