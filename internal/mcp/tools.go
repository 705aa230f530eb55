package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pkddi-mcp-server/internal/domain"
	"github.com/pkddi-mcp-server/internal/service"
	"github.com/pkddi-mcp-server/internal/store"
)

// Tool names
const (
	ToolSimulatePK           = "simulate_pk"
	ToolCheckInteractions    = "check_interactions"
	ToolOptimizeDose         = "optimize_dose"
	ToolPredictAdverseEvents = "predict_adverse_events"
	ToolGenerateSafetyReport = "generate_safety_report"
	ToolSimulatePatient      = "simulate_patient"
	ToolSummarizePopulation  = "summarize_population"
	ToolListDrugs            = "list_drugs"
	ToolListRuns             = "list_runs"
	ToolGetRun               = "get_run"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// PatientInput is the patient profile accepted by the tools
type PatientInput struct {
	PatientID             string   `json:"patient_id,omitempty" jsonschema:"patient identifier"`
	Age                   int      `json:"age" jsonschema:"age in years"`
	Gender                string   `json:"gender,omitempty" jsonschema:"male, female or other"`
	Ethnicity             string   `json:"ethnicity,omitempty"`
	CYP2D6Status          string   `json:"cyp2d6_status,omitempty" jsonschema:"Poor, Intermediate, Normal or Ultra-rapid"`
	CYP3A4Activity        string   `json:"cyp3a4_activity,omitempty" jsonschema:"Low, Normal or High"`
	HLAMarkers            []string `json:"hla_markers,omitempty"`
	Conditions            []string `json:"conditions,omitempty" jsonschema:"current medical conditions"`
	Allergies             []string `json:"allergies,omitempty"`
	CurrentMedications    []string `json:"current_medications,omitempty" jsonschema:"drugs the patient already takes"`
	PreviousAdverseEvents []string `json:"previous_adverse_events,omitempty"`
	WeightKg              float64  `json:"weight_kg,omitempty"`
	HeightCm              float64  `json:"height_cm,omitempty"`
	SystolicBP            float64  `json:"systolic_bp,omitempty"`
	DiastolicBP           float64  `json:"diastolic_bp,omitempty"`
	HeartRate             float64  `json:"heart_rate,omitempty"`
}

// Profile converts the input into a domain patient with BMI derived from the vitals
func (p PatientInput) Profile() domain.PatientProfile {
	return domain.PatientProfile{
		PatientID: p.PatientID,
		Age:       p.Age,
		Gender:    domain.Gender(strings.ToLower(strings.TrimSpace(p.Gender))),
		Ethnicity: domain.Ethnicity(strings.ToLower(strings.TrimSpace(p.Ethnicity))),
		Genomics: domain.GenomicProfile{
			CYP2D6Status:   domain.ParseCYP2D6Status(p.CYP2D6Status),
			CYP3A4Activity: domain.ParseCYP3A4Activity(p.CYP3A4Activity),
			HLAMarkers:     p.HLAMarkers,
		},
		History: domain.MedicalHistory{
			Conditions:            p.Conditions,
			Allergies:             p.Allergies,
			CurrentMedications:    p.CurrentMedications,
			PreviousAdverseEvents: p.PreviousAdverseEvents,
		},
		Vitals: domain.NewVitalSigns(p.SystolicBP, p.DiastolicBP, p.HeartRate, p.WeightKg, p.HeightCm),
	}
}

func profiles(inputs []PatientInput) []domain.PatientProfile {
	patients := make([]domain.PatientProfile, len(inputs))
	for i, in := range inputs {
		patients[i] = in.Profile()
	}
	return patients
}

type SimulatePKInput struct {
	Patient        PatientInput `json:"patient"`
	Drug           string       `json:"drug" jsonschema:"generic drug name"`
	DoseMg         float64      `json:"dose_mg" jsonschema:"dose in mg"`
	FrequencyHours float64      `json:"frequency_hours,omitempty" jsonschema:"dosing interval in hours, default 24"`
}

type CheckInteractionsInput struct {
	Drugs   []string      `json:"drugs" jsonschema:"drug names to check pairwise"`
	Patient *PatientInput `json:"patient,omitempty"`
}

type OptimizeDoseInput struct {
	Patient             PatientInput `json:"patient"`
	Drug                string       `json:"drug" jsonschema:"catalog drug name"`
	TargetConcentration float64      `json:"target_concentration" jsonschema:"target concentration in mg/L"`
}

type PredictAdverseEventsInput struct {
	Patients     []PatientInput `json:"patients"`
	Drug         string         `json:"drug"`
	DoseMg       float64        `json:"dose_mg"`
	DurationDays int            `json:"duration_days,omitempty" jsonschema:"treatment duration in days"`
}

type PredictAdverseEventsOutput struct {
	Predictions []domain.AEPrediction `json:"predictions"`
	TotalEvents int                   `json:"total_events"`
	Degraded    bool                  `json:"degraded"`
}

type GenerateSafetyReportInput struct {
	TrialName    string                `json:"trial_name"`
	Drug         string                `json:"drug,omitempty" jsonschema:"investigational drug, used for signal detection and event prediction"`
	Patients     []PatientInput        `json:"patients"`
	Events       []domain.AdverseEvent `json:"events,omitempty" jsonschema:"observed events; predicted from drug and dose_mg when empty"`
	DoseMg       float64               `json:"dose_mg,omitempty"`
	DurationDays int                   `json:"duration_days,omitempty"`
}

type SimulatePatientInput struct {
	Patient        PatientInput `json:"patient"`
	Drug           string       `json:"drug"`
	DoseMg         float64      `json:"dose_mg"`
	FrequencyHours float64      `json:"frequency_hours,omitempty"`
	Concomitant    []string     `json:"concomitant_drugs,omitempty" jsonschema:"other drugs given alongside"`
}

type SummarizePopulationInput struct {
	Patients []PatientInput `json:"patients"`
}

type ListDrugsInput struct{}

type ListDrugsOutput struct {
	Drugs []domain.DrugProperties `json:"drugs"`
	Count int                     `json:"count"`
}

type ListRunsInput struct {
	Limit  int `json:"limit,omitempty" jsonschema:"page size, default 20, max 100"`
	Offset int `json:"offset,omitempty"`
}

type ListRunsOutput struct {
	Runs  []*store.Run `json:"runs"`
	Total int64        `json:"total"`
}

type GetRunInput struct {
	ID string `json:"id" jsonschema:"run id"`
}

// addTool registers handle as a typed tool. Handler errors become IsError results.
func addTool[In, Out any](s *Server, tool *mcp.Tool, handle func(context.Context, In) (Out, error)) {
	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		logger := s.logger.WithField("tool", tool.Name)

		out, err := handle(ctx, in)
		if err != nil {
			logger.WithError(err).Warn("Tool call failed")
			return errorResult(err), nil, nil
		}

		text, err := json.Marshal(out)
		if err != nil {
			logger.WithError(err).Error("Failed to encode tool result")
			return errorResult(fmt.Errorf("failed to encode result: %w", err)), nil, nil
		}

		logger.Debug("Tool call completed")
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		}, out, nil
	})
	s.logger.WithField("tool_name", tool.Name).Debug("Registered MCP tool")
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}

func requireDrug(name string) error {
	if strings.TrimSpace(name) == "" {
		return domain.NewParameterError("drug", name, "is required")
	}
	return nil
}

func (s *Server) simulatePK(ctx context.Context, in SimulatePKInput) (*domain.PKResult, error) {
	if err := requireDrug(in.Drug); err != nil {
		return nil, err
	}
	patient := in.Patient.Profile()

	result, err := s.services.PK.Simulate(ctx, &patient, in.Drug, in.DoseMg, in.FrequencyHours)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, store.KindPKSimulation, patient.PatientID, in.Drug, result.Degraded, result)
	return result, nil
}

func (s *Server) checkInteractions(ctx context.Context, in CheckInteractionsInput) (*domain.InteractionReport, error) {
	if len(in.Drugs) < 2 {
		return nil, domain.NewParameterError("drugs", in.Drugs, "at least two drugs are required")
	}

	var patient *domain.PatientProfile
	patientID := ""
	if in.Patient != nil {
		p := in.Patient.Profile()
		patient = &p
		patientID = p.PatientID
	}

	report, err := s.services.Interactions.Resolve(ctx, in.Drugs, patient)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, store.KindInteractionCheck, patientID, strings.Join(in.Drugs, ","), report.Degraded, report)
	return report, nil
}

func (s *Server) optimizeDose(ctx context.Context, in OptimizeDoseInput) (*domain.DoseRecommendation, error) {
	if err := requireDrug(in.Drug); err != nil {
		return nil, err
	}
	patient := in.Patient.Profile()

	rec, err := s.services.Doses.Optimize(&patient, in.Drug, in.TargetConcentration)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, store.KindDoseOptimization, patient.PatientID, in.Drug, false, rec)
	return rec, nil
}

func (s *Server) predictAdverseEvents(ctx context.Context, in PredictAdverseEventsInput) (*PredictAdverseEventsOutput, error) {
	if err := requireDrug(in.Drug); err != nil {
		return nil, err
	}
	if len(in.Patients) == 0 {
		return nil, domain.NewParameterError("patients", in.Patients, "at least one patient is required")
	}

	predictions, err := s.services.AdverseEvents.PredictPopulation(ctx, profiles(in.Patients), in.Drug, in.DoseMg, in.DurationDays)
	if err != nil {
		return nil, err
	}

	out := &PredictAdverseEventsOutput{Predictions: predictions}
	for _, p := range predictions {
		out.TotalEvents += len(p.Events)
		out.Degraded = out.Degraded || p.Degraded
	}

	patientID := ""
	if len(predictions) == 1 {
		patientID = predictions[0].PatientID
	}
	s.persist(ctx, store.KindAdverseEvents, patientID, in.Drug, out.Degraded, out)
	return out, nil
}

func (s *Server) generateSafetyReport(ctx context.Context, in GenerateSafetyReportInput) (*domain.SafetyReport, error) {
	patients := profiles(in.Patients)
	events := in.Events
	degraded := false

	if len(events) == 0 && in.DoseMg > 0 {
		if err := requireDrug(in.Drug); err != nil {
			return nil, err
		}
		predictions, err := s.services.AdverseEvents.PredictPopulation(ctx, patients, in.Drug, in.DoseMg, in.DurationDays)
		if err != nil {
			return nil, fmt.Errorf("failed to predict adverse events: %w", err)
		}
		for _, p := range predictions {
			events = append(events, p.Events...)
			degraded = degraded || p.Degraded
		}
	}

	report, err := s.services.Safety.Generate(in.TrialName, in.Drug, patients, events)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, store.KindSafetyReport, "", in.Drug, degraded, report)
	return report, nil
}

func (s *Server) simulatePatient(ctx context.Context, in SimulatePatientInput) (*domain.SimulationResult, error) {
	if err := requireDrug(in.Drug); err != nil {
		return nil, err
	}
	patient := in.Patient.Profile()

	result, err := s.services.Simulator.SimulatePatient(ctx, &patient, in.Drug, in.DoseMg, in.FrequencyHours, in.Concomitant)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, store.KindPatientSimulation, patient.PatientID, in.Drug, result.Degraded, result)
	return result, nil
}

func (s *Server) summarizePopulation(_ context.Context, in SummarizePopulationInput) (*domain.PopulationSummary, error) {
	summary := service.Summarize(profiles(in.Patients))
	return &summary, nil
}

func (s *Server) listDrugs(_ context.Context, _ ListDrugsInput) (*ListDrugsOutput, error) {
	names := s.services.Drugs.Names()
	out := &ListDrugsOutput{Drugs: make([]domain.DrugProperties, 0, len(names))}
	for _, name := range names {
		drug, err := s.services.Drugs.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("catalog lookup of %s failed: %w", name, err)
		}
		out.Drugs = append(out.Drugs, drug)
	}
	out.Count = len(out.Drugs)
	return out, nil
}

func (s *Server) listRuns(ctx context.Context, in ListRunsInput) (*ListRunsOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	runs, err := s.store.ListRuns(ctx, limit, max(in.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	if runs == nil {
		runs = []*store.Run{}
	}
	return &ListRunsOutput{Runs: runs, Total: total}, nil
}

func (s *Server) getRun(ctx context.Context, in GetRunInput) (*store.Run, error) {
	run, err := s.store.GetRun(ctx, in.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", in.ID)
	}
	return run, nil
}

// persist saves a tool result as a run. Failures are logged and never fail the tool call.
func (s *Server) persist(ctx context.Context, kind store.RunKind, patientID, drug string, degraded bool, record interface{}) {
	if s.store == nil {
		return
	}

	logger := s.logger.WithFields(logrus.Fields{
		"kind":       kind,
		"patient_id": patientID,
	})

	run, err := store.NewRun(kind, patientID, drug, CreatedBy, degraded, record)
	if err != nil {
		logger.WithError(err).Warn("Failed to encode run")
		return
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		logger.WithError(err).Warn("Failed to persist run")
		return
	}
	logger.WithField("run_id", run.ID).Debug("Run persisted")
}
