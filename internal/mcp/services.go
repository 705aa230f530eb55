package mcp

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pkddi-mcp-server/internal/catalog"
	"github.com/pkddi-mcp-server/internal/domain"
	"github.com/pkddi-mcp-server/internal/oracle"
	"github.com/pkddi-mcp-server/internal/service"
)

// Services bundles the simulation engine components exposed as tools
type Services struct {
	Drugs         domain.DrugCatalog
	PK            *service.PKSimulator
	Interactions  *service.InteractionResolver
	Doses         *service.DoseOptimizer
	AdverseEvents *service.AdverseEventModel
	Safety        *service.SafetyReporter
	Simulator     *service.Simulator
}

// NewServices builds the engine on the built-in catalogs and the given oracle
func NewServices(o domain.Oracle, config domain.SimulationConfig, logger *logrus.Logger) (*Services, error) {
	drugs := catalog.NewDrugCatalog()
	events := catalog.NewAdverseEventCatalog()

	pk, err := service.NewPKSimulator(drugs, o, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create pk simulator: %w", err)
	}

	resolver, err := service.NewInteractionResolver(o, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create interaction resolver: %w", err)
	}

	return &Services{
		Drugs:         drugs,
		PK:            pk,
		Interactions:  resolver,
		Doses:         service.NewDoseOptimizer(drugs, logger),
		AdverseEvents: service.NewAdverseEventModel(events, o, config, logger),
		Safety:        service.NewSafetyReporter(events, logger),
		Simulator:     service.NewSimulator(pk, resolver, logger),
	}, nil
}

// NewServicesFromConfig creates the configured oracle and builds the engine on it.
// The returned function releases the oracle's resources.
func NewServicesFromConfig(config *domain.Config, logger *logrus.Logger) (*Services, func() error, error) {
	o, closeOracle, err := oracle.New(config, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create oracle: %w", err)
	}

	services, err := NewServices(o, config.Simulation, logger)
	if err != nil {
		closeOracle()
		return nil, nil, err
	}

	return services, closeOracle, nil
}
