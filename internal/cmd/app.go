package cmd

import (
	"github.com/Iron-Ham/mergepipe/internal/config"
	"github.com/Iron-Ham/mergepipe/internal/logging"
	"github.com/Iron-Ham/mergepipe/internal/operation"
	"github.com/Iron-Ham/mergepipe/internal/orchestrator"
	"github.com/Iron-Ham/mergepipe/internal/pipeline"
)

// app is everything a merge command needs, built from settings and the
// pipeline document.
type app struct {
	settings     *config.Config
	logger       *logging.Logger
	registry     *operation.Registry
	document     string
	orchestrator *orchestrator.Orchestrator
}

func (a *app) Close() {
	if err := a.logger.Close(); err != nil {
		a.logger.Warn("failed to close log file", "error", err)
	}
}

func newLogger(settings *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(settings.Logging.Dir, settings.Logging.Level)
}

// newRegistry returns the process-wide operation registry built from
// settings.
func newRegistry(settings *config.Config, logger *logging.Logger) (*operation.Registry, error) {
	return operation.InitDefault(operation.Deps{
		Logger:          logger,
		GitBinary:       settings.Git.Binary,
		DefaultStrategy: settings.Merge.DefaultStrategy,
		CommandTimeout:  settings.Merge.CommandTimeout(),
	})
}

// newApp loads settings and the pipeline document and wires an orchestrator.
func newApp() (*app, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(settings)
	if err != nil {
		return nil, err
	}
	a := &app{settings: settings, logger: logger}

	a.registry, err = newRegistry(settings, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.document, err = config.FindDocument(settings.Pipeline.File)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.document == "" {
		logger.Warn("no pipeline document found, every merge will fail")
	} else {
		logger.Debug("loading pipeline document", "path", a.document)
	}

	doc, err := config.LoadDocument(a.document)
	if err != nil {
		a.Close()
		return nil, err
	}

	executor := pipeline.NewExecutor(a.registry, pipeline.WithLogger(logger))
	a.orchestrator = orchestrator.New(doc, executor,
		orchestrator.WithLogger(logger),
		orchestrator.WithGitBinary(settings.Git.Binary),
	)
	return a, nil
}

// result turns an orchestrator outcome into a command error.
func result(ok bool) error {
	if !ok {
		return errMergeFailed
	}
	return nil
}
