// Package twig wires the outline, its persistence, and the sync engine into
// the services commands consume.
package twig

import (
	"github.com/twigapp/twig/internal/core/config"
	"github.com/twigapp/twig/internal/core/outline"
	"github.com/twigapp/twig/internal/core/sync"
	"github.com/twigapp/twig/internal/data/db"
)

// App is the central entry point for all twig operations.
// Commands consume App instead of cherry-picking raw dependencies.
type App struct {
	Outline *OutlineService
	Engine  *sync.Engine

	Config *config.Config
	DB     *db.DB
	Index  *outline.Index
}

// NewApp constructs an App from explicit dependencies.
func NewApp(
	svc *OutlineService,
	engine *sync.Engine,
	cfg *config.Config,
	database *db.DB,
	index *outline.Index,
) *App {
	return &App{
		Outline: svc,
		Engine:  engine,
		Config:  cfg,
		DB:      database,
		Index:   index,
	}
}
