package orchestrator

import (
	"context"

	"github.com/ssdt/authscan/pkg/authctx"
	"github.com/ssdt/authscan/pkg/engine"
)

// Engine is the engine API the orchestrator drives. *engine.Client
// implements it.
type Engine interface {
	authctx.Engine

	BaseURL() string
	Version(ctx context.Context) (string, error)
	AccessURL(ctx context.Context, target string) error

	SpiderSetOption(ctx context.Context, option string, value int) error
	SpiderScan(ctx context.Context, target, contextName string, maxChildren int) (string, error)
	SpiderStatus(ctx context.Context, scanID string) (int, error)
	SpiderResults(ctx context.Context, scanID string) ([]string, error)
	SpiderStopAll(ctx context.Context) error

	AjaxSpiderSetOption(ctx context.Context, option string, value int) error
	AjaxSpiderScan(ctx context.Context, target, contextName string) error
	AjaxSpiderStatus(ctx context.Context) (string, error)
	AjaxSpiderNumberOfResults(ctx context.Context) (int, error)
	AjaxSpiderStop(ctx context.Context) error

	PscanRecordsToScan(ctx context.Context) (int, error)

	AscanSetOption(ctx context.Context, option string, value int) error
	AscanScan(ctx context.Context, target, contextID string) (string, error)
	AscanStatus(ctx context.Context, scanID string) (int, error)
	AscanStop(ctx context.Context, scanID string) error
	AscanStopAll(ctx context.Context) error

	NumberOfAlerts(ctx context.Context, baseURL string) (int, error)
	AllAlerts(ctx context.Context, baseURL string, pageSize int) ([]engine.Alert, error)
	HTMLReport(ctx context.Context) ([]byte, error)
}

var _ Engine = (*engine.Client)(nil)
