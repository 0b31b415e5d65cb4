// bundlefx/bundlefx.go
package bundlefx

import (
	"github.com/joeydtaylor/steeze-vault/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-vault/pkg/middleware/metrics"
	"go.uber.org/fx"
)

// Module provided to fx: *zap.Logger, the admin access-log middleware, and the
// named "metrics" handler. Needs a *manifest.Config in the graph.
var Module = fx.Options(
	logger.Module,
	metrics.Module,
)
