package engine

import (
	"context"

	"trackxp/core"
)

// RuleEngine evaluates rules and emits derived notices.
type RuleEngine interface {
	Evaluate(ctx context.Context, before, after core.Progress, trigger core.Notice) []core.Notice
}
