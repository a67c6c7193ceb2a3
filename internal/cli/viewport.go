package cli

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/config"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/dom"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/viewport"
)

// sweepViewport 视口模式：按近似行位置从上到下扫过整页，
// 每一步只处理新进入预加载窗口的根节点。
func sweepViewport(ctx context.Context, cfg *config.Config, doc *dom.Document, p *pipeline, log *zap.Logger) error {
	sched := viewport.NewScheduler(doc, viewport.Config{
		Height:          cfg.Viewport.Height,
		PreloadDistance: cfg.Viewport.PreloadDistance,
	}, func(ctx context.Context, roots []*html.Node) error {
		return p.coord.ProcessRoots(ctx, roots)
	}, log)

	step := cfg.Viewport.Height
	if step <= 0 {
		step = 1
	}

	// 被移除的块永远不会被调度，扫过最后一个位置后就停
	limit := sched.BlockCount() + step
	for offset := 0; offset <= limit; offset += step {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sched.SetScroll(ctx, offset); err != nil {
			return err
		}
		if sched.PendingCount() == 0 {
			break
		}
	}
	return nil
}
