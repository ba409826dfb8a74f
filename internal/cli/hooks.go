package cli

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/macpack/pkg/observability"
)

// buildHooks routes observability events of one build to the debug log
// and the spinner.
type buildHooks struct {
	stages   *stageHooks
	cache    *cacheHooks
	relocate *relocateHooks
}

// installHooks registers hooks for the next build. The caller resets the
// registry with observability.Reset when the build is done.
func installHooks(logger *log.Logger, spinner *Spinner, label string) *buildHooks {
	h := &buildHooks{
		stages:   &stageHooks{logger: logger, spinner: spinner, label: label},
		cache:    &cacheHooks{logger: logger},
		relocate: &relocateHooks{logger: logger},
	}
	observability.SetPipelineHooks(h.stages)
	observability.SetCacheHooks(h.cache)
	observability.SetRelocateHooks(h.relocate)
	return h
}

type stageHooks struct {
	logger  *log.Logger
	spinner *Spinner
	label   string
}

func (h *stageHooks) OnStageStart(_ context.Context, stage string) {
	h.logger.Debug("stage started", "stage", stage)
	if h.spinner != nil {
		h.spinner.SetMessage(h.label + ": " + stage)
	}
}

func (h *stageHooks) OnStageComplete(_ context.Context, stage string, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("stage failed", "stage", stage, "took", d.Round(time.Millisecond), "err", err)
		return
	}
	h.logger.Debug("stage done", "stage", stage, "took", d.Round(time.Millisecond))
}

// cacheHooks counts cache traffic. Scans run in parallel, hence the atomics.
type cacheHooks struct {
	logger       *log.Logger
	hits, misses atomic.Int64
}

func (h *cacheHooks) OnCacheHit(_ context.Context, keyType string) {
	h.hits.Add(1)
	h.logger.Debug("cache hit", "type", keyType)
}

func (h *cacheHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.misses.Add(1)
	h.logger.Debug("cache miss", "type", keyType)
}

func (h *cacheHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

type relocateHooks struct {
	logger *log.Logger
}

func (h *relocateHooks) OnLibraryCopied(_ context.Context, src, dest string) {
	h.logger.Debug("copied library", "src", src, "dest", dest)
}

func (h *relocateHooks) OnLoadCommandRewritten(_ context.Context, binary, oldPath, newPath string) {
	h.logger.Debug("rewrote load command", "binary", binary, "from", oldPath, "to", newPath)
}
