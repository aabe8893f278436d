// File: internal/engine/publish.go
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/crucible-cli/internal/hub"
	"github.com/xkilldash9x/crucible-cli/internal/state"
)

// publishAndComplete broadcasts an eligible capsule and reports any
// active hub task as complete. Publishing is fire-and-forget: the
// transaction waits at most the configured drain window for the result,
// then returns with the publish marked as attempted. A publish failure
// never fails the commit.
func (e *Engine) publishAndComplete(ctx context.Context, st *state.CycleState, result *Result) PublishStatus {
	if e.hub == nil || result.Capsule == nil {
		return PublishStatus{}
	}
	hubCfg := e.cfg.Hub()

	if st.ActiveTask != nil {
		if e.hub.CompleteTask(ctx, st.ActiveTask.ID, result.Capsule.AssetID) {
			e.logger.Info("Hub task completed.", zap.String("task_id", st.ActiveTask.ID))
		}
	}

	switch {
	case !result.Capsule.A2A.EligibleToBroadcast:
		return PublishStatus{}
	case !hubCfg.AutoPublish:
		return PublishStatus{}
	case hubCfg.Visibility != "public":
		e.logger.Debug("Capsule eligible but node visibility is not public; skipping publish.")
		return PublishStatus{}
	case st.ReusedAssetID != "":
		// Re-broadcasting an asset adopted from another node would loop it
		// through the network.
		return PublishStatus{}
	case result.Event.Outcome.Score < hubCfg.MinPublishScore:
		return PublishStatus{}
	}

	bundle := hub.Bundle{
		Gene:    result.Gene,
		Capsule: *result.Capsule,
		Event:   result.Event,
	}

	done := make(chan error, 1)
	g := new(errgroup.Group)
	g.Go(func() error {
		pubCtx, cancel := context.WithTimeout(context.Background(), hubCfg.RequestTimeout)
		defer cancel()
		err := e.hub.PublishBundle(pubCtx, bundle)
		done <- err
		if err != nil {
			e.logger.Warn("Capsule publish failed.", zap.Error(err))
		} else {
			e.logger.Info("Capsule published.", zap.String("capsule_id", result.Capsule.ID))
		}
		return nil
	})

	drain := e.cfg.Engine().PublishDrain
	if drain <= 0 {
		drain = 250 * time.Millisecond
	}
	select {
	case err := <-done:
		_ = g.Wait()
		if err != nil {
			return PublishStatus{Attempted: true, Error: err.Error()}
		}
		return PublishStatus{Attempted: true, OK: true}
	case <-time.After(drain):
		// The goroutine finishes on its own; its outcome lands in the log.
		return PublishStatus{Attempted: true}
	}
}
