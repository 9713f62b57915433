package engine

import (
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/actionflow/internal/action"
	"github.com/gyaneshwarpardhi/actionflow/internal/config"
	"github.com/gyaneshwarpardhi/actionflow/internal/dag"
)

// HandlerBuilder turns a declared handler type and its params into a handler.
// *builtin.Catalog implements it.
type HandlerBuilder interface {
	Build(typ, id string, params map[string]interface{}) (action.Handler, error)
}

// Apply registers every action declared in cfg, rewires its dependencies
// and arms declared schedules. An action that is already registered is
// reconfigured in place, so its metrics, last result and schedule progress
// survive a reload; its schedule is re-armed only when the declared schedule
// changed. Actions declared by a previous Apply but missing from cfg are
// deregistered; actions registered in code are left alone. Nothing is
// changed if cfg is invalid or a handler cannot be built. Engine settings
// in cfg are not read.
func (e *Engine) Apply(cfg *config.Config, handlers HandlerBuilder) error {
	checked := *cfg
	checked.Engine = cfg.Engine.WithDefaults()
	if err := config.Validate(&checked); err != nil {
		return err
	}
	if _, err := dag.Build(cfg); err != nil {
		return err
	}

	built := make([]*action.Action, 0, len(cfg.Actions))
	for _, def := range cfg.Actions {
		h, err := handlers.Build(def.Handler.Type, def.ID, def.Handler.Params)
		if err != nil {
			return fmt.Errorf("action %s: %w", def.ID, err)
		}
		a, err := action.New(def.ID, h, actionConfig(def))
		if err != nil {
			return err
		}
		built = append(built, a)
	}

	e.lifeMu.Lock()
	stale := make([]string, 0)
	keep := make(map[string]struct{}, len(cfg.Actions))
	for _, def := range cfg.Actions {
		keep[def.ID] = struct{}{}
	}
	for id := range e.declared {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	e.lifeMu.Unlock()

	for _, id := range stale {
		if err := e.Deregister(id); err != nil {
			e.log.Warn("stale action already gone", "action_id", id, "err", err)
			continue
		}
		e.log.Info("action removed from config", "action_id", id)
	}

	for i, a := range built {
		def := cfg.Actions[i]
		if err := e.upsert(a, def.Handler.Type); err != nil {
			return err
		}
	}

	// Edges go in after every node exists so order in the file does not matter.
	for _, def := range cfg.Actions {
		if err := e.graph.SetDependencies(def.ID, def.DependsOn); err != nil {
			return fmt.Errorf("action %s: %w", def.ID, err)
		}
	}

	for _, def := range cfg.Actions {
		if err := e.applySchedule(def); err != nil {
			return err
		}
	}

	e.log.Info("config applied", "version", cfg.Version, "actions", len(cfg.Actions), "edges", e.graph.EdgeCount())
	return nil
}

// upsert reconfigures the registered action with a's id, or registers a.
func (e *Engine) upsert(a *action.Action, handlerType string) error {
	if cur, err := e.registry.Get(a.ID()); err == nil {
		if err := cur.Reconfigure(a.Handler(), a.Config()); err != nil {
			return err
		}
		e.log.Info("action reloaded", "action_id", a.ID())
	} else {
		e.registry.Register(a)
		e.log.Info("action declared", "action_id", a.ID(), "mode", a.Config().Mode, "handler", handlerType)
	}
	e.lifeMu.Lock()
	if _, ok := e.declared[a.ID()]; !ok {
		e.declared[a.ID()] = nil
	}
	e.lifeMu.Unlock()
	return nil
}

// applySchedule arms or disarms def's schedule when it differs from what
// the previous Apply declared.
func (e *Engine) applySchedule(def config.ActionDef) error {
	e.lifeMu.Lock()
	prev := e.declared[def.ID]
	e.lifeMu.Unlock()
	if sameSchedule(prev, def.Schedule) {
		return nil
	}

	var next *config.ScheduleDef
	if def.Schedule != nil {
		sd := *def.Schedule
		next = &sd
		spec := action.ScheduleSpec{Interval: sd.Interval, Cron: sd.Cron, MaxRuns: sd.MaxRuns}
		if err := e.SetSchedule(def.ID, spec); err != nil {
			return err
		}
	} else if err := e.ClearSchedule(def.ID); err != nil && !errors.Is(err, action.ErrNotConfigured) {
		return err
	}

	e.lifeMu.Lock()
	e.declared[def.ID] = next
	e.lifeMu.Unlock()
	return nil
}

func sameSchedule(a, b *config.ScheduleDef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func actionConfig(def config.ActionDef) action.Config {
	return action.Config{
		Description: def.Description,
		Category:    action.Category(def.Category),
		Priority:    action.Priority(def.Priority),
		Mode:        action.Mode(def.Mode),
		Timeout:     def.Timeout,
		RetryCount:  def.RetryCount,
		RetryDelay:  def.RetryDelay,
		Tags:        def.Tags,
		Metadata:    def.Metadata,
	}
}
