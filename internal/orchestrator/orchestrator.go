// Package orchestrator implements the Sweep Orchestrator: it owns the
// process-wide exclusive lock around the subnet object
// and the guid2lid store, drives process_sm() and process_subnet() end to
// end, and collapses concurrent external triggers with singleflight so a
// storm of sweep requests only ever runs the sweep once at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openfabrics/go-opensm/internal/config"
	"github.com/openfabrics/go-opensm/internal/lidspace"
	"github.com/openfabrics/go-opensm/internal/logctx"
	"github.com/openfabrics/go-opensm/internal/metrics"
	"github.com/openfabrics/go-opensm/internal/portcfg"
	"github.com/openfabrics/go-opensm/internal/resolver"
	"github.com/openfabrics/go-opensm/internal/store"
	"github.com/openfabrics/go-opensm/internal/sweep"
	"github.com/openfabrics/go-opensm/internal/topology"
	"github.com/openfabrics/go-opensm/internal/transport"
	"github.com/openfabrics/go-opensm/internal/validator"
)

// FatalError marks a condition the design calls out as design-time
// impossible on a correctly sized subnet (LID space exhaustion) or as an
// operator-configured hard stop (a failed persistent-store load with
// exit_on_fatal set). cmd/opensmd's sweep subcommand exits with it like any
// other error; its run subcommand logs it and runs the sweep again on the
// task's next tick, the same as for any other sweep error, and does not stop
// the process.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

func wrapFatal(err error) error {
	if err == nil {
		return nil
	}

	return &FatalError{Err: err}
}

// Result reports whether a sweep completed outright (DONE) or left
// PortInfoSet requests still in flight (DONE_PENDING), per the design.
type Result struct {
	Done bool
}

// Orchestrator holds the single cooperative worker's state: the subnet
// object (port_lid_tbl, used_lids, free_ranges, option block) and the
// guid2lid store, all guarded by one mutex exactly as the design describes.
type Orchestrator struct {
	mu sync.Mutex
	sf singleflight.Group

	discovery topology.Discovery
	store     store.Store
	setter    transport.PortInfoSetter
	cfg       config.Options

	tbl  *sweep.PortLIDTable
	used *lidspace.UsedLIDs
	free *lidspace.FreeList

	prevPortInfo map[topology.GUID]portcfg.PortInfo

	firstTimeMasterSweep bool
	comingOutOfStandby   bool

	smBaseLID       lidspace.LID
	masterSMBaseLID lidspace.LID

	// pending counts PortInfoSet submissions issued but not yet
	// acknowledged, for metrics and introspection.
	pending int64

	// sendRaised is true once configureAndSubmit has submitted at least one
	// PortInfoSet during the current Process* call. DONE vs DONE_PENDING is
	// decided off this, not off pending: a send that was acknowledged
	// synchronously before Process* returns still counts as DONE_PENDING.
	sendRaised bool

	metrics *metrics.Metrics
}

// SetMetrics attaches a Metrics bundle; subsequent sweeps update its
// counters and gauges. Safe to call once, before the first sweep.
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.metrics = m
}

// New returns an Orchestrator ready for its first (first-time master)
// sweep. discovery, st, and setter are the external collaborators this
// subsystem relies on; cfg is the manager-wide option block.
func New(cfg config.Options, discovery topology.Discovery, st store.Store, setter transport.PortInfoSetter) *Orchestrator {
	maxUnicast := cfg.MaxUnicast()

	return &Orchestrator{
		discovery:            discovery,
		store:                st,
		setter:               setter,
		cfg:                  cfg,
		tbl:                  sweep.NewPortLIDTable(maxUnicast),
		used:                 lidspace.NewUsedLIDs(maxUnicast),
		free:                 &lidspace.FreeList{},
		prevPortInfo:         make(map[topology.GUID]portcfg.PortInfo),
		firstTimeMasterSweep: true,
	}
}

// NotifyComingOutOfStandby marks the next ProcessSubnet call as a coming-
// out-of-standby sweep, per the ComingOutOfStandby flag.
func (o *Orchestrator) NotifyComingOutOfStandby() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.comingOutOfStandby = true
}

// PendingSubmissions returns the number of PortInfoSet requests issued but
// not yet acknowledged, for metrics and tests.
func (o *Orchestrator) PendingSubmissions() int64 {
	return atomic.LoadInt64(&o.pending)
}

// LIDTableGet returns the GUID currently occupying lid in port_lid_tbl, or 0
// if none. For tests and introspection.
func (o *Orchestrator) LIDTableGet(lid lidspace.LID) topology.GUID {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.tbl.Get(lid)
}

// FreeRanges returns a snapshot of the free-range list left by the last
// sweep. For tests and introspection.
func (o *Orchestrator) FreeRanges() []lidspace.Range {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]lidspace.Range, len(o.free.Ranges()))
	copy(out, o.free.Ranges())
	return out
}

// ResolvedRange returns the persisted LID range for guid, if any.
func (o *Orchestrator) ResolvedRange(ctx context.Context, guid topology.GUID) (min, max uint16, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.store.Get(ctx, guid)
}

// ProcessSM implements process_sm() from the design: look up the SM's own
// port by sm_port_guid and resolve its LID, so subnet.sm_base_lid and
// subnet.master_sm_base_lid are known before process_subnet() configures
// every other port against them. Concurrent callers collapse onto one
// in-flight call via singleflight.
func (o *Orchestrator) ProcessSM(ctx context.Context) (Result, error) {
	v, err, _ := o.sf.Do("process_sm", func() (any, error) {
		return o.processSM(ctx)
	})
	if err != nil {
		return Result{}, err
	}

	return v.(Result), nil
}

func (o *Orchestrator) processSM(ctx context.Context) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.sendRaised = false

	port, ok, err := o.discovery.SMPort(ctx, topology.GUID(o.cfg.SMPortGUID))
	if err != nil {
		return Result{}, fmt.Errorf("looking up sm port %s: %w", topology.GUID(o.cfg.SMPortGUID), err)
	}

	if !ok {
		logctx.Warn("sm port not yet discovered, deferring process_sm", logctx.Ctx{"sm_port_guid": topology.GUID(o.cfg.SMPortGUID)})
		return Result{Done: !o.sendRaised}, nil
	}

	flags := resolver.Flags{FirstTimeMasterSweep: o.firstTimeMasterSweep, ReassignLIDs: o.cfg.ReassignLIDs}

	res, err := resolver.Resolve(ctx, port, o.cfg.LMC, flags, o.tbl, o.used, o.free, o.store, o.cfg.MaxUnicast())
	if err != nil {
		if errors.Is(err, resolver.ErrExhausted) {
			return Result{}, wrapFatal(fmt.Errorf("resolving sm port lid: %w", err))
		}

		return Result{}, fmt.Errorf("resolving sm port lid: %w", err)
	}

	// This subsystem never participates in master/standby election
	// (the design's Non-goals); a running Orchestrator is always the master,
	// so its own resolved base LID is both sm_base_lid and
	// master_sm_base_lid.
	o.smBaseLID = res.Min
	o.masterSMBaseLID = res.Min

	if err := o.configureAndSubmit(ctx, port, res); err != nil {
		logctx.Error("configuring sm port failed", logctx.Ctx{"guid": port.GUID, "err": err})
	}

	return Result{Done: !o.sendRaised}, nil
}

// ProcessSubnet implements process_subnet() from the design: validate (on
// the first-time master sweep), run the Sweep Initializer, resolve every
// discovered port's LID, configure and submit any changed PortInfo, and
// flush the guid2lid store. Concurrent callers collapse onto one in-flight
// call via singleflight.
func (o *Orchestrator) ProcessSubnet(ctx context.Context) (Result, error) {
	v, err, _ := o.sf.Do("process_subnet", func() (any, error) {
		return o.processSubnet(ctx)
	})
	if err != nil {
		return Result{}, err
	}

	return v.(Result), nil
}

func (o *Orchestrator) processSubnet(ctx context.Context) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.sendRaised = false

	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.SweepDuration.Observe(time.Since(start).Seconds())
		}
	}()

	ports, err := o.discovery.AllPorts(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("discovering ports: %w", err)
	}

	if o.firstTimeMasterSweep {
		if err := o.store.Load(ctx); err != nil {
			if o.cfg.ExitOnFatal {
				if o.metrics != nil {
					o.metrics.SweepFatalTotal.Inc()
				}

				return Result{}, wrapFatal(fmt.Errorf("loading persistent guid2lid store: %w", err))
			}

			logctx.Error("failed loading persistent guid2lid store, continuing with empty map", logctx.Ctx{"err": err})
		}

		vres, err := validator.Validate(ctx, o.store, o.used, o.cfg.LMC, o.cfg.MaxUnicast())
		if err != nil {
			return Result{}, fmt.Errorf("validating persistent guid2lid store: %w", err)
		}

		if o.metrics != nil && vres.Rejected > 0 {
			o.metrics.ValidationRejected.Add(float64(vres.Rejected))
		}
	}

	sweepFlags := sweep.Flags{
		FirstTimeMasterSweep: o.firstTimeMasterSweep,
		ReassignLIDs:         o.cfg.ReassignLIDs,
		ComingOutOfStandby:   o.comingOutOfStandby,
		HonorGUID2LIDFile:    o.cfg.HonorGUID2LIDFile,
	}

	free, err := sweep.Initialize(ctx, ports, o.tbl, o.used, o.store, o.cfg.LMC, o.cfg.MaxUnicast(), sweepFlags)
	if err != nil {
		if o.metrics != nil {
			o.metrics.SweepFatalTotal.Inc()
		}

		return Result{}, wrapFatal(fmt.Errorf("initializing sweep: %w", err))
	}

	o.free = free

	smGUID := topology.GUID(o.cfg.SMPortGUID)

	for _, p := range ports {
		if p.GUID == smGUID {
			continue
		}

		res, err := resolver.Resolve(ctx, p, o.cfg.LMC, resolver.Flags{
			FirstTimeMasterSweep: o.firstTimeMasterSweep,
			ReassignLIDs:         o.cfg.ReassignLIDs,
		}, o.tbl, o.used, o.free, o.store, o.cfg.MaxUnicast())
		if err != nil {
			if errors.Is(err, resolver.ErrExhausted) {
				if o.metrics != nil {
					o.metrics.SweepFatalTotal.Inc()
				}

				return Result{}, wrapFatal(fmt.Errorf("resolving lid for %s: %w", p.GUID, err))
			}

			return Result{}, fmt.Errorf("resolving lid for %s: %w", p.GUID, err)
		}

		if o.metrics != nil {
			o.metrics.PortsResolvedTotal.WithLabelValues(resolveOutcome(res)).Inc()
		}

		if err := o.configureAndSubmit(ctx, p, res); err != nil {
			logctx.Error("configuring port failed", logctx.Ctx{"guid": p.GUID, "err": err})
		}
	}

	if err := o.store.Store(ctx); err != nil {
		return Result{}, fmt.Errorf("flushing guid2lid store: %w", err)
	}

	o.firstTimeMasterSweep = false
	o.comingOutOfStandby = false

	if o.metrics != nil {
		o.metrics.SweepsTotal.Inc()
		o.metrics.FreeLIDsRemaining.Set(float64(freeLIDCount(o.free)))
	}

	return Result{Done: !o.sendRaised}, nil
}

func resolveOutcome(res resolver.Result) string {
	if res.Changed {
		return "allocated"
	}

	return "kept"
}

func freeLIDCount(free *lidspace.FreeList) int {
	total := 0
	for _, r := range free.Ranges() {
		total += r.Count()
	}

	return total
}

// configureAndSubmit runs the Port Configurator for one port's resolved LID
// range and, if it decided a send is needed, hands the resulting PortInfo
// off to the transport collaborator.
func (o *Orchestrator) configureAndSubmit(ctx context.Context, p topology.Port, res resolver.Result) error {
	var prevPtr *portcfg.PortInfo
	if prev, ok := o.prevPortInfo[p.GUID]; ok {
		prevPtr = &prev
	}

	req := portcfg.Request{
		Kind:                 kindOf(p),
		BaseLID:              uint16(res.Min),
		LMC:                  o.cfg.LMC,
		EnhancedSP0:          p.IsEnhancedSP0(),
		IsNew:                p.IsNew,
		FirstTimeMasterSweep: o.firstTimeMasterSweep,
		ClientReregCapable:   p.ClientReregCapable,
		LinkWidthSupported:   p.LinkWidthSupported,
		NeighborMTU:          p.NeighborMTU,
		OperationalVLs:       p.OperationalVLs,
		Config: portcfg.ManagerConfig{
			MKey:                    o.cfg.MKey,
			SubnetPrefix:            o.cfg.SubnetPrefix,
			MasterSMBaseLID:         uint16(o.masterSMBaseLID),
			MKeyLeasePeriod:         o.cfg.MKeyLeasePeriod,
			SubnetTimeout:           o.cfg.SubnetTimeout,
			LocalPhyErrorsThreshold: o.cfg.LocalPhyErrorsThreshold,
			OverrunErrorsThreshold:  o.cfg.OverrunErrorsThreshold,
			NoClientsRereg:          o.cfg.NoClientsRereg,
		},
	}

	outcome := portcfg.Configure(prevPtr, req)
	o.prevPortInfo[p.GUID] = outcome.Next

	if outcome.TransientLinkDown {
		logctx.Info("mtu/operational-vl transition, peer scheduled through transient link down", logctx.Ctx{"guid": p.GUID})
	}

	if !outcome.Send {
		return nil
	}

	o.sendRaised = true

	payload := outcome.Next.Marshal()
	path := transport.Path{DestLID: uint16(res.Min), Label: p.GUID.String()}

	if o.metrics != nil {
		o.metrics.PortInfoSetsTotal.Inc()
	}

	atomic.AddInt64(&o.pending, 1)

	err := o.setter.Submit(ctx, path, payload, transport.AttrPortInfo, 0, func(result transport.Result) {
		atomic.AddInt64(&o.pending, -1)

		if result.Err != nil {
			logctx.Warn("portinfo set did not complete", logctx.Ctx{"guid": p.GUID, "err": result.Err})
		}
	})
	if err != nil {
		atomic.AddInt64(&o.pending, -1)
		return fmt.Errorf("submitting portinfo set for %s: %w", p.GUID, err)
	}

	return nil
}

// kindOf classifies a port for the Port Configurator, per the design: a
// base (non-enhanced) switch port 0 is configured specially, a switch's
// non-zero data port is never touched, and everything else (CAs, routers,
// and enhanced-LMC-capable SP0) is an ordinary end port.
func kindOf(p topology.Port) portcfg.Kind {
	if p.IsSwitchPort0() {
		if p.IsEnhancedSP0() {
			return portcfg.KindEndPort
		}

		return portcfg.KindSwitchPort0
	}

	if p.IsSwitch && p.PortNum != 0 {
		return portcfg.KindSwitchNonZero
	}

	return portcfg.KindEndPort
}
