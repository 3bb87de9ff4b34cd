// Package dialer owns the outbound call campaign: the prioritized client
// queue, retry and business-hour policy, the active-call table and the result
// ledger. It drives the PBX through the AMI client; call concurrency itself
// is delegated to the PBX.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"
	"golang.org/x/time/rate"

	"github.com/juanpgarcia/cobrabot/internal/ami"
	"github.com/juanpgarcia/cobrabot/internal/config"
	"github.com/juanpgarcia/cobrabot/internal/ledger"
	"github.com/juanpgarcia/cobrabot/pkg/types"
)

// ErrOrigination marks a call attempt the PBX rejected; the client is
// requeued and the attempt counts against its retry budget.
var ErrOrigination = errors.New("dialer: origination rejected")

// ErrTooManyFailures trips when the circuit breaker aborts a run after
// consecutive origination failures.
var ErrTooManyFailures = errors.New("dialer: too many consecutive origination failures")

const (
	pollInterval     = time.Second
	offHoursInterval = time.Minute
	maxReconnects    = 5
	reconnectBase    = 2 * time.Second
)

// Controller is the slice of the AMI client the dialer uses; tests swap in a
// scripted fake.
type Controller interface {
	Connect(ctx context.Context) error
	Originate(ctx context.Context, channel, dialCtx, exten string, priority int, callerID string, timeout time.Duration, variables map[string]string) (ami.OriginateResult, error)
	ListChannels(ctx context.Context) ([]string, error)
	Events() <-chan ami.Message
	Close() error
}

type activeCall struct {
	cliente  *types.Client
	inicio   time.Time
	actionID string

	// Filled in from PBX events as the leg progresses.
	uniqueID  string
	resultado types.Resolution
	monto     float64
}

// Summary totals one campaign run.
type Summary struct {
	Total        int
	Exitosas     int
	Fallidas     int
	SinContestar int
	Monto        float64 // sum of agreed payments
}

// SuccessRate is Exitosas over Total, 0 when nothing was dialed.
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Exitosas) / float64(s.Total)
}

// Dialer runs one campaign batch. Bookkeeping is single-loop: only Run and
// the methods it calls touch the queue and the active table.
type Dialer struct {
	cfg      config.Config
	ctrl     Controller
	ledger   ledger.Store
	queue    []*types.Client
	active   map[string]*activeCall
	limiter  *rate.Limiter
	summary  Summary
	failures int // consecutive origination failures, reset on success

	now   func() time.Time
	sleep func(context.Context, time.Duration)
}

// New builds a Dialer over an AMI controller and a result ledger.
func New(cfg config.Config, ctrl Controller, store ledger.Store) *Dialer {
	perMin := cfg.Dialer.OriginationsPerMin
	if perMin <= 0 {
		perMin = 30
	}
	return &Dialer{
		cfg:     cfg,
		ctrl:    ctrl,
		ledger:  store,
		active:  make(map[string]*activeCall),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 1),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Load ingests the CTI file into the queue.
func (d *Dialer) Load(ctiPath string, maxCalls int) (int, error) {
	queue, err := LoadCTI(ctiPath, maxCalls)
	if err != nil {
		return 0, err
	}
	d.queue = queue
	return len(queue), nil
}

// Queue exposes the pending clients, for dry-run reporting.
func (d *Dialer) Queue() []*types.Client { return d.queue }

// Summary returns the run totals so far.
func (d *Dialer) Summary() Summary { return d.summary }

// Run drains the queue: originate while capacity remains and the clock is
// inside the calling window, reconcile timed-out calls, repeat until both the
// queue and the active table are empty. A lost AMI connection is retried with
// bounded exponential backoff before the run aborts.
func (d *Dialer) Run(ctx context.Context) error {
	if err := d.connect(ctx); err != nil {
		return err
	}
	defer d.ctrl.Close()

	for len(d.queue) > 0 || len(d.active) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.inHours() {
			log.Printf(ctx, "outside calling hours, waiting")
			d.sleep(ctx, offHoursInterval)
			continue
		}

		for len(d.active) < d.cfg.Dialer.MaxConcurrent {
			cliente := d.nextEligible()
			if cliente == nil {
				break
			}
			if err := d.originate(ctx, cliente); err != nil {
				if errors.Is(err, ErrOrigination) {
					continue // requeued by originate
				}
				return err
			}
		}

		d.drainEvents(ctx)
		d.reconcile(ctx)
		d.sleep(ctx, pollInterval)
	}
	return nil
}

// Finalize closes an active call with its resolution, appending the ledger
// row and updating the run counters.
func (d *Dialer) Finalize(callID string, resolucion types.Resolution, monto float64) error {
	call, ok := d.active[callID]
	if !ok {
		return fmt.Errorf("dialer: unknown call id %s", callID)
	}
	delete(d.active, callID)

	c := call.cliente
	rec := ledger.Record{
		Fecha:        d.now(),
		CallID:       callID,
		Cedula:       c.Cedula,
		Nombre:       c.Nombre,
		Celular:      c.Celular,
		Producto:     c.Producto,
		DiasMora:     c.DiasMora,
		SaldoMora:    c.SaldoMora,
		Probabilidad: c.Probabilidad,
		Segmento:     c.Segmento,
		Resultado:    resolucion,
		Monto:        monto,
		DuracionSeg:  d.now().Sub(call.inicio).Seconds(),
	}
	if err := d.ledger.Append(rec); err != nil {
		return err
	}

	switch resolucion {
	case types.ResolucionExitosa:
		d.summary.Exitosas++
		d.summary.Monto += monto
	case types.ResolucionSinContestar:
		d.summary.SinContestar++
	default:
		d.summary.Fallidas++
	}
	return nil
}

// nextEligible pops the highest-priority client whose retry budget and delay
// allow a call now. The queue stays priority-ordered; skipped clients keep
// their position.
func (d *Dialer) nextEligible() *types.Client {
	for i, c := range d.queue {
		if !d.eligible(c) {
			continue
		}
		d.queue = append(d.queue[:i], d.queue[i+1:]...)
		return c
	}
	return nil
}

func (d *Dialer) eligible(c *types.Client) bool {
	if c.Attempts >= d.cfg.Dialer.MaxRetries {
		return false
	}
	if c.LastAttempt.IsZero() {
		return true
	}
	return d.now().Sub(c.LastAttempt) >= d.cfg.Dialer.RetryDelay
}

func (d *Dialer) originate(ctx context.Context, cliente *types.Client) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	ast := d.cfg.Asterisk
	channel := ast.Trunk + "/" + cliente.Celular
	callerID := fmt.Sprintf("Cobranzas <%s>", cliente.Celular)

	log.Info(ctx, log.KV{K: "msg", V: "originating"},
		log.KV{K: "cedula", V: cliente.Cedula},
		log.KV{K: "celular", V: cliente.Celular},
		log.KV{K: "attempt", V: cliente.Attempts + 1})

	res, err := d.ctrl.Originate(ctx, channel, ast.Context, ast.Exten, ast.Priority,
		callerID, d.cfg.Dialer.CallTimeout, cliente.ChannelVariables())
	if err != nil {
		// Connection-level failure: try to re-establish the session.
		if rerr := d.reconnect(ctx); rerr != nil {
			return rerr
		}
		res, err = d.ctrl.Originate(ctx, channel, ast.Context, ast.Exten, ast.Priority,
			callerID, d.cfg.Dialer.CallTimeout, cliente.ChannelVariables())
		if err != nil {
			return fmt.Errorf("dialer: originate after reconnect: %w", err)
		}
	}

	if !res.Success {
		d.failures++
		log.Error(ctx, ErrOrigination,
			log.KV{K: "cedula", V: cliente.Cedula},
			log.KV{K: "response", V: res.Raw["Message"]},
			log.KV{K: "consecutive_failures", V: d.failures})
		if limit := d.cfg.Dialer.MaxConsecutiveFailures; limit > 0 && d.failures >= limit {
			return fmt.Errorf("%w (%d)", ErrTooManyFailures, d.failures)
		}
		// Requeue at the tail rather than dropping the client.
		d.queue = append(d.queue, cliente)
		return ErrOrigination
	}

	d.failures = 0
	cliente.Attempts++
	cliente.LastAttempt = d.now()
	d.summary.Total++

	callID := "call_" + uuid.NewString()
	d.active[callID] = &activeCall{
		cliente:  cliente,
		inicio:   d.now(),
		actionID: res.ActionID,
	}
	return nil
}

// drainEvents consumes whatever PBX events are queued and folds them into
// the active-call table: OriginateResponse binds the leg's unique id (or
// reports no answer), VarSet carries the bridge's exported result, Hangup
// finalizes the entry.
func (d *Dialer) drainEvents(ctx context.Context) {
	for {
		select {
		case ev, ok := <-d.ctrl.Events():
			if !ok {
				return
			}
			d.handleEvent(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dialer) handleEvent(ctx context.Context, ev ami.Message) {
	switch ev["Event"] {
	case "OriginateResponse":
		callID, call := d.findByActionID(ev.ActionID())
		if call == nil {
			return
		}
		if !ev.Success() {
			if err := d.Finalize(callID, types.ResolucionSinContestar, 0); err != nil {
				log.Error(ctx, err, log.KV{K: "msg", V: "finalize no-answer"})
			}
			return
		}
		call.uniqueID = ev["Uniqueid"]

	case "VarSet":
		_, call := d.findByUniqueID(ev["Uniqueid"])
		if call == nil {
			return
		}
		switch ev["Variable"] {
		case types.VarResultado:
			call.resultado = types.Resolution(ev["Value"])
		case types.VarMonto:
			call.monto = atof(ev["Value"])
		}

	case "Hangup":
		callID, call := d.findByUniqueID(ev["Uniqueid"])
		if call == nil {
			return
		}
		resolucion := call.resultado
		if resolucion == "" {
			resolucion = types.ResolucionSinContestar
		}
		if err := d.Finalize(callID, resolucion, call.monto); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "finalize hangup"})
		}
	}
}

func (d *Dialer) findByActionID(actionID string) (string, *activeCall) {
	if actionID == "" {
		return "", nil
	}
	for id, call := range d.active {
		if call.actionID == actionID {
			return id, call
		}
	}
	return "", nil
}

func (d *Dialer) findByUniqueID(uniqueID string) (string, *activeCall) {
	if uniqueID == "" {
		return "", nil
	}
	for id, call := range d.active {
		if call.uniqueID == uniqueID {
			return id, call
		}
	}
	return "", nil
}

// reconcile force-finalizes active calls that outlived the max session
// duration; the bridge enforces its own ceiling, this is the dialer-side
// backstop when the PBX never reports back.
func (d *Dialer) reconcile(ctx context.Context) {
	maxDur := d.cfg.Dialer.MaxCallDuration
	for callID, call := range d.active {
		if d.now().Sub(call.inicio) <= maxDur {
			continue
		}
		log.Printf(ctx, "call %s exceeded %s, finalizing as TIMEOUT", callID, maxDur)
		if err := d.Finalize(callID, types.ResolucionTimeout, 0); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "finalize timeout"})
		}
	}
}

func (d *Dialer) inHours() bool {
	h := d.now().Hour()
	return h >= d.cfg.Dialer.HoraInicio && h < d.cfg.Dialer.HoraFin
}

func (d *Dialer) connect(ctx context.Context) error {
	if err := d.ctrl.Connect(ctx); err != nil {
		return fmt.Errorf("dialer: connect: %w", err)
	}
	return nil
}

// reconnect retries Connect with exponential backoff, giving up after
// maxReconnects attempts.
func (d *Dialer) reconnect(ctx context.Context) error {
	var err error
	for attempt := 0; attempt < maxReconnects; attempt++ {
		d.sleep(ctx, reconnectBase<<attempt)
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = d.ctrl.Connect(ctx); err == nil {
			log.Printf(ctx, "ami reconnected after %d attempts", attempt+1)
			return nil
		}
		log.Error(ctx, err, log.KV{K: "msg", V: "reconnect failed"}, log.KV{K: "attempt", V: attempt + 1})
	}
	return fmt.Errorf("dialer: reconnect: %w", err)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
