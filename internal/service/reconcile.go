package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/srbenoit/mathops-sub032/internal/core"
	"github.com/srbenoit/mathops-sub032/internal/domain/model"
	"github.com/srbenoit/mathops-sub032/internal/observability/metrics"
	"github.com/srbenoit/mathops-sub032/internal/observability/statsd"
	"github.com/srbenoit/mathops-sub032/internal/ports"
)

const (
	// DefaultStudentIDPrefix marks ids that belong to enrolled students.
	DefaultStudentIDPrefix = "8"
	// DefaultTestStudentID is the shared test account, never reconciled.
	DefaultTestStudentID = "888888888"
	// DefaultReconcileLockTTL bounds how long a cross-instance lock may be held.
	DefaultReconcileLockTTL = 2 * time.Minute
)

// ErrNoActiveTerm is returned when the catalog has no active term.
var ErrNoActiveTerm = errors.New("no active term")

// ReconcileOutcome summarizes how a reconciliation attempt ended.
type ReconcileOutcome string

const (
	ReconcileApplied           ReconcileOutcome = "applied"
	ReconcileSkippedIneligible ReconcileOutcome = "skipped_ineligible"
	ReconcileSkippedGateDown   ReconcileOutcome = "skipped_gate_down"
	ReconcileSkippedBusy       ReconcileOutcome = "skipped_busy"
	ReconcileSourceFailed      ReconcileOutcome = "source_failed"
	ReconcileStoreFailed       ReconcileOutcome = "store_failed"
)

// Skipped reports whether the attempt never contacted the source.
func (o ReconcileOutcome) Skipped() bool { return strings.HasPrefix(string(o), "skipped_") }

// Anomaly is one unexpected condition found during a pass. Each anomaly
// maps to the hold placed for it.
type Anomaly struct {
	HoldID string `json:"hold_id"`
	Detail string `json:"detail"`
}

// ReconcileRequest identifies the student to reconcile. An empty TermID
// means the catalog's active term.
type ReconcileRequest struct {
	StudentID string `json:"student_id"`
	TermID    string `json:"term_id,omitempty"`
}

// ReconcileReport is the advisory result of one attempt.
type ReconcileReport struct {
	StudentID string           `json:"student_id"`
	TermID    string           `json:"term_id,omitempty"`
	Outcome   ReconcileOutcome `json:"outcome"`
	Success   bool             `json:"success"`

	Fetched    int `json:"fetched"`
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	Reinstated int `json:"reinstated"`
	Dropped    int `json:"dropped"`

	HoldsAdded         []string  `json:"holds_added,omitempty"`
	HoldsRemoved       []string  `json:"holds_removed,omitempty"`
	PacingStructureSet string    `json:"pacing_structure_set,omitempty"`
	Anomalies          []Anomaly `json:"anomalies,omitempty"`
	Lines              []string  `json:"lines,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Mutations counts every write the pass committed. Reinstated rows are
// already counted as updates.
func (r *ReconcileReport) Mutations() int {
	n := r.Inserted + r.Updated + r.Dropped + len(r.HoldsAdded) + len(r.HoldsRemoved)
	if r.PacingStructureSet != "" {
		n++
	}
	return n
}

// String renders the report as multi-line text for logs and the admin CLI.
func (r *ReconcileReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "reconcile student=%s term=%s outcome=%s success=%t\n",
		r.StudentID, r.TermID, r.Outcome, r.Success)
	if r.Outcome == ReconcileApplied {
		fmt.Fprintf(&b, "  fetched=%d inserted=%d updated=%d reinstated=%d dropped=%d holds_added=%v holds_removed=%v\n",
			r.Fetched, r.Inserted, r.Updated, r.Reinstated, r.Dropped, r.HoldsAdded, r.HoldsRemoved)
	}
	for _, line := range r.Lines {
		b.WriteString("  - ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func (r *ReconcileReport) addf(format string, args ...any) {
	r.Lines = append(r.Lines, fmt.Sprintf(format, args...))
}

// discardPass forgets everything a rolled-back pass recorded after mark.
func (r *ReconcileReport) discardPass(mark int) {
	r.Lines = r.Lines[:mark]
	r.Inserted, r.Updated, r.Reinstated, r.Dropped = 0, 0, 0, 0
	r.HoldsAdded, r.HoldsRemoved, r.Anomalies = nil, nil, nil
	r.PacingStructureSet = ""
}

// ReconcileConfig tunes eligibility and locking. Zero values pick defaults.
type ReconcileConfig struct {
	StudentIDPrefix string
	TestStudentID   string
	LockTTL         time.Duration
}

// ReconcileDeps groups the collaborators of ReconcileService.
type ReconcileDeps struct {
	Source  ports.RegistrationSource // Required
	Gate    *SourceGate              // Required
	Mirror  core.MirrorStore         // Required
	Catalog core.CatalogRepository   // Required
	Holds   *HoldService             // Optional: built over Mirror when nil
	Locker  core.StudentLocker       // Optional: cross-instance lock
	Clock   core.Clock               // Optional: defaults to the system clock
	Metrics statsd.Sink              // Optional: metrics sink
}

// ReconcileServiceOptions groups dependencies for ReconcileService.
type ReconcileServiceOptions struct {
	Deps   ReconcileDeps
	Config ReconcileConfig
	Logger *slog.Logger
}

// ReconcileService brings a student's mirrored registrations in line with
// the live registration source. Runs for one student are serialized while
// different students proceed concurrently.
type ReconcileService struct {
	source  ports.RegistrationSource
	gate    *SourceGate
	mirror  core.MirrorStore
	catalog core.CatalogRepository
	holds   *HoldService
	locker  core.StudentLocker
	clock   core.Clock
	metrics statsd.Sink
	cfg     ReconcileConfig
	logger  *slog.Logger

	flight singleflight.Group
	locks  keyedMutex
}

// NewReconcileService validates dependencies and constructs the engine.
func NewReconcileService(opts ReconcileServiceOptions) (*ReconcileService, error) {
	d := opts.Deps
	switch {
	case d.Source == nil:
		return nil, errors.New("registration source is required")
	case d.Gate == nil:
		return nil, errors.New("source gate is required")
	case d.Mirror == nil:
		return nil, errors.New("mirror store is required")
	case d.Catalog == nil:
		return nil, errors.New("catalog repository is required")
	}

	cfg := opts.Config
	if cfg.StudentIDPrefix == "" {
		cfg.StudentIDPrefix = DefaultStudentIDPrefix
	}
	if cfg.TestStudentID == "" {
		cfg.TestStudentID = DefaultTestStudentID
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultReconcileLockTTL
	}
	clock := d.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	holds := d.Holds
	if holds == nil {
		holds = NewHoldService(HoldServiceOptions{Store: d.Mirror, Clock: clock, Logger: logger, Metrics: d.Metrics})
	}

	return &ReconcileService{
		source:  d.Source,
		gate:    d.Gate,
		mirror:  d.Mirror,
		catalog: d.Catalog,
		holds:   holds,
		locker:  d.Locker,
		clock:   clock,
		metrics: d.Metrics,
		cfg:     cfg,
		logger:  logger.With("component", "reconcile_service"),
	}, nil
}

// Gate exposes the source gate for status and reset endpoints.
func (s *ReconcileService) Gate() *SourceGate { return s.gate }

// ProbeSource pings the live source and reopens the gate on success.
func (s *ReconcileService) ProbeSource(ctx context.Context) error {
	return s.gate.Probe(ctx, s.source)
}

// Eligible reports whether studentID names a real enrolled student.
func (s *ReconcileService) Eligible(studentID string) bool {
	return strings.HasPrefix(studentID, s.cfg.StudentIDPrefix) && studentID != s.cfg.TestStudentID
}

// Reconcile runs one reconciliation pass. Skips and source failures are
// reported with a nil error; store failures roll back every write and are
// returned alongside the report.
func (s *ReconcileService) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileReport, error) {
	studentID := strings.TrimSpace(req.StudentID)
	if studentID == "" {
		return nil, errors.New("student id is required")
	}
	termID := strings.TrimSpace(req.TermID)

	if !s.Eligible(studentID) {
		report := &ReconcileReport{StudentID: studentID, TermID: termID, StartedAt: s.clock.Now()}
		report.Outcome = ReconcileSkippedIneligible
		report.addf("student id is not eligible for reconciliation")
		s.finish(ctx, report, nil)
		return report, nil
	}

	v, err, _ := s.flight.Do(studentID+"|"+termID, func() (any, error) {
		return s.reconcileSerialized(ctx, studentID, termID)
	})
	report, _ := v.(*ReconcileReport)
	if report == nil {
		return nil, err
	}
	cp := *report
	return &cp, err
}

func (s *ReconcileService) reconcileSerialized(ctx context.Context, studentID, termID string) (*ReconcileReport, error) {
	unlock := s.locks.lock(studentID)
	defer unlock()

	report := &ReconcileReport{StudentID: studentID, TermID: termID, StartedAt: s.clock.Now()}
	err := s.run(ctx, report)
	report.Duration = s.clock.Now().Sub(report.StartedAt)
	s.finish(ctx, report, err)
	return report, err
}

func (s *ReconcileService) run(ctx context.Context, report *ReconcileReport) error {
	if !s.gate.IsUp() {
		report.Outcome = ReconcileSkippedGateDown
		report.addf("live registration source is down; skipped")
		return nil
	}

	if report.TermID == "" {
		term, err := s.catalog.ActiveTerm(ctx)
		if err != nil {
			report.Outcome = ReconcileStoreFailed
			return fmt.Errorf("load active term: %w", err)
		}
		if term == nil {
			report.Outcome = ReconcileStoreFailed
			return ErrNoActiveTerm
		}
		report.TermID = term.TermID
	}

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, report.StudentID, s.cfg.LockTTL)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "student lock unavailable; relying on database lock",
				"student_id", report.StudentID, "error", err)
		case !ok:
			report.Outcome = ReconcileSkippedBusy
			report.addf("another instance is reconciling this student")
			return nil
		default:
			defer func() {
				if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
					s.logger.WarnContext(ctx, "release student lock failed", "student_id", report.StudentID, "error", rerr)
				}
			}()
		}
	}

	rows, err := s.source.FetchRegistrations(ctx, report.StudentID, report.TermID)
	if err != nil {
		report.Outcome = ReconcileSourceFailed
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.gate.MarkDown(err.Error())
		report.addf("live registration fetch failed: %v", err)
		return nil
	}
	report.Fetched = len(rows)

	// The gate may have been flipped by another student's failure mid-fetch.
	if !s.gate.IsUp() {
		report.Outcome = ReconcileSkippedGateDown
		report.addf("live registration source went down during fetch; skipped")
		return nil
	}

	cat := newCatalogCache(s.catalog, report.TermID)
	live, err := normalizeSnapshot(ctx, cat, report.TermID, rows)
	if err != nil {
		report.Outcome = ReconcileStoreFailed
		return err
	}

	mark := len(report.Lines)
	err = s.mirror.WithTx(ctx, func(ctx context.Context, tx core.MirrorTx) error {
		if lockErr := tx.LockStudent(ctx, report.StudentID); lockErr != nil {
			return fmt.Errorf("lock student rows: %w", lockErr)
		}
		p := &reconcilePass{svc: s, tx: tx, cat: cat, report: report, now: s.clock.Now()}
		return p.apply(ctx, live)
	})
	if err != nil {
		report.discardPass(mark)
		report.Outcome = ReconcileStoreFailed
		report.addf("store error; all changes rolled back: %v", err)
		return fmt.Errorf("reconcile %s: %w", report.StudentID, err)
	}

	report.Outcome = ReconcileApplied
	report.Success = true
	if report.Mutations() == 0 {
		report.addf("mirror already up to date")
	}
	return nil
}

func (s *ReconcileService) finish(ctx context.Context, report *ReconcileReport, err error) {
	m := metrics.ReconcileMetric{
		Reason:    string(report.Outcome),
		Mutations: report.Mutations(),
		Anomalies: len(report.Anomalies),
		Duration:  report.Duration,
		Err:       err,
	}
	attrs := []any{"student_id", report.StudentID, "term_id", report.TermID, "outcome", report.Outcome}

	switch {
	case err != nil:
		m.Result = metrics.ResultError
		s.logger.ErrorContext(ctx, "reconciliation failed", append(attrs, "error", err)...)
	case report.Outcome == ReconcileSourceFailed:
		m.Result = metrics.ResultError
		s.logger.WarnContext(ctx, "reconciliation skipped after source failure", attrs...)
	case report.Outcome.Skipped():
		m.Result = metrics.ResultSkipped
		s.logger.DebugContext(ctx, "reconciliation skipped", attrs...)
	case m.Mutations == 0:
		m.Result = metrics.ResultNoop
		s.logger.DebugContext(ctx, "reconciliation found no changes", attrs...)
	default:
		m.Result = metrics.ResultSuccess
		s.logger.InfoContext(ctx, "reconciliation applied",
			append(attrs,
				"inserted", report.Inserted,
				"updated", report.Updated,
				"dropped", report.Dropped,
				"holds_added", report.HoldsAdded,
				"holds_removed", report.HoldsRemoved,
			)...)
	}
	metrics.EmitReconcile(s.metrics, m)
}

// reconcilePass applies one normalized snapshot inside a transaction.
type reconcilePass struct {
	svc     *ReconcileService
	tx      core.MirrorTx
	cat     *catalogCache
	report  *ReconcileReport
	now     time.Time
	credits []*model.PlacementCredit
	loaded  bool
}

func (p *reconcilePass) apply(ctx context.Context, live []model.ExternalRegistration) error {
	studentID, termID := p.report.StudentID, p.report.TermID

	local, err := p.tx.Registrations().ListByStudent(ctx, studentID)
	if err != nil {
		return fmt.Errorf("list registrations: %w", err)
	}

	live, dups := resolveDuplicates(live, local, termID)
	for _, d := range dups {
		detail := fmt.Sprintf("%s registered in sections %s; kept %s",
			d.CourseID, strings.Join(append([]string{d.Kept}, d.Discarded...), ","), d.Kept)
		if err := p.anomaly(ctx, model.HoldDuplicateSection, detail); err != nil {
			return err
		}
	}

	current := make(map[model.RegistrationKey]*model.LocalRegistration)
	priorIncomplete := make(map[string]bool)
	for _, l := range local {
		switch {
		case l.TermID == termID:
			current[l.Key()] = l
		case l.InProgressIncomplete && !l.Completed:
			priorIncomplete[l.CourseID] = true
		}
	}

	for _, row := range live {
		if priorIncomplete[row.CourseID] {
			detail := fmt.Sprintf("%s has an unfinished incomplete from a prior term; %s not mirrored", row.CourseID, row.Key())
			if err := p.anomaly(ctx, model.HoldIncompleteConflict, detail); err != nil {
				return err
			}
			continue
		}
		existing, ok := current[row.Key()]
		switch {
		case ok:
			err = p.update(ctx, existing, row)
		case !courseOverrides[row.CourseID].admits(row.SectionID):
			p.report.addf("%s is not mirrored for this course", row.Key())
		default:
			err = p.insert(ctx, row)
		}
		if err != nil {
			return err
		}
	}

	// Nothing is dropped when the normalized snapshot is empty.
	if len(live) > 0 {
		keep := make(map[model.RegistrationKey]struct{}, len(live))
		for _, row := range live {
			keep[row.Key()] = struct{}{}
		}
		for _, l := range local {
			if l.TermID != termID || l.IsDropped() || l.InProgressIncomplete {
				continue
			}
			if _, ok := keep[l.Key()]; ok {
				continue
			}
			if err := p.drop(ctx, l); err != nil {
				return err
			}
		}
	}

	return p.checkRuleSets(ctx)
}

func (p *reconcilePass) anomaly(ctx context.Context, holdID, detail string) error {
	added, err := p.svc.holds.AddFatalHold(ctx, p.tx, p.report.StudentID, holdID)
	if err != nil {
		return err
	}
	p.report.Anomalies = append(p.report.Anomalies, Anomaly{HoldID: holdID, Detail: detail})
	if added {
		p.report.HoldsAdded = append(p.report.HoldsAdded, holdID)
		p.report.addf("anomaly [hold %s added]: %s", holdID, detail)
	} else {
		p.report.addf("anomaly [hold %s already present]: %s", holdID, detail)
	}
	p.svc.logger.WarnContext(ctx, "reconciliation anomaly",
		"student_id", p.report.StudentID, "hold_id", holdID, "detail", detail, "hold_added", added)
	return nil
}

func (p *reconcilePass) insert(ctx context.Context, row model.ExternalRegistration) error {
	now := p.now
	reg := &model.LocalRegistration{
		StudentID:          p.report.StudentID,
		TermID:             p.report.TermID,
		CourseID:           row.CourseID,
		SectionID:          row.SectionID,
		OpenStatus:         model.OpenStatusActive,
		GradingOption:      row.GradingOption,
		InstructionType:    row.InstructionType,
		RegistrationStatus: row.RegistrationStatus,
		FinalClassRoll:     true,
		LastSyncDate:       &now,
	}

	if row.SectionID == PlacementSectionID {
		grounded, err := p.placementGrounded(ctx, row.CourseID)
		if err != nil {
			return err
		}
		if grounded {
			reg.ExamPlaced = model.ExamPlacedMirror
		} else {
			detail := fmt.Sprintf("%s has no placement credit backing it", row.Key())
			if err := p.anomaly(ctx, model.HoldUngroundedPlacement, detail); err != nil {
				return err
			}
		}
	}

	if err := p.tx.Registrations().Insert(ctx, reg); err != nil {
		return fmt.Errorf("insert registration %s: %w", row.Key(), err)
	}
	p.report.Inserted++
	p.report.addf("inserted %s", row.Key())
	return nil
}

func (p *reconcilePass) placementGrounded(ctx context.Context, courseID string) (bool, error) {
	if !p.loaded {
		credits, err := p.tx.PlacementCredits().ListByStudent(ctx, p.report.StudentID)
		if err != nil {
			return false, fmt.Errorf("list placement credits: %w", err)
		}
		p.credits, p.loaded = credits, true
	}
	for _, c := range p.credits {
		if c.Grants(courseID) {
			return true, nil
		}
	}
	return false, nil
}

func (p *reconcilePass) update(ctx context.Context, existing *model.LocalRegistration, row model.ExternalRegistration) error {
	var c model.RegistrationChanges
	var fields []string
	if differs(row.GradingOption, existing.GradingOption) {
		c.GradingOption = &row.GradingOption
		fields = append(fields, "grading_option")
	}
	if differs(row.InstructionType, existing.InstructionType) {
		c.InstructionType = &row.InstructionType
		fields = append(fields, "instruction_type")
	}
	if differs(row.RegistrationStatus, existing.RegistrationStatus) {
		c.RegistrationStatus = &row.RegistrationStatus
		fields = append(fields, "registration_status")
	}
	reinstated := existing.IsDropped()
	if reinstated {
		active, roll := model.OpenStatusActive, true
		c.OpenStatus, c.FinalClassRoll = &active, &roll
	}
	if c.Empty() {
		return nil
	}

	now := p.now
	c.LastSyncDate = &now
	err := p.tx.Registrations().Update(ctx, core.UpdateRegistrationParams{
		StudentID: p.report.StudentID,
		TermID:    p.report.TermID,
		Key:       existing.Key(),
		Changes:   c,
	})
	if err != nil {
		return fmt.Errorf("update registration %s: %w", existing.Key(), err)
	}

	p.report.Updated++
	if reinstated {
		p.report.Reinstated++
		p.report.addf("reinstated %s", existing.Key())
	}
	if len(fields) > 0 {
		p.report.addf("updated %s (%s)", existing.Key(), strings.Join(fields, ", "))
	}
	return nil
}

func differs(next, prev string) bool { return next != "" && next != prev }

func (p *reconcilePass) drop(ctx context.Context, existing *model.LocalRegistration) error {
	dropped, roll, now := model.OpenStatusDropped, false, p.now
	err := p.tx.Registrations().Update(ctx, core.UpdateRegistrationParams{
		StudentID: p.report.StudentID,
		TermID:    p.report.TermID,
		Key:       existing.Key(),
		Changes:   model.RegistrationChanges{OpenStatus: &dropped, FinalClassRoll: &roll, LastSyncDate: &now},
	})
	if err != nil {
		return fmt.Errorf("drop registration %s: %w", existing.Key(), err)
	}
	p.report.Dropped++
	p.report.addf("dropped %s", existing.Key())
	return nil
}

func (p *reconcilePass) checkRuleSets(ctx context.Context) error {
	regs, err := p.tx.Registrations().ListByStudent(ctx, p.report.StudentID)
	if err != nil {
		return fmt.Errorf("list registrations: %w", err)
	}

	sets := make(map[string]struct{})
	for _, r := range regs {
		if r.TermID != p.report.TermID || r.OpenStatus != model.OpenStatusActive ||
			r.InstructionType == model.InstructionTypeOther {
			continue
		}
		cs, err := p.cat.section(ctx, r.Key())
		if err != nil {
			return err
		}
		if cs == nil || cs.InstructionType == model.InstructionTypeOther || cs.PacingStructure == "" {
			continue
		}
		ps, err := p.cat.pacingStructure(ctx, cs.PacingStructure)
		if err != nil {
			return err
		}
		if ps == nil || !ps.Paced() {
			continue
		}
		sets[ps.PacingStructureID] = struct{}{}
	}

	resolved, mixed := resolveRuleSets(sets)
	if mixed {
		return p.anomaly(ctx, model.HoldMixedRuleSets, fmt.Sprintf("open courses mix rule sets %s", joinSet(sets)))
	}

	removed, err := p.svc.holds.RemoveHolds(ctx, p.tx, p.report.StudentID, model.HoldMixedRuleSets, model.HoldLegacyMixedRuleSets)
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		p.report.HoldsRemoved = append(p.report.HoldsRemoved, removed...)
		p.report.addf("cleared holds %s", strings.Join(removed, ","))
	}

	if resolved == "" {
		return nil
	}
	stu, err := p.tx.Students().GetByID(ctx, p.report.StudentID)
	if err != nil {
		return fmt.Errorf("get student: %w", err)
	}
	if stu == nil || (stu.PacingStructure != nil && *stu.PacingStructure != "") {
		return nil
	}
	if err := p.tx.Students().UpdatePacingStructure(ctx, p.report.StudentID, resolved); err != nil {
		return fmt.Errorf("set pacing structure: %w", err)
	}
	p.report.PacingStructureSet = resolved
	p.report.addf("primary rule set set to %s", resolved)
	return nil
}

func joinSet(set map[string]struct{}) string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return strings.Join(ids, "+")
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
