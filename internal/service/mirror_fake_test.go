package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/srbenoit/mathops-sub032/internal/core"
	"github.com/srbenoit/mathops-sub032/internal/domain/model"
)

var errInjected = errors.New("injected store failure")

// fakeMirror is an in-memory MirrorStore. Each WithTx works on a copy of the
// tables that replaces the committed state only when the callback succeeds.
type fakeMirror struct {
	mu       sync.Mutex
	regs     map[string]*model.LocalRegistration
	holds    map[string]*model.Hold
	students map[string]*model.Student
	credits  map[string][]*model.PlacementCredit

	// writes counts committed mutations.
	writes int
	// failOnWrite makes the Nth write of a transaction fail when > 0.
	failOnWrite int
	// inTx and maxInTx count transactions in flight.
	inTx    int
	maxInTx int
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{
		regs:     map[string]*model.LocalRegistration{},
		holds:    map[string]*model.Hold{},
		students: map[string]*model.Student{},
		credits:  map[string][]*model.PlacementCredit{},
	}
}

func regKey(studentID, termID string, key model.RegistrationKey) string {
	return strings.Join([]string{studentID, termID, key.CourseID, key.SectionID}, "|")
}

func holdKey(studentID, holdID string) string { return studentID + "|" + holdID }

func (f *fakeMirror) addStudent(id string) *model.Student {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &model.Student{StudentID: id}
	f.students[id] = s
	return s
}

func (f *fakeMirror) addRegistration(r model.LocalRegistration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[regKey(r.StudentID, r.TermID, r.Key())] = &r
}

func (f *fakeMirror) addHold(h model.Hold) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holds[holdKey(h.StudentID, h.HoldID)] = &h
}

func (f *fakeMirror) addCredit(c model.PlacementCredit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits[c.StudentID] = append(f.credits[c.StudentID], &c)
}

func (f *fakeMirror) registration(studentID, termID, course, section string) *model.LocalRegistration {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.regs[regKey(studentID, termID, model.RegistrationKey{CourseID: course, SectionID: section})]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (f *fakeMirror) registrationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.regs)
}

func (f *fakeMirror) holdIDs(studentID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, h := range f.holds {
		if h.StudentID == studentID {
			ids = append(ids, h.HoldID)
		}
	}
	slices.Sort(ids)
	return ids
}

func (f *fakeMirror) student(id string) *model.Student {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (f *fakeMirror) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeMirror) WithTx(ctx context.Context, fn func(ctx context.Context, tx core.MirrorTx) error) error {
	f.mu.Lock()
	f.inTx++
	f.maxInTx = max(f.maxInTx, f.inTx)
	tx := &fakeTx{
		regs:        cloneTable(f.regs),
		holds:       cloneTable(f.holds),
		students:    cloneTable(f.students),
		credits:     f.credits,
		failOnWrite: f.failOnWrite,
	}
	f.mu.Unlock()

	err := fn(ctx, tx)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inTx--
	if err != nil {
		return err
	}
	f.regs, f.holds, f.students = tx.regs, tx.holds, tx.students
	f.writes += tx.writes
	return nil
}

func cloneTable[V any](in map[string]*V) map[string]*V {
	out := make(map[string]*V, len(in))
	for k, v := range in {
		cp := *v
		out[k] = &cp
	}
	return out
}

type fakeTx struct {
	regs        map[string]*model.LocalRegistration
	holds       map[string]*model.Hold
	students    map[string]*model.Student
	credits     map[string][]*model.PlacementCredit
	writes      int
	failOnWrite int
}

func (t *fakeTx) write() error {
	t.writes++
	if t.failOnWrite > 0 && t.writes >= t.failOnWrite {
		return errInjected
	}
	return nil
}

func (t *fakeTx) LockStudent(context.Context, string) error        { return nil }
func (t *fakeTx) Registrations() core.RegistrationRepository       { return fakeRegRepo{t} }
func (t *fakeTx) Holds() core.HoldRepository                       { return fakeHoldRepo{t} }
func (t *fakeTx) Students() core.StudentRepository                 { return fakeStudentRepo{t} }
func (t *fakeTx) PlacementCredits() core.PlacementCreditRepository { return fakeCreditRepo{t} }

type fakeRegRepo struct{ tx *fakeTx }

func (r fakeRegRepo) ListByStudent(_ context.Context, studentID string) ([]*model.LocalRegistration, error) {
	var out []*model.LocalRegistration
	for _, reg := range r.tx.regs {
		if reg.StudentID == studentID {
			cp := *reg
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *model.LocalRegistration) int {
		return strings.Compare(regKey(a.StudentID, a.TermID, a.Key()), regKey(b.StudentID, b.TermID, b.Key()))
	})
	return out, nil
}

func (r fakeRegRepo) Insert(_ context.Context, reg *model.LocalRegistration) error {
	if err := r.tx.write(); err != nil {
		return err
	}
	k := regKey(reg.StudentID, reg.TermID, reg.Key())
	if _, ok := r.tx.regs[k]; ok {
		return errors.New("duplicate registration")
	}
	cp := *reg
	r.tx.regs[k] = &cp
	return nil
}

func (r fakeRegRepo) Update(_ context.Context, p core.UpdateRegistrationParams) error {
	if err := r.tx.write(); err != nil {
		return err
	}
	reg, ok := r.tx.regs[regKey(p.StudentID, p.TermID, p.Key)]
	if !ok {
		return errors.New("registration not found")
	}
	c := p.Changes
	if c.GradingOption != nil {
		reg.GradingOption = *c.GradingOption
	}
	if c.InstructionType != nil {
		reg.InstructionType = *c.InstructionType
	}
	if c.RegistrationStatus != nil {
		reg.RegistrationStatus = *c.RegistrationStatus
	}
	if c.OpenStatus != nil {
		reg.OpenStatus = *c.OpenStatus
	}
	if c.FinalClassRoll != nil {
		reg.FinalClassRoll = *c.FinalClassRoll
	}
	if c.LastSyncDate != nil {
		ts := *c.LastSyncDate
		reg.LastSyncDate = &ts
	}
	return nil
}

type fakeHoldRepo struct{ tx *fakeTx }

func (r fakeHoldRepo) ListByStudent(_ context.Context, studentID string) ([]*model.Hold, error) {
	var out []*model.Hold
	for _, h := range r.tx.holds {
		if h.StudentID == studentID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r fakeHoldRepo) Insert(_ context.Context, h *model.Hold) (bool, error) {
	k := holdKey(h.StudentID, h.HoldID)
	if _, ok := r.tx.holds[k]; ok {
		return false, nil
	}
	if err := r.tx.write(); err != nil {
		return false, err
	}
	cp := *h
	r.tx.holds[k] = &cp
	return true, nil
}

func (r fakeHoldRepo) Delete(_ context.Context, studentID, holdID string) (bool, error) {
	k := holdKey(studentID, holdID)
	if _, ok := r.tx.holds[k]; !ok {
		return false, nil
	}
	if err := r.tx.write(); err != nil {
		return false, err
	}
	delete(r.tx.holds, k)
	return true, nil
}

type fakeStudentRepo struct{ tx *fakeTx }

func (r fakeStudentRepo) GetByID(_ context.Context, studentID string) (*model.Student, error) {
	s, ok := r.tx.students[studentID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r fakeStudentRepo) UpdateHoldSeverity(_ context.Context, studentID string, sev *model.HoldSeverity) error {
	if err := r.tx.write(); err != nil {
		return err
	}
	s, ok := r.tx.students[studentID]
	if !ok {
		return errors.New("student not found")
	}
	if sev == nil {
		s.HoldSeverity = nil
		return nil
	}
	v := *sev
	s.HoldSeverity = &v
	return nil
}

func (r fakeStudentRepo) UpdatePacingStructure(_ context.Context, studentID, ps string) error {
	if err := r.tx.write(); err != nil {
		return err
	}
	s, ok := r.tx.students[studentID]
	if !ok {
		return errors.New("student not found")
	}
	s.PacingStructure = &ps
	return nil
}

type fakeCreditRepo struct{ tx *fakeTx }

func (r fakeCreditRepo) ListByStudent(_ context.Context, studentID string) ([]*model.PlacementCredit, error) {
	var out []*model.PlacementCredit
	for _, c := range r.tx.credits[studentID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// fakeCatalog is a fixed, read-only catalog for one active term.
type fakeCatalog struct {
	term     *model.Term
	sections map[model.RegistrationKey]*model.CourseSection
	pacing   map[string]*model.PacingStructure
	err      error
}

func newFakeCatalog(termID string) *fakeCatalog {
	return &fakeCatalog{
		term:     &model.Term{TermID: termID, Active: true},
		sections: map[model.RegistrationKey]*model.CourseSection{},
		pacing: map[string]*model.PacingStructure{
			model.RuleSetStrict:   {TermID: termID, PacingStructureID: model.RuleSetStrict, ScheduleSource: model.ScheduleSourcePace},
			model.RuleSetModerate: {TermID: termID, PacingStructureID: model.RuleSetModerate, ScheduleSource: model.ScheduleSourcePace},
			model.RuleSetOpen:     {TermID: termID, PacingStructureID: model.RuleSetOpen, ScheduleSource: model.ScheduleSourcePace},
			"X":                   {TermID: termID, PacingStructureID: "X", ScheduleSource: "manual"},
		},
	}
}

func (c *fakeCatalog) addSection(course, section, instrnType, pacing string) {
	key := model.RegistrationKey{CourseID: course, SectionID: section}
	c.sections[key] = &model.CourseSection{
		TermID: c.term.TermID, CourseID: course, SectionID: section,
		InstructionType: instrnType, PacingStructure: pacing,
	}
}

func (c *fakeCatalog) ActiveTerm(context.Context) (*model.Term, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.term, nil
}

func (c *fakeCatalog) GetCourseSection(_ context.Context, termID string, key model.RegistrationKey) (*model.CourseSection, error) {
	if c.err != nil {
		return nil, c.err
	}
	cs, ok := c.sections[key]
	if !ok || cs.TermID != termID {
		return nil, nil
	}
	return cs, nil
}

func (c *fakeCatalog) GetPacingStructure(_ context.Context, termID, id string) (*model.PacingStructure, error) {
	if c.err != nil {
		return nil, c.err
	}
	ps, ok := c.pacing[id]
	if !ok || ps.TermID != termID {
		return nil, nil
	}
	return ps, nil
}
