package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/srbenoit/mathops-sub032/internal/core"
	"github.com/srbenoit/mathops-sub032/internal/domain/model"
)

// PlacementSectionID is the section reserved for registrations granted by a
// placement result rather than ordinary enrollment.
const PlacementSectionID = "550"

// courseOverride adjusts how one course's live rows map into the mirror.
type courseOverride struct {
	// skipSectionPrefixes never produce a new mirror row (lab sections).
	skipSectionPrefixes []string
	// allowSectionPrefixes, when set, is the only sections that do.
	allowSectionPrefixes []string
	gradingOptions       map[string]string
}

var courseOverrides = map[string]courseOverride{
	"M 101": {
		skipSectionPrefixes: []string{"L"},
		gradingOptions:      map[string]string{"2": "T", "S": "T", "L": "T"},
	},
	"M 160": {allowSectionPrefixes: []string{"8", "4"}},
	"M 161": {allowSectionPrefixes: []string{"8", "4"}},
	"M 261": {allowSectionPrefixes: []string{"8", "4"}},
}

// instructionTypeMap rewrites registrar instruction types into the codes the
// mirror stores.
var instructionTypeMap = map[string]string{
	"CT": "RI",
}

func (o courseOverride) admits(sectionID string) bool {
	for _, p := range o.skipSectionPrefixes {
		if strings.HasPrefix(sectionID, p) {
			return false
		}
	}
	if len(o.allowSectionPrefixes) == 0 {
		return true
	}
	for _, p := range o.allowSectionPrefixes {
		if strings.HasPrefix(sectionID, p) {
			return true
		}
	}
	return false
}

func mapGradingOption(courseID, option string) string {
	if mapped, ok := courseOverrides[courseID].gradingOptions[option]; ok {
		return mapped
	}
	return option
}

func mapInstructionType(sectionID, itype string) string {
	if sectionID == PlacementSectionID && itype == "RI" {
		return model.InstructionTypeOther
	}
	if mapped, ok := instructionTypeMap[itype]; ok {
		return mapped
	}
	return itype
}

// catalogCache memoizes catalog lookups for the duration of one run.
type catalogCache struct {
	repo     core.CatalogRepository
	termID   string
	sections map[model.RegistrationKey]*model.CourseSection
	pacing   map[string]*model.PacingStructure
}

func newCatalogCache(repo core.CatalogRepository, termID string) *catalogCache {
	return &catalogCache{
		repo:     repo,
		termID:   termID,
		sections: map[model.RegistrationKey]*model.CourseSection{},
		pacing:   map[string]*model.PacingStructure{},
	}
}

func (c *catalogCache) section(ctx context.Context, key model.RegistrationKey) (*model.CourseSection, error) {
	if cs, ok := c.sections[key]; ok {
		return cs, nil
	}
	cs, err := c.repo.GetCourseSection(ctx, c.termID, key)
	if err != nil {
		return nil, fmt.Errorf("lookup section %s: %w", key, err)
	}
	c.sections[key] = cs
	return cs, nil
}

func (c *catalogCache) pacingStructure(ctx context.Context, id string) (*model.PacingStructure, error) {
	if ps, ok := c.pacing[id]; ok {
		return ps, nil
	}
	ps, err := c.repo.GetPacingStructure(ctx, c.termID, id)
	if err != nil {
		return nil, fmt.Errorf("lookup pacing structure %s: %w", id, err)
	}
	c.pacing[id] = ps
	return ps, nil
}

// normalizeSnapshot filters and rewrites the live rows of one student for
// termID. Rows for other terms, withdrawn rows, rows with no course or
// section and rows outside the catalog are dropped. Exact repeats of the same
// course/section collapse to one row. Course overrides are not applied here;
// they only gate inserts.
func normalizeSnapshot(ctx context.Context, cat *catalogCache, termID string, rows []model.ExternalRegistration) ([]model.ExternalRegistration, error) {
	out := make([]model.ExternalRegistration, 0, len(rows))
	seen := make(map[model.RegistrationKey]struct{}, len(rows))

	for _, raw := range rows {
		row := raw.Normalize()
		switch {
		case row.Withdrawn:
			continue
		case row.TermID != "" && row.TermID != termID:
			continue
		case row.CourseID == "" || row.SectionID == "":
			continue
		}
		if _, dup := seen[row.Key()]; dup {
			continue
		}

		cs, err := cat.section(ctx, row.Key())
		if err != nil {
			return nil, err
		}
		if cs == nil {
			continue
		}

		row.TermID = termID
		row.GradingOption = mapGradingOption(row.CourseID, row.GradingOption)
		if cs.InstructionType != "" {
			row.InstructionType = cs.InstructionType
		}
		row.InstructionType = mapInstructionType(row.SectionID, row.InstructionType)

		seen[row.Key()] = struct{}{}
		out = append(out, row)
	}
	return out, nil
}

// duplicateCourse reports one course that appeared under several sections.
type duplicateCourse struct {
	CourseID  string
	Kept      string
	Discarded []string
}

// resolveDuplicates keeps one section per course. A section the mirror
// already holds as an open current-term row wins; otherwise the lowest
// section id is kept.
func resolveDuplicates(rows []model.ExternalRegistration, local []*model.LocalRegistration, termID string) ([]model.ExternalRegistration, []duplicateCourse) {
	byCourse := make(map[string][]string)
	var order []string
	for _, r := range rows {
		if _, ok := byCourse[r.CourseID]; !ok {
			order = append(order, r.CourseID)
		}
		byCourse[r.CourseID] = append(byCourse[r.CourseID], r.SectionID)
	}

	keep := make(map[string]string, len(byCourse))
	var dups []duplicateCourse
	for _, course := range order {
		sections := byCourse[course]
		if len(sections) == 1 {
			keep[course] = sections[0]
			continue
		}
		slices.Sort(sections)
		kept := currentLocalSection(local, termID, course, sections)
		if kept == "" {
			kept = sections[0]
		}
		keep[course] = kept
		dups = append(dups, duplicateCourse{
			CourseID:  course,
			Kept:      kept,
			Discarded: slices.DeleteFunc(slices.Clone(sections), func(s string) bool { return s == kept }),
		})
	}

	out := rows[:0:0]
	for _, r := range rows {
		if keep[r.CourseID] == r.SectionID {
			out = append(out, r)
		}
	}
	return out, dups
}

func currentLocalSection(local []*model.LocalRegistration, termID, course string, candidates []string) string {
	var found []*model.LocalRegistration
	for _, l := range local {
		if l.TermID == termID && l.CourseID == course && slices.Contains(candidates, l.SectionID) {
			found = append(found, l)
		}
	}
	if len(found) == 0 {
		return ""
	}
	// Open rows beat dropped ones, then the lowest section.
	slices.SortFunc(found, func(a, b *model.LocalRegistration) int {
		if a.IsDropped() != b.IsDropped() {
			if a.IsDropped() {
				return 1
			}
			return -1
		}
		return cmp.Compare(a.SectionID, b.SectionID)
	})
	return found[0].SectionID
}

// resolveRuleSets combines the rule sets of a student's open paced courses.
// It returns the single rule set the student should follow, or mixed=true
// when the combination is not allowed.
func resolveRuleSets(sets map[string]struct{}) (resolved string, mixed bool) {
	if len(sets) == 0 {
		return "", false
	}
	if len(sets) == 1 {
		for s := range sets {
			return s, false
		}
	}

	_, hasS := sets[model.RuleSetStrict]
	_, hasM := sets[model.RuleSetModerate]
	_, hasO := sets[model.RuleSetOpen]
	switch {
	case hasS && hasO:
		return "", true
	case hasS && hasM:
		return model.RuleSetModerate, false
	case hasS:
		return model.RuleSetStrict, false
	default:
		return "", hasM && hasO
	}
}
