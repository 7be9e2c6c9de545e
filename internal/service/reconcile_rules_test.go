package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srbenoit/mathops-sub032/internal/domain/model"
)

func TestNormalizeSnapshot(t *testing.T) {
	cat := newFakeCatalog(testTerm)
	cat.addSection("MATH117", "001", "", model.RuleSetStrict)
	cat.addSection("MATH118", "001", "CE", model.RuleSetStrict)
	cat.addSection("M 101", "001", "", "")
	cat.addSection("M 101", "L01", "", "")
	cat.addSection("M 160", "001", "", "")
	cat.addSection("M 160", "801", "", "")
	cat.addSection("M 161", "401", "", "")
	cat.addSection("MATH124", "001", "CT", "")

	withdrawn := liveRow("MATH117", "001")
	withdrawn.Withdrawn = true
	otherTerm := liveRow("MATH117", "001")
	otherTerm.TermID = priorTerm
	noSection := liveRow("MATH117", " ")
	m101 := liveRow("M 101", "001")
	m101.GradingOption = "S"
	m101.InstructionType = "CT"
	padded := liveRow(" MATH117 ", "001 ")

	rows := []model.ExternalRegistration{
		withdrawn,
		otherTerm,
		noSection,
		liveRow("MATH999", "001"),
		liveRow("M 101", "L01"),
		liveRow("M 160", "001"),
		liveRow("M 160", "801"),
		liveRow("M 161", "401"),
		m101,
		padded,
		liveRow("MATH117", "001"),
		liveRow("MATH118", "001"),
		liveRow("MATH124", "001"),
	}

	got, err := normalizeSnapshot(context.Background(), newCatalogCache(cat, testTerm), testTerm, rows)
	require.NoError(t, err)

	keys := make([]string, 0, len(got))
	byKey := map[string]model.ExternalRegistration{}
	for _, r := range got {
		keys = append(keys, r.Key().String())
		byKey[r.Key().String()] = r
	}
	// Course overrides only gate inserts, so lab and off-campus sections survive.
	assert.Equal(t, []string{"M 101/L01", "M 160/001", "M 160/801", "M 161/401", "M 101/001", "MATH117/001", "MATH118/001", "MATH124/001"}, keys)

	assert.Equal(t, "T", byKey["M 101/001"].GradingOption)
	assert.Equal(t, "RI", byKey["M 101/001"].InstructionType, "CT maps to RI")
	assert.Equal(t, "CE", byKey["MATH118/001"].InstructionType, "catalog instruction type wins")
	assert.Equal(t, "RI", byKey["MATH124/001"].InstructionType, "catalog CT maps to RI")
	assert.Equal(t, "A", byKey["MATH117/001"].GradingOption)
}

func TestCourseOverrideAdmits(t *testing.T) {
	assert.False(t, courseOverrides["M 101"].admits("L01"))
	assert.True(t, courseOverrides["M 101"].admits("001"))
	assert.False(t, courseOverrides["M 160"].admits("001"))
	assert.True(t, courseOverrides["M 160"].admits("801"))
	assert.True(t, courseOverrides["M 261"].admits("401"))
	assert.True(t, courseOverrides["MATH117"].admits("001"))
}

func TestMapInstructionType(t *testing.T) {
	assert.Equal(t, model.InstructionTypeOther, mapInstructionType(PlacementSectionID, "RI"))
	assert.Equal(t, "RI", mapInstructionType("001", "RI"))
	assert.Equal(t, "RI", mapInstructionType("001", "CT"))
	assert.Equal(t, "CE", mapInstructionType(PlacementSectionID, "CE"))
}

func TestResolveDuplicates(t *testing.T) {
	rows := []model.ExternalRegistration{
		liveRow("MATH160", "003"),
		liveRow("MATH117", "001"),
		liveRow("MATH160", "002"),
	}

	kept, dups := resolveDuplicates(rows, nil, testTerm)
	require.Len(t, kept, 2)
	assert.Equal(t, "MATH117", kept[0].CourseID)
	assert.Equal(t, "002", kept[1].SectionID)
	require.Len(t, dups, 1)
	assert.Equal(t, duplicateCourse{CourseID: "MATH160", Kept: "002", Discarded: []string{"003"}}, dups[0])

	dropped := localRow(testTerm, "MATH160", "002")
	dropped.OpenStatus = model.OpenStatusDropped
	open := localRow(testTerm, "MATH160", "003")
	stale := localRow(priorTerm, "MATH160", "002")
	kept, _ = resolveDuplicates(rows, []*model.LocalRegistration{&dropped, &open, &stale}, testTerm)
	require.Len(t, kept, 2)
	assert.Equal(t, "003", kept[0].SectionID, "open local row wins over a dropped one")
}

func TestResolveRuleSets(t *testing.T) {
	set := func(ids ...string) map[string]struct{} {
		m := map[string]struct{}{}
		for _, id := range ids {
			m[id] = struct{}{}
		}
		return m
	}
	tests := []struct {
		name    string
		sets    map[string]struct{}
		want    string
		wantMix bool
	}{
		{name: "none", sets: set()},
		{name: "strict alone", sets: set("S"), want: "S"},
		{name: "open alone", sets: set("O"), want: "O"},
		{name: "strict and open", sets: set("S", "O"), wantMix: true},
		{name: "strict and moderate", sets: set("S", "M"), want: "M"},
		{name: "moderate and open", sets: set("M", "O"), wantMix: true},
		{name: "all three", sets: set("S", "M", "O"), wantMix: true},
		{name: "strict with unknown", sets: set("S", "X"), want: "S"},
		{name: "strict and moderate with unknown", sets: set("S", "M", "X"), want: "M"},
		{name: "moderate, open and unknown", sets: set("M", "O", "X"), wantMix: true},
		{name: "moderate with unknown", sets: set("M", "X")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, mixed := resolveRuleSets(tt.sets)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantMix, mixed)
		})
	}
}
