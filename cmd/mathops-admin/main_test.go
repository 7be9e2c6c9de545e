package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/srbenoit/mathops-sub032/internal/adapters/localauth"
	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/domain/model"
	"github.com/srbenoit/mathops-sub032/internal/migrate"
	"github.com/srbenoit/mathops-sub032/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintUsageListsEveryCommand(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	for name := range commands() {
		assert.Contains(t, out, name)
	}
	assert.Less(t, strings.Index(out, "clear-holds"), strings.Index(out, "migrate"), "commands are sorted")
}

func TestParseReconcileFlags(t *testing.T) {
	opts, err := parseReconcileFlags([]string{"-term", "FA25", "-json", "823000001"})
	require.NoError(t, err)
	assert.Equal(t, reconcileOptions{StudentID: "823000001", TermID: "FA25", JSON: true}, opts)

	opts, err = parseReconcileFlags([]string{"-student", " 823000002 "})
	require.NoError(t, err)
	assert.Equal(t, "823000002", opts.StudentID)

	_, err = parseReconcileFlags(nil)
	require.ErrorContains(t, err, "--student")
}

func TestParseSetLoginFlags(t *testing.T) {
	opts, err := parseSetLoginFlags([]string{"-username", "Jdoe", "-user-id", "800000001", "-role", "ADM"})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdministrator, opts.Role)
	assert.Equal(t, "Jdoe", opts.Username)

	opts, err = parseSetLoginFlags([]string{"-username", "stu", "-user-id", "823000001"})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleStudent, opts.Role)

	_, err = parseSetLoginFlags([]string{"-username", "x", "-user-id", "1", "-role", "wizard"})
	require.ErrorContains(t, err, "--role")

	_, err = parseSetLoginFlags([]string{"-username", "x"})
	require.ErrorContains(t, err, "--user-id")
}

func TestParseHoldsFlags(t *testing.T) {
	opts, err := parseHoldsFlags("clear-holds", []string{"-student", "823000001", "-holds", "30, 31,,"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"30", "31"}, opts.HoldIDs)

	_, err = parseHoldsFlags("clear-holds", []string{"-student", "823000001"}, true)
	require.ErrorContains(t, err, "--holds")

	opts, err = parseHoldsFlags("list-holds", []string{"-student", "823000001"}, false)
	require.NoError(t, err)
	assert.Empty(t, opts.HoldIDs)

	_, err = parseHoldsFlags("list-holds", []string{"-holds", "30"}, false)
	require.Error(t, err, "list-holds does not accept --holds")
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	_, err = parseMigrateFlags([]string{"-timeout", "0s"})
	require.Error(t, err)

	opts, err = parseMigrateFlags([]string{"-status"})
	require.NoError(t, err)
	assert.True(t, opts.Status)
}

func TestPrintMigrationStatus(t *testing.T) {
	at := time.Date(2025, 8, 1, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, printMigrationStatus(&buf, []migrate.Status{
		{Version: "0001_catalog", AppliedAt: &at},
		{Version: "0002_mirror"},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"0001_catalog", "2025-08-01T09:30:00Z"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"0002_mirror", "pending"}, strings.Fields(lines[2]))
}

func TestRunHashPassword(t *testing.T) {
	var out bytes.Buffer
	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Stdin:  strings.NewReader("correct horse\n"),
		Stdout: &out,
	}
	require.NoError(t, runHashPassword(cmdCtx, nil))

	hash := strings.TrimSpace(out.String())
	ok, err := localauth.VerifyPassword("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	cmdCtx.Stdin = strings.NewReader("\n")
	require.Error(t, runHashPassword(cmdCtx, nil))
}

func TestPrintReport(t *testing.T) {
	report := &service.ReconcileReport{
		StudentID: "823000001",
		TermID:    "FA25",
		Outcome:   service.ReconcileApplied,
		Success:   true,
		Inserted:  2,
		Lines:     []string{"inserted M 117 section 001"},
	}

	var text bytes.Buffer
	require.NoError(t, printReport(&text, report, false))
	assert.Contains(t, text.String(), "outcome=applied")
	assert.Contains(t, text.String(), "inserted M 117 section 001")

	var raw bytes.Buffer
	require.NoError(t, printReport(&raw, report, true))
	var decoded service.ReconcileReport
	require.NoError(t, json.Unmarshal(raw.Bytes(), &decoded))
	assert.Equal(t, 2, decoded.Inserted)
}

func TestPrintHolds(t *testing.T) {
	var empty bytes.Buffer
	require.NoError(t, printHolds(&empty, nil))
	assert.Equal(t, "(no holds)\n", empty.String())

	var buf bytes.Buffer
	require.NoError(t, printHolds(&buf, []*model.Hold{{
		StudentID:    "823000001",
		HoldID:       "30",
		Severity:     model.HoldSeverityFatal,
		TimesApplied: 2,
		DateApplied:  time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC),
	}}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"30", "F", "2", "2025-09-02"}, strings.Fields(lines[1]))
}
