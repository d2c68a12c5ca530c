package mutator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/engine"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 17, 9, 30, 15, 0, time.UTC)

func newTestMutator(t *testing.T) (*Mutator, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	m := New(Config{FS: fs, BackupDir: "backups"})
	m.now = func() time.Time { return fixedNow }
	return m, fs
}

func writeWorkflow(t *testing.T, fs afero.Fs, path string, wf *domain.Workflow) {
	t.Helper()
	format, err := engine.FormatFromPath(path)
	require.NoError(t, err)
	data, err := engine.Encode(wf, format)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, path, data, 0o644))
}

func TestBackup(t *testing.T) {
	m, fs := newTestMutator(t)
	writeWorkflow(t, fs, "flows/checkout.json", sampleWorkflow())

	path, err := m.Backup("flows/checkout.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("backups", "checkout_backup_20260517_093015.json"), path)

	again, err := m.Backup("flows/checkout.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("backups", "checkout_backup_20260517_093015_1.json"), again)

	orig, _ := afero.ReadFile(fs, "flows/checkout.json")
	copied, _ := afero.ReadFile(fs, path)
	assert.Equal(t, orig, copied)

	_, err = m.Backup("flows/missing.json")
	assert.True(t, errors.Is(err, ErrWorkflowNotFound))
}

func TestSaveLoadRollback(t *testing.T) {
	m, fs := newTestMutator(t)
	ctx := context.Background()
	writeWorkflow(t, fs, "wf.yaml", sampleWorkflow())

	backup, err := m.Backup("wf.yaml")
	require.NoError(t, err)

	wf, err := m.Load("wf.yaml")
	require.NoError(t, err)
	updated, err := m.Replace(wf, 1, healedSteps(2))
	require.NoError(t, err)
	require.NoError(t, m.Save(ctx, updated, "wf.yaml"))

	reloaded, err := m.Load("wf.yaml")
	require.NoError(t, err)
	assert.Len(t, reloaded.Steps, 5)
	assert.True(t, reloaded.HealingApplied)

	history, err := m.History("wf.yaml")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	require.NoError(t, m.Rollback(ctx, "wf.yaml", backup))
	restored, err := m.Load("wf.yaml")
	require.NoError(t, err)
	assert.Len(t, restored.Steps, 4)
	assert.False(t, restored.HealingApplied)

	exists, _ := afero.Exists(fs, "wf.yaml.tmp")
	assert.False(t, exists)

	err = m.Rollback(ctx, "wf.yaml", "backups/nope.yaml")
	assert.True(t, errors.Is(err, ErrBackupNotFound))
}

func successfulSession(alternatives bool, confirmed ...string) *domain.HealingSession {
	ec := domain.ErrorContext{StepIndex: 1, Step: domain.Step{ID: "buy", Type: domain.ActionClick, Selector: "#buy"}}
	s := domain.NewHealingSession("sess-0001", ec, "find and click #buy")

	steps := healedSteps(3)
	actions := make([]domain.HealingAction, len(steps))
	for i, st := range steps {
		actions[i] = domain.HealingAction{ID: "a" + st.ID, StepID: st.ID, Type: st.Type}
	}
	s.Alternatives = alternatives
	s.MarkSucceeded(domain.TierHeuristic, steps, actions)
	for _, id := range confirmed {
		s.ConfirmAction(id)
	}
	return s
}

func TestApplyHealingSession(t *testing.T) {
	m, fs := newTestMutator(t)
	writeWorkflow(t, fs, "wf.json", sampleWorkflow())

	res, err := m.ApplyHealingSession(context.Background(), "wf.json", successfulSession(false))
	require.NoError(t, err)
	assert.True(t, res.Validation.Accepted())
	assert.NotEmpty(t, res.BackupPath)

	wf, err := m.Load("wf.json")
	require.NoError(t, err)
	require.Len(t, wf.Steps, 6)
	require.Len(t, wf.AppliedHealingSessions, 1)
	assert.Equal(t, "sess-0001", wf.AppliedHealingSessions[0].SessionID)
	assert.Equal(t, res.BackupPath, wf.AppliedHealingSessions[0].BackupPath)
}

func TestApplyHealingSession_OnlyConfirmedAlternative(t *testing.T) {
	m, fs := newTestMutator(t)
	writeWorkflow(t, fs, "wf.json", sampleWorkflow())

	_, err := m.ApplyHealingSession(context.Background(), "wf.json", successfulSession(true, "healed_b"))
	require.NoError(t, err)

	wf, err := m.Load("wf.json")
	require.NoError(t, err)
	require.Len(t, wf.Steps, 4)
	assert.Equal(t, "healed_b", wf.Steps[1].ID)
}

func TestApplyHealingSession_LocatesStepByID(t *testing.T) {
	m, fs := newTestMutator(t)
	wf := sampleWorkflow()
	wf.Steps = append([]domain.Step{{ID: "pre", Type: domain.ActionWait, Timeout: 10}}, wf.Steps...)
	writeWorkflow(t, fs, "wf.json", wf)

	_, err := m.ApplyHealingSession(context.Background(), "wf.json", successfulSession(true, "healed_a"))
	require.NoError(t, err)

	saved, err := m.Load("wf.json")
	require.NoError(t, err)
	assert.Equal(t, "pre", saved.Steps[0].ID)
	assert.Equal(t, "open", saved.Steps[1].ID)
	assert.Equal(t, "healed_a", saved.Steps[2].ID)
}

func TestApplyHealingSession_SameFailureTwice(t *testing.T) {
	m, fs := newTestMutator(t)
	ctx := context.Background()
	writeWorkflow(t, fs, "wf.json", sampleWorkflow())

	_, err := m.ApplyHealingSession(ctx, "wf.json", successfulSession(true, "healed_a"))
	require.NoError(t, err)
	before, _ := afero.ReadFile(fs, "wf.json")

	second := successfulSession(true, "healed_b")
	second.ID = "sess-0002"
	_, err = m.ApplyHealingSession(ctx, "wf.json", second)
	require.ErrorIs(t, err, ErrStepNotFound)

	after, _ := afero.ReadFile(fs, "wf.json")
	assert.Equal(t, before, after)

	wf, err := m.Load("wf.json")
	require.NoError(t, err)
	require.Len(t, wf.Steps, 4)
	assert.Equal(t, "healed_a", wf.Steps[1].ID)
	require.NotNil(t, wf.Steps[1].ReplacedOriginal)
	assert.Equal(t, "buy", wf.Steps[1].ReplacedOriginal.ID)
	assert.Len(t, wf.HealingHistory, 1)
	assert.Len(t, wf.AppliedHealingSessions, 1)

	backups, err := m.ListBackups("wf.json")
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestApplyHealingSession_ConcurrentSameFailure(t *testing.T) {
	m, fs := newTestMutator(t)
	writeWorkflow(t, fs, "wf.json", sampleWorkflow())

	errs := make(chan error, 4)
	for i := 0; i < cap(errs); i++ {
		s := successfulSession(false)
		s.ID = fmt.Sprintf("sess-%04d", i)
		go func() {
			_, err := m.ApplyHealingSession(context.Background(), "wf.json", s)
			errs <- err
		}()
	}

	var applied, notFound int
	for i := 0; i < cap(errs); i++ {
		err := <-errs
		switch {
		case err == nil:
			applied++
		case errors.Is(err, ErrStepNotFound):
			notFound++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 3, notFound)

	wf, err := m.Load("wf.json")
	require.NoError(t, err)
	assert.Len(t, wf.Steps, 6)
	assert.Len(t, wf.HealingHistory, 1)
}

func TestApplyHealingSession_UnconfirmedAlternativesSkipStep(t *testing.T) {
	m, fs := newTestMutator(t)
	writeWorkflow(t, fs, "wf.json", sampleWorkflow())

	s := successfulSession(true)
	assert.Empty(t, AppliedSteps(s))

	_, err := m.ApplyHealingSession(context.Background(), "wf.json", s)
	require.NoError(t, err)

	wf, err := m.Load("wf.json")
	require.NoError(t, err)
	require.Len(t, wf.Steps, 4)
	assert.Equal(t, "buy", wf.Steps[1].ID)
	assert.Equal(t, domain.StepStatusSkipped, wf.Steps[1].Status)
}

func TestApplyHealingSession_StepWithoutID(t *testing.T) {
	m, fs := newTestMutator(t)
	writeWorkflow(t, fs, "wf.json", sampleWorkflow())

	s := successfulSession(false)
	s.ErrorContext.Step.ID = ""
	s.ErrorContext.StepIndex = 9

	_, err := m.ApplyHealingSession(context.Background(), "wf.json", s)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestApplyHealingSession_Rejected(t *testing.T) {
	m, fs := newTestMutator(t)
	writeWorkflow(t, fs, "wf.json", sampleWorkflow())
	before, _ := afero.ReadFile(fs, "wf.json")

	s := successfulSession(false)
	s.NewSteps = []domain.Step{{ID: "x", Type: domain.ActionClick}, {ID: "y", Type: domain.ActionFill}, {ID: "z", Type: domain.ActionNavigate}}

	res, err := m.ApplyHealingSession(context.Background(), "wf.json", s)
	require.ErrorIs(t, err, ErrValidationRejected)
	assert.False(t, res.Validation.Accepted())

	after, _ := afero.ReadFile(fs, "wf.json")
	assert.Equal(t, before, after)

	backups, err := m.ListBackups("wf.json")
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestApplyHealingSession_NotSuccessful(t *testing.T) {
	m, _ := newTestMutator(t)
	s := domain.NewHealingSession("s", domain.ErrorContext{}, "")
	s.MarkFailed("no steps")

	_, err := m.ApplyHealingSession(context.Background(), "wf.json", s)
	assert.ErrorIs(t, err, ErrSessionNotSuccessful)
}

func TestListAndCleanupBackups(t *testing.T) {
	m, fs := newTestMutator(t)
	require.NoError(t, fs.MkdirAll("backups", 0o755))

	files := map[string]time.Time{
		"checkout_backup_20260101_000000.json": fixedNow.Add(-40 * 24 * time.Hour),
		"checkout_backup_20260501_000000.json": fixedNow.Add(-16 * 24 * time.Hour),
		"login_backup_20260510_000000.json":    fixedNow.Add(-7 * 24 * time.Hour),
		"notes.txt":                            fixedNow.Add(-90 * 24 * time.Hour),
	}
	for name, mtime := range files {
		p := filepath.Join("backups", name)
		require.NoError(t, afero.WriteFile(fs, p, []byte("{}"), 0o644))
		require.NoError(t, fs.Chtimes(p, mtime, mtime))
	}

	list, err := m.ListBackups("flows/checkout.json")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, filepath.Join("backups", "checkout_backup_20260501_000000.json"), list[0].Path)

	all, err := m.ListBackups("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	removed, err := m.CleanupBackups(30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = m.CleanupBackups(10)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	exists, _ := afero.Exists(fs, "backups/notes.txt")
	assert.True(t, exists)
}

func TestSave_OSFileLock(t *testing.T) {
	dir := t.TempDir()
	m := New(Config{FS: afero.NewOsFs(), BackupDir: filepath.Join(dir, "backups")})
	path := filepath.Join(dir, "flows", "wf.json")

	require.NoError(t, m.Save(context.Background(), sampleWorkflow(), path))

	wf, err := m.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "checkout", wf.Name)

	backup, err := m.Backup(path)
	require.NoError(t, err)
	require.NoError(t, m.Rollback(context.Background(), path, backup))
}
