package operations

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewReport(t *testing.T) {
	t.Parallel()

	def := Definition{ID: "deploy", Version: semver.MustParse("1.0.0"), Description: "deploys"}

	ok := NewReport(def, 1, "0xabc", nil)
	assert.NotEmpty(t, ok.ID)
	assert.Equal(t, def, ok.Def)
	assert.Equal(t, 1, ok.Input)
	assert.Equal(t, "0xabc", ok.Output)
	require.NotNil(t, ok.Timestamp)
	assert.Equal(t, "UTC", ok.Timestamp.Location().String())
	assert.Nil(t, ok.Err)
	assert.Empty(t, ok.ChildOperationReports)

	failed := NewReport(def, 1, "", errors.New("reverted"), "child-1")
	assert.NotEqual(t, ok.ID, failed.ID)
	require.NotNil(t, failed.Err)
	assert.Equal(t, "reverted", failed.Err.Error())
	assert.Equal(t, []string{"child-1"}, failed.ChildOperationReports)
}

func Test_MemoryReporter(t *testing.T) {
	t.Parallel()

	def := Definition{ID: "deploy", Version: semver.MustParse("1.0.0")}
	seeded := NewReport(def, 1, 2, nil).ToGenericReport()

	reporter := NewMemoryReporter(WithReports([]Report[any, any]{seeded}))

	added := NewReport(def, 2, 3, nil).ToGenericReport()
	require.NoError(t, reporter.AddReport(added))

	reports, err := reporter.GetReports()
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, seeded.ID, reports[0].ID)
	assert.Equal(t, added.ID, reports[1].ID)

	got, err := reporter.GetReport(added.ID)
	require.NoError(t, err)
	assert.Equal(t, added, got)

	_, err = reporter.GetReport("missing")
	require.ErrorIs(t, err, ErrReportNotFound)
	require.EqualError(t, err, "report_id missing: report not found")
}

func Test_MemoryReporter_GetExecutionReports(t *testing.T) {
	t.Parallel()

	def := Definition{ID: "op", Version: semver.MustParse("1.0.0")}

	leaf1 := NewReport(def, 1, 1, nil).ToGenericReport()
	leaf2 := NewReport(def, 2, 2, nil).ToGenericReport()
	inner := NewReport(def, 3, 3, nil, leaf2.ID).ToGenericReport()
	root := NewReport(def, 4, 4, nil, leaf1.ID, inner.ID).ToGenericReport()
	dangling := NewReport(def, 5, 5, nil, "missing").ToGenericReport()

	reporter := NewMemoryReporter(WithReports([]Report[any, any]{root, leaf1, inner, leaf2, dangling}))

	tests := []struct {
		name    string
		giveID  string
		wantIDs []string
		wantErr string
	}{
		{
			name:    "leaf",
			giveID:  leaf1.ID,
			wantIDs: []string{leaf1.ID},
		},
		{
			name:    "nested children come first",
			giveID:  root.ID,
			wantIDs: []string{leaf1.ID, leaf2.ID, inner.ID, root.ID},
		},
		{
			name:    "unknown report",
			giveID:  "missing",
			wantErr: "report_id missing: report not found",
		},
		{
			name:    "unknown child",
			giveID:  dangling.ID,
			wantErr: "report_id missing: report not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := reporter.GetExecutionReports(tt.giveID)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			ids := make([]string, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func Test_RecentReporter(t *testing.T) {
	t.Parallel()

	def := Definition{ID: "op", Version: semver.MustParse("1.0.0")}
	old := NewReport(def, 1, 1, nil).ToGenericReport()
	base := NewMemoryReporter(WithReports([]Report[any, any]{old}))

	recent := NewRecentMemoryReporter(base)
	assert.Empty(t, recent.GetRecentReports())

	fresh := NewReport(def, 2, 2, nil).ToGenericReport()
	require.NoError(t, recent.AddReport(fresh))

	assert.Equal(t, []Report[any, any]{fresh}, recent.GetRecentReports())

	all, err := base.GetReports()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	failing := NewRecentMemoryReporter(errorReporter{Reporter: base, AddReportError: errors.New("disk full")})
	require.EqualError(t, failing.AddReport(fresh), "disk full")
	assert.Empty(t, failing.GetRecentReports())
}

func Test_WriteReports_ReadReports(t *testing.T) {
	t.Parallel()

	type deployOutput struct {
		Address string `json:"address"`
		TxHash  string `json:"tx_hash"`
	}

	def := Definition{ID: "timelock-deploy", Version: semver.MustParse("1.0.0"), Description: "deploy"}
	report := NewReport(def, 42, deployOutput{Address: "0x01", TxHash: "0x02"}, nil)
	failed := NewReport(def, 43, deployOutput{}, errors.New("reverted"))

	reporter := NewMemoryReporter()
	require.NoError(t, reporter.AddReport(report.ToGenericReport()))
	require.NoError(t, reporter.AddReport(failed.ToGenericReport()))

	path := filepath.Join(t.TempDir(), "reports.json")
	require.NoError(t, WriteReports(reporter, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := ReadReports(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, report.ID, got[0].ID)
	assert.Equal(t, "timelock-deploy", got[0].Def.ID)
	assert.Equal(t, "1.0.0", got[0].Def.Version.String())
	assert.Equal(t, map[string]any{"address": "0x01", "tx_hash": "0x02"}, got[0].Output)
	assert.True(t, report.Timestamp.Equal(*got[0].Timestamp))
	assert.Nil(t, got[0].Err)

	require.NotNil(t, got[1].Err)
	assert.Equal(t, "reverted", got[1].Err.Message)

	typed, ok := typeReport[int, deployOutput](got[0])
	require.True(t, ok)
	assert.Equal(t, 42, typed.Input)
	assert.Equal(t, report.Output, typed.Output)
}

func Test_ReadReports_KeepsLargeIntegers(t *testing.T) {
	t.Parallel()

	type deployInput struct {
		ChainSelector uint64 `json:"chain_selector"`
	}

	def := Definition{ID: "timelock-deploy", Version: semver.MustParse("1.0.0")}
	input := deployInput{ChainSelector: 16015286601757825753}

	reporter := NewMemoryReporter()
	require.NoError(t, reporter.AddReport(NewReport(def, input, "0x01", nil).ToGenericReport()))

	path := filepath.Join(t.TempDir(), "reports.json")
	require.NoError(t, WriteReports(reporter, path))

	got, err := ReadReports(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"chain_selector": json.Number("16015286601757825753")}, got[0].Input)

	wantHash, err := executionHash(def, input)
	require.NoError(t, err)
	gotHash, err := executionHash(got[0].Def, got[0].Input)
	require.NoError(t, err)
	assert.Equal(t, wantHash, gotHash)

	typed, ok := typeReport[deployInput, string](got[0])
	require.True(t, ok)
	assert.Equal(t, input, typed.Input)
}

func Test_ReadReports_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte("{not json"), 0o600))

	_, err := ReadReports(filepath.Join(dir, "missing.json"))
	require.ErrorContains(t, err, "failed to read reports from")

	_, err = ReadReports(invalid)
	require.ErrorContains(t, err, "failed to unmarshal reports")

	err = WriteReports(NewMemoryReporter(), filepath.Join(dir, "no-such-dir", "reports.json"))
	require.ErrorContains(t, err, "failed to write reports to")
}
