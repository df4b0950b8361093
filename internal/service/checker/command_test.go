package checker

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/kiosk-updater/internal/config"
	"github.com/oshokin/kiosk-updater/internal/domain/update"
	repo "github.com/oshokin/kiosk-updater/internal/repository/report"
	"github.com/oshokin/kiosk-updater/internal/versioncode"
)

func TestPrintInstalled(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	codec := versioncode.Legacy()

	printInstalled(&out, "com.example.kiosk", update.NotInstalled(), codec)
	printInstalled(&out, "com.example.kiosk", update.InstalledState{IsInstalled: true, VersionCode: update.UnknownVersionCode}, codec)
	printInstalled(&out, "com.example.kiosk", update.InstalledState{IsInstalled: true, VersionCode: 10203}, codec)

	require.Equal(t, "package com.example.kiosk: not installed\n"+
		"package com.example.kiosk: installed, version unknown\n"+
		"package com.example.kiosk: installed, version code 10203 (1.2.3)\n", out.String())
}

func TestPrintLastReport(t *testing.T) {
	t.Parallel()

	repository := repo.NewFileRepository(filepath.Join(t.TempDir(), "report.json"))

	var out bytes.Buffer

	printLastReport(context.Background(), &out, repository)
	require.Equal(t, "last run: none\n", out.String())

	require.NoError(t, repository.Save(context.Background(), &update.Report{
		Trigger:    "boot",
		Decision:   update.DecisionSkip,
		Release:    &update.ReleaseDescriptor{TagName: "v1.2.3", VersionCode: 10203, Source: update.SourceTag},
		Err:        update.ErrPolicyFailed,
		FinishedAt: time.Now(),
	}))

	out.Reset()
	printLastReport(context.Background(), &out, repository)
	require.Contains(t, out.String(), "last run: failed: "+update.ErrPolicyFailed.Error())
	require.Contains(t, out.String(), "trigger boot, decision skip")
	require.Contains(t, out.String(), "latest release: v1.2.3, version code 10203 from tag")
}

func TestRun_WithoutAgent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "settings.yaml")

	require.NoError(t, config.Save(cfgPath, &config.Config{
		PackageID:    "com.example.kiosk",
		ReleaseOwner: "acme",
		ReleaseRepo:  "kiosk",
		DeviceRoot:   filepath.Join(dir, "device"),
		ReportFile:   filepath.Join(dir, "report.json"),
	}))

	var out bytes.Buffer

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: cfgPath, Out: &out}))
	require.Equal(t, "package com.example.kiosk: not installed\nlast run: none\nagent: not configured\n", out.String())
}
