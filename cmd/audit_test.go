package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-image-audit/pkg/audit"
	"github.com/shouni/go-image-audit/pkg/report"
	"github.com/shouni/go-image-audit/pkg/static"
)

func TestNewEngine(t *testing.T) {
	saved := Flags
	defer func() { Flags = saved }()

	t.Run("static", func(t *testing.T) {
		Flags.Engine = engineStatic
		eng, err := newEngine(context.Background())
		require.NoError(t, err)
		assert.IsType(t, &static.Engine{}, eng)
		assert.NoError(t, eng.Close())
	})

	t.Run("unknown_engine_is_usage_error", func(t *testing.T) {
		Flags.Engine = "firefox"
		eng, err := newEngine(context.Background())
		assert.Nil(t, eng)
		assert.ErrorIs(t, err, audit.ErrUsage)
		assert.Equal(t, audit.ExitUsage, audit.ExitCode(err))
	})
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, time.Duration(0), seconds(0))
	assert.Equal(t, time.Duration(0), seconds(-5))
	assert.Equal(t, 30*time.Second, seconds(30))
}

func TestInitAppPreRunE_EngineFromEnv(t *testing.T) {
	saved := Flags
	defer func() { Flags = saved }()

	t.Setenv(engineEnvKey, "STATIC")
	c := &cobra.Command{Use: appName}
	addAppPersistentFlags(c)

	require.NoError(t, initAppPreRunE(c, nil))
	assert.Equal(t, engineStatic, Flags.Engine)
}

func TestAuditCmd_MissingURL(t *testing.T) {
	savedReporter, savedURL := newReporter, auditURL
	defer func() {
		newReporter, auditURL = savedReporter, savedURL
		auditCmd.SetOut(nil)
	}()

	var usage, errOut bytes.Buffer
	code := -1
	newReporter = func() *report.Console {
		return report.NewConsole(report.Options{
			Out:     &bytes.Buffer{},
			Err:     &errOut,
			NoColor: true,
			Exit:    func(c int) { code = c },
		})
	}
	auditURL = ""
	auditCmd.SetOut(&usage)

	err := auditCmd.RunE(auditCmd, nil)
	require.NoError(t, err)

	assert.Equal(t, audit.ExitUsage, code)
	assert.Contains(t, usage.String(), "audit [URL]")
	assert.Contains(t, errOut.String(), "--url で監査対象のURLを指定してください")
}

func TestAuditCmd_InvalidURL(t *testing.T) {
	savedReporter, savedURL := newReporter, auditURL
	defer func() { newReporter, auditURL = savedReporter, savedURL }()

	code := -1
	newReporter = func() *report.Console {
		return report.NewConsole(report.Options{
			Out:     &bytes.Buffer{},
			Err:     &bytes.Buffer{},
			NoColor: true,
			Exit:    func(c int) { code = c },
		})
	}
	auditURL = ""

	require.NoError(t, auditCmd.RunE(auditCmd, []string{"not a url"}))
	assert.Equal(t, audit.ExitInvalidURL, code)
}
