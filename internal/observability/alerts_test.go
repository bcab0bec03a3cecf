package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Alert       string            `yaml:"alert"`
			Expr        string            `yaml:"expr"`
			For         string            `yaml:"for"`
			Labels      map[string]string `yaml:"labels"`
			Annotations map[string]string `yaml:"annotations"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

func TestAccessAlertRules(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "access.yml"))
	require.NoError(t, err)
	var rf ruleFile
	require.NoError(t, yaml.Unmarshal(raw, &rf))
	require.Len(t, rf.Groups, 1)
	require.Equal(t, "access", rf.Groups[0].Name)

	want := map[string]struct {
		severity string
		anchor   string
		metric   string
	}{
		"HighErrorRate":          {"critical", "high-error-rate", "access_http_requests_total"},
		"TokenIssuerUnavailable": {"critical", "issuer-unavailable", "access_session_switch_total"},
		"TokenIssuerSlow":        {"warning", "issuer-slow", "access_token_issuer_duration_seconds_bucket"},
		"ExpirySweepStalled":     {"warning", "expiry-stalled", "access_job_last_success_timestamp_seconds"},
	}

	runbook, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook-access.md"))
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, rule := range rf.Groups[0].Rules {
		w, ok := want[rule.Alert]
		require.Truef(t, ok, "unexpected alert %s", rule.Alert)
		seen[rule.Alert] = true

		require.Equal(t, w.severity, rule.Labels["severity"], rule.Alert)
		require.Equal(t, "docs/runbook-access.md#"+w.anchor, rule.Annotations["runbook"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["description"], rule.Alert)
		require.NotEmpty(t, rule.For, rule.Alert)
		require.Contains(t, rule.Expr, w.metric, rule.Alert)

		heading := "## " + strings.ReplaceAll(w.anchor, "-", " ")
		require.Containsf(t, strings.ToLower(string(runbook)), heading, "runbook section for %s", rule.Alert)
	}
	require.Len(t, seen, len(want))
}
