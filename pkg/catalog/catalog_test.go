package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func validScenario(name string, enabled bool) DisasterScenario {
	sc := DisasterScenario{
		Name:      name,
		FaultKind: PodDelete,
		Target: TargetSelector{
			Namespace:     "pxc",
			LabelSelector: "component=pxc",
			Kind:          "statefulset",
		},
		DurationSeconds: 60,
		IntervalSeconds: 10,
		Recovery: RecoverySpec{
			Kind:                RecoveryClusterReady,
			Name:                "pxc-cluster",
			MinReady:            3,
			PollIntervalSeconds: 15,
		},
		MTTRSeconds: 600,
		Enabled:     enabled,
	}
	if enabled {
		sc.Artifact = strPtr(name + ".yaml")
	}
	return sc
}

func writeArtifacts(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0o644))
	}
	return dir
}

func TestLoad(t *testing.T) {
	raw := `version: "1"
scenarios:
  - name: pxc-pod-delete
    faultKind: pod-delete
    target:
      namespace: pxc
      labelSelector: component=pxc
      kind: statefulset
    durationSeconds: 60
    intervalSeconds: 10
    recovery:
      kind: cluster-ready
      name: pxc-cluster
      minReady: 3
    mttrSeconds: 600
    enabled: true
    artifact: pxc-pod-delete.yaml
  - name: proxysql-pod-delete
    faultKind: pod-delete
    target:
      namespace: pxc
      labelSelector: component=proxysql
      kind: statefulset
    durationSeconds: 30
    intervalSeconds: 10
    recovery:
      kind: service-endpoints
      name: proxysql
      minReady: 2
      pollIntervalSeconds: 5
    mttrSeconds: 300
    enabled: false
    artifact: null
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cat, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cat.Scenarios, 2)

	first := cat.Scenarios[0]
	assert.Equal(t, PodDelete, first.FaultKind)
	assert.Equal(t, "component=pxc", first.Target.LabelSelector)
	require.NotNil(t, first.Artifact)
	assert.Equal(t, "pxc-pod-delete.yaml", *first.Artifact)
	// poll interval defaulted where the entry leaves it unset
	assert.Equal(t, defaultRecoveryPollIntervalSeconds, first.Recovery.PollIntervalSeconds)
	assert.Equal(t, 5, cat.Scenarios[1].Recovery.PollIntervalSeconds)

	enabled := cat.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "pxc-pod-delete", enabled[0].Name)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	raw := "version: \"1\"\nscenarios:\n  - name: s1\n    unknownField: true\n"
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		scenarios func() []DisasterScenario
		artifacts []string
		wantErrs  []string
	}{
		{
			name: "valid catalog",
			scenarios: func() []DisasterScenario {
				return []DisasterScenario{validScenario("a", true), validScenario("b", false)}
			},
			artifacts: []string{"a.yaml"},
			wantErrs:  nil,
		},
		{
			name: "enabled scenario without artifact",
			scenarios: func() []DisasterScenario {
				sc := validScenario("a", true)
				sc.Artifact = nil
				return []DisasterScenario{sc}
			},
			wantErrs: []string{"no artifact reference"},
		},
		{
			name: "disabled scenario with artifact",
			scenarios: func() []DisasterScenario {
				sc := validScenario("a", false)
				sc.Artifact = strPtr("a.yaml")
				return []DisasterScenario{sc}
			},
			wantErrs: []string{"disabled scenario must not reference"},
		},
		{
			name: "misnamed artifact reference",
			scenarios: func() []DisasterScenario {
				sc := validScenario("a", true)
				sc.Artifact = strPtr("b.yaml")
				return []DisasterScenario{sc}
			},
			artifacts: []string{"b.yaml"},
			wantErrs:  []string{"does not match expected name", "not referenced by any scenario"},
		},
		{
			name: "artifact file missing",
			scenarios: func() []DisasterScenario {
				return []DisasterScenario{validScenario("a", true)}
			},
			wantErrs: []string{"not found in"},
		},
		{
			name: "orphan artifact",
			scenarios: func() []DisasterScenario {
				return []DisasterScenario{validScenario("a", true)}
			},
			artifacts: []string{"a.yaml", "orphan.yaml"},
			wantErrs:  []string{"'orphan.yaml' is not referenced"},
		},
		{
			name: "duplicate scenario name",
			scenarios: func() []DisasterScenario {
				return []DisasterScenario{validScenario("a", true), validScenario("a", true)}
			},
			artifacts: []string{"a.yaml"},
			wantErrs:  []string{"duplicate scenario name"},
		},
		{
			name: "bad fields",
			scenarios: func() []DisasterScenario {
				sc := validScenario("a", true)
				sc.DurationSeconds = 0
				sc.Recovery.Kind = "guesswork"
				return []DisasterScenario{sc}
			},
			artifacts: []string{"a.yaml"},
			wantErrs:  []string{"must be positive", "unknown recovery kind"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeArtifacts(t, tt.artifacts...)
			verrs := Validate(tt.scenarios(), dir)
			if len(tt.wantErrs) == 0 {
				assert.Empty(t, verrs)
				return
			}
			for _, want := range tt.wantErrs {
				found := false
				for _, verr := range verrs {
					if strings.Contains(verr.Error(), want) {
						found = true
						break
					}
				}
				assert.True(t, found, "expected a validation error containing %q, got %v", want, verrs)
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		targetStruct := &struct {
			Scenarios []DisasterScenario
		}{}
		if err := fuzzConsumer.GenerateStruct(targetStruct); err != nil {
			return
		}
		// validation must never panic, whatever the catalog contents
		_ = Validate(targetStruct.Scenarios, t.TempDir())
	})
}
