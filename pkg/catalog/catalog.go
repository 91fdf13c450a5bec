// Package catalog holds the declarative list of disaster scenarios that
// drives the scenario runner. The catalog is loaded once at process start
// and treated as immutable.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// FaultKind names a disruption executed by the chaos controller. The set is
// open-ended: new kinds only need a matching Litmus experiment.
type FaultKind string

const (
	PodDelete     FaultKind = "pod-delete"
	ContainerKill FaultKind = "container-kill"
	NodeDrain     FaultKind = "node-drain"
	NodeCPUHog    FaultKind = "node-cpu-hog"
)

// RecoveryKind names the predicate variant used to declare the system healed
type RecoveryKind string

const (
	RecoveryPodRunning       RecoveryKind = "pod-running"
	RecoveryReplicaSetReady  RecoveryKind = "replicaset-ready"
	RecoveryServiceEndpoints RecoveryKind = "service-endpoints"
	RecoveryClusterReady     RecoveryKind = "cluster-ready"
)

// TargetSelector identifies the resources the fault is aimed at
type TargetSelector struct {
	Namespace     string `yaml:"namespace"`
	LabelSelector string `yaml:"labelSelector"`
	Kind          string `yaml:"kind"`
}

// RecoverySpec describes the scenario's recovery condition and its budget
type RecoverySpec struct {
	Kind RecoveryKind `yaml:"kind"`
	// Name of the observed resource: pod, replica set, service, or the
	// PerconaXtraDBCluster custom resource
	Name string `yaml:"name"`
	// MinReady is the minimum ready member/endpoint count, 1 for pod-running
	MinReady            int `yaml:"minReady"`
	PollIntervalSeconds int `yaml:"pollIntervalSeconds"`
}

// DisasterScenario is one immutable catalog entry
type DisasterScenario struct {
	Name            string         `yaml:"name"`
	FaultKind       FaultKind      `yaml:"faultKind"`
	Target          TargetSelector `yaml:"target"`
	DurationSeconds int            `yaml:"durationSeconds"`
	IntervalSeconds int            `yaml:"intervalSeconds"`
	Recovery        RecoverySpec   `yaml:"recovery"`
	MTTRSeconds     int            `yaml:"mttrSeconds"`
	Enabled         bool           `yaml:"enabled"`
	// Artifact references the verification artifact for enabled scenarios;
	// must be null for disabled ones
	Artifact *string `yaml:"artifact"`
}

// Catalog is the versioned scenario list
type Catalog struct {
	Version   string             `yaml:"version"`
	Scenarios []DisasterScenario `yaml:"scenarios"`
}

const defaultRecoveryPollIntervalSeconds = 15

// Load reads and parses the catalog file, applying the default recovery
// poll interval where the entry leaves it unset
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read the scenario catalog at %v, err: %v", path, err)
	}
	catalog := &Catalog{}
	if err := yaml.UnmarshalStrict(raw, catalog); err != nil {
		return nil, errors.Wrapf(err, "Unable to parse the scenario catalog at %v, err: %v", path, err)
	}
	for i := range catalog.Scenarios {
		if catalog.Scenarios[i].Recovery.PollIntervalSeconds == 0 {
			catalog.Scenarios[i].Recovery.PollIntervalSeconds = defaultRecoveryPollIntervalSeconds
		}
	}
	return catalog, nil
}

// Enabled returns the scenarios flagged for execution, in catalog order
func (c *Catalog) Enabled() []DisasterScenario {
	var enabled []DisasterScenario
	for _, sc := range c.Scenarios {
		if sc.Enabled {
			enabled = append(enabled, sc)
		}
	}
	return enabled
}

// ValidationError is one referential-integrity violation in the catalog
type ValidationError struct {
	Scenario string
	Reason   string
}

func (e ValidationError) Error() string {
	if e.Scenario == "" {
		return fmt.Sprintf("catalog invalid: %s", e.Reason)
	}
	return fmt.Sprintf("scenario '%s' invalid: %s", e.Scenario, e.Reason)
}

// Validate performs the standalone catalog validation pass; it needs the
// artifact directory on disk but no cluster access. Rules:
//   - scenario names are unique and fields are well-formed
//   - every enabled scenario references its artifact `<name>.yaml`, and the
//     file exists under artifactDir
//   - every disabled scenario carries an explicit null artifact
//   - every artifact file in artifactDir is referenced by exactly one scenario
func Validate(scenarios []DisasterScenario, artifactDir string) []ValidationError {
	var verrs []ValidationError

	seen := map[string]bool{}
	referenced := map[string]string{}

	for _, sc := range scenarios {
		if sc.Name == "" {
			verrs = append(verrs, ValidationError{Reason: "scenario with empty name"})
			continue
		}
		if seen[sc.Name] {
			verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: "duplicate scenario name"})
			continue
		}
		seen[sc.Name] = true

		verrs = append(verrs, validateFields(sc)...)

		if !sc.Enabled {
			if sc.Artifact != nil {
				verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: fmt.Sprintf("disabled scenario must not reference artifact '%s'", *sc.Artifact)})
			}
			continue
		}

		if sc.Artifact == nil {
			verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: "enabled scenario has no artifact reference"})
			continue
		}
		want := sc.Name + ".yaml"
		if *sc.Artifact != want {
			verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: fmt.Sprintf("artifact reference '%s' does not match expected name '%s'", *sc.Artifact, want)})
			continue
		}
		if owner, dup := referenced[*sc.Artifact]; dup {
			verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: fmt.Sprintf("artifact '%s' already referenced by scenario '%s'", *sc.Artifact, owner)})
			continue
		}
		referenced[*sc.Artifact] = sc.Name

		if _, err := os.Stat(filepath.Join(artifactDir, *sc.Artifact)); err != nil {
			verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: fmt.Sprintf("artifact file '%s' not found in %s", *sc.Artifact, artifactDir)})
		}
	}

	// no orphans: every artifact on disk belongs to some scenario
	entries, err := os.ReadDir(artifactDir)
	if err != nil {
		verrs = append(verrs, ValidationError{Reason: fmt.Sprintf("unable to read artifact directory %s: %v", artifactDir, err)})
		return verrs
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		if _, ok := referenced[entry.Name()]; !ok {
			verrs = append(verrs, ValidationError{Reason: fmt.Sprintf("artifact '%s' is not referenced by any scenario", entry.Name())})
		}
	}

	return verrs
}

func validateFields(sc DisasterScenario) []ValidationError {
	var verrs []ValidationError
	if sc.FaultKind == "" {
		verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: "faultKind is required"})
	}
	if sc.Target.Namespace == "" || sc.Target.LabelSelector == "" {
		verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: "target namespace and labelSelector are required"})
	}
	if sc.DurationSeconds <= 0 || sc.IntervalSeconds <= 0 {
		verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: "fault duration and interval must be positive"})
	}
	if sc.MTTRSeconds <= 0 {
		verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: "mttrSeconds must be positive"})
	}
	if sc.Recovery.PollIntervalSeconds <= 0 {
		verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: "recovery poll interval must be positive"})
	}
	switch sc.Recovery.Kind {
	case RecoveryPodRunning:
	case RecoveryReplicaSetReady, RecoveryServiceEndpoints, RecoveryClusterReady:
		if sc.Recovery.MinReady < 1 {
			verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: "recovery minReady must be at least 1"})
		}
	default:
		verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: fmt.Sprintf("unknown recovery kind '%s'", sc.Recovery.Kind)})
	}
	if sc.Recovery.Name == "" {
		verrs = append(verrs, ValidationError{Scenario: sc.Name, Reason: "recovery target name is required"})
	}
	return verrs
}
