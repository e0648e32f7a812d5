package jobdef

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	APIVersionV1 = "v1"
	KindBatch    = "Batch"

	JobKindETL   = "etl"
	JobKindAdmin = "admin"

	ActionPruneHistory  = "prune-history"
	ActionVerifyHistory = "verify-history"
)

// Definition models the root batch document.
type Definition struct {
	Schema     string   `yaml:"$schema,omitempty" json:"$schema,omitempty"`
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"`
	Metadata   Metadata `yaml:"metadata" json:"metadata"`
	Jobs       []Job    `yaml:"jobs" json:"jobs"`
}

// Metadata contains descriptive data for the batch.
type Metadata struct {
	Name        string            `yaml:"name" json:"name"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// Job defines one job of the batch. Jobs run in the order they are listed.
type Job struct {
	Name            string            `yaml:"name" json:"name"`
	Kind            string            `yaml:"kind,omitempty" json:"kind,omitempty"`
	DependsOn       []string          `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	MaxRetries      int               `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`
	RefreshInterval time.Duration     `yaml:"refreshInterval,omitempty" json:"refreshInterval,omitempty"`
	Command         []string          `yaml:"command,omitempty" json:"command,omitempty"`
	WorkDir         string            `yaml:"workDir,omitempty" json:"workDir,omitempty"`
	Env             map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Tests           []Test            `yaml:"tests,omitempty" json:"tests,omitempty"`
	Action          string            `yaml:"action,omitempty" json:"action,omitempty"`
	Retention       time.Duration     `yaml:"retention,omitempty" json:"retention,omitempty"`
}

// Test is a verification command run after a successful ETL job. A zero
// exit status is a pass.
type Test struct {
	Name    string   `yaml:"name" json:"name"`
	Command []string `yaml:"command" json:"command"`
}

// UnmarshalYAML sets defaults while deserialising a job.
func (j *Job) UnmarshalYAML(value *yaml.Node) error {
	type rawJob Job
	rj := rawJob{Kind: JobKindETL}
	if err := value.Decode(&rj); err != nil {
		return err
	}
	*j = Job(rj)
	if j.Kind == "" {
		j.Kind = JobKindETL
	}
	return nil
}

// Parse parses YAML bytes into a Definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Blank reports whether the document is empty, as happens between
// separators of a multi-document file.
func (d *Definition) Blank() bool {
	if d == nil {
		return true
	}
	return d.APIVersion == "" && d.Kind == "" &&
		strings.TrimSpace(d.Metadata.Name) == "" && len(d.Jobs) == 0
}

// Validate performs semantic validation on the definition. Dependency
// ordering is not checked here.
func (d *Definition) Validate() error {
	if d.APIVersion != APIVersionV1 {
		return fmt.Errorf("unsupported apiVersion: %s", d.APIVersion)
	}
	if d.Kind != KindBatch {
		return fmt.Errorf("unsupported kind: %s", d.Kind)
	}
	if strings.TrimSpace(d.Metadata.Name) == "" {
		return fmt.Errorf("metadata.name is required")
	}
	if len(d.Jobs) == 0 {
		return fmt.Errorf("jobs must contain at least one entry")
	}
	return validateJobs(d.Jobs)
}

func validateJobs(jobs []Job) error {
	names := make(map[string]int, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		if strings.TrimSpace(job.Name) == "" {
			return fmt.Errorf("jobs[%d].name is required", i)
		}
		if _, exists := names[job.Name]; exists {
			return fmt.Errorf("duplicate job name %q", job.Name)
		}
		names[job.Name] = i

		if job.MaxRetries < 0 {
			return fmt.Errorf("jobs[%d].maxRetries must not be negative", i)
		}
		if job.RefreshInterval < 0 {
			return fmt.Errorf("jobs[%d].refreshInterval must not be negative", i)
		}

		switch job.Kind {
		case JobKindETL:
			if err := validateETL(i, job); err != nil {
				return err
			}
		case JobKindAdmin:
			if err := validateAdmin(i, job); err != nil {
				return err
			}
		default:
			return fmt.Errorf("jobs[%d].kind must be one of [%s,%s]", i, JobKindETL, JobKindAdmin)
		}
	}
	return nil
}

func validateETL(i int, job *Job) error {
	if len(job.Command) == 0 || strings.TrimSpace(job.Command[0]) == "" {
		return fmt.Errorf("jobs[%d].command is required", i)
	}
	if job.Action != "" {
		return fmt.Errorf("jobs[%d].action is only valid for %s jobs", i, JobKindAdmin)
	}

	tests := make(map[string]struct{}, len(job.Tests))
	for t, test := range job.Tests {
		if strings.TrimSpace(test.Name) == "" {
			return fmt.Errorf("jobs[%d].tests[%d].name is required", i, t)
		}
		if _, exists := tests[test.Name]; exists {
			return fmt.Errorf("jobs[%d] has duplicate test name %q", i, test.Name)
		}
		tests[test.Name] = struct{}{}
		if len(test.Command) == 0 || strings.TrimSpace(test.Command[0]) == "" {
			return fmt.Errorf("jobs[%d].tests[%d].command is required", i, t)
		}
	}
	return nil
}

func validateAdmin(i int, job *Job) error {
	if len(job.Command) > 0 || len(job.Tests) > 0 {
		return fmt.Errorf("jobs[%d] is an %s job and cannot declare command or tests", i, JobKindAdmin)
	}
	switch job.Action {
	case ActionPruneHistory:
		if job.Retention < 0 {
			return fmt.Errorf("jobs[%d].retention must not be negative", i)
		}
	case ActionVerifyHistory:
	default:
		return fmt.Errorf("jobs[%d].action must be one of [%s,%s]", i, ActionPruneHistory, ActionVerifyHistory)
	}
	return nil
}
