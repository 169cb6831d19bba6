package auditconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ledgerseal/auditcore/pkg/checkpoint"
	"github.com/ledgerseal/auditcore/pkg/merkle"
	"github.com/ledgerseal/auditcore/pkg/storage"
)

// SealingPolicy is a named sealer schedule and retention policy,
// typically one per jurisdiction or deployment tier.
type SealingPolicy struct {
	Name        string           `yaml:"name" json:"name"`
	Code        string           `yaml:"code" json:"code"`
	TreeShape   merkle.TreeShape `yaml:"tree_shape" json:"tree_shape"`
	IntervalSec int              `yaml:"interval_seconds" json:"interval_seconds"`
	MaxUnsealed uint64           `yaml:"max_unsealed" json:"max_unsealed"`
	Retention   RetentionPolicy  `yaml:"retention" json:"retention"`
}

// RetentionPolicy names a retention period and storage.RetentionMode for
// sealed checkpoints. CheckpointConfig copies it into checkpoint.Config;
// the Sealer does not apply it when storing a checkpoint.
type RetentionPolicy struct {
	Days int                   `yaml:"days" json:"days"`
	Mode storage.RetentionMode `yaml:"mode" json:"mode"`
}

// LoadPolicy loads a sealing policy YAML by code. It searches
// policiesDir for policy_<code>.yaml.
func LoadPolicy(policiesDir, code string) (*SealingPolicy, error) {
	code = strings.ToLower(code)
	path := filepath.Join(policiesDir, fmt.Sprintf("policy_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load sealing policy %q: %w", code, err)
	}

	var policy SealingPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse sealing policy %q: %w", code, err)
	}

	if policy.Code == "" {
		policy.Code = code
	}
	if policy.TreeShape == "" {
		policy.TreeShape = merkle.ShapeBatch
	}

	return &policy, nil
}

// CheckpointConfig converts p into a checkpoint.Config for NewSealer.
func (p *SealingPolicy) CheckpointConfig() checkpoint.Config {
	return checkpoint.Config{
		TreeShape:     p.TreeShape,
		Interval:      time.Duration(p.IntervalSec) * time.Second,
		MaxUnsealed:   p.MaxUnsealed,
		RetentionDays: p.Retention.Days,
		RetentionMode: string(p.Retention.Mode),
	}
}

// LoadAllPolicies loads every policy_*.yaml file from policiesDir.
func LoadAllPolicies(policiesDir string) (map[string]*SealingPolicy, error) {
	matches, err := filepath.Glob(filepath.Join(policiesDir, "policy_*.yaml"))
	if err != nil {
		return nil, err
	}

	policies := make(map[string]*SealingPolicy, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var policy SealingPolicy
		if err := yaml.Unmarshal(data, &policy); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if policy.Code == "" {
			base := filepath.Base(path)
			policy.Code = strings.TrimSuffix(strings.TrimPrefix(base, "policy_"), ".yaml")
		}
		if policy.TreeShape == "" {
			policy.TreeShape = merkle.ShapeBatch
		}

		policies[policy.Code] = &policy
	}

	return policies, nil
}
