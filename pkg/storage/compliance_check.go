package storage

import "fmt"

// ComplianceWarning describes a non-fatal deployment concern raised by
// CheckCompliance.
type ComplianceWarning struct {
	ProviderName string
	Message      string
}

func (w ComplianceWarning) String() string {
	return fmt.Sprintf("%s: %s", w.ProviderName, w.Message)
}

// CheckCompliance inspects a provider's capabilities and returns
// non-fatal warnings when the deployment is not backed by a true WORM
// store. It never blocks startup — a warning is surfaced so an operator
// can decide whether a non-compliance-mode provider is acceptable for
// their deployment.
func CheckCompliance(caps Capabilities) []ComplianceWarning {
	var warnings []ComplianceWarning

	if !caps.SupportsWORM {
		warnings = append(warnings, ComplianceWarning{
			ProviderName: caps.ProviderName,
			Message:      "provider does not enforce write-once-read-many; stored checkpoints can be altered or deleted by a sufficiently privileged principal",
		})
	}
	if caps.SupportsRetention && !caps.EnforcesRetention {
		warnings = append(warnings, ComplianceWarning{
			ProviderName: caps.ProviderName,
			Message:      "retention policy is tracked but not enforced at the storage layer (governance mode, not compliance mode)",
		})
	}
	if !caps.SupportsLegalHold {
		warnings = append(warnings, ComplianceWarning{
			ProviderName: caps.ProviderName,
			Message:      "provider does not support legal holds",
		})
	}

	return warnings
}
