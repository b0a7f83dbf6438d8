package diag

// Classify maps a record's observed metrics onto a severity tier.
//
// Execution time drives the base tier through the ascending cutoffs. Scan
// volume is an independent escalation signal: a record that is merely SLOW by
// time but reads past the configured row or byte caps is promoted to
// VERY_SLOW. A record at or above the critical cutoff is CRITICAL regardless
// of any other metric.
func Classify(rec SlowQueryRecord, t Thresholds) Severity {
	sev := Normal
	switch {
	case rec.ExecTime >= t.CriticalSeconds:
		return Critical
	case rec.ExecTime >= t.VerySlowSeconds:
		sev = VerySlow
	case rec.ExecTime >= t.SlowSeconds:
		sev = Slow
	}

	if sev == Slow && exceedsScanCaps(rec, t) {
		sev = VerySlow
	}
	return sev
}

func exceedsScanCaps(rec SlowQueryRecord, t Thresholds) bool {
	if t.MaxScanRows > 0 && rec.ScanRows > t.MaxScanRows {
		return true
	}
	if t.MaxScanBytes > 0 && rec.ScanBytes > t.MaxScanBytes {
		return true
	}
	return false
}

// MaxSeverity returns the highest tier among the given records.
func MaxSeverity(records []SlowQueryRecord, t Thresholds) Severity {
	max := Normal
	for _, r := range records {
		if s := Classify(r, t); s > max {
			max = s
		}
	}
	return max
}
