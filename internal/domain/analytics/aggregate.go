package analytics

import (
	"sort"
)

// topN is the size of the per-group rankings.
const topN = 3

// counter tallies keys and ranks them by count descending, then key
// ascending.
type counter map[string]int

func (c counter) add(key string) {
	c[key]++
}

func (c counter) ranked() []Count {
	out := make([]Count, 0, len(c))
	for k, n := range c {
		out = append(out, Count{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (c counter) top(n int) []Count {
	r := c.ranked()
	if len(r) > n {
		r = r[:n]
	}
	return r
}

// groups keeps one counter per group key.
type groups map[string]counter

func (g groups) add(group, key string) {
	c, ok := g[group]
	if !ok {
		c = counter{}
		g[group] = c
	}
	c.add(key)
}

func (g groups) crosstab() Crosstab {
	out := make(Crosstab, len(g))
	for group, c := range g {
		row := make(map[string]int, len(c))
		for k, n := range c {
			row[k] = n
		}
		out[group] = row
	}
	return out
}

func (g groups) top(n int) map[string][]Count {
	out := make(map[string][]Count, len(g))
	for group, c := range g {
		out[group] = c.top(n)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func aggregateVisits(w Window, rows []VisitRow) VisitTrend {
	daily, depts, types := counter{}, counter{}, counter{}
	for _, r := range rows {
		daily.add(r.VisitDate)
		depts.add(r.Department)
		types.add(r.RecordType)
	}

	vt := VisitTrend{
		Window:      w,
		Daily:       make([]DailyCount, 0, len(daily)),
		Departments: depts.ranked(),
		RecordTypes: types.ranked(),
		Total:       len(rows),
	}
	for _, d := range sortedKeys(daily) {
		vt.Daily = append(vt.Daily, DailyCount{Date: d, Visits: daily[d]})
	}
	// The average is taken over days that had visits.
	if len(vt.Daily) > 0 {
		vt.DailyAverage = float64(vt.Total) / float64(len(vt.Daily))
		peak := vt.Daily[0]
		for _, d := range vt.Daily[1:] {
			if d.Visits > peak.Visits {
				peak = d
			}
		}
		vt.Peak = &peak
	}
	return vt
}

func aggregateDiagnoses(rows []DiagnosisRow) DiagnosisDistribution {
	all, byDept := counter{}, groups{}
	for _, r := range rows {
		if r.Diagnosis == "" {
			continue
		}
		all.add(r.Diagnosis)
		byDept.add(r.Department, r.Diagnosis)
	}
	total := 0
	for _, n := range all {
		total += n
	}
	return DiagnosisDistribution{
		Diagnoses:     all.ranked(),
		DepartmentTop: byDept.top(topN),
		Total:         total,
	}
}

func aggregateExaminations(rows []ExamRow) ExaminationStats {
	types, byDept := counter{}, groups{}
	for _, r := range rows {
		types.add(r.ExamType)
		byDept.add(r.Department, r.ExamType)
	}
	return ExaminationStats{
		ExamTypes:           types.ranked(),
		DepartmentExamTypes: byDept.crosstab(),
		Total:               len(rows),
	}
}

func aggregatePrescriptions(rows []PrescriptionRow) PrescriptionPatterns {
	meds, byDept, byDiag := counter{}, groups{}, groups{}
	for _, r := range rows {
		meds.add(r.Medication)
		byDept.add(r.Department, r.Medication)
		byDiag.add(r.Diagnosis, r.Medication)
	}
	return PrescriptionPatterns{
		Medications:             meds.ranked(),
		DepartmentMedications:   byDept.crosstab(),
		DiagnosisTopMedications: byDiag.top(topN),
		Total:                   len(rows),
	}
}

func aggregateOperations(rows []OperationRow) OperationStats {
	names, levels, byDept := counter{}, counter{}, groups{}
	var bl *BloodLoss
	sum := 0
	for _, r := range rows {
		names.add(r.Name)
		levels.add(r.Level)
		byDept.add(r.Department, r.Name)

		// Operations without a recorded blood loss are left out of the
		// blood loss statistics.
		if r.BloodLoss == nil {
			continue
		}
		v := *r.BloodLoss
		if bl == nil {
			bl = &BloodLoss{Min: v, Max: v}
		}
		bl.Min = min(bl.Min, v)
		bl.Max = max(bl.Max, v)
		bl.Samples++
		sum += v
	}
	if bl != nil {
		bl.Mean = float64(sum) / float64(bl.Samples)
	}
	return OperationStats{
		Operations:           names.ranked(),
		Levels:               levels.ranked(),
		DepartmentOperations: byDept.crosstab(),
		BloodLoss:            bl,
		Total:                len(rows),
	}
}
