package energy

import (
	"sort"
)

// ComputeDailyRollups groups an entity's raw snapshot by (calendar date,
// category) and computes total, peak and average per group. Output is sorted
// by date then category so that recomputation over an unchanged snapshot is
// byte-identical.
func ComputeDailyRollups(recs []RawRecord) []DailyRollup {
	type group struct {
		sum   float64
		max   float64
		count int
	}

	groups := make(map[string]*group)
	keys := make(map[string]DailyRollup)

	for _, r := range recs {
		date := DateOf(r.Period)
		k := date.Format("2006-01-02") + "|" + r.Category

		g, ok := groups[k]
		if !ok {
			g = &group{max: r.Value}
			groups[k] = g
			keys[k] = DailyRollup{Date: date, Entity: r.Entity, Category: r.Category}
		}
		g.sum += r.Value
		if r.Value > g.max {
			g.max = r.Value
		}
		g.count++
	}

	rollups := make([]DailyRollup, 0, len(groups))
	for k, g := range groups {
		ru := keys[k]
		ru.Total = g.sum
		ru.Peak = g.max
		ru.Average = g.sum / float64(g.count)
		rollups = append(rollups, ru)
	}

	sort.Slice(rollups, func(i, j int) bool {
		if !rollups[i].Date.Equal(rollups[j].Date) {
			return rollups[i].Date.Before(rollups[j].Date)
		}
		return rollups[i].Category < rollups[j].Category
	})
	return rollups
}

// ComputeRegionalStats derives the per-date generation mix for one entity
// from its raw generation snapshot. Peak and average hour are taken over the
// individual hourly values of the date. When a date's total generation is
// zero every percentage field stays nil.
func ComputeRegionalStats(entity string, recs []RawRecord) []RegionalStat {
	type group struct {
		total     float64
		renewable float64
		byFuel    map[string]float64
		max       float64
		count     int
	}

	groups := make(map[string]*group)
	dates := make(map[string]RegionalStat)

	for _, r := range recs {
		date := DateOf(r.Period)
		k := date.Format("2006-01-02")

		g, ok := groups[k]
		if !ok {
			g = &group{byFuel: make(map[string]float64), max: r.Value}
			groups[k] = g
			dates[k] = RegionalStat{Entity: entity, Date: date}
		}
		g.total += r.Value
		g.byFuel[r.Category] += r.Value
		if renewableFuels[r.Category] {
			g.renewable += r.Value
		}
		if r.Value > g.max {
			g.max = r.Value
		}
		g.count++
	}

	stats := make([]RegionalStat, 0, len(groups))
	for k, g := range groups {
		st := dates[k]
		st.TotalGeneration = g.total
		st.PeakHour = g.max
		st.AverageHour = g.total / float64(g.count)

		if g.total > 0 {
			st.RenewablePct = pct(g.renewable, g.total)
			st.CoalPct = pct(g.byFuel[FuelCoal], g.total)
			st.GasPct = pct(g.byFuel[FuelGas], g.total)
			st.NuclearPct = pct(g.byFuel[FuelNuclear], g.total)
			st.SolarPct = pct(g.byFuel[FuelSolar], g.total)
			st.WindPct = pct(g.byFuel[FuelWind], g.total)
			st.HydroPct = pct(g.byFuel[FuelHydro], g.total)
		}
		stats = append(stats, st)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Date.Before(stats[j].Date)
	})
	return stats
}

func pct(part, total float64) *float64 {
	v := part / total * 100
	return &v
}
