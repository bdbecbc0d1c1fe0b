package covid

import (
	appLog "covidboard/internal/log"
	"covidboard/internal/model"
)

// ComputeStats derives the three key statistics from daily rows (most
// recent first):
//
//   - sevenDay: total new cases over the last 7 complete days. The most
//     recent day with data is skipped because its count is still being
//     reported and would undercount.
//   - hospital: hospital cases from the most recent day with a value.
//   - deaths: cumulative deaths from the most recent day with a value.
//
// Each value is absent (shown as N/A) when the series has no usable
// entry; ltla-level responses carry no hospital or death metrics at all.
func ComputeStats(rows []Row) (sevenDay, hospital, deaths model.StatValue) {
	first := -1
	for i, r := range rows {
		if r.NewCases != nil {
			first = i
			break
		}
	}
	if first >= 0 {
		first++ // skip the incomplete most recent day
		days := 7
		if len(rows)-first < days {
			days = len(rows) - first
		}
		total := 0
		for i := 0; i < days; i++ {
			if n := rows[first+i].NewCases; n != nil {
				total += *n
			}
		}
		sevenDay = model.Stat(total)
	} else {
		appLog.Info("no data to calculate the 7 day case rate")
	}

	for _, r := range rows {
		if r.HospitalCases != nil {
			hospital = model.Stat(*r.HospitalCases)
			break
		}
	}
	if !hospital.OK {
		appLog.Info("insufficient data to show hospital cases")
	}

	for _, r := range rows {
		if r.CumDeaths != nil {
			deaths = model.Stat(*r.CumDeaths)
			break
		}
	}
	if !deaths.OK {
		appLog.Info("insufficient data to show cumulative deaths")
	}

	return sevenDay, hospital, deaths
}

// AreaName returns the area label of the data set, empty when there are
// no rows.
func AreaName(rows []Row) string {
	if len(rows) == 0 {
		return ""
	}
	return rows[0].AreaName
}
