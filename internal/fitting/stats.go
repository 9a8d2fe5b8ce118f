package fitting

import (
	"math"

	"github.com/montanaflynn/stats"
)

// populationStd returns the population standard deviation of v, or NaN when
// there is nothing to measure.
func populationStd(v []float64) float64 {
	sd, err := stats.StandardDeviationPopulation(v)
	if err != nil {
		return math.NaN()
	}
	return sd
}
