package detect

import "github.com/polymathbot/polymath/internal/domain"

// FeeModel computes the worst-case combined fee for a two-leg trade whose
// YES leg costs yesPrice and NO leg costs noPrice. Conservative by
// construction: under-estimating fees would surface false opportunities.
type FeeModel interface {
	WorstCaseFee(yesPrice, noPrice float64, yesFees, noFees domain.FeeSchedule) float64
}

// SettlementFeeModel charges each venue's rate on the profit of the leg
// that ends up winning. Exactly one leg pays out $1.00 at resolution, so
// the worst case is whichever resolution incurs the larger fee.
type SettlementFeeModel struct{}

// WorstCaseFee implements FeeModel.
func (SettlementFeeModel) WorstCaseFee(yesPrice, noPrice float64, yesFees, noFees domain.FeeSchedule) float64 {
	feeIfYesWins := legFee(yesPrice, yesFees)
	feeIfNoWins := legFee(noPrice, noFees)
	if feeIfYesWins > feeIfNoWins {
		return feeIfYesWins
	}
	return feeIfNoWins
}

func legFee(price float64, fees domain.FeeSchedule) float64 {
	switch fees.Kind {
	case domain.FeeKindFlat:
		return fees.Flat
	default:
		profit := 1.0 - price
		if profit < 0 {
			profit = 0
		}
		return profit * fees.Rate
	}
}

// FlatFeeModel ignores the per-venue schedules and charges a fixed
// per-contract amount for each leg. It is the blunt conservative estimate
// for venues whose schedules are not modeled precisely.
type FlatFeeModel struct {
	PerLeg float64
}

// WorstCaseFee implements FeeModel.
func (f FlatFeeModel) WorstCaseFee(_, _ float64, _, _ domain.FeeSchedule) float64 {
	return 2 * f.PerLeg
}
