// Package dice implements deterministic dice rolling for the development
// authority server.
package dice

import (
	"errors"
	"math/rand"
)

// ErrMissingDice indicates a roll request had no dice specified.
var ErrMissingDice = errors.New("at least one die must be provided")

// ErrInvalidDiceSpec indicates a die specification has invalid fields.
var ErrInvalidDiceSpec = errors.New("dice must have positive sides and count")

// DiceSpec describes a die to roll and how many times to roll it.
type DiceSpec struct {
	Sides int
	Count int
}

// DieRoll captures the results for a single dice spec.
type DieRoll struct {
	Sides   int
	Results []int
	Total   int
}

// RollRequest describes a request to roll one or more dice.
type RollRequest struct {
	Dice []DiceSpec
	Seed int64
}

// RollResult captures the results from rolling multiple dice.
type RollResult struct {
	Rolls []DieRoll
	Total int
}

// RollDice rolls dice based on the provided request.
//
// RollDice is deterministic with respect to the Seed field on RollRequest:
// given the same Seed and the same Dice slice, it always produces the same
// RollResult. Dice specs are processed in slice order and the resulting
// DieRoll entries appear in the same order.
func RollDice(request RollRequest) (RollResult, error) {
	if len(request.Dice) == 0 {
		return RollResult{}, ErrMissingDice
	}

	rng := rand.New(rand.NewSource(request.Seed))
	rolls := make([]DieRoll, 0, len(request.Dice))
	total := 0

	for _, spec := range request.Dice {
		if spec.Sides <= 0 || spec.Count <= 0 {
			return RollResult{}, ErrInvalidDiceSpec
		}

		results := make([]int, spec.Count)
		rollTotal := 0
		for i := 0; i < spec.Count; i++ {
			value := rollDie(rng, spec.Sides)
			results[i] = value
			rollTotal += value
		}

		rolls = append(rolls, DieRoll{
			Sides:   spec.Sides,
			Results: results,
			Total:   rollTotal,
		})
		total += rollTotal
	}

	return RollResult{Rolls: rolls, Total: total}, nil
}

// InitiativeRequest describes an initiative roll for one actor.
type InitiativeRequest struct {
	Modifier int
	Seed     int64
}

// InitiativeResult captures a resolved initiative roll.
type InitiativeResult struct {
	Die      int
	Modifier int
	Total    int
}

// RollInitiative rolls a single d20 and applies the modifier. It shares
// RollDice's determinism guarantee with respect to Seed.
func RollInitiative(request InitiativeRequest) InitiativeResult {
	result, err := RollDice(RollRequest{
		Dice: []DiceSpec{{Sides: 20, Count: 1}},
		Seed: request.Seed,
	})
	if err != nil {
		// Unreachable: the DiceSpec is hardcoded and always valid.
		panic(err)
	}

	die := result.Rolls[0].Results[0]
	return InitiativeResult{
		Die:      die,
		Modifier: request.Modifier,
		Total:    die + request.Modifier,
	}
}

// rollDie rolls a die with the provided number of sides.
func rollDie(rng *rand.Rand, sides int) int {
	return rng.Intn(sides) + 1
}
