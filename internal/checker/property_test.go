package checker

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

var (
	ruleTypes = []model.RuleType{model.RulePermission, model.RuleProhibition, model.RuleObligation}
	operators = []model.Operator{model.OpEq, model.OpNeq, model.OpLt, model.OpLteq, model.OpGt, model.OpGteq, model.OpIn}
	assignees = []string{"role:clerk", "role:manager", "role:any"}
	tokens    = []string{"1", "2", "3", "1h", "a", "b"}
	dims      = []string{"temporal", "outcome"}
)

// ruleFrom builds a rule on activity "a" from generated indexes.
func ruleFrom(typ, assignee int, cs []int) model.PolicyRule {
	r := model.PolicyRule{
		Type:             ruleTypes[typ%len(ruleTypes)],
		Action:           "execute",
		Assignee:         assignees[assignee%len(assignees)],
		TargetActivityID: "a",
	}
	for i := 0; i+2 < len(cs); i += 3 {
		r.Constraints = append(r.Constraints, model.Constraint{
			Type:     dims[cs[i]%len(dims)],
			Operator: operators[cs[i+1]%len(operators)],
			Value:    tokens[cs[i+2]%len(tokens)],
		})
	}
	return r
}

func genIndexes() gopter.Gen {
	return gen.SliceOfN(6, gen.IntRange(0, 20))
}

func TestConflictSymmetry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	c := New()

	properties.Property("Compare ignores argument order", prop.ForAll(
		func(ta, aa, tb, ab int, ca, cb []int) bool {
			a := ruleFrom(ta, aa, ca)
			b := ruleFrom(tb, ab, cb)
			f1, ok1 := c.Compare(model.ConflictSameActivity, a, b)
			f2, ok2 := c.Compare(model.ConflictSameActivity, b, a)
			return ok1 == ok2 && reflect.DeepEqual(f1, f2)
		},
		gen.IntRange(0, 2), gen.IntRange(0, 2), gen.IntRange(0, 2), gen.IntRange(0, 2),
		genIndexes(), genIndexes(),
	))

	properties.Property("Check ignores rule order within a fragment", prop.ForAll(
		func(ta, aa, tb, ab int, ca, cb []int) bool {
			a := ruleFrom(ta, aa, ca)
			b := ruleFrom(tb, ab, cb)
			forward := Check([]model.FragmentRules{{FragmentID: "f", Rules: []model.PolicyRule{a, b}}}, nil)
			backward := Check([]model.FragmentRules{{FragmentID: "f", Rules: []model.PolicyRule{b, a}}}, nil)
			return reflect.DeepEqual(forward, backward)
		},
		gen.IntRange(0, 2), gen.IntRange(0, 2), gen.IntRange(0, 2), gen.IntRange(0, 2),
		genIndexes(), genIndexes(),
	))

	properties.Property("a rule never conflicts with itself", prop.ForAll(
		func(ta, aa int, ca []int) bool {
			r := ruleFrom(ta, aa, ca)
			_, ok := c.Compare(model.ConflictSameActivity, r, r)
			return !ok
		},
		gen.IntRange(0, 2), gen.IntRange(0, 2), genIndexes(),
	))

	properties.TestingRun(t)
}
