package breakpoints

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogTemplateInterpolatesExpressions(t *testing.T) {
	parts := parseLogTemplate("count is {i} and total {sum}")
	assert.Equal(t, []logTemplatePart{
		{Literal: "count is "},
		{Expr: "i"},
		{Literal: " and total "},
		{Expr: "sum"},
	}, parts)
}

func TestParseLogTemplatePlainText(t *testing.T) {
	parts := parseLogTemplate("hit")
	assert.Equal(t, []logTemplatePart{{Literal: "hit"}}, parts)
}

func TestParseLogTemplateNoTrailingLiteral(t *testing.T) {
	parts := parseLogTemplate("{x}")
	assert.Equal(t, []logTemplatePart{{Expr: "x"}}, parts)
}

func TestConditionExprConditional(t *testing.T) {
	bp := &Breakpoint{Kind: Conditional, Condition: "x > 10"}
	assert.Equal(t, "x > 10", conditionExpr(bp))
}

func TestConditionExprLogIsEmpty(t *testing.T) {
	bp := &Breakpoint{Kind: Log, LogMessage: "x is {x}"}
	assert.Equal(t, "", conditionExpr(bp), "log breakpoints pause unconditionally at the CDP level; suppression happens in HandlePause")
}

func TestConditionExprHitCountIsEmpty(t *testing.T) {
	bp := &Breakpoint{Kind: HitCount, ID: "abc-123", MinHitCount: 3}
	assert.Equal(t, "", conditionExpr(bp), "hit-count breakpoints pause unconditionally at the CDP level; suppression happens in HandlePause")
}

func TestConditionExprLineHasNoCondition(t *testing.T) {
	bp := &Breakpoint{Kind: Line}
	assert.Equal(t, "", conditionExpr(bp))
}

func TestPredicateMetGreaterThan(t *testing.T) {
	bp := &Breakpoint{MinHitCount: 3}
	assert.False(t, predicateMet(bp, 3))
	assert.True(t, predicateMet(bp, 4))
}

func TestPredicateMetEquals(t *testing.T) {
	bp := &Breakpoint{HitPredicate: PredicateEquals, MinHitCount: 3}
	assert.False(t, predicateMet(bp, 2))
	assert.True(t, predicateMet(bp, 3))
	assert.False(t, predicateMet(bp, 4))
}

func TestPredicateMetModulo(t *testing.T) {
	bp := &Breakpoint{HitPredicate: PredicateModulo, MinHitCount: 3}
	assert.False(t, predicateMet(bp, 2))
	assert.True(t, predicateMet(bp, 3))
	assert.True(t, predicateMet(bp, 6))
}

func TestRegistryList(t *testing.T) {
	r := &Registry{
		byID:         make(map[string]*Breakpoint),
		byURL:        make(map[string]string),
		pendingByURL: make(map[string][]string),
	}
	bp := &Breakpoint{ID: "bp-1", InspectorID: "insp-1"}
	r.byID[bp.ID] = bp

	list := r.List()
	assert.Len(t, list, 1)
	assert.Equal(t, "bp-1", list[0].ID)
}

func TestHandlePauseNoHitBreakpointsNeverSuppresses(t *testing.T) {
	r := &Registry{byID: make(map[string]*Breakpoint)}
	suppress := r.HandlePause(nil, "", nil)
	assert.False(t, suppress)
}

func TestHandlePauseLineBreakpointSurfaces(t *testing.T) {
	r := &Registry{byID: make(map[string]*Breakpoint)}
	bp := &Breakpoint{ID: "bp-1", Kind: Line, InspectorID: "insp-1"}
	r.byID[bp.ID] = bp

	suppress := r.HandlePause(nil, "", []string{"insp-1"})
	assert.False(t, suppress)
	assert.Equal(t, 1, bp.HitCount)
}

func TestHandlePauseHitCountSuppressesUntilPredicateMet(t *testing.T) {
	r := &Registry{byID: make(map[string]*Breakpoint)}
	bp := &Breakpoint{ID: "bp-1", Kind: HitCount, MinHitCount: 2, InspectorID: "insp-1"}
	r.byID[bp.ID] = bp

	assert.True(t, r.HandlePause(nil, "", []string{"insp-1"}))
	assert.Equal(t, 1, bp.HitCount)
	assert.True(t, r.HandlePause(nil, "", []string{"insp-1"}))
	assert.Equal(t, 2, bp.HitCount)
	assert.False(t, r.HandlePause(nil, "", []string{"insp-1"}))
	assert.Equal(t, 3, bp.HitCount)
}
