package hyper

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type argTarget map[string]any

func (t argTarget) SetArg(tag, arg string, v any) error {
	k := tag + "." + arg
	if _, ok := t[k]; !ok {
		return errors.New("no such argument")
	}
	t[k] = v
	return nil
}

// checkedTarget validates paths before any write.
type checkedTarget struct{ argTarget }

func (t checkedTarget) CheckArg(tag, arg string) error {
	if _, ok := t.argTarget[tag+"."+arg]; !ok {
		return errors.New("no such argument")
	}
	return nil
}

func TestGrid_SizeAndConsistency(t *testing.T) {
	g := NewGrid(
		MustGroup(map[string][]any{"norm.force": {false, true}}),
		MustGroup(map[string][]any{
			"predictor.C":     {0.1, 1.0, 10.0},
			"predictor.power": {1, 2, 3},
		}),
	)
	require.Equal(t, 6, g.Size())

	pts := g.Points()
	require.Len(t, pts, 6)

	seen := map[string]bool{}
	for _, p := range pts {
		m := p.Map()
		require.Len(t, m, 3)
		// members of one group move in lock-step
		switch m["predictor.C"] {
		case 0.1:
			assert.Equal(t, 1, m["predictor.power"])
		case 1.0:
			assert.Equal(t, 2, m["predictor.power"])
		case 10.0:
			assert.Equal(t, 3, m["predictor.power"])
		}
		seen[p.String()] = true
	}
	assert.Len(t, seen, 6)
}

func TestGrid_EnumerationOrder(t *testing.T) {
	g := NewGrid(
		MustGroup(map[string][]any{"a.x": {1, 2}}),
		MustGroup(map[string][]any{"b.y": {"p", "q", "r"}}),
	)
	var got []string
	for _, p := range g.Points() {
		got = append(got, fmt.Sprint(p.Map()["a.x"], p.Map()["b.y"]))
	}
	assert.Equal(t, []string{"1 p", "1 q", "1 r", "2 p", "2 q", "2 r"}, got)
}

func TestGrid_Empty(t *testing.T) {
	var nilGrid *Grid
	assert.Equal(t, 1, nilGrid.Size())
	assert.Equal(t, 1, NewGrid().Size())
	assert.Empty(t, NewGrid().Points()[0])
}

func TestNewGroup_Errors(t *testing.T) {
	_, err := NewGroup(map[string][]any{"a.x": {1, 2}, "a.y": {1}})
	require.ErrorIs(t, err, ErrGroupLength)

	_, err = NewGroup(map[string][]any{"nodot": {1}})
	require.ErrorIs(t, err, ErrGridPath)

	_, err = NewGroup(map[string][]any{".x": {1}})
	require.ErrorIs(t, err, ErrGridPath)

	_, err = NewGroup(map[string][]any{})
	require.ErrorIs(t, err, ErrGroupLength)
	_, err = NewGroup(nil)
	require.ErrorIs(t, err, ErrGroupLength)
}

func TestApply(t *testing.T) {
	target := argTarget{"a.x": 0}
	g := NewGrid(MustGroup(map[string][]any{"a.x": {7}}))
	require.NoError(t, Apply(g.Point(0), target))
	assert.Equal(t, 7, target["a.x"])

	bad := NewGrid(MustGroup(map[string][]any{"a.missing": {1}}))
	err := Apply(bad.Point(0), target)
	require.ErrorIs(t, err, ErrGridPath)

	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "a.missing", pe.Path)
}

func TestApply_CheckedTargetIsAllOrNothing(t *testing.T) {
	p := NewGrid(MustGroup(map[string][]any{"a.x": {9}, "a.zz": {1}})).Point(0)

	plain := argTarget{"a.x": 0}
	require.ErrorIs(t, Apply(p, plain), ErrGridPath)
	assert.Equal(t, 9, plain["a.x"], "plain targets keep earlier writes")

	checked := checkedTarget{argTarget{"a.x": 0}}
	require.ErrorIs(t, Apply(p, checked), ErrGridPath)
	assert.Equal(t, 0, checked.argTarget["a.x"])
}
