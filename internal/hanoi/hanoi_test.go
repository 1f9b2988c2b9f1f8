package hanoi

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestCodec_CollapsesRepresentations(t *testing.T) {
	c := Codec{}
	want := "[3,2][][1]"

	assert.Equal(t, want, c.StateKey(Pegs{{3, 2}, {}, {1}}))
	assert.Equal(t, want, c.StateKey([][]int{{3, 2}, {}, {1}}))
	assert.Equal(t, want, c.StateKey(decode(t, `[[3,2],[],[1]]`)))
	assert.Equal(t, want, c.StateKey(decode(t, `[[[3],[2]],[],[[1]]]`)), "nested lists flatten")
	assert.Equal(t, want, c.StateKey(decode(t, `[[2,3],[],[1.0]]`)), "top-first peg reversed")

	assert.True(t, c.Equal(Pegs{{3, 2}, {}, {1}}, decode(t, `[[3,2],[],[1]]`)))
	assert.False(t, c.Equal(Pegs{{3, 2}, {}, {1}}, Pegs{{3, 2}, {1}, {}}))
	assert.False(t, c.Equal("garbage", "garbage"))
}

func TestCodec_TotalOnGarbage(t *testing.T) {
	c := Codec{}
	for _, v := range []any{nil, "x", 3.5, map[string]any{"a": 1}, decode(t, `[[1.5]]`)} {
		assert.NotPanics(t, func() {
			assert.Contains(t, c.StateKey(v), "invalid:")
			assert.Contains(t, c.MoveKey(v), "invalid:")
		})
	}
}

func TestCodec_Idempotent(t *testing.T) {
	c := Codec{}
	for _, raw := range []string{`[[3,2,1],[],[]]`, `[[[1]],[2,3],[]]`, `[[],[],[1,2,3,4]]`} {
		once, ok := c.Canonical(decode(t, raw))
		require.True(t, ok)
		twice, ok := c.Canonical(once)
		require.True(t, ok)
		assert.Equal(t, once, twice)
		assert.Equal(t, c.StateKey(once), c.StateKey(twice))
	}
	m, ok := toMove([]any{1.0, 0.0, 2.0})
	require.True(t, ok)
	assert.Equal(t, c.MoveKey(m), c.MoveKey([]any{1.0, 0.0, 2.0}))
}

func TestCodec_MoveKeyIgnoresDiskLabel(t *testing.T) {
	c := Codec{}
	assert.Equal(t, "0->2", c.MoveKey(decode(t, `[1,0,2]`)))
	assert.Equal(t, "0->2", c.MoveKey(decode(t, `[0,2]`)))
	assert.Equal(t, "0->2", c.MoveKey(decode(t, `{"disk":1,"from":0,"to":2}`)))
	assert.Equal(t, "0->2", c.MoveKey(Move{Disk: 1, From: 0, To: 2}))
}

func TestValidator_ReferenceCases(t *testing.T) {
	v := NewValidator()
	prev := Pegs{{3, 2, 1}, {}, {}}

	ok := v.Validate(prev, mdap.Raw{Text: `{"move":[1,0,2],"predicted_state":[[3,2],[],[1]]}`})
	require.True(t, ok.Valid, "reason=%s", ok.Reason)
	assert.Equal(t, Pegs{{3, 2}, {}, {1}}, ok.State)
	assert.Equal(t, Move{Disk: 1, From: 0, To: 2}, ok.Move)

	bad := v.Validate(prev, mdap.Raw{Text: `{"move":[0,1,0],"predicted_state":[[3,2,1],[],[]]}`})
	assert.False(t, bad.Valid)
	assert.Equal(t, mdap.ReasonIllegalSource, bad.Reason)
}

func TestValidator_Reasons(t *testing.T) {
	v := NewValidator()
	prev := Pegs{{3, 2}, {1}, {}}

	cases := []struct {
		name string
		text string
		want mdap.Reason
	}{
		{"legal onto empty", `{"move":[2,0,2],"predicted_state":[[3],[1],[2]]}`, mdap.ReasonNone},
		{"legal line format", "move = [1, 1, 0]\nnext_state = [[3,2,1],[],[]]", mdap.ReasonNone},
		{"fenced json", "```json\n{\"move\":[0,2],\"predicted_state\":[[3],[1],[2]]}\n```", mdap.ReasonNone},
		{"empty source", `{"move":[2,0],"predicted_state":[[3,2],[1],[]]}`, mdap.ReasonIllegalSource},
		{"not top disk", `{"move":[3,0,2],"predicted_state":[[2],[1],[3]]}`, mdap.ReasonIllegalSource},
		{"source out of range", `{"move":[7,1],"predicted_state":[[3,2],[1],[]]}`, mdap.ReasonIllegalSource},
		{"larger onto smaller", `{"move":[2,0,1],"predicted_state":[[3],[1,2],[]]}`, mdap.ReasonIllegalDestination},
		{"same peg", `{"move":[1,1,1],"predicted_state":[[3,2],[1],[]]}`, mdap.ReasonIllegalDestination},
		{"destination out of range", `{"move":[1,1,5],"predicted_state":[[3,2],[1],[]]}`, mdap.ReasonIllegalDestination},
		{"wrong claimed state", `{"move":[2,0,2],"predicted_state":[[3],[],[2,1]]}`, mdap.ReasonStateMismatch},
		{"prose", `I would move the small disk.`, mdap.ReasonMalformedOutput},
		{"truncated json", `{"move":[1,0,2],"predicted_state":[[3,2],[]`, mdap.ReasonMalformedOutput},
		{"state not a list", `{"move":[2,0,2],"predicted_state":"[[3],[1],[2]]"}`, mdap.ReasonMalformedOutput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := v.Validate(prev, mdap.Raw{Text: tc.text})
			if tc.want == mdap.ReasonNone {
				assert.True(t, c.Valid, "reason=%s", c.Reason)
				return
			}
			assert.False(t, c.Valid)
			assert.Equal(t, tc.want, c.Reason)
		})
	}
}

func TestValidator_DestinationMustBeStrictlyLarger(t *testing.T) {
	// malformed previous state with a repeated disk label
	prev := Pegs{{2}, {2}, {}}
	c := NewValidator().Check(prev, Move{Disk: 2, From: 0, To: 1}, Pegs{{}, {2, 2}, {}})
	assert.False(t, c.Valid)
	assert.Equal(t, mdap.ReasonIllegalDestination, c.Reason)

	c = NewValidator().Check(prev, Move{Disk: 2, From: 0, To: 2}, Pegs{{}, {2}, {2}})
	assert.True(t, c.Valid, "reason=%s", c.Reason)
}

func TestSolver_OptimalLength(t *testing.T) {
	for n := 1; n <= 6; n++ {
		moves, ok := Solve(Tower(n, 0, 3), Tower(n, 1, 3), 1000)
		require.True(t, ok, "n=%d", n)
		assert.Len(t, moves, OptimalLength(n), "n=%d", n)
	}
}

func TestSolver_EveryMoveLegal(t *testing.T) {
	v := NewValidator()
	cur := Tower(4, 0, 3)
	goal := Tower(4, 2, 3)
	moves, ok := Solve(cur, goal, 100)
	require.True(t, ok)
	for _, m := range moves {
		next, _ := cur.Apply(m)
		c := v.Check(cur, m, next)
		require.True(t, c.Valid, "move %s from %s: %s", m, cur, c.Reason)
		cur = next
	}
	assert.Equal(t, goal.String(), cur.String())
}

func TestSolver_MidPuzzleAndArbitraryGoal(t *testing.T) {
	moves, ok := Solve(Pegs{{3}, {2, 1}, {}}, Tower(3, 1, 3), 50)
	require.True(t, ok)
	assert.Len(t, moves, 7)

	_, ok = Solve(Pegs{{3, 2, 1}, {}, {}}, Pegs{{2}, {3}, {1}}, 50)
	assert.True(t, ok)

	_, ok = NextMove(Tower(3, 1, 3), Tower(3, 1, 3))
	assert.False(t, ok, "no move at goal")
	_, ok = NextMove(Pegs{{1, 2}, {}, {}}.Clone(), Tower(2, 1, 3))
	assert.False(t, ok, "raw malformed state is rejected")
}

func TestOracle_PredictsValidMoves(t *testing.T) {
	v := NewValidator()
	in := mdap.Context{State: Tower(3, 0, 3), Goal: Tower(3, 1, 3)}
	text, err := Oracle{}.Predict(context.Background(), in)
	require.NoError(t, err)
	c := v.Validate(in.State, mdap.Raw{Text: text})
	require.True(t, c.Valid)
	assert.Equal(t, Move{Disk: 1, From: 0, To: 1}, c.Move)

	_, err = Oracle{}.Predict(context.Background(), mdap.Context{State: Tower(3, 1, 3), Goal: Tower(3, 1, 3)})
	assert.ErrorIs(t, err, ErrNoMove)
}

func TestNoisy_FaultsMapToReasons(t *testing.T) {
	v := NewValidator()
	in := mdap.Context{RunID: "r", State: Pegs{{3, 2}, {}, {1}}, Goal: Tower(3, 1, 3)}

	want := map[Fault]mdap.Reason{
		FaultIllegalMove:   mdap.ReasonIllegalSource,
		FaultMalformed:     mdap.ReasonMalformedOutput,
		FaultStateMismatch: mdap.ReasonStateMismatch,
	}
	for fault, reason := range want {
		n := &Noisy{ErrorRate: 1, Seed: 3, Faults: []Fault{fault}}
		text, err := n.Predict(context.Background(), in)
		require.NoError(t, err)
		c := v.Validate(in.State, mdap.Raw{Text: text})
		assert.Equal(t, reason, c.Reason, "fault %s", fault)
	}

	n := &Noisy{ErrorRate: 1, Seed: 3, Faults: []Fault{FaultWrongMove}}
	text, err := n.Predict(context.Background(), in)
	require.NoError(t, err)
	c := v.Validate(in.State, mdap.Raw{Text: text})
	require.True(t, c.Valid)
	right, _ := NextMove(in.State.(Pegs), in.Goal.(Pegs))
	assert.NotEqual(t, Codec{}.MoveKey(right), Codec{}.MoveKey(c.Move))
}

func TestNoisy_DeterministicPerSample(t *testing.T) {
	n := &Noisy{ErrorRate: 0.5, Seed: 11}
	in := mdap.Context{RunID: "ep-1", Step: 2, Sample: 4, State: Tower(3, 0, 3), Goal: Tower(3, 1, 3)}
	a, err := n.Predict(context.Background(), in)
	require.NoError(t, err)
	b, err := n.Predict(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNoisy_IndependentOfRunID(t *testing.T) {
	n := &Noisy{ErrorRate: 0.5, Seed: 3}
	for sample := 0; sample < 20; sample++ {
		in := mdap.Context{Step: 1, Sample: sample, State: Tower(3, 0, 3), Goal: Tower(3, 1, 3)}
		in.RunID = "first"
		a, err := n.Predict(context.Background(), in)
		require.NoError(t, err)
		in.RunID = "second"
		b, err := n.Predict(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, a, b, "sample %d", sample)
	}
}

func TestNoisy_ZeroRateIsOracle(t *testing.T) {
	in := mdap.Context{State: Tower(2, 0, 3), Goal: Tower(2, 2, 3)}
	want, _ := Oracle{}.Predict(context.Background(), in)
	got, err := (&Noisy{}).Predict(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
