package hanoi

// #region solver

// OptimalLength is the minimal move count for n disks between two towers.
func OptimalLength(n int) int {
	if n <= 0 {
		return 0
	}
	return 1<<n - 1
}

// NextMove returns the next move of the standard recursive strategy from
// state toward goal: the largest misplaced disk goes to its goal peg once
// every smaller disk is parked on the spare peg. Both states must be
// wellformed three-peg states over the same disks. Returns false at goal.
func NextMove(state, goal Pegs) (Move, bool) {
	if len(state) != 3 || len(goal) != 3 || !state.Wellformed() || !goal.Wellformed() {
		return Move{}, false
	}
	if state.Disks() != goal.Disks() {
		return Move{}, false
	}
	for d := state.Disks(); d >= 1; d-- {
		if t := goal.PegOf(d); state.PegOf(d) != t {
			return firstMove(state, d, t)
		}
	}
	return Move{}, false
}

// firstMove finds the first move that gathers disks 1..k on target.
func firstMove(state Pegs, k, target int) (Move, bool) {
	for ; k >= 1; k-- {
		src := state.PegOf(k)
		if src == target {
			continue
		}
		spare := 3 - src - target
		if m, ok := firstMove(state, k-1, spare); ok {
			return m, true
		}
		return Move{Disk: k, From: src, To: target}, true
	}
	return Move{}, false
}

// Solve returns the full move sequence from state to goal, or false if it
// does not reach the goal within limit moves.
func Solve(state, goal Pegs, limit int) ([]Move, bool) {
	var moves []Move
	cur := state.Clone()
	for len(moves) <= limit {
		if cur.String() == goal.String() {
			return moves, true
		}
		m, ok := NextMove(cur, goal)
		if !ok {
			return moves, false
		}
		cur, _ = cur.Apply(m)
		moves = append(moves, m)
	}
	return moves, false
}

// #endregion
