package game

// outcomes is indexed [player1][player2].
var outcomes = [3][3]Result{
	Rock:     {Rock: ResultDraw, Paper: ResultPlayer2Wins, Scissors: ResultPlayer1Wins},
	Paper:    {Rock: ResultPlayer1Wins, Paper: ResultDraw, Scissors: ResultPlayer2Wins},
	Scissors: {Rock: ResultPlayer2Wins, Paper: ResultPlayer1Wins, Scissors: ResultDraw},
}

// Resolve decides a round. Out-of-domain input yields ResultUndecidable and
// ErrUndecidableRound; it is never mapped onto a valid move.
func Resolve(a, b Move) (Result, error) {
	if !a.Valid() || !b.Valid() {
		return ResultUndecidable, ErrUndecidableRound
	}
	return outcomes[a][b], nil
}

func moveFromClear(v uint64) Move {
	if v > 0xff {
		return Move(0xff)
	}
	return Move(v)
}
