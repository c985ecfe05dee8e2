package enum

// SignalSide is the action a strategy requests for a symbol.
type SignalSide string

const (
	SignalSideBuy   SignalSide = "buy"
	SignalSideSell  SignalSide = "sell"
	SignalSideClose SignalSide = "close"
)

func (s SignalSide) IsAvailable() bool {
	switch s {
	case SignalSideBuy, SignalSideSell, SignalSideClose:
		return true
	default:
		return false
	}
}

// IsEntry reports whether the side opens a new exposure.
func (s SignalSide) IsEntry() bool {
	return s == SignalSideBuy || s == SignalSideSell
}

// PositionSide is the direction of an open exposure.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

func (s PositionSide) IsAvailable() bool {
	return s == PositionSideLong || s == PositionSideShort
}

// FromSignal maps an entry signal side to the position side it opens.
func FromSignal(s SignalSide) PositionSide {
	if s == SignalSideSell {
		return PositionSideShort
	}
	return PositionSideLong
}
