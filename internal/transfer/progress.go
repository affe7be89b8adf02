package transfer

// Direction tells which way a file is moving.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "receive"
	}
	return "send"
}

// Progress is reported after every chunk.
type Progress struct {
	Direction Direction
	Name      string
	Bytes     int64
	Total     int64
	Percent   int
}

// Done reports whether the transfer reached 100%.
func (p Progress) Done() bool {
	return p.Percent >= 100
}

// percent is floor(done*100/total) clamped to [0,100]. An empty file is
// complete from the start.
func percent(done, total int64) int {
	if total <= 0 {
		return 100
	}
	p := done * 100 / total
	switch {
	case p > 100:
		return 100
	case p < 0:
		return 0
	}
	return int(p)
}
