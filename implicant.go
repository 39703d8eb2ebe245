package bes

// The Boolean-cover engine behind SPBE: implicants over {0,1,*}^n,
// Quine-McCluskey prime-implicant enumeration, the prime-implicant
// chart and minimum-cover selection.

import (
	"strings"
)

// Value of a starred (absent) variable in an implicant.
const star int8 = -1

// An Implicant is a product term over n Boolean variables, stored as a
// vector of 0, 1 and star.  Position 0 is the most significant
// variable.  The star pattern (bitmask of starred positions, MSB first)
// and the Hamming weight speed up pairing during enumeration.
type Implicant struct {
	value       []int8
	starPattern uint32
	prime       bool
}

// Returns the minterm x as an implicant over locality variables.
func NewImplicant(x uint32, locality int) *Implicant {
	im := &Implicant{value: make([]int8, locality), prime: true}
	for i := 0; i < locality; i++ {
		if (x>>uint(locality-i-1))&1 != 0 {
			im.value[i] = 1
		}
	}
	return im
}

func (im *Implicant) clone() *Implicant {
	c := &Implicant{
		value:       make([]int8, len(im.value)),
		starPattern: im.starPattern,
		prime:       im.prime,
	}
	copy(c.value, im.value)
	return c
}

// Stars out position i.
func (im *Implicant) setStar(i int) {
	im.value[i] = star
	im.starPattern |= 1 << uint(len(im.value)-1-i)
}

// Number of variables, stars included.
func (im *Implicant) Locality() int {
	return len(im.value)
}

// Number of positions fixed to 1.
func (im *Implicant) hw() int {
	ret := 0
	for _, v := range im.value {
		if v == 1 {
			ret++
		}
	}
	return ret
}

func (im *Implicant) equal(other *Implicant) bool {
	if len(im.value) != len(other.value) {
		return false
	}
	for i := range im.value {
		if im.value[i] != other.value[i] {
			return false
		}
	}
	return true
}

func (im *Implicant) String() string {
	var b strings.Builder
	for _, v := range im.value {
		switch v {
		case star:
			b.WriteByte('*')
		case 1:
			b.WriteByte('1')
		default:
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Reports whether the implicant covers x: every non-star position
// equals the corresponding bit of x.
func (im *Implicant) Covers(x uint32) bool {
	n := len(im.value)
	for i, v := range im.value {
		if v == star {
			continue
		}
		if uint32(v) != (x>>uint(n-i-1))&1 {
			return false
		}
	}
	return true
}

// Binary coding of the implicant on 2n bits: the high n bits mark the
// positions fixed to 0, the low n bits the positions fixed to 1; a
// starred position is zero in both halves.
func (im *Implicant) Encode() uint64 {
	var fixed0, fixed1 uint64
	for _, v := range im.value {
		fixed0 <<= 1
		fixed1 <<= 1
		switch v {
		case 0:
			fixed0 |= 1
		case 1:
			fixed1 |= 1
		}
	}
	return fixed0<<uint(len(im.value)) | fixed1
}

// Inverse of Encode.
func DecodeImplicant(code uint64, locality int) *Implicant {
	fixed0 := uint32(code >> uint(locality))
	fixed1 := uint32(code & (1<<uint(locality) - 1))
	im := NewImplicant(fixed1, locality)
	for i := 0; i < locality; i++ {
		bit := uint(locality - i - 1)
		if (fixed0>>bit)&1 == 0 && (fixed1>>bit)&1 == 0 {
			im.setStar(i)
		}
	}
	return im
}

// Combines two implicants differing in exactly one non-star position
// into the implicant with that position starred.  Returns nil when the
// star patterns differ or more than one position differs.
func combineImplicants(x, y *Implicant) *Implicant {
	if x.starPattern != y.starPattern {
		return nil
	}
	distance := 0
	pos := -1
	for i := range x.value {
		if x.value[i] != y.value[i] {
			distance++
			if distance > 1 {
				return nil
			}
			pos = i
		}
	}
	if distance != 1 {
		return nil
	}
	c := x.clone()
	c.prime = true
	c.setStar(pos)
	return c
}

// Enumerates the prime implicants of the truth table.  Value 1 is the
// on-set, 0 the off-set; anything else is a don't care, which joins the
// enumeration but needs no cover.  The table length must be a power of
// two.
func primeImplicants(tt []int8) []*Implicant {
	locality := 0
	for 1<<uint(locality) < len(tt) {
		locality++
	}

	// Buckets indexed by (star pattern, Hamming weight).
	newGeneration := func() [][][]*Implicant {
		gen := make([][][]*Implicant, 1<<uint(locality))
		for sp := range gen {
			gen[sp] = make([][]*Implicant, locality+1)
		}
		return gen
	}

	cur := newGeneration()
	for x, v := range tt {
		if v != 0 {
			im := NewImplicant(uint32(x), locality)
			cur[0][im.hw()] = append(cur[0][im.hw()], im)
		}
	}

	var primes []*Implicant
	for {
		next := newGeneration()
		progress := false
		for sp := range cur {
			for hw := 0; hw < locality; hw++ {
				for _, im1 := range cur[sp][hw] {
					for _, im2 := range cur[sp][hw+1] {
						c := combineImplicants(im1, im2)
						if c == nil {
							continue
						}
						im1.prime = false
						im2.prime = false
						bucket := next[c.starPattern][c.hw()]
						known := false
						for _, c2 := range bucket {
							if c.equal(c2) {
								known = true
								break
							}
						}
						if !known {
							next[c.starPattern][c.hw()] =
								append(bucket, c)
							progress = true
						}
					}
				}
			}
		}

		for sp := range cur {
			for _, bucket := range cur[sp] {
				for _, im := range bucket {
					if im.prime {
						primes = append(primes, im)
					}
				}
			}
		}

		if !progress {
			return primes
		}
		cur = next
	}
}

// Builds the prime-implicant chart: for each on-set input, the indices
// of the implicants covering it.  Off-set inputs are checked against
// every implicant; a cover there, or an uncovered on-set input, means
// the enumeration is broken.
func implicantChart(implicants []*Implicant, tt []int8) ([][]int, Error) {
	chart := make([][]int, len(tt))
	for x := range tt {
		switch tt[x] {
		case 1:
			for i, im := range implicants {
				if im.Covers(uint32(x)) {
					chart[x] = append(chart[x], i)
				}
			}
			if len(chart[x]) == 0 {
				return nil, errorf(ErrInvariant,
					"no prime implicant covers on-set input %d", x)
			}
		case 0:
			for _, im := range implicants {
				if im.Covers(uint32(x)) {
					return nil, errorf(ErrInvariant,
						"prime implicant %s covers off-set input %d",
						im, x)
				}
			}
		}
	}
	return chart, nil
}

// Selects a feasible cover from the chart: essential implicants (sole
// cover of some input) first, then greedy set cover over the rest,
// largest gain first with the lowest index on ties.  The result is in
// ascending implicant order, so a given chart always yields the same
// cover.
func minimalCover(implicants []*Implicant, chart [][]int) []*Implicant {
	selected := make([]bool, len(implicants))
	covered := make([]bool, len(chart))
	remaining := 0
	for x := range chart {
		if len(chart[x]) == 0 {
			covered[x] = true
		} else {
			remaining++
		}
	}

	markCovered := func(idx int) {
		for x := range chart {
			if covered[x] {
				continue
			}
			for _, i := range chart[x] {
				if i == idx {
					covered[x] = true
					remaining--
					break
				}
			}
		}
	}

	for x := range chart {
		if len(chart[x]) == 1 && !selected[chart[x][0]] {
			selected[chart[x][0]] = true
			markCovered(chart[x][0])
		}
	}

	for remaining > 0 {
		counts := make([]int, len(implicants))
		for x := range chart {
			if covered[x] {
				continue
			}
			for _, i := range chart[x] {
				counts[i]++
			}
		}
		best := -1
		for i, c := range counts {
			if c > 0 && (best == -1 || c > counts[best]) {
				best = i
			}
		}
		selected[best] = true
		markCovered(best)
	}

	var cover []*Implicant
	for i, im := range implicants {
		if selected[i] {
			cover = append(cover, im)
		}
	}
	return cover
}
